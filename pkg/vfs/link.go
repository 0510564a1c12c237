package vfs

import (
	"context"
	"time"

	"github.com/corvfs/corvfs/internal/logger"
)

// ModeInherit makes Link copy the permission bits of the source node
// instead of taking an explicit mode.
const ModeInherit uint32 = ^uint32(0)

// Link creates a symbolic link at linkPath pointing at sourcePath.
//
// The source is resolved (chasing links, so linking to a link targets the
// final node). The link node stores the textual relative path from
// linkPath to sourcePath as its body, and caches the resolved source as
// its target. The target's reference count is incremented once for the
// link edge and released when the link is removed.
//
// linkPath must not already exist. Pass ModeInherit to copy the source's
// permission bits onto the link.
func (v *VFS) Link(ctx context.Context, sourcePath, linkPath string, mode uint32) error {
	if err := validateFacadePath(sourcePath); err != nil {
		return err
	}
	if err := validateFacadePath(linkPath); err != nil {
		return err
	}

	linkName := lastComponent(linkPath)
	if linkName == "" || linkName == "." || linkName == ".." {
		return newError(ErrInvalidArgument, "invalid link name", linkPath)
	}

	// Resolve the source, chasing links so a chain collapses onto the
	// final target.
	source, _, err := v.loadPathFrom(ctx, sourcePath, v.root)
	if err != nil {
		return err
	}
	target := source.resolved()
	if target != source {
		// Transfer the traversal reference from the link origin to
		// the target the new edge will hold.
		target.incRef()
		source.decRef()
	}
	// From here on target carries the reference that the new link edge
	// will own. Drop it on every failure path.

	if mode == ModeInherit {
		mode = target.Stat().Mode &^ ModeTypeMask
	}

	// Find the parent directory of the link, stopping one short.
	parentRes, err := v.traverse(ctx, linkPath, v.root, flagIgnoreLast, v.loadCallback)
	if err != nil {
		target.decRef()
		return err
	}
	if parentRes.node == nil {
		target.decRef()
		return newError(ErrNotFound, "link parent not found", parentRes.remainder)
	}
	parent := parentRes.node
	defer parent.decRef()

	if !parent.kindLocked().IsDirLike() {
		target.decRef()
		return newError(ErrNotDirectory, "link parent is not a directory", linkPath)
	}

	body := RelativePath(linkPath, sourcePath)

	var mres *Resource
	if mount := parent.Mount(); mount != nil {
		mres = mount.Resource()
	}
	linkRel := joinRel(mountRelPrefix(parent), linkName)

	// Create the link node under the parent's branch lock so a
	// concurrent create of the same name loses cleanly. The driver
	// Stat and Locate run under the lock too, the same serialization
	// point the materialization callbacks use.
	parent.branchMu.Lock()
	if existing := findChild(parent, linkName); existing != nil {
		parent.branchMu.Unlock()
		target.decRef()
		return newError(ErrAlreadyExists, "link path already exists", linkPath)
	}
	if mres != nil && mres.Driver != nil {
		if _, err := mres.Driver.Stat(ctx, mres, linkRel); err == nil {
			parent.branchMu.Unlock()
			target.decRef()
			return newError(ErrAlreadyExists, "link path already exists", linkPath)
		}
	}

	res, err := v.resourceForChild(mres, KindLink, nil)
	if err != nil {
		parent.branchMu.Unlock()
		target.decRef()
		return err
	}
	handle, err := res.Driver.Locate(ctx, res, linkRel)
	if err != nil {
		parent.branchMu.Unlock()
		target.decRef()
		return driverError("locate failed", linkPath, err)
	}
	res.Handle = handle

	link := newNode(parent, linkName, KindLink, res)
	link.stat.Mode = mode | ModeTypeLink
	parent.branchMu.Unlock()
	v.metrics.NodeCreated()

	// Write the body through the link's own resource.
	n, err := res.Driver.WriteAt(ctx, res, []byte(body), 0)
	if err != nil {
		// Roll the half-built link back out of the graph.
		parent.branchMu.Lock()
		detachChild(link)
		parent.branchMu.Unlock()
		v.freeNode(link)
		target.decRef()
		return driverError("link body write failed", linkPath, err)
	}

	now := time.Now()
	link.propMu.Lock()
	link.stat.Size = int64(n)
	link.stat.Mtime = now
	link.stat.Ctime = now
	link.linkTarget = target
	link.propMu.Unlock()

	target.propMu.Lock()
	target.stat.Nlink++
	target.propMu.Unlock()

	logger.Debug("linked %s -> %s (body %q)", linkPath, sourcePath, body)

	return nil
}

// ReadLink returns the textual body of the link at path.
func (v *VFS) ReadLink(ctx context.Context, path string) (string, error) {
	if err := validateFacadePath(path); err != nil {
		return "", err
	}

	res, err := v.traverse(ctx, path, v.root, 0, v.loadCallback)
	if err != nil {
		return "", err
	}
	if res.node == nil {
		return "", newError(ErrNotFound, "path not found", res.remainder)
	}
	defer res.node.decRef()

	if res.node.kindLocked() != KindLink {
		return "", newError(ErrInvalidArgument, "not a link", path)
	}

	return v.readLinkBody(ctx, res.node)
}
