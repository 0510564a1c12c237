package vfs

import (
	"context"

	"github.com/corvfs/corvfs/internal/logger"
)

// Rename moves the node at fromPath to toPath, preserving its identity:
// the node object survives the move and keeps its resource, stat and
// children.
//
// Within a single mount the driver is asked to rename the backing object
// as well. Renames across different mounts would require a physical copy,
// which the core does not perform; they fail with ErrCrossMount before
// any graph mutation. Renames of in-memory-only nodes mutate the graph
// alone.
//
// The destination parent is resolved as a load would: below a mount,
// missing intermediate directories are synthesized without asking the
// driver; outside mounts it must already exist. A node already carrying
// the destination name fails with ErrAlreadyExists.
func (v *VFS) Rename(ctx context.Context, fromPath, toPath string) error {
	if err := validateFacadePath(fromPath); err != nil {
		return err
	}
	if err := validateFacadePath(toPath); err != nil {
		return err
	}

	newName := lastComponent(toPath)
	if newName == "" || newName == "." || newName == ".." {
		return newError(ErrInvalidArgument, "invalid destination name", toPath)
	}

	// Resolve the source without chasing links: renaming a link moves
	// the link itself.
	fromRes, err := v.traverse(ctx, fromPath, v.root, 0, v.loadCallback)
	if err != nil {
		return err
	}
	if fromRes.node == nil {
		return newError(ErrNotFound, "rename source not found", fromRes.remainder)
	}
	node := fromRes.node
	defer node.decRef()

	// Resolve the destination parent, stopping one component short.
	toRes, err := v.traverse(ctx, toPath, v.root, flagIgnoreLast, v.loadCallback)
	if err != nil {
		return err
	}
	if toRes.node == nil {
		return newError(ErrNotFound, "rename destination parent not found", toRes.remainder)
	}
	destParent := toRes.node
	defer destParent.decRef()

	if !destParent.kindLocked().IsDirLike() {
		return newError(ErrNotDirectory, "rename destination parent is not a directory", toPath)
	}
	if node == destParent {
		return newError(ErrInvalidArgument, "cannot rename a node into itself", toPath)
	}
	if node.isMountpoint() || node == v.root {
		return newError(ErrInUse, "cannot rename a mountpoint", fromPath)
	}

	// Decide the physical side before mutating the graph.
	sameMount := fromRes.mount == toRes.mount
	if !sameMount && fromRes.mount != nil && toRes.mount != nil {
		return newError(ErrCrossMount, "rename across mounts requires a copy", toPath)
	}
	if !sameMount {
		// One side mounted, one side in-memory: same problem.
		return newError(ErrCrossMount, "rename between mount and memory requires a copy", toPath)
	}

	srcParent := node.Parent()
	if srcParent == nil {
		return newError(ErrInvalidArgument, "rename source has no parent", fromPath)
	}

	logger.Debug("renaming %s -> %s", fromPath, toPath)

	if srcParent == destParent {
		srcParent.branchMu.Lock()
		if existing := findChild(srcParent, newName); existing != nil && existing != node {
			srcParent.branchMu.Unlock()
			return newError(ErrAlreadyExists, "rename destination exists", toPath)
		}
		node.name = newName
		srcParent.branchMu.Unlock()
	} else {
		lockBranches(srcParent, destParent)
		if node.parent != srcParent {
			// The node moved under our feet; let the caller retry
			// against the current tree.
			unlockBranches(srcParent, destParent)
			return newError(ErrNotFound, "rename source moved concurrently", fromPath)
		}
		if existing := findChild(destParent, newName); existing != nil {
			unlockBranches(srcParent, destParent)
			return newError(ErrAlreadyExists, "rename destination exists", toPath)
		}
		detachChild(node)
		attachChild(destParent, node)
		node.name = newName
		unlockBranches(srcParent, destParent)

		// The node now lives under a different parent; refresh its
		// cached mount ancestor (same mount by the checks above, but
		// the pointer may differ in-memory -> in-memory).
		destParent.propMu.Lock()
		newMount := destParent.mount
		if destParent.mountpoint {
			newMount = destParent
		}
		destParent.propMu.Unlock()

		node.propMu.Lock()
		node.mount = newMount
		node.propMu.Unlock()
	}

	if fromRes.mount != nil {
		mres := fromRes.mount.Resource()
		if mres != nil && mres.Driver != nil {
			if err := mres.Driver.Rename(ctx, mres, fromRes.mountRel, toRes.mountRel); err != nil {
				return driverError("physical rename failed", toPath, err)
			}
		}
	}

	return nil
}
