package vfs

import (
	"context"

	"github.com/corvfs/corvfs/internal/logger"
)

// Mount attaches a driver resource at path, flipping the directory there
// into a mountpoint.
//
// Missing components of path are synthesized as in-memory directories (a
// disk write would be pointless for a node that is about to become a
// mount). The target must be a directory with no children; devices
// (GroupDevice resources) flip the kind to KindDevice instead of
// KindMount.
//
// The mountpoint's reference count keeps the traversal's increment as a
// permanent pin, so no prune or eviction can free a live mount. The pin
// is released by Unmount.
func (v *VFS) Mount(ctx context.Context, path string, res *Resource) (*Node, error) {
	if err := validateFacadePath(path); err != nil {
		return nil, err
	}
	if res == nil || res.Driver == nil {
		return nil, newError(ErrInvalidArgument, "nil mount resource", path)
	}

	// Graph-only creation: build the directory chain in memory without
	// touching any driver.
	graphDirs := func(ctx context.Context, parent *Node, comp string, mountRel string, last bool) (*Node, error) {
		return newNode(parent, comp, KindDir, nil), nil
	}

	walk, err := v.traverse(ctx, path, v.root, 0, graphDirs)
	if err != nil {
		return nil, err
	}
	if walk.node == nil {
		return nil, newError(ErrNotFound, "mountpoint not reachable", walk.remainder)
	}
	node := walk.node

	node.propMu.Lock()
	if node.kind != KindDir || node.mountpoint {
		kind := node.kind
		node.propMu.Unlock()
		node.decRef()
		return nil, newError(ErrNotDirectory, "mountpoint is not a plain directory ("+kind.String()+")", path)
	}
	node.propMu.Unlock()

	if node.hasChildren() {
		node.decRef()
		return nil, newError(ErrHasChildren, "mountpoint has children", path)
	}

	node.propMu.Lock()
	node.kind = KindMount
	if res.Group == GroupDevice {
		node.kind = KindDevice
	}
	node.mountpoint = true
	node.resource = res
	node.propMu.Unlock()

	// The traversal's reference is deliberately kept: it pins the
	// mountpoint for its lifetime.

	logger.Info("mounted %s driver at %s", res.Driver.Name(), path)

	return node, nil
}

// Unmount detaches the driver resource from a mountpoint.
//
// The subtree below the mount is deleted from memory children first (backing
// objects are untouched), the resource is closed through its driver, and
// the node reverts to a plain childless directory. Subtree nodes already
// parked in the eviction cache stay there until their slot is overwritten;
// they are detached and carry no driver state worth reclaiming eagerly.
//
// Fails with ErrInUse when any node of the subtree (or the mountpoint
// beyond its pin) is still referenced.
func (v *VFS) Unmount(ctx context.Context, mount *Node) error {
	if mount == nil {
		return newError(ErrInvalidArgument, "nil mount", "")
	}
	if !mount.isMountpoint() {
		return newError(ErrInvalidArgument, "node is not a mountpoint", mount.Name())
	}
	if mount.RefCount() > 1 {
		return newError(ErrInUse, "mount still referenced", mount.Name())
	}

	// Tear down the in-memory subtree, children first.
	failed := 0
	for {
		mount.branchMu.Lock()
		child := mount.children
		mount.branchMu.Unlock()
		if child == nil {
			break
		}

		if left := v.removeRecursive(ctx, child, 0); left > 0 {
			failed += left
			break
		}
	}
	if failed > 0 {
		return newError(ErrInUse, "subtree still in use", mount.Name())
	}

	mount.propMu.Lock()
	res := mount.resource
	mount.resource = nil
	mount.kind = KindDir
	mount.mountpoint = false
	mount.propMu.Unlock()

	// Release the mount pin taken by Mount.
	mount.decRef()

	if res != nil && res.Driver != nil {
		if err := res.Driver.Close(ctx, nil, res); err != nil {
			logger.Warn("driver close failed during unmount of %s: %v", mount.Name(), err)
		}
	}

	logger.Info("unmounted %s", mount.Name())

	return nil
}
