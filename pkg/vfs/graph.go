package vfs

import (
	"context"

	"github.com/corvfs/corvfs/internal/logger"
)

// RemoveFlags modify removal behavior.
type RemoveFlags uint32

const (
	// RemovePhysical asks the enclosing mount's driver to remove the
	// on-disk object as well. Mandatory for in-memory-only nodes, which
	// would otherwise lose data silently.
	RemovePhysical RemoveFlags = 1 << iota

	// RemovePrune walks upward after the removal, deleting ancestor
	// directories that became empty and unreferenced.
	RemovePrune
)

// LoadPath resolves path starting at the root, materializing missing
// nodes from the enclosing mount's driver.
//
// Terminal links are chased. On success the terminal node is returned
// with one caller-owed reference (release it with Release) and an empty
// remainder. When a component cannot be materialized the error is
// ErrNotFound and the remainder names the missing suffix; the deepest
// resolved prefix stays cached in the graph.
func (v *VFS) LoadPath(ctx context.Context, path string) (*Node, string, error) {
	return v.loadPathFrom(ctx, path, v.root)
}

func (v *VFS) loadPathFrom(ctx context.Context, path string, start *Node) (*Node, string, error) {
	if path == "" {
		return nil, "", newError(ErrInvalidArgument, "empty path", path)
	}

	res, err := v.traverse(ctx, path, start, flagResolveLinks, v.loadCallback)
	if err != nil {
		return nil, "", err
	}
	if res.node == nil {
		return nil, res.remainder, newError(ErrNotFound, "path component missing", res.remainder)
	}

	return res.node, res.remainder, nil
}

// loadCallback materializes a missing component from the backing store.
//
// Without an enclosing mount there is nothing to consult, so the miss is
// final. Under a mount, terminal components are stat'ed through the
// driver and synthesized with the kind the stat reports; non-terminal
// components are synthesized as unverified directories without a stat
// round-trip.
func (v *VFS) loadCallback(ctx context.Context, parent *Node, comp string, mountRel string, last bool) (*Node, error) {
	mount := parent.Mount()
	if mount == nil {
		return nil, nil
	}

	mres := mount.Resource()
	if mres == nil || mres.Driver == nil {
		return nil, nil
	}

	if !last {
		return newNode(parent, comp, KindDir, nil), nil
	}

	stat, err := mres.Driver.Stat(ctx, mres, mountRel)
	if err != nil {
		// Not on the backing store: clean miss.
		return nil, nil
	}

	kind := KindFromMode(stat.Mode)
	if kind == KindNull {
		return nil, nil
	}

	res, err := v.resourceForChild(mres, kind, nil)
	if err != nil {
		return nil, err
	}
	if res != nil {
		handle, err := res.Driver.Locate(ctx, res, mountRel)
		if err != nil {
			return nil, driverError("locate failed", mountRel, err)
		}
		res.Handle = handle
	}

	node := newNode(parent, comp, kind, res)
	node.stat = stat
	return node, nil
}

// CreatePath resolves path starting at the root, creating the terminal
// node (and any missing intermediate directories) on the way.
//
// Under a mount the terminal is created physically through the driver;
// outside any mount an in-memory node backed by the buffer driver is
// created instead. Creation is idempotent unless info.Exclusive is set:
// concurrent creates of the same path converge on a single node and both
// callers receive it.
//
// The terminal node is returned with one caller-owed reference.
func (v *VFS) CreatePath(ctx context.Context, path string, info NodeInfo) (*Node, error) {
	return v.createPathFrom(ctx, path, v.root, info)
}

// CreateRel creates relPath below the given start node. Used by callers
// that already hold a node and want to grow a subtree without going back
// through the root.
func (v *VFS) CreateRel(ctx context.Context, relPath string, start *Node, info NodeInfo) (*Node, error) {
	if start == nil {
		return nil, newError(ErrInvalidArgument, "nil start node", relPath)
	}
	return v.createPathFrom(ctx, relPath, start, info)
}

func (v *VFS) createPathFrom(ctx context.Context, path string, start *Node, info NodeInfo) (*Node, error) {
	if path == "" {
		return nil, newError(ErrInvalidArgument, "empty path", path)
	}
	if info.Kind == KindNull {
		return nil, newError(ErrInvalidArgument, "null node kind", path)
	}

	created := false
	callback := func(ctx context.Context, parent *Node, comp string, mountRel string, last bool) (*Node, error) {
		node, err := v.createCallback(ctx, parent, comp, mountRel, last, &info)
		if err == nil && node != nil && last {
			created = true
		}
		return node, err
	}

	res, err := v.traverse(ctx, path, start, flagResolveLinks, callback)
	if err != nil {
		return nil, err
	}
	if res.node == nil {
		return nil, newError(ErrNotFound, "path component could not be created", res.remainder)
	}
	if res.remainder != "" {
		// The walk stopped short without failing; treat as a miss.
		v.Release(res.node)
		return nil, newError(ErrNotFound, "path component could not be created", res.remainder)
	}

	if !created && info.Exclusive {
		v.Release(res.node)
		return nil, newError(ErrAlreadyExists, "path already exists", path)
	}

	return res.node, nil
}

// createCallback materializes a missing component for CreatePath.
//
// Non-terminal components become directories. The terminal component is
// created physically through the enclosing mount's driver when one
// exists; otherwise it becomes an in-memory node on the buffer driver.
// Driver failures abort the creation with nothing attached, so no partial
// node is ever left behind.
func (v *VFS) createCallback(ctx context.Context, parent *Node, comp string, mountRel string, last bool, info *NodeInfo) (*Node, error) {
	if !last {
		return newNode(parent, comp, KindDir, nil), nil
	}

	mount := parent.Mount()
	var mres *Resource
	if mount != nil {
		mres = mount.Resource()
	}

	if mres != nil && mres.Driver != nil {
		if err := mres.Driver.Create(ctx, mres, mountRel, info.Mode, info.Kind); err != nil {
			return nil, driverError("create failed", mountRel, err)
		}
	}

	res := info.ResourceOverride
	if res == nil {
		var err error
		res, err = v.resourceForChild(mres, info.Kind, info.DriverArg)
		if err != nil {
			return nil, err
		}
		if res != nil {
			handle, err := res.Driver.Locate(ctx, res, mountRel)
			if err != nil {
				return nil, driverError("locate failed", mountRel, err)
			}
			res.Handle = handle
		}
	}

	node := newNode(parent, comp, info.Kind, res)
	node.stat.Mode = info.Mode | ModeTypeBits(info.Kind)
	return node, nil
}

// Release drops the caller-owed reference obtained from LoadPath,
// CreatePath or Mount lookups. It never triggers eviction; only Close
// feeds the eviction cache, and Remove frees nodes directly.
func (v *VFS) Release(n *Node) {
	if n != nil {
		n.decRef()
	}
}

// Remove deletes the node at path.
//
// Non-recursive removal refuses directories with children. Physical
// removal (RemovePhysical) additionally deletes the object on the backing
// store; it is mandatory for in-memory-only nodes. RemovePrune walks
// upward afterwards, deleting ancestor directories that became empty and
// unreferenced.
//
// Returns ErrInUse when the node is still referenced (the root and
// mountpoints always are).
func (v *VFS) Remove(ctx context.Context, path string, recursive bool, flags RemoveFlags) error {
	if err := validateFacadePath(path); err != nil {
		return err
	}

	res, err := v.traverse(ctx, path, v.root, 0, nil)
	if err != nil {
		return err
	}
	if res.node == nil {
		return newError(ErrNotFound, "path not found", res.remainder)
	}

	node := res.node
	// Drop the traversal reference; deletion requires the count at zero.
	node.decRef()

	if node == v.root {
		return newError(ErrInUse, "cannot remove root", "/")
	}
	if node.isMountpoint() {
		return newError(ErrInUse, "cannot remove mountpoint", path)
	}
	if !recursive && node.kindLocked().IsDirLike() && node.hasChildren() {
		return newError(ErrHasChildren, "directory not empty", path)
	}

	logger.Debug("removing %s (recursive=%v flags=%#x)", path, recursive, flags)

	if recursive {
		if left := v.removeRecursive(ctx, node, flags); left > 0 {
			return newError(ErrInUse, "subtree still in use", path)
		}
		return nil
	}

	return v.removeNode(ctx, node, flags, res.mountRel)
}

// removeNode unlinks a single node from the graph and frees it,
// optionally removing the backing object and pruning empty ancestors.
//
// Preconditions checked here: the reference count must be zero, a
// directory must be childless, and an in-memory-only node requires
// RemovePhysical.
func (v *VFS) removeNode(ctx context.Context, node *Node, flags RemoveFlags, mountRel string) error {
	if node == v.root {
		return newError(ErrInUse, "cannot remove root", "/")
	}
	if node.isMountpoint() {
		return newError(ErrInUse, "cannot remove mountpoint", node.Name())
	}
	if node.RefCount() > 0 {
		return newError(ErrInUse, "node still referenced", node.Name())
	}
	if node.kindLocked().IsDirLike() && node.hasChildren() {
		return newError(ErrHasChildren, "directory not empty", node.Name())
	}

	mount := node.Mount()
	if mount == nil && flags&RemovePhysical == 0 {
		return newError(ErrPhysicalDeleteRequired, "in-memory node requires physical removal", node.Name())
	}

	parent := node.Parent()
	if parent != nil {
		parent.branchMu.Lock()
		if node.RefCount() > 0 {
			// Lost a race against a traversal that just picked
			// the node up.
			parent.branchMu.Unlock()
			return newError(ErrInUse, "node still referenced", node.Name())
		}
		detachChild(node)
		parent.branchMu.Unlock()
	}

	if flags&RemovePhysical != 0 && mount != nil {
		mres := mount.Resource()
		if mres != nil && mres.Driver != nil && mountRel != "" {
			if err := mres.Driver.Remove(ctx, mres, mountRel); err != nil {
				// Undo the detach so the graph still reflects
				// the surviving on-disk object.
				if parent != nil {
					parent.branchMu.Lock()
					attachChild(parent, node)
					parent.branchMu.Unlock()
				}
				return driverError("physical remove failed", mountRel, err)
			}
		}
	}

	v.freeNode(node)

	if flags&RemovePrune != 0 && parent != nil {
		v.pruneUpward(parent, mount)
	}

	return nil
}

// removeRecursive deletes a subtree depth-first in postorder, children
// before parents and without upward pruning. Returns the number of
// subtrees that could not be deleted because they are still in use.
func (v *VFS) removeRecursive(ctx context.Context, node *Node, flags RemoveFlags) int {
	return v.removeRecursiveChild(ctx, node, flags, mountRelPrefix(node))
}

func (v *VFS) removeRecursiveChild(ctx context.Context, node *Node, flags RemoveFlags, mountRel string) int {
	failed := 0

	for {
		node.branchMu.Lock()
		child := node.children
		node.branchMu.Unlock()
		if child == nil {
			break
		}

		rel := joinRel(mountRel, child.Name())
		if left := v.removeRecursiveChild(ctx, child, flags, rel); left > 0 {
			failed += left
			break
		}
	}

	if failed > 0 {
		return failed
	}

	if err := v.removeNode(ctx, node, flags&^RemovePrune, mountRel); err != nil {
		return 1
	}
	return 0
}

// pruneUpward frees unused ancestors from bottom to top: empty,
// unreferenced plain directories die until a populated, referenced or
// mounted ancestor stops the chain.
func (v *VFS) pruneUpward(bottom *Node, top *Node) int {
	freed := 0
	node := bottom

	for node != nil && node != top && node != v.root {
		if node.kindLocked() != KindDir || node.isMountpoint() {
			break
		}
		if node.RefCount() > 0 || node.hasChildren() {
			break
		}

		parent := node.Parent()
		if parent == nil {
			break
		}

		parent.branchMu.Lock()
		if node.RefCount() > 0 || node.children != nil {
			parent.branchMu.Unlock()
			break
		}
		detachChild(node)
		parent.branchMu.Unlock()

		v.freeNode(node)
		freed++
		node = parent
	}

	return freed
}

// PruneSubtree frees empty, unreferenced plain directories below top,
// descending at most depth levels; nodes of other kinds stay in the tree
// whether referenced or not. Complements pruneUpward for callers that want to shed cached
// graph weight eagerly (an unmount sweep, a memory-pressure hook).
// Returns the number of nodes freed.
func (v *VFS) PruneSubtree(top *Node, depth int) int {
	if top == nil || depth <= 0 {
		return 0
	}

	freed := 0

	top.branchMu.Lock()
	var children []*Node
	for child := top.children; child != nil; child = child.next {
		children = append(children, child)
	}
	top.branchMu.Unlock()

	for _, child := range children {
		freed += v.PruneSubtree(child, depth-1)

		if child.RefCount() > 0 || child.hasChildren() || child.isMountpoint() {
			continue
		}
		if child.kindLocked() != KindDir {
			continue
		}

		top.branchMu.Lock()
		if child.RefCount() == 0 && child.children == nil && child.parent == top {
			detachChild(child)
			top.branchMu.Unlock()
			v.freeNode(child)
			freed++
		} else {
			top.branchMu.Unlock()
		}
	}

	return freed
}

// validateFacadePath enforces the facade's path syntax: absolute,
// non-empty paths only.
func validateFacadePath(path string) error {
	if path == "" {
		return newError(ErrInvalidArgument, "empty path", path)
	}
	if path[0] != '/' {
		return newError(ErrInvalidArgument, "path must be absolute", path)
	}
	return nil
}
