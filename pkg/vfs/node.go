package vfs

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// Node is one vertex of the VFS graph.
//
// Excluding link target edges, nodes form a rooted tree: every non-root
// node is owned by its parent through the children list. Siblings are
// chained through prev/next; ordering is unspecified beyond traversal
// stability.
//
// Locking:
//
//   - branchMu guards the tree shape around the node: children, parent,
//     prev, next and name.
//   - propMu guards the node's attributes: kind, mount, stat, resource and
//     linkTarget. When both are needed on the same node, branchMu is
//     acquired first.
//   - refCount is manipulated atomically; it needs neither lock.
//
// Cross-parent operations (rename) take the two branch locks in address
// order to stay deadlock free.
type Node struct {
	branchMu sync.Mutex
	propMu   sync.Mutex

	refCount atomic.Int64

	// children is guarded by this node's branchMu; name, parent and the
	// sibling links are guarded by the owning parent's branchMu, the
	// same lock that serializes sibling scans over them.
	name     string
	parent   *Node
	children *Node
	prev     *Node
	next     *Node

	// Guarded by propMu.
	kind       Kind
	mount      *Node
	linkTarget *Node
	resource   *Resource
	stat       Stat
	mountpoint bool

	// cached is set while the node sits in the eviction cache and is
	// therefore detached from the tree. Guarded by propMu.
	cached bool
}

// Name returns the node's name within its parent (empty for the root).
// The value is a snapshot; a concurrent rename may change it.
func (n *Node) Name() string {
	n.branchMu.Lock()
	defer n.branchMu.Unlock()
	return n.name
}

// Kind returns the node kind.
func (n *Node) Kind() Kind {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	return n.kind
}

// Stat returns a copy of the node's attributes.
func (n *Node) Stat() Stat {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	return n.stat
}

// Parent returns the node's parent (nil only for the root).
func (n *Node) Parent() *Node {
	n.branchMu.Lock()
	defer n.branchMu.Unlock()
	return n.parent
}

// Mount returns the nearest ancestor mountpoint, inclusive: a mount node
// reports itself. Nil means the node lives in an in-memory-only subtree.
func (n *Node) Mount() *Node {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	if n.mountpoint {
		return n
	}
	return n.mount
}

// isMountpoint reports whether the node is an active mountpoint.
func (n *Node) isMountpoint() bool {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	return n.mountpoint
}

// LinkTarget returns the resolved target of a link node, or nil while the
// link is unresolved.
func (n *Node) LinkTarget() *Node {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	return n.linkTarget
}

// Resource returns the node's driver resource (nil for plain directories).
func (n *Node) Resource() *Resource {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	return n.resource
}

// RefCount returns the current reference count.
func (n *Node) RefCount() int64 {
	return n.refCount.Load()
}

// incRef takes one reference on the node.
func (n *Node) incRef() {
	n.refCount.Add(1)
}

// decRef drops one reference on the node.
func (n *Node) decRef() {
	n.refCount.Add(-1)
}

// kindLocked returns the kind without exporting the lock dance at every
// call site.
func (n *Node) kindLocked() Kind {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	return n.kind
}

// resolved follows a link node to its target, returning the node itself
// for every other kind or while the link is unresolved.
func (n *Node) resolved() *Node {
	n.propMu.Lock()
	defer n.propMu.Unlock()
	if n.kind == KindLink && n.linkTarget != nil {
		return n.linkTarget
	}
	return n
}

// newNode allocates a node record under the given parent.
//
// The caller must hold parent.branchMu. The node inherits the parent's
// mount (or the parent itself when the parent is a mountpoint), gets the
// supplied resource installed, and is attached at the head of the parent's
// children list.
func newNode(parent *Node, name string, kind Kind, res *Resource) *Node {
	node := &Node{
		name: name,
		kind: kind,
	}

	parent.propMu.Lock()
	node.mount = parent.mount
	if parent.mountpoint {
		node.mount = parent
	}
	parent.propMu.Unlock()

	node.resource = res
	node.stat.Mode = ModeTypeBits(kind)
	now := time.Now()
	node.stat.Atime = now
	node.stat.Mtime = now
	node.stat.Ctime = now

	attachChild(parent, node)

	return node
}

// attachChild prepends node at the head of parent's children list.
// The caller must hold parent.branchMu.
func attachChild(parent, node *Node) {
	node.parent = parent
	node.prev = nil
	node.next = parent.children
	if parent.children != nil {
		parent.children.prev = node
	}
	parent.children = node
}

// detachChild unlinks node from its parent's children list, patching the
// sibling chain and the parent's head pointer. The caller must hold the
// parent's branchMu.
func detachChild(node *Node) {
	parent := node.parent
	if node.next != nil {
		node.next.prev = node.prev
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else if parent != nil {
		parent.children = node.next
	}
	node.parent = nil
	node.prev = nil
	node.next = nil
}

// findChild scans parent's children for a name match. The caller must hold
// parent.branchMu.
func findChild(parent *Node, name string) *Node {
	for child := parent.children; child != nil; child = child.next {
		if child.name == name {
			return child
		}
	}
	return nil
}

// hasChildren reports whether the node's children list is non-empty.
func (n *Node) hasChildren() bool {
	n.branchMu.Lock()
	defer n.branchMu.Unlock()
	return n.children != nil
}

// lockBranches acquires the branch locks of two nodes in address order so
// cross-parent operations cannot deadlock against each other. Equal nodes
// are locked once.
func lockBranches(a, b *Node) {
	if a == b {
		a.branchMu.Lock()
		return
	}
	if uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) {
		a.branchMu.Lock()
		b.branchMu.Lock()
	} else {
		b.branchMu.Lock()
		a.branchMu.Lock()
	}
}

// unlockBranches releases locks taken by lockBranches.
func unlockBranches(a, b *Node) {
	a.branchMu.Unlock()
	if a != b {
		b.branchMu.Unlock()
	}
}

// mountRelPrefix computes the node's path relative to its enclosing mount
// by walking the parent chain, or "" when the node is the mount itself or
// has no mount. Used to seed mount-relative paths for traversals that
// start below a mountpoint.
func mountRelPrefix(n *Node) string {
	mount := n.Mount()
	if mount == nil || mount == n {
		return ""
	}

	var parts []string
	for cur := n; cur != nil && cur != mount; {
		cur.branchMu.Lock()
		name := cur.name
		parent := cur.parent
		cur.branchMu.Unlock()
		parts = append([]string{name}, parts...)
		cur = parent
	}

	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = out + "/" + p
	}
	return out
}
