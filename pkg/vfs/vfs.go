package vfs

import (
	"context"

	"github.com/corvfs/corvfs/internal/logger"
	"github.com/corvfs/corvfs/pkg/metrics"
)

// Options configures a VFS instance.
type Options struct {
	// EvictionCacheSize overrides the default capacity of the eviction
	// cache. Zero keeps EvictionCacheSize (1024). Small values are
	// useful in tests that want to watch nodes age out quickly.
	EvictionCacheSize int

	// Metrics receives graph metrics. Nil disables collection.
	Metrics *metrics.VFSMetrics
}

// VFS is one node graph instance: a root, a driver registry and an
// eviction cache. All methods are safe for concurrent use.
type VFS struct {
	root     *Node
	cache    *evictionCache
	registry *driverRegistry
	metrics  *metrics.VFSMetrics
}

// New creates a VFS with an empty root.
//
// The root is constructed with its reference count pinned at one, so it
// can never be evicted or removed. Drivers must be registered before the
// first operation that needs them; in particular the buffer driver at
// (GroupBuffer, BufferFile) backs every node created outside a mount.
func New(opts Options) *VFS {
	v := &VFS{
		cache:    newEvictionCache(opts.EvictionCacheSize),
		registry: newDriverRegistry(),
		metrics:  opts.Metrics,
	}

	v.root = &Node{kind: KindRoot}
	v.root.incRef()

	logger.Debug("created VFS root")

	return v
}

// Root returns the root node. The root is immortal; callers do not
// reference-count it.
func (v *VFS) Root() *Node {
	return v.root
}

// StatPath returns the attributes of the node at path, chasing terminal
// links.
func (v *VFS) StatPath(ctx context.Context, path string) (Stat, error) {
	if err := validateFacadePath(path); err != nil {
		return Stat{}, err
	}

	node, _, err := v.LoadPath(ctx, path)
	if err != nil {
		return Stat{}, err
	}
	defer v.Release(node)

	return node.resolved().Stat(), nil
}

// List returns the entries of the directory at path.
//
// depth controls recursion: 1 lists the immediate children, larger values
// descend into subdirectories, filling Entry.Children. Links are listed
// with their body in LinkTo; their targets are not followed.
func (v *VFS) List(ctx context.Context, path string, depth int) ([]Entry, error) {
	if err := validateFacadePath(path); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}

	node, _, err := v.LoadPath(ctx, path)
	if err != nil {
		return nil, err
	}
	defer v.Release(node)

	if !node.kindLocked().IsDirLike() {
		return nil, newError(ErrNotDirectory, "cannot list "+node.kindLocked().String(), path)
	}

	return v.listNode(ctx, node, depth), nil
}

func (v *VFS) listNode(ctx context.Context, node *Node, depth int) []Entry {
	// Snapshot the children under the branch lock, then read their
	// attributes without holding it.
	node.branchMu.Lock()
	var children []*Node
	for child := node.children; child != nil; child = child.next {
		child.incRef()
		children = append(children, child)
	}
	node.branchMu.Unlock()

	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		stat := child.Stat()
		entry := Entry{
			Name: child.Name(),
			Kind: child.kindLocked(),
			Mode: stat.Mode,
			Size: stat.Size,
		}

		if entry.Kind == KindLink {
			if body, err := v.readLinkBody(ctx, child); err == nil {
				entry.LinkTo = body
			}
		}

		if depth > 1 && entry.Kind.IsDirLike() {
			entry.Children = v.listNode(ctx, child, depth-1)
		}

		entries = append(entries, entry)
		child.decRef()
	}

	return entries
}
