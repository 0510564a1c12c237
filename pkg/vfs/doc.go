// Package vfs implements an in-memory, lazily-populated node graph layered
// over pluggable backing-store drivers.
//
// The graph is a rooted tree of nodes (files, directories, symbolic links,
// mountpoints, devices, FIFOs, in-memory buffers). Paths are resolved by a
// concurrent walker that materializes missing nodes on demand by consulting
// the driver of the enclosing mount. Memory is recycled through per-node
// reference counts plus a bounded eviction cache of recently closed nodes.
//
// Layering:
//
//   - The core (this package) owns the graph: traversal, locking, reference
//     counting, mount routing, and the graph operations (load, create,
//     remove, rename, link).
//   - Drivers (pkg/driver/...) own the bytes: they implement the Driver
//     capability set and know nothing about the graph.
//   - The facade methods on VFS (Open, Read, Write, Seek, Close, StatPath, List)
//     are a thin shell over the graph operations.
//
// Concurrency:
//
// Every node carries two mutexes. The branch lock guards the shape of the
// tree around the node (children list, sibling links, parent pointer, name);
// the property lock guards the node's attributes (kind, mount, stat,
// resource, link target). Traversal holds a parent's branch lock only for
// the child scan and the optional materialization callback, never across
// descent, so operations on disjoint subtrees do not contend.
package vfs
