package vfs

import "time"

// Stat holds the attributes of a node.
//
// The core treats these as opaque cached values: they are filled in by the
// driver of the enclosing mount when a node is materialized, and updated by
// the facade on writes. The core never evaluates permission bits.
type Stat struct {
	// Size is the object size in bytes. For links this is the length of
	// the link body.
	Size int64

	// Mode carries the permission bits plus the file type bits
	// (ModeType* constants).
	Mode uint32

	// Nlink counts the link edges created to the node through Link. It
	// is not decremented when a link is freed, and links resolved lazily
	// from a driver do not add to it. Maintained for visibility only; the
	// core's lifetime rules use reference counts, not Nlink.
	Nlink uint32

	// UID and GID identify the owner. The core stores but never
	// interprets them.
	UID uint32
	GID uint32

	// Atime, Mtime and Ctime are the usual access, modification and
	// change timestamps.
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// NodeInfo describes the node a creation operation should produce.
type NodeInfo struct {
	// Kind is the kind of the terminal node to create.
	Kind Kind

	// Mode carries the permission bits for the new node. The type bits
	// are derived from Kind; callers do not need to set them.
	Mode uint32

	// Exclusive makes creation fail with ErrAlreadyExists when the
	// terminal already exists. Without it creation is idempotent:
	// concurrent creates of the same path converge on a single node.
	Exclusive bool

	// ResourceOverride, when non-nil, is installed on the terminal node
	// instead of a resource inferred from the enclosing mount.
	ResourceOverride *Resource

	// DriverArg is passed through to the driver's Locate call when the
	// terminal's resource is instantiated.
	DriverArg any
}

// Entry is one row of a directory listing.
type Entry struct {
	// Name is the node's name within its parent.
	Name string

	// Kind is the node kind.
	Kind Kind

	// Mode and Size are copied from the node's stat.
	Mode uint32
	Size int64

	// LinkTo is the link body for KindLink entries, empty otherwise.
	LinkTo string

	// Children holds the recursive listing when List was asked to
	// descend, nil otherwise.
	Children []Entry
}
