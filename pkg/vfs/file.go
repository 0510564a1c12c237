package vfs

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/corvfs/corvfs/internal/logger"
)

// OpenFlags modify Open behavior.
type OpenFlags uint32

const (
	// OpenCreate creates the terminal node (and missing intermediate
	// directories) when the path does not exist.
	OpenCreate OpenFlags = 1 << iota

	// OpenExclusive combined with OpenCreate fails with
	// ErrAlreadyExists when the path already exists.
	OpenExclusive
)

// Seek whence values, mirroring io.Seeker.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// File is an open descriptor over a node.
//
// A descriptor owns one reference on its node for its lifetime; Close
// drops it and, when the count reaches zero, retires the node into the
// eviction cache. The offset is per-descriptor and guarded by the
// descriptor's own mutex, so a File must not be shared between goroutines
// that both advance it - open the path twice instead.
type File struct {
	mu     sync.Mutex
	vfs    *VFS
	node   *Node
	offset int64
	flags  OpenFlags
	mode   uint32
	closed bool
}

// Node returns the node behind the descriptor.
func (f *File) Node() *Node {
	return f.node
}

// Offset returns the current file offset.
func (f *File) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Open opens the node at path, creating it when OpenCreate is set.
//
// Terminal links are chased for the open itself: I/O through the
// descriptor reaches the link target's resource. The returned descriptor
// must be closed; closing is what feeds unreferenced nodes into the
// eviction cache.
func (v *VFS) Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (*File, error) {
	if err := validateFacadePath(path); err != nil {
		return nil, err
	}
	if flags&OpenCreate != 0 && mode&^ModeTypeMask == 0 {
		return nil, newError(ErrInvalidArgument, "zero mode for create", path)
	}

	var node *Node
	var err error

	if flags&OpenCreate != 0 {
		node, err = v.CreatePath(ctx, path, NodeInfo{
			Kind:      KindFile,
			Mode:      mode,
			Exclusive: flags&OpenExclusive != 0,
		})
	} else {
		node, _, err = v.LoadPath(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	f := &File{
		vfs:   v,
		node:  node,
		flags: flags,
		mode:  mode,
	}

	// Non-directory opens run the driver's open hook against the
	// I/O-bearing node (the link target for links).
	target := node.resolved()
	if !target.kindLocked().IsDirLike() {
		res := target.Resource()
		if res == nil || res.Driver == nil {
			v.Release(node)
			return nil, newError(ErrBrokenLink, "node has no backing resource", path)
		}
		if err := res.Driver.Open(ctx, f, res, flags, mode); err != nil {
			v.Release(node)
			return nil, driverError("driver open failed", path, err)
		}
	}

	logger.Debug("opened %s (flags=%#x mode=%o)", path, flags, mode)

	return f, nil
}

// ioResource picks the resource I/O goes through: the link target's for
// links, the node's own otherwise.
func (f *File) ioResource() (*Resource, *Node, error) {
	target := f.node.resolved()
	res := target.Resource()
	if res == nil || res.Driver == nil {
		if f.node.kindLocked() == KindLink {
			return nil, nil, newError(ErrBrokenLink, "link has no backing resource", f.node.Name())
		}
		return nil, nil, newError(ErrInvalidArgument, "node has no backing resource", f.node.Name())
	}
	return res, target, nil
}

// Read reads from the current offset, advancing it by the number of
// bytes read. Returns io.EOF at end of object.
func (v *VFS) Read(ctx context.Context, f *File, p []byte) (int, error) {
	if f == nil || len(p) == 0 {
		return 0, nil
	}

	res, target, err := f.ioResource()
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, newError(ErrInvalidArgument, "read on closed descriptor", f.node.Name())
	}

	n, err := res.Driver.ReadAt(ctx, res, p, f.offset)
	f.offset += int64(n)

	if err != nil && err != io.EOF {
		return n, driverError("read failed", target.Name(), err)
	}
	return n, err
}

// Write writes at the current offset, advancing it by the number of
// bytes written and growing the node's cached size when the write extends
// the object.
func (v *VFS) Write(ctx context.Context, f *File, p []byte) (int, error) {
	if f == nil || len(p) == 0 {
		return 0, nil
	}

	res, target, err := f.ioResource()
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, newError(ErrInvalidArgument, "write on closed descriptor", f.node.Name())
	}

	n, werr := res.Driver.WriteAt(ctx, res, p, f.offset)
	end := f.offset + int64(n)
	f.offset = end

	if n > 0 {
		now := time.Now()
		target.propMu.Lock()
		if end > target.stat.Size {
			target.stat.Size = end
		}
		target.stat.Mtime = now
		target.stat.Ctime = now
		target.propMu.Unlock()
	}

	if werr != nil {
		return n, driverError("write failed", target.Name(), werr)
	}
	return n, nil
}

// Seek repositions the descriptor offset.
//
// SeekSet, SeekCur and SeekEnd resolve against the node's cached size;
// anything else is handed to the driver (device drivers bring their own
// geometry). The resulting offset is clamped to [0, size] for seeks
// relative to the end, matching the usual sparse-write semantics
// otherwise.
func (v *VFS) Seek(f *File, offset int64, whence int) (int64, error) {
	if f == nil {
		return 0, newError(ErrInvalidArgument, "nil descriptor", "")
	}

	res, target, err := f.ioResource()
	if err != nil {
		return 0, err
	}
	size := target.Stat().Size

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, newError(ErrInvalidArgument, "seek on closed descriptor", f.node.Name())
	}

	switch whence {
	case SeekSet:
		if offset < 0 {
			return 0, newError(ErrInvalidArgument, "negative offset", f.node.Name())
		}
		f.offset = offset
	case SeekCur:
		next := f.offset + offset
		if next < 0 {
			next = 0
		}
		f.offset = next
	case SeekEnd:
		next := size + offset
		if next < 0 {
			next = 0
		}
		if next > size {
			next = size
		}
		f.offset = next
	default:
		pos, err := res.Driver.Seek(res, offset, whence)
		if err != nil {
			return f.offset, driverError("seek failed", f.node.Name(), err)
		}
		f.offset = pos
	}

	return f.offset, nil
}

// Close releases the descriptor.
//
// The driver's close hook runs first; then the descriptor's node
// reference is dropped. A node whose count reaches zero is retired into
// the eviction cache (detached from the tree, freed when its ring slot is
// overwritten) - except mountpoints and the root, whose counts are pinned
// and never reach zero here.
func (v *VFS) Close(ctx context.Context, f *File) error {
	if f == nil {
		return newError(ErrInvalidArgument, "nil descriptor", "")
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return newError(ErrInvalidArgument, "double close", f.node.Name())
	}
	f.closed = true
	f.mu.Unlock()

	node := f.node

	target := node.resolved()
	if !target.kindLocked().IsDirLike() {
		if res := target.Resource(); res != nil && res.Driver != nil {
			if err := res.Driver.Close(ctx, f, res); err != nil {
				logger.Warn("driver close failed for %s: %v", node.Name(), err)
			}
		}
	}

	node.decRef()

	if node.RefCount() == 0 {
		switch node.kindLocked() {
		case KindMount, KindRoot:
			// Pinned kinds never retire.
		default:
			v.retire(node)
		}
	}

	return nil
}
