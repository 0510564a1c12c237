// Package memory implements the in-memory driver.
//
// It serves two roles:
//
//   - Registered at (GroupBuffer, BufferFile) it backs every node created
//     outside any mount: each Locate of an empty path hands out a fresh
//     anonymous buffer.
//   - Registered in GroupFilesystem it is a mountable, path-keyed memfs,
//     useful for tests and ephemeral trees.
//
// The object map is guarded by a single read-write mutex; each object
// carries its own lock for its attributes and content, so I/O on one
// object does not serialize against others.
package memory

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/corvfs/corvfs/pkg/metrics"
	"github.com/corvfs/corvfs/pkg/vfs"
)

// object is one stored entity: attributes plus content bytes.
type object struct {
	mu   sync.RWMutex
	stat vfs.Stat
	data []byte
}

// Driver is the in-memory driver. The zero value is not usable; create
// instances with New.
type Driver struct {
	// mu protects the objects map. Individual objects carry their own
	// lock so content I/O does not serialize across files.
	mu sync.RWMutex

	// objects maps mount-relative paths to stored entities. The empty
	// key is never used: anonymous buffers are handed out by Locate
	// and live only in the node's resource handle.
	objects map[string]*object

	// metrics is optional; nil disables collection.
	metrics *metrics.DriverMetrics
}

// New creates an empty in-memory driver.
func New(m *metrics.DriverMetrics) *Driver {
	return &Driver{
		objects: make(map[string]*object),
		metrics: m,
	}
}

// Name implements vfs.Driver.
func (d *Driver) Name() string {
	return "memory"
}

// handleFor returns the object behind a resource. Anonymous buffers live
// in the resource handle; named objects live in the path map.
func handleFor(res *vfs.Resource) (*object, bool) {
	obj, ok := res.Handle.(*object)
	return obj, ok
}

// lookup finds a named object.
func (d *Driver) lookup(relPath string) (*object, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.objects[relPath]
	return obj, ok
}

// Stat implements vfs.Driver.
func (d *Driver) Stat(ctx context.Context, res *vfs.Resource, relPath string) (stat vfs.Stat, err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Stat", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return vfs.Stat{}, err
	}

	if relPath == "" {
		// The mount itself.
		return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
	}

	obj, ok := d.lookup(relPath)
	if !ok {
		// A path that only exists as a prefix of stored objects is
		// an implicit directory.
		if d.hasPrefix(relPath + "/") {
			return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
		}
		err = &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
		return vfs.Stat{}, err
	}

	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.stat, nil
}

// hasPrefix reports whether any stored path starts with prefix.
func (d *Driver) hasPrefix(prefix string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for path := range d.objects {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Locate implements vfs.Driver. An empty path produces a fresh anonymous
// buffer; a named path resolves to the stored object, creating it lazily
// so graph-only creations (links, in-memory nodes) have somewhere to
// write.
func (d *Driver) Locate(ctx context.Context, res *vfs.Resource, relPath string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if relPath == "" {
		return &object{stat: vfs.Stat{Mode: vfs.ModeTypeFile | 0o644}}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[relPath]
	if !ok {
		obj = &object{stat: vfs.Stat{Mode: vfs.ModeTypeFile | 0o644}}
		d.objects[relPath] = obj
	}
	return obj, nil
}

// Create implements vfs.Driver.
func (d *Driver) Create(ctx context.Context, res *vfs.Resource, relPath string, mode uint32, kind vfs.Kind) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Create", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	if relPath == "" {
		return &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "empty create path"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.objects[relPath]; exists {
		// Idempotent from the graph's perspective.
		return nil
	}

	now := time.Now()
	d.objects[relPath] = &object{stat: vfs.Stat{
		Mode:  mode | vfs.ModeTypeBits(kind),
		Atime: now,
		Mtime: now,
		Ctime: now,
	}}
	return nil
}

// Remove implements vfs.Driver.
func (d *Driver) Remove(ctx context.Context, res *vfs.Resource, relPath string) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Remove", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.objects[relPath]; !exists {
		err = &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
		return err
	}
	delete(d.objects, relPath)
	return nil
}

// Rename implements vfs.Driver. Children of a renamed directory move
// with it.
func (d *Driver) Rename(ctx context.Context, res *vfs.Resource, from, to string) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Rename", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	obj, exists := d.objects[from]
	if !exists {
		err = &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: from}
		return err
	}

	delete(d.objects, from)
	d.objects[to] = obj

	prefix := from + "/"
	var moved []string
	for path := range d.objects {
		if strings.HasPrefix(path, prefix) {
			moved = append(moved, path)
		}
	}
	for _, path := range moved {
		d.objects[to+"/"+strings.TrimPrefix(path, prefix)] = d.objects[path]
		delete(d.objects, path)
	}

	return nil
}

// Open implements vfs.Driver. Buffers need no per-descriptor state.
func (d *Driver) Open(ctx context.Context, f *vfs.File, res *vfs.Resource, flags vfs.OpenFlags, mode uint32) error {
	return ctx.Err()
}

// Close implements vfs.Driver. Closing the resource itself (nil
// descriptor, mount teardown) drops every stored object.
func (d *Driver) Close(ctx context.Context, f *vfs.File, res *vfs.Resource) error {
	if f == nil {
		d.mu.Lock()
		d.objects = make(map[string]*object)
		d.mu.Unlock()
	}
	return nil
}

// ReadAt implements vfs.Driver.
func (d *Driver) ReadAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (n int, err error) {
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	obj, ok := handleFor(res)
	if !ok {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no buffer handle"}
	}

	obj.mu.RLock()
	defer obj.mu.RUnlock()

	if off >= int64(len(obj.data)) {
		return 0, io.EOF
	}

	n = copy(p, obj.data[off:])
	d.metrics.AddBytes(d.Name(), "read", n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements vfs.Driver, growing the buffer (zero filled) when
// the write lands past the current end.
func (d *Driver) WriteAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (n int, err error) {
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	obj, ok := handleFor(res)
	if !ok {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no buffer handle"}
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(obj.data)) {
		grown := make([]byte, end)
		copy(grown, obj.data)
		obj.data = grown
	}

	n = copy(obj.data[off:], p)
	obj.stat.Size = int64(len(obj.data))
	obj.stat.Mtime = time.Now()
	d.metrics.AddBytes(d.Name(), "write", n)
	return n, nil
}

// Seek implements vfs.Driver. Buffers have no geometry of their own; the
// core resolves the standard whence values against the cached stat.
func (d *Driver) Seek(res *vfs.Resource, offset int64, whence int) (int64, error) {
	return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "unsupported seek whence"}
}
