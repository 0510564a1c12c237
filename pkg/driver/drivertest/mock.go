// Package drivertest provides test doubles and a reusable conformance
// suite for vfs.Driver implementations.
//
// The mock driver records every call so graph tests can assert exactly
// how often the core consulted the backing store; the suite exercises the
// Driver contract against any implementation.
package drivertest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/corvfs/corvfs/pkg/vfs"
)

// mockObject is one stored entity of the mock backing store.
type mockObject struct {
	stat vfs.Stat
	data []byte
}

// MockDriver is an in-memory vfs.Driver that counts every call.
//
// The backing namespace is seeded with Seed* helpers, so tests can model
// an on-disk filesystem the core has not yet materialized. All counters
// and state are guarded by one mutex; the mock favors observability over
// throughput.
type MockDriver struct {
	mu      sync.Mutex
	objects map[string]*mockObject

	// Calls counts driver invocations by operation name.
	Calls map[string]int

	// FailStat, when set, makes every Stat fail. Simulates a dead
	// backing store.
	FailStat bool

	// FailCreate, when set, makes every Create fail.
	FailCreate bool
}

// NewMockDriver creates an empty mock driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		objects: make(map[string]*mockObject),
		Calls:   make(map[string]int),
	}
}

// SeedFile installs a file with content into the mock's backing
// namespace, together with implicit parent directories.
func (d *MockDriver) SeedFile(relPath string, content []byte, mode uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.objects[relPath] = &mockObject{
		stat: vfs.Stat{Mode: mode | vfs.ModeTypeFile, Size: int64(len(content))},
		data: append([]byte(nil), content...),
	}
	d.seedParentsLocked(relPath)
}

// SeedDir installs a directory.
func (d *MockDriver) SeedDir(relPath string, mode uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.objects[relPath] = &mockObject{stat: vfs.Stat{Mode: mode | vfs.ModeTypeDir}}
	d.seedParentsLocked(relPath)
}

// SeedLink installs a symbolic link whose content is the target path.
func (d *MockDriver) SeedLink(relPath string, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.objects[relPath] = &mockObject{
		stat: vfs.Stat{Mode: 0o777 | vfs.ModeTypeLink, Size: int64(len(target))},
		data: []byte(target),
	}
	d.seedParentsLocked(relPath)
}

func (d *MockDriver) seedParentsLocked(relPath string) {
	for {
		idx := strings.LastIndexByte(relPath, '/')
		if idx <= 0 {
			return
		}
		relPath = relPath[:idx]
		if _, ok := d.objects[relPath]; !ok {
			d.objects[relPath] = &mockObject{stat: vfs.Stat{Mode: 0o755 | vfs.ModeTypeDir}}
		}
	}
}

// CallCount returns how often the named operation ran.
func (d *MockDriver) CallCount(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls[op]
}

func (d *MockDriver) count(op string) {
	d.mu.Lock()
	d.Calls[op]++
	d.mu.Unlock()
}

// Name implements vfs.Driver.
func (d *MockDriver) Name() string {
	return "mock"
}

// Stat implements vfs.Driver.
func (d *MockDriver) Stat(ctx context.Context, res *vfs.Resource, relPath string) (vfs.Stat, error) {
	d.count("Stat")

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailStat {
		return vfs.Stat{}, &vfs.Error{Code: vfs.ErrDriver, Message: "stat forced to fail", Path: relPath}
	}
	if relPath == "" {
		return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
	}

	obj, ok := d.objects[relPath]
	if !ok {
		return vfs.Stat{}, &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
	}
	return obj.stat, nil
}

// Locate implements vfs.Driver. The handle is the mount-relative path,
// or a fresh anonymous object for empty paths (buffer use).
func (d *MockDriver) Locate(ctx context.Context, res *vfs.Resource, relPath string) (any, error) {
	d.count("Locate")

	if relPath == "" {
		return &mockObject{stat: vfs.Stat{Mode: vfs.ModeTypeFile | 0o644}}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[relPath]; !ok {
		d.objects[relPath] = &mockObject{stat: vfs.Stat{Mode: vfs.ModeTypeFile | 0o644}}
	}
	return relPath, nil
}

// Create implements vfs.Driver.
func (d *MockDriver) Create(ctx context.Context, res *vfs.Resource, relPath string, mode uint32, kind vfs.Kind) error {
	d.count("Create")

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailCreate {
		return &vfs.Error{Code: vfs.ErrDriver, Message: "create forced to fail", Path: relPath}
	}
	if _, ok := d.objects[relPath]; ok {
		return nil
	}
	d.objects[relPath] = &mockObject{stat: vfs.Stat{Mode: mode | vfs.ModeTypeBits(kind)}}
	return nil
}

// Remove implements vfs.Driver.
func (d *MockDriver) Remove(ctx context.Context, res *vfs.Resource, relPath string) error {
	d.count("Remove")

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.objects[relPath]; !ok {
		return &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
	}
	delete(d.objects, relPath)
	return nil
}

// Rename implements vfs.Driver.
func (d *MockDriver) Rename(ctx context.Context, res *vfs.Resource, from, to string) error {
	d.count("Rename")

	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.objects[from]
	if !ok {
		return &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: from}
	}
	delete(d.objects, from)
	d.objects[to] = obj
	return nil
}

// Open implements vfs.Driver.
func (d *MockDriver) Open(ctx context.Context, f *vfs.File, res *vfs.Resource, flags vfs.OpenFlags, mode uint32) error {
	d.count("Open")
	return nil
}

// Close implements vfs.Driver.
func (d *MockDriver) Close(ctx context.Context, f *vfs.File, res *vfs.Resource) error {
	d.count("Close")
	return nil
}

// resolveObject returns the object behind a resource handle.
func (d *MockDriver) resolveObject(res *vfs.Resource) (*mockObject, error) {
	switch handle := res.Handle.(type) {
	case *mockObject:
		return handle, nil
	case string:
		d.mu.Lock()
		defer d.mu.Unlock()
		obj, ok := d.objects[handle]
		if !ok {
			return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: handle}
		}
		return obj, nil
	default:
		return nil, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no mock handle"}
	}
}

// ReadAt implements vfs.Driver.
func (d *MockDriver) ReadAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (int, error) {
	d.count("ReadAt")

	obj, err := d.resolveObject(res)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if off >= int64(len(obj.data)) {
		return 0, io.EOF
	}
	n := copy(p, obj.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements vfs.Driver.
func (d *MockDriver) WriteAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (int, error) {
	d.count("WriteAt")

	obj, err := d.resolveObject(res)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(obj.data)) {
		grown := make([]byte, end)
		copy(grown, obj.data)
		obj.data = grown
	}
	n := copy(obj.data[off:], p)
	obj.stat.Size = int64(len(obj.data))
	obj.stat.Mtime = time.Now()
	return n, nil
}

// Seek implements vfs.Driver.
func (d *MockDriver) Seek(res *vfs.Resource, offset int64, whence int) (int64, error) {
	d.count("Seek")
	return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "unsupported seek whence"}
}
