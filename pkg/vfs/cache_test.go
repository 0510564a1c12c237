package vfs

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver is a minimal in-package driver for white-box tests. Every
// named object exists and is empty; content written through a handle is
// kept per-handle.
type stubDriver struct {
	mu    sync.Mutex
	stats map[string]int
	data  map[string][]byte
}

func newStubDriver() *stubDriver {
	return &stubDriver{stats: make(map[string]int), data: make(map[string][]byte)}
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) Stat(ctx context.Context, res *Resource, relPath string) (Stat, error) {
	d.mu.Lock()
	d.stats[relPath]++
	d.mu.Unlock()
	return Stat{Mode: ModeTypeFile | 0o644}, nil
}

func (d *stubDriver) Locate(ctx context.Context, res *Resource, relPath string) (any, error) {
	return relPath, nil
}

func (d *stubDriver) Create(ctx context.Context, res *Resource, relPath string, mode uint32, kind Kind) error {
	return nil
}

func (d *stubDriver) Remove(ctx context.Context, res *Resource, relPath string) error { return nil }

func (d *stubDriver) Rename(ctx context.Context, res *Resource, from, to string) error { return nil }

func (d *stubDriver) Open(ctx context.Context, f *File, res *Resource, flags OpenFlags, mode uint32) error {
	return nil
}

func (d *stubDriver) Close(ctx context.Context, f *File, res *Resource) error { return nil }

func (d *stubDriver) ReadAt(ctx context.Context, res *Resource, p []byte, off int64) (int, error) {
	key, _ := res.Handle.(string)
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.data[key]
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *stubDriver) WriteAt(ctx context.Context, res *Resource, p []byte, off int64) (int, error) {
	key, _ := res.Handle.(string)
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.data[key]
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	n := copy(data[off:], p)
	d.data[key] = data
	return n, nil
}

func (d *stubDriver) Seek(res *Resource, offset int64, whence int) (int64, error) {
	return 0, newError(ErrInvalidArgument, "unsupported", "")
}

func (d *stubDriver) statCount(relPath string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats[relPath]
}

func newStubVFS(t *testing.T, cacheSize int) (*VFS, *stubDriver) {
	t.Helper()

	v := New(Options{EvictionCacheSize: cacheSize})
	driver := newStubDriver()
	require.NoError(t, v.RegisterDriver(GroupFilesystem, 0, driver))
	require.NoError(t, v.RegisterDriver(GroupBuffer, BufferFile, driver))

	return v, driver
}

func TestEvictionRingFreesOldest(t *testing.T) {
	ctx := context.Background()
	v, driver := newStubVFS(t, 2)

	_, err := v.Mount(ctx, "/mnt", NewResource(GroupFilesystem, 0, driver))
	require.NoError(t, err)

	openClose := func(path string) *Node {
		f, err := v.Open(ctx, path, 0, 0)
		require.NoError(t, err)
		node := f.Node()
		require.NoError(t, v.Close(ctx, f))
		return node
	}

	a := openClose("/mnt/a")
	b := openClose("/mnt/b")

	assert.True(t, v.cache.contains(a), "a should be parked after close")
	assert.True(t, v.cache.contains(b), "b should be parked after close")
	assert.Equal(t, 2, v.cache.len())

	c := openClose("/mnt/c")

	// The ring holds two entries; parking c overwrote the slot holding
	// the oldest entry, freeing it for good.
	assert.False(t, v.cache.contains(a), "a should have been evicted")
	assert.True(t, v.cache.contains(b))
	assert.True(t, v.cache.contains(c))
	assert.Equal(t, KindNull, a.Kind(), "evicted node should be freed")

	// A parked node is detached from the tree, so re-loading it goes
	// back to the driver.
	before := driver.statCount("a")
	node, remainder, err := v.LoadPath(ctx, "/mnt/a")
	require.NoError(t, err)
	assert.Empty(t, remainder)
	assert.Equal(t, before+1, driver.statCount("a"))
	assert.NotSame(t, a, node, "evicted node must be re-materialized")
	v.Release(node)
}

func TestCloseDoesNotRetireReferencedNode(t *testing.T) {
	ctx := context.Background()
	v, driver := newStubVFS(t, 4)

	_, err := v.Mount(ctx, "/mnt", NewResource(GroupFilesystem, 0, driver))
	require.NoError(t, err)

	f1, err := v.Open(ctx, "/mnt/shared", 0, 0)
	require.NoError(t, err)
	f2, err := v.Open(ctx, "/mnt/shared", 0, 0)
	require.NoError(t, err)
	require.Same(t, f1.Node(), f2.Node())
	assert.Equal(t, int64(2), f1.Node().RefCount())

	require.NoError(t, v.Close(ctx, f1))
	assert.False(t, v.cache.contains(f2.Node()), "still-open node must stay live")
	assert.Equal(t, int64(1), f2.Node().RefCount())

	require.NoError(t, v.Close(ctx, f2))
	assert.True(t, v.cache.contains(f2.Node()))
}

func TestRetireSkipsPopulatedDirectories(t *testing.T) {
	ctx := context.Background()
	v, driver := newStubVFS(t, 4)

	_, err := v.Mount(ctx, "/mnt", NewResource(GroupFilesystem, 0, driver))
	require.NoError(t, err)

	// Materialize a file below a directory, then load the directory and
	// retire it directly while it still has a child.
	node, _, err := v.LoadPath(ctx, "/mnt/dir/leaf")
	require.NoError(t, err)
	v.Release(node)

	dir, _, err := v.LoadPath(ctx, "/mnt/dir")
	require.NoError(t, err)
	parked := dir
	v.retire(parked)
	v.Release(dir)

	assert.False(t, v.cache.contains(parked), "populated directory must not be parked")
}
