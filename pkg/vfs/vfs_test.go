package vfs_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/driver/drivertest"
	"github.com/corvfs/corvfs/pkg/vfs"
)

func TestOpenWriteReadSeekClose(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	f, err := v.Open(ctx, "/mnt/notes.txt", vfs.OpenCreate, 0o644)
	require.NoError(t, err)

	payload := []byte("hello graph world")
	n, err := v.Write(ctx, f, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, int64(len(payload)), f.Node().Stat().Size)

	// Rewind and read everything back.
	pos, err := v.Seek(f, 0, vfs.SeekSet)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	buf := make([]byte, len(payload))
	n, err = v.Read(ctx, f, buf)
	if err == io.EOF {
		err = nil
	}
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)

	// Seek relative to end, then read the tail.
	pos, err = v.Seek(f, -5, vfs.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)-5), pos)

	tail := make([]byte, 5)
	n, err = v.Read(ctx, f, tail)
	if err == io.EOF {
		err = nil
	}
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("world"), tail)

	require.NoError(t, v.Close(ctx, f))

	err = v.Close(ctx, f)
	assert.Error(t, err, "double close must fail")
}

func TestOpenExistingRequiresPresence(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	_, err := v.Open(ctx, "/mnt/absent", 0, 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "got %v", err)
}

func TestOpenCreateZeroModeRejected(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	_, err := v.Open(ctx, "/mnt/x", vfs.OpenCreate, 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrInvalidArgument), "got %v", err)
}

func TestStatPath(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("report.pdf", make([]byte, 1234), 0o600)

	stat, err := v.StatPath(ctx, "/mnt/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), stat.Size)
	assert.Equal(t, uint32(0o600), stat.Mode&^vfs.ModeTypeMask)

	_, err = v.StatPath(ctx, "/mnt/absent")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "got %v", err)
}

func TestListDirectory(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("t.txt", []byte("x"), 0o644)

	for _, path := range []string{"/mnt/sub/a", "/mnt/sub/b"} {
		node, err := v.CreatePath(ctx, path, vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
		require.NoError(t, err)
		v.Release(node)
	}
	require.NoError(t, v.Link(ctx, "/mnt/t.txt", "/mnt/sub/l", 0o777))

	entries, err := v.List(ctx, "/mnt/sub", 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byName := make(map[string]vfs.Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Equal(t, vfs.KindFile, byName["a"].Kind)
	assert.Equal(t, vfs.KindFile, byName["b"].Kind)
	assert.Equal(t, vfs.KindLink, byName["l"].Kind)
	assert.Equal(t, "../t.txt", byName["l"].LinkTo)

	// Recursive listing fills Children.
	top, err := v.List(ctx, "/mnt", 2)
	require.NoError(t, err)
	var sub *vfs.Entry
	for i := range top {
		if top[i].Name == "sub" {
			sub = &top[i]
		}
	}
	require.NotNil(t, sub)
	assert.Len(t, sub.Children, 3)

	_, err = v.List(ctx, "/mnt/t.txt", 1)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotDirectory), "got %v", err)
}

func TestMountRequiresEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	node, err := v.CreatePath(ctx, "/busy/child", vfs.NodeInfo{Kind: vfs.KindBuffer, Mode: 0o644})
	require.NoError(t, err)
	v.Release(node)

	extra := drivertest.NewMockDriver()
	require.NoError(t, v.RegisterDriver(vfs.GroupFilesystem, 20, extra))

	_, err = v.Mount(ctx, "/busy", vfs.NewResource(vfs.GroupFilesystem, 20, extra))
	assert.True(t, vfs.IsCode(err, vfs.ErrHasChildren), "got %v", err)

	_, err = v.Mount(ctx, "/busy/child", vfs.NewResource(vfs.GroupFilesystem, 20, extra))
	assert.True(t, vfs.IsCode(err, vfs.ErrNotDirectory), "got %v", err)
}

func TestUnmountResetsMountpoint(t *testing.T) {
	ctx := context.Background()
	v, mock, mount := newTestVFS(t)
	mock.SeedFile("data.txt", []byte("x"), 0o644)

	node, _, err := v.LoadPath(ctx, "/mnt/data.txt")
	require.NoError(t, err)

	// A referenced descendant blocks the unmount.
	err = v.Unmount(ctx, mount)
	assert.True(t, vfs.IsCode(err, vfs.ErrInUse), "got %v", err)

	v.Release(node)
	require.NoError(t, v.Unmount(ctx, mount))

	assert.Equal(t, vfs.KindDir, mount.Kind())
	assert.Nil(t, mount.Resource())
	assert.Equal(t, 1, mock.CallCount("Close"), "resource close must reach the driver")

	// The subtree is gone; a load now fails (no driver behind /mnt).
	_, _, err = v.LoadPath(ctx, "/mnt/data.txt")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "got %v", err)
}

func TestDeviceMountFlipsKind(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	devDriver := drivertest.NewMockDriver()
	require.NoError(t, v.RegisterDriver(vfs.GroupDevice, 0, devDriver))

	mount, err := v.Mount(ctx, "/dev", vfs.NewResource(vfs.GroupDevice, 0, devDriver))
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDevice, mount.Kind())
}
