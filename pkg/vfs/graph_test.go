package vfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/driver/drivertest"
	"github.com/corvfs/corvfs/pkg/vfs"
)

// newTestVFS builds a VFS with a mock filesystem driver mounted at /mnt
// and a second mock serving the buffer slot.
func newTestVFS(t *testing.T) (*vfs.VFS, *drivertest.MockDriver, *vfs.Node) {
	t.Helper()

	v := vfs.New(vfs.Options{})
	mock := drivertest.NewMockDriver()
	require.NoError(t, v.RegisterDriver(vfs.GroupFilesystem, 0, mock))
	require.NoError(t, v.RegisterDriver(vfs.GroupBuffer, vfs.BufferFile, drivertest.NewMockDriver()))

	mount, err := v.Mount(context.Background(), "/mnt", vfs.NewResource(vfs.GroupFilesystem, 0, mock))
	require.NoError(t, err)

	return v, mock, mount
}

func TestMountAndCreate(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)

	node, err := v.CreatePath(ctx, "/mnt/x/y.txt", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
	require.NoError(t, err)
	require.NotNil(t, node)

	// The driver saw exactly one physical create, with the full
	// mount-relative path of the terminal.
	assert.Equal(t, 1, mock.CallCount("Create"))

	// The intermediate directory exists in the graph.
	dir, remainder, err := v.LoadPath(ctx, "/mnt/x")
	require.NoError(t, err)
	assert.Empty(t, remainder)
	assert.Equal(t, vfs.KindDir, dir.Kind())

	assert.Equal(t, vfs.KindFile, node.Kind())

	v.Release(node)
	v.Release(dir)
	assert.Equal(t, int64(0), node.RefCount())
	assert.Equal(t, int64(0), dir.RefCount())

	// Re-loading hits the graph, not the driver.
	statsBefore := mock.CallCount("Stat")
	again, _, err := v.LoadPath(ctx, "/mnt/x/y.txt")
	require.NoError(t, err)
	assert.Same(t, node, again, "load after create must return the same node")
	assert.Equal(t, statsBefore, mock.CallCount("Stat"))
	v.Release(again)
}

func TestCreateIsIdempotentAcrossGoroutines(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)

	const workers = 2
	nodes := make([]*vfs.Node, workers)
	errs := make([]error, workers)

	done := make(chan int, workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			nodes[i], errs[i] = v.CreatePath(ctx, "/mnt/a", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
			done <- i
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Same(t, nodes[0], nodes[1], "concurrent creates must converge on one node")
	assert.Equal(t, 1, mock.CallCount("Create"), "driver create must run exactly once")
	assert.Equal(t, int64(2), nodes[0].RefCount())

	v.Release(nodes[0])
	v.Release(nodes[1])
}

func TestCreateExclusiveFailsOnExisting(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	node, err := v.CreatePath(ctx, "/mnt/once", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
	require.NoError(t, err)
	v.Release(node)

	_, err = v.CreatePath(ctx, "/mnt/once", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644, Exclusive: true})
	assert.True(t, vfs.IsCode(err, vfs.ErrAlreadyExists), "got %v", err)
}

func TestLoadMissReportsNotFoundWithRemainder(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVFS(t)

	_, remainder, err := v.LoadPath(ctx, "/mnt/no/such/file")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "got %v", err)
	assert.Equal(t, "file", remainder)
}

func TestCreateFailurePropagatesDriverError(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.FailCreate = true

	_, err := v.CreatePath(ctx, "/mnt/doomed", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
	require.Error(t, err)

	// The failed creation left nothing behind.
	mock.FailCreate = false
	_, _, err = v.LoadPath(ctx, "/mnt/doomed")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "got %v", err)
}

func TestRemoveSemantics(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)

	t.Run("root is immortal", func(t *testing.T) {
		err := v.Remove(ctx, "/", false, 0)
		assert.True(t, vfs.IsCode(err, vfs.ErrInUse), "got %v", err)
	})

	t.Run("mountpoint refuses removal", func(t *testing.T) {
		err := v.Remove(ctx, "/mnt", false, 0)
		assert.True(t, vfs.IsCode(err, vfs.ErrInUse), "got %v", err)
	})

	t.Run("referenced node refuses removal", func(t *testing.T) {
		node, err := v.CreatePath(ctx, "/mnt/busy", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
		require.NoError(t, err)

		err = v.Remove(ctx, "/mnt/busy", false, 0)
		assert.True(t, vfs.IsCode(err, vfs.ErrInUse), "got %v", err)

		v.Release(node)
		require.NoError(t, v.Remove(ctx, "/mnt/busy", false, 0))
	})

	t.Run("directory with children needs recursive", func(t *testing.T) {
		node, err := v.CreatePath(ctx, "/mnt/dir/leaf", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
		require.NoError(t, err)
		v.Release(node)

		err = v.Remove(ctx, "/mnt/dir", false, 0)
		assert.True(t, vfs.IsCode(err, vfs.ErrHasChildren), "got %v", err)

		require.NoError(t, v.Remove(ctx, "/mnt/dir", true, 0))

		// Without RemovePhysical the backing object survives, so a
		// re-load materializes a fresh node from the driver.
		again, _, err := v.LoadPath(ctx, "/mnt/dir/leaf")
		require.NoError(t, err)
		assert.NotSame(t, node, again, "recursive removal must drop the cached node")
		v.Release(again)
	})

	t.Run("physical remove reaches the driver", func(t *testing.T) {
		node, err := v.CreatePath(ctx, "/mnt/phys", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
		require.NoError(t, err)
		v.Release(node)

		before := mock.CallCount("Remove")
		require.NoError(t, v.Remove(ctx, "/mnt/phys", false, vfs.RemovePhysical))
		assert.Equal(t, before+1, mock.CallCount("Remove"))

		// Gone from the backing store too, so a re-load misses.
		_, _, err = v.LoadPath(ctx, "/mnt/phys")
		assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "got %v", err)
	})

	t.Run("in-memory node requires physical flag", func(t *testing.T) {
		node, err := v.CreatePath(ctx, "/ram/only", vfs.NodeInfo{Kind: vfs.KindBuffer, Mode: 0o644})
		require.NoError(t, err)
		v.Release(node)

		err = v.Remove(ctx, "/ram/only", false, 0)
		assert.True(t, vfs.IsCode(err, vfs.ErrPhysicalDeleteRequired), "got %v", err)

		require.NoError(t, v.Remove(ctx, "/ram/only", false, vfs.RemovePhysical))
	})
}

func TestRemovePrunesEmptyAncestors(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)

	node, err := v.CreatePath(ctx, "/mnt/a/b/c", vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
	require.NoError(t, err)
	v.Release(node)

	require.NoError(t, v.Remove(ctx, "/mnt/a/b/c", false, vfs.RemovePrune))

	// The ancestors a and b became empty and were pruned away, so a
	// fresh load goes back to the driver for them. The backing store
	// holds the directories that the create synthesized only in the graph.
	mock.SeedDir("a/b", 0o755)
	statsBefore := mock.CallCount("Stat")
	_, _, err = v.LoadPath(ctx, "/mnt/a/b")
	require.NoError(t, err)
	assert.Greater(t, mock.CallCount("Stat"), statsBefore)
}

func TestCreateRelGrowsSubtree(t *testing.T) {
	ctx := context.Background()
	v, _, mount := newTestVFS(t)

	node, err := v.CreateRel(ctx, "sub/leaf.txt", mount, vfs.NodeInfo{Kind: vfs.KindFile, Mode: 0o644})
	require.NoError(t, err)
	defer v.Release(node)

	loaded, _, err := v.LoadPath(ctx, "/mnt/sub/leaf.txt")
	require.NoError(t, err)
	assert.Same(t, node, loaded)
	v.Release(loaded)
}
