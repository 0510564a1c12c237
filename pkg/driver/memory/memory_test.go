package memory

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/driver/drivertest"
	"github.com/corvfs/corvfs/pkg/vfs"
)

// TestMemoryDriverSuite runs the driver conformance suite against the
// in-memory implementation.
func TestMemoryDriverSuite(t *testing.T) {
	suite := &drivertest.Suite{
		NewDriver: func(t *testing.T) (vfs.Driver, *vfs.Resource) {
			driver := New(nil)
			return driver, vfs.NewResource(vfs.GroupFilesystem, 0, driver)
		},
	}

	suite.Run(t)
}

func TestAnonymousBuffersAreIndependent(t *testing.T) {
	ctx := context.Background()
	driver := New(nil)

	resA := vfs.NewResource(vfs.GroupBuffer, vfs.BufferFile, driver)
	handle, err := driver.Locate(ctx, resA, "")
	require.NoError(t, err)
	resA.Handle = handle

	resB := vfs.NewResource(vfs.GroupBuffer, vfs.BufferFile, driver)
	handle, err = driver.Locate(ctx, resB, "")
	require.NoError(t, err)
	resB.Handle = handle

	_, err = driver.WriteAt(ctx, resA, []byte("only in A"), 0)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := driver.ReadAt(ctx, resB, buf, 0)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err, "buffer B must be empty")
}

func TestImplicitDirectories(t *testing.T) {
	ctx := context.Background()
	driver := New(nil)
	res := vfs.NewResource(vfs.GroupFilesystem, 0, driver)

	require.NoError(t, driver.Create(ctx, res, "deep/nested/file", 0o644, vfs.KindFile))

	stat, err := driver.Stat(ctx, res, "deep/nested")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDir, vfs.KindFromMode(stat.Mode))
}

func TestDirectoryRenameMovesChildren(t *testing.T) {
	ctx := context.Background()
	driver := New(nil)
	res := vfs.NewResource(vfs.GroupFilesystem, 0, driver)

	require.NoError(t, driver.Create(ctx, res, "dir", 0o755, vfs.KindDir))
	require.NoError(t, driver.Create(ctx, res, "dir/child", 0o644, vfs.KindFile))

	require.NoError(t, driver.Rename(ctx, res, "dir", "renamed"))

	_, err := driver.Stat(ctx, res, "renamed/child")
	assert.NoError(t, err)

	_, err = driver.Stat(ctx, res, "dir/child")
	assert.Error(t, err)
}
