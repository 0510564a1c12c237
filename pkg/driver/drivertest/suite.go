package drivertest

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/vfs"
)

// Suite is a conformance test suite for vfs.Driver implementations.
// It tests the interface contract, not implementation details, making it
// reusable across backends (memory, badger, object stores).
type Suite struct {
	// NewDriver is a factory returning a fresh driver and the resource
	// to address it with, for each test. Ensures test isolation.
	NewDriver func(t *testing.T) (vfs.Driver, *vfs.Resource)
}

// Run executes all tests in the suite.
func (s *Suite) Run(t *testing.T) {
	t.Run("StatMissing", s.testStatMissing)
	t.Run("CreateThenStat", s.testCreateThenStat)
	t.Run("WriteReadRoundTrip", s.testWriteReadRoundTrip)
	t.Run("WriteExtends", s.testWriteExtends)
	t.Run("Rename", s.testRename)
	t.Run("Remove", s.testRemove)
	t.Run("MountRootStat", s.testMountRootStat)
}

func (s *Suite) testStatMissing(t *testing.T) {
	driver, res := s.NewDriver(t)

	_, err := driver.Stat(context.Background(), res, "does/not/exist")
	require.Error(t, err)
}

func (s *Suite) testCreateThenStat(t *testing.T) {
	driver, res := s.NewDriver(t)
	ctx := context.Background()

	require.NoError(t, driver.Create(ctx, res, "a.txt", 0o644, vfs.KindFile))

	stat, err := driver.Stat(ctx, res, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindFile, vfs.KindFromMode(stat.Mode))
}

func (s *Suite) testWriteReadRoundTrip(t *testing.T) {
	driver, res := s.NewDriver(t)
	ctx := context.Background()

	require.NoError(t, driver.Create(ctx, res, "data.bin", 0o644, vfs.KindFile))

	obj := *res
	handle, err := driver.Locate(ctx, &obj, "data.bin")
	require.NoError(t, err)
	obj.Handle = handle

	payload := []byte("the quick brown fox")
	n, err := driver.WriteAt(ctx, &obj, payload, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = driver.ReadAt(ctx, &obj, buf, 0)
	if err == io.EOF {
		err = nil
	}
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)

	// Positioned read.
	tail := make([]byte, 3)
	n, err = driver.ReadAt(ctx, &obj, tail, int64(len(payload)-3))
	if err == io.EOF {
		err = nil
	}
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("fox"), tail)

	stat, err := driver.Stat(ctx, &obj, "data.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), stat.Size)
}

func (s *Suite) testWriteExtends(t *testing.T) {
	driver, res := s.NewDriver(t)
	ctx := context.Background()

	require.NoError(t, driver.Create(ctx, res, "sparse.bin", 0o644, vfs.KindFile))

	obj := *res
	handle, err := driver.Locate(ctx, &obj, "sparse.bin")
	require.NoError(t, err)
	obj.Handle = handle

	// Write past the end; the gap must read back as zeros.
	n, err := driver.WriteAt(ctx, &obj, []byte("xy"), 4)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, 6)
	n, err = driver.ReadAt(ctx, &obj, buf, 0)
	if err == io.EOF {
		err = nil
	}
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{0, 0, 0, 0, 'x', 'y'}, buf)
}

func (s *Suite) testRename(t *testing.T) {
	driver, res := s.NewDriver(t)
	ctx := context.Background()

	require.NoError(t, driver.Create(ctx, res, "old.txt", 0o644, vfs.KindFile))
	require.NoError(t, driver.Rename(ctx, res, "old.txt", "new.txt"))

	_, err := driver.Stat(ctx, res, "old.txt")
	assert.Error(t, err)

	_, err = driver.Stat(ctx, res, "new.txt")
	assert.NoError(t, err)
}

func (s *Suite) testRemove(t *testing.T) {
	driver, res := s.NewDriver(t)
	ctx := context.Background()

	require.NoError(t, driver.Create(ctx, res, "gone.txt", 0o644, vfs.KindFile))
	require.NoError(t, driver.Remove(ctx, res, "gone.txt"))

	_, err := driver.Stat(ctx, res, "gone.txt")
	assert.Error(t, err)
}

func (s *Suite) testMountRootStat(t *testing.T) {
	driver, res := s.NewDriver(t)

	stat, err := driver.Stat(context.Background(), res, "")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDir, vfs.KindFromMode(stat.Mode))
}
