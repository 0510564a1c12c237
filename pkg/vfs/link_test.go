package vfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/vfs"
)

func TestLinkCreatesRelativeBody(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("t.txt", []byte("content"), 0o644)

	require.NoError(t, v.Link(ctx, "/mnt/t.txt", "/mnt/l", 0o777))

	// The link body is the textual relative path.
	body, err := v.ReadLink(ctx, "/mnt/l")
	require.NoError(t, err)
	assert.Equal(t, "t.txt", body)

	// Resolution is transparent: the link's target is the source node.
	target, _, err := v.LoadPath(ctx, "/mnt/t.txt")
	require.NoError(t, err)

	link, _, err := v.LoadPath(ctx, "/mnt/l")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindLink, link.Kind())
	assert.Same(t, target, link.LinkTarget())

	// The link edge holds one reference on the target beyond ours.
	assert.Equal(t, int64(2), target.RefCount())
	assert.Equal(t, uint32(1), target.Stat().Nlink)

	// I/O through the link reaches the target's bytes.
	f, err := v.Open(ctx, "/mnt/l", 0, 0)
	require.NoError(t, err)
	buf := make([]byte, 7)
	n, _ := v.Read(ctx, f, buf)
	assert.Equal(t, 7, n)
	assert.Equal(t, []byte("content"), buf)
	require.NoError(t, v.Close(ctx, f))

	v.Release(link)
	v.Release(target)
}

func TestLinkOnExistingPathFails(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("t.txt", []byte("x"), 0o644)
	mock.SeedFile("taken", []byte("y"), 0o644)

	err := v.Link(ctx, "/mnt/t.txt", "/mnt/taken", 0o777)
	assert.True(t, vfs.IsCode(err, vfs.ErrAlreadyExists), "got %v", err)
}

func TestLinkInheritsSourceMode(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("t.txt", []byte("x"), 0o600)

	require.NoError(t, v.Link(ctx, "/mnt/t.txt", "/mnt/l", vfs.ModeInherit))

	link, _, err := v.LoadPath(ctx, "/mnt/l")
	require.NoError(t, err)
	defer v.Release(link)

	assert.Equal(t, uint32(0o600), link.Stat().Mode&^vfs.ModeTypeMask)
}

func TestLazyLinkResolution(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("t.txt", []byte("content"), 0o644)
	mock.SeedLink("l", "t.txt")

	// The link was never created through Link(); the first resolving
	// load reads its body from the driver and installs the target.
	link, remainder, err := v.LoadPath(ctx, "/mnt/l")
	require.NoError(t, err)
	assert.Empty(t, remainder)
	assert.Equal(t, vfs.KindLink, link.Kind())
	require.NotNil(t, link.LinkTarget())

	target, _, err := v.LoadPath(ctx, "/mnt/t.txt")
	require.NoError(t, err)
	assert.Same(t, target, link.LinkTarget())

	v.Release(target)
	v.Release(link)
}

func TestBrokenLinkReportsBrokenNotMissing(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedLink("broken", "/nonexistent")

	_, _, err := v.LoadPath(ctx, "/mnt/broken")
	assert.True(t, vfs.IsCode(err, vfs.ErrBrokenLink), "got %v", err)

	// The link node itself survives the failed resolution, unreferenced.
	body, err := v.ReadLink(ctx, "/mnt/broken")
	require.NoError(t, err)
	assert.Equal(t, "/nonexistent", body)

	_, err = v.Open(ctx, "/mnt/broken", 0, 0)
	assert.Error(t, err, "opening a broken link must fail")
}

func TestLinkCycleHitsHopBound(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedLink("a", "b")
	mock.SeedLink("b", "a")

	_, _, err := v.LoadPath(ctx, "/mnt/a")
	assert.True(t, vfs.IsCode(err, vfs.ErrTooManyLinks), "got %v", err)
}

func TestLinkChainCollapsesToFinalTarget(t *testing.T) {
	ctx := context.Background()
	v, mock, _ := newTestVFS(t)
	mock.SeedFile("t.txt", []byte("content"), 0o644)
	mock.SeedLink("hop", "t.txt")

	require.NoError(t, v.Link(ctx, "/mnt/hop", "/mnt/l2", 0o777))

	// Linking to a link targets the final node.
	target, _, err := v.LoadPath(ctx, "/mnt/t.txt")
	require.NoError(t, err)
	defer v.Release(target)

	l2, _, err := v.LoadPath(ctx, "/mnt/l2")
	require.NoError(t, err)
	defer v.Release(l2)

	assert.Same(t, target, l2.LinkTarget())
}
