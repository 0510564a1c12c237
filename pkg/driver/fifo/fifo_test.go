package fifo

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvfs/corvfs/pkg/vfs"
)

func newPipeResource(t *testing.T, driver *Driver) *vfs.Resource {
	t.Helper()

	res := vfs.NewResource(vfs.GroupFifo, 0, driver)
	handle, err := driver.Locate(context.Background(), res, "")
	require.NoError(t, err)
	res.Handle = handle
	return res
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	driver := New()
	res := newPipeResource(t, driver)

	n, err := driver.WriteAt(ctx, res, []byte("first"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = driver.WriteAt(ctx, res, []byte("second"), 99)
	require.NoError(t, err, "offsets are ignored on pipes")

	buf := make([]byte, 64)
	n, err = driver.ReadAt(ctx, res, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "firstsecond", string(buf[:n]))
}

func TestReadBlocksUntilWrite(t *testing.T) {
	ctx := context.Background()
	driver := New()
	res := newPipeResource(t, driver)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := driver.ReadAt(ctx, res, buf, 0)
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		got <- string(buf[:n])
	}()

	// Give the reader a moment to block, then feed it.
	time.Sleep(20 * time.Millisecond)
	_, err := driver.WriteAt(ctx, res, []byte("wakeup"), 0)
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, "wakeup", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never woke up")
	}
}

func TestReadCancelledByContext(t *testing.T) {
	driver := New()
	res := newPipeResource(t, driver)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	buf := make([]byte, 4)
	_, err := driver.ReadAt(ctx, res, buf, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsReaders(t *testing.T) {
	ctx := context.Background()
	driver := New()
	res := newPipeResource(t, driver)

	got := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		_, err := driver.ReadAt(ctx, res, buf, 0)
		got <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, driver.Close(ctx, nil, res))

	select {
	case err := <-got:
		assert.Equal(t, io.EOF, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never returned after close")
	}

	_, err := driver.WriteAt(ctx, res, []byte("late"), 0)
	assert.Error(t, err, "write after close must fail")
}
