// Package fifo implements the first-in-first-out pipe driver.
//
// Every Locate hands out an independent pipe. Reads consume bytes in
// arrival order and block until data is available or the context is
// cancelled; writes append and wake waiting readers. Offsets are ignored
// on both sides, as pipes have no notion of position.
package fifo

import (
	"context"
	"io"
	"sync"

	"github.com/corvfs/corvfs/pkg/vfs"
)

// pipe is one FIFO instance.
type pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	closed bool
}

func newPipe() *pipe {
	p := &pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Driver is the FIFO driver. Stateless beyond the pipes it hands out.
type Driver struct{}

// New creates the FIFO driver.
func New() *Driver {
	return &Driver{}
}

// Name implements vfs.Driver.
func (d *Driver) Name() string {
	return "fifo"
}

// Stat implements vfs.Driver. Pipes report their currently buffered byte
// count as size.
func (d *Driver) Stat(ctx context.Context, res *vfs.Resource, relPath string) (vfs.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vfs.Stat{}, err
	}

	p, ok := res.Handle.(*pipe)
	if !ok {
		return vfs.Stat{Mode: vfs.ModeTypeFifo | 0o644}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return vfs.Stat{Mode: vfs.ModeTypeFifo | 0o644, Size: int64(len(p.data))}, nil
}

// Locate implements vfs.Driver.
func (d *Driver) Locate(ctx context.Context, res *vfs.Resource, relPath string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newPipe(), nil
}

// Create implements vfs.Driver. Pipes exist only in memory; creation is
// the Locate that builds them.
func (d *Driver) Create(ctx context.Context, res *vfs.Resource, relPath string, mode uint32, kind vfs.Kind) error {
	return ctx.Err()
}

// Remove implements vfs.Driver.
func (d *Driver) Remove(ctx context.Context, res *vfs.Resource, relPath string) error {
	return ctx.Err()
}

// Rename implements vfs.Driver.
func (d *Driver) Rename(ctx context.Context, res *vfs.Resource, from, to string) error {
	return ctx.Err()
}

// Open implements vfs.Driver.
func (d *Driver) Open(ctx context.Context, f *vfs.File, res *vfs.Resource, flags vfs.OpenFlags, mode uint32) error {
	return ctx.Err()
}

// Close implements vfs.Driver. Closing the resource wakes and fails all
// blocked readers.
func (d *Driver) Close(ctx context.Context, f *vfs.File, res *vfs.Resource) error {
	if f != nil {
		return nil
	}
	if p, ok := res.Handle.(*pipe); ok {
		p.mu.Lock()
		p.closed = true
		p.cond.Broadcast()
		p.mu.Unlock()
	}
	return nil
}

// ReadAt implements vfs.Driver. The offset is ignored; reads drain the
// head of the pipe and block while it is empty.
func (d *Driver) ReadAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (int, error) {
	pipe, ok := res.Handle.(*pipe)
	if !ok {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no pipe handle"}
	}

	// A cancelled context must be able to interrupt the wait; the cond
	// has no native timeout, so a watcher goroutine broadcasts when the
	// context fires.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			pipe.mu.Lock()
			pipe.cond.Broadcast()
			pipe.mu.Unlock()
		case <-stopWatch:
		}
	}()

	pipe.mu.Lock()
	defer pipe.mu.Unlock()

	for len(pipe.data) == 0 {
		if pipe.closed {
			return 0, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		pipe.cond.Wait()
	}

	n := copy(p, pipe.data)
	pipe.data = pipe.data[n:]
	return n, nil
}

// WriteAt implements vfs.Driver. The offset is ignored; writes append to
// the tail of the pipe.
func (d *Driver) WriteAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pipe, ok := res.Handle.(*pipe)
	if !ok {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no pipe handle"}
	}

	pipe.mu.Lock()
	defer pipe.mu.Unlock()

	if pipe.closed {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "write on closed pipe"}
	}

	pipe.data = append(pipe.data, p...)
	pipe.cond.Broadcast()
	return len(p), nil
}

// Seek implements vfs.Driver. Pipes are not seekable.
func (d *Driver) Seek(res *vfs.Resource, offset int64, whence int) (int64, error) {
	return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "pipes are not seekable"}
}
