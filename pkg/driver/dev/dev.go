// Package dev implements the device-group driver.
//
// It exposes a small fixed set of character devices below its mount:
//
//	null - reads return EOF, writes are discarded
//	zero - reads return zero bytes forever, writes are discarded
//	full - reads return zero bytes, writes fail with no space
//
// Mounting a device-group resource flips the mountpoint kind to
// KindDevice; the devices themselves materialize lazily like any other
// node, through Stat and Locate.
package dev

import (
	"context"
	"io"

	"github.com/corvfs/corvfs/pkg/vfs"
)

// device identifies one of the built-in device personalities.
type device int

const (
	devNull device = iota
	devZero
	devFull
)

// names maps mount-relative paths to devices.
var names = map[string]device{
	"null": devNull,
	"zero": devZero,
	"full": devFull,
}

// Driver is the device driver. Stateless.
type Driver struct{}

// New creates the device driver.
func New() *Driver {
	return &Driver{}
}

// Name implements vfs.Driver.
func (d *Driver) Name() string {
	return "dev"
}

// Stat implements vfs.Driver.
func (d *Driver) Stat(ctx context.Context, res *vfs.Resource, relPath string) (vfs.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vfs.Stat{}, err
	}

	if relPath == "" {
		return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
	}
	if _, ok := names[relPath]; ok {
		return vfs.Stat{Mode: vfs.ModeTypeDev | 0o666}, nil
	}
	return vfs.Stat{}, &vfs.Error{Code: vfs.ErrNotFound, Message: "no such device", Path: relPath}
}

// Locate implements vfs.Driver.
func (d *Driver) Locate(ctx context.Context, res *vfs.Resource, relPath string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, ok := names[relPath]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "no such device", Path: relPath}
	}
	return dev, nil
}

// Create implements vfs.Driver. The device set is fixed.
func (d *Driver) Create(ctx context.Context, res *vfs.Resource, relPath string, mode uint32, kind vfs.Kind) error {
	return &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "device set is fixed", Path: relPath}
}

// Remove implements vfs.Driver.
func (d *Driver) Remove(ctx context.Context, res *vfs.Resource, relPath string) error {
	return &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "device set is fixed", Path: relPath}
}

// Rename implements vfs.Driver.
func (d *Driver) Rename(ctx context.Context, res *vfs.Resource, from, to string) error {
	return &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "device set is fixed", Path: from}
}

// Open implements vfs.Driver.
func (d *Driver) Open(ctx context.Context, f *vfs.File, res *vfs.Resource, flags vfs.OpenFlags, mode uint32) error {
	return ctx.Err()
}

// Close implements vfs.Driver.
func (d *Driver) Close(ctx context.Context, f *vfs.File, res *vfs.Resource) error {
	return nil
}

// ReadAt implements vfs.Driver.
func (d *Driver) ReadAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dev, ok := res.Handle.(device)
	if !ok {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no device handle"}
	}

	switch dev {
	case devNull:
		return 0, io.EOF
	case devZero, devFull:
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	default:
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "unknown device"}
	}
}

// WriteAt implements vfs.Driver.
func (d *Driver) WriteAt(ctx context.Context, res *vfs.Resource, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dev, ok := res.Handle.(device)
	if !ok {
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no device handle"}
	}

	switch dev {
	case devNull, devZero:
		return len(p), nil
	case devFull:
		return 0, &vfs.Error{Code: vfs.ErrOutOfMemory, Message: "device is full"}
	default:
		return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "unknown device"}
	}
}

// Seek implements vfs.Driver. Devices have no geometry; every position
// is position zero.
func (d *Driver) Seek(res *vfs.Resource, offset int64, whence int) (int64, error) {
	return 0, nil
}
