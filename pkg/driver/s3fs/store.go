// Package s3fs implements a filesystem-group driver backed by an S3
// bucket (or any S3-compatible object store such as MinIO or Localstack).
//
// Objects are keyed by mount-relative path below a configurable prefix.
// Directories exist implicitly: a path is a directory when objects live
// below it, and explicitly created directories are zero-byte marker
// objects with a trailing slash, the usual S3 console convention.
package s3fs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/corvfs/corvfs/pkg/metrics"
	"github.com/corvfs/corvfs/pkg/vfs"
)

// Config contains configuration for creating an s3fs driver.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// KeyPrefix is prepended to every object key, so several mounts can
	// share a bucket. Optional.
	KeyPrefix string
}

// Driver is the S3-backed filesystem driver.
type Driver struct {
	client  *s3.Client
	bucket  string
	prefix  string
	metrics *metrics.DriverMetrics
}

// New creates the driver around an already-configured S3 client. Client
// construction (region, endpoint, credentials, retries) lives with the
// configuration factories so all AWS plumbing stays in one place.
func New(client *s3.Client, config Config, m *metrics.DriverMetrics) (*Driver, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3fs driver: bucket is required")
	}

	prefix := config.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Driver{
		client:  client,
		bucket:  config.Bucket,
		prefix:  prefix,
		metrics: m,
	}, nil
}

// Name implements vfs.Driver.
func (d *Driver) Name() string {
	return "s3fs"
}

// objectKey maps a mount-relative path to its bucket key.
func (d *Driver) objectKey(relPath string) string {
	return d.prefix + relPath
}

// isNotFound reports whether an S3 error means "no such object".
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

// isInvalidRange reports whether an S3 error is a past-the-end range
// request, which GetObject signals instead of returning zero bytes.
func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

// Stat implements vfs.Driver.
//
// A HeadObject hit on the exact key means a file; a hit on key+"/" or any
// object below the path means a directory.
func (d *Driver) Stat(ctx context.Context, res *vfs.Resource, relPath string) (stat vfs.Stat, err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Stat", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return vfs.Stat{}, err
	}

	if relPath == "" {
		return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
	}

	key := d.objectKey(relPath)
	head, headErr := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if headErr == nil {
		stat = vfs.Stat{
			Mode: vfs.ModeTypeFile | 0o644,
			Size: aws.ToInt64(head.ContentLength),
		}
		if head.LastModified != nil {
			stat.Mtime = *head.LastModified
			stat.Ctime = *head.LastModified
		}
		return stat, nil
	}
	if !isNotFound(headErr) {
		err = fmt.Errorf("failed to stat s3 object %s: %w", key, headErr)
		return vfs.Stat{}, err
	}

	// Not a file; a directory marker or any object below the path makes
	// it a directory.
	dir, dirErr := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if dirErr != nil {
		err = fmt.Errorf("failed to list s3 prefix %s: %w", key, dirErr)
		return vfs.Stat{}, err
	}
	if aws.ToInt32(dir.KeyCount) > 0 {
		return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
	}

	err = &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
	return vfs.Stat{}, err
}

// Locate implements vfs.Driver. The handle is the object key.
func (d *Driver) Locate(ctx context.Context, res *vfs.Resource, relPath string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.objectKey(relPath), nil
}

// handleKey extracts the object key installed by Locate.
func handleKey(res *vfs.Resource) (string, error) {
	key, ok := res.Handle.(string)
	if !ok {
		return "", &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no key handle"}
	}
	return key, nil
}

// Create implements vfs.Driver. Files become empty objects, directories
// become zero-byte slash markers.
func (d *Driver) Create(ctx context.Context, res *vfs.Resource, relPath string, mode uint32, kind vfs.Kind) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Create", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	if relPath == "" {
		return &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "empty create path"}
	}

	key := d.objectKey(relPath)
	if kind.IsDirLike() {
		key += "/"
	}

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("failed to create s3 object %s: %w", key, err)
	}
	return nil
}

// Remove implements vfs.Driver.
func (d *Driver) Remove(ctx context.Context, res *vfs.Resource, relPath string) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Remove", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	key := d.objectKey(relPath)
	for _, candidate := range []string{key, key + "/"} {
		if _, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(candidate),
		}); err != nil {
			return fmt.Errorf("failed to remove s3 object %s: %w", candidate, err)
		}
	}
	return nil
}

// Rename implements vfs.Driver, as the S3 idiom copy-then-delete.
func (d *Driver) Rename(ctx context.Context, res *vfs.Resource, from, to string) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Rename", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	fromKey := d.objectKey(from)
	toKey := d.objectKey(to)

	_, err = d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		CopySource: aws.String(d.bucket + "/" + fromKey),
		Key:        aws.String(toKey),
	})
	if err != nil {
		if isNotFound(err) {
			return &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: from}
		}
		return fmt.Errorf("failed to copy s3 object %s: %w", fromKey, err)
	}

	if _, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(fromKey),
	}); err != nil {
		return fmt.Errorf("failed to delete s3 object %s after copy: %w", fromKey, err)
	}
	return nil
}

// Open implements vfs.Driver.
func (d *Driver) Open(ctx context.Context, f *vfs.File, res *vfs.Resource, flags vfs.OpenFlags, mode uint32) error {
	return ctx.Err()
}

// Close implements vfs.Driver. The S3 client is stateless; there is
// nothing to tear down on unmount.
func (d *Driver) Close(ctx context.Context, f *vfs.File, res *vfs.Resource) error {
	return nil
}

// Seek implements vfs.Driver.
func (d *Driver) Seek(res *vfs.Resource, offset int64, whence int) (int64, error) {
	return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "unsupported seek whence"}
}
