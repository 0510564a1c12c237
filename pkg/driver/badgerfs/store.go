// Package badgerfs implements a filesystem-group driver persisted in
// BadgerDB.
//
// It is the persistent backing store for mounted subtrees: node
// attributes and content survive process restarts. BadgerDB is an
// embedded key-value store, so the driver maps the mount's namespace
// onto prefixed keys (see keys.go) and relies on Badger's transactions
// for atomicity of multi-key updates.
//
// Thread Safety:
// BadgerDB transactions provide isolation; the driver keeps no mutable
// state of its own beyond the database handle and is safe for concurrent
// use.
package badgerfs

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/corvfs/corvfs/pkg/metrics"
	"github.com/corvfs/corvfs/pkg/vfs"
)

// Config contains configuration for creating a badgerfs driver.
type Config struct {
	// Path is the directory holding the BadgerDB files.
	Path string

	// InMemory runs BadgerDB without files, for tests.
	InMemory bool

	// SyncWrites makes every commit durable at the cost of latency.
	SyncWrites bool
}

// Driver is the BadgerDB-backed filesystem driver.
type Driver struct {
	db      *badger.DB
	metrics *metrics.DriverMetrics
}

// New opens (or creates) the database and returns the driver.
func New(config Config, m *metrics.DriverMetrics) (*Driver, error) {
	opts := badger.DefaultOptions(config.Path)
	opts = opts.WithLogger(nil)
	opts = opts.WithSyncWrites(config.SyncWrites)
	if config.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &Driver{db: db, metrics: m}, nil
}

// Name implements vfs.Driver.
func (d *Driver) Name() string {
	return "badgerfs"
}

// DB exposes the underlying database for maintenance tooling.
func (d *Driver) DB() *badger.DB {
	return d.db
}

// Stat implements vfs.Driver.
func (d *Driver) Stat(ctx context.Context, res *vfs.Resource, relPath string) (stat vfs.Stat, err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Stat", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return vfs.Stat{}, err
	}

	if relPath == "" {
		// The mount itself.
		return vfs.Stat{Mode: vfs.ModeTypeDir | 0o755}, nil
	}

	var record attrRecord
	err = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attrKey(relPath))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decodeAttrRecord(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		err = &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
		return vfs.Stat{}, err
	}
	if err != nil {
		return vfs.Stat{}, fmt.Errorf("failed to read attributes of %s: %w", relPath, err)
	}

	return record.toStat(), nil
}

// Locate implements vfs.Driver. The handle is simply the mount-relative
// path; every I/O call re-resolves it against the database, which keeps
// handles valid across restarts.
func (d *Driver) Locate(ctx context.Context, res *vfs.Resource, relPath string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return relPath, nil
}

// handlePath extracts the path handle installed by Locate.
func handlePath(res *vfs.Resource) (string, error) {
	path, ok := res.Handle.(string)
	if !ok {
		return "", &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "resource has no path handle"}
	}
	return path, nil
}

// Create implements vfs.Driver.
func (d *Driver) Create(ctx context.Context, res *vfs.Resource, relPath string, mode uint32, kind vfs.Kind) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Create", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	if relPath == "" {
		return &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "empty create path"}
	}

	record := newAttrRecord(mode|vfs.ModeTypeBits(kind), kind)

	err = d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(attrKey(relPath)); err == nil {
			// Idempotent from the graph's perspective.
			return nil
		}
		encoded, err := encodeAttrRecord(&record)
		if err != nil {
			return err
		}
		return txn.Set(attrKey(relPath), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", relPath, err)
	}
	return nil
}

// Remove implements vfs.Driver. Both the attribute record and the
// content blob go in one transaction.
func (d *Driver) Remove(ctx context.Context, res *vfs.Resource, relPath string) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Remove", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(attrKey(relPath)); err != nil {
			return err
		}
		if err := txn.Delete(attrKey(relPath)); err != nil {
			return err
		}
		if err := txn.Delete(contentKey(relPath)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err == badger.ErrKeyNotFound {
		err = &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: relPath}
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", relPath, err)
	}
	return nil
}

// Rename implements vfs.Driver. The attribute and content keys move; a
// directory rename also moves every key below the old prefix.
func (d *Driver) Rename(ctx context.Context, res *vfs.Resource, from, to string) (err error) {
	start := time.Now()
	defer func() { d.metrics.ObserveOperation(d.Name(), "Rename", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		moved, err := d.moveKey(txn, attrKey(from), attrKey(to))
		if err != nil {
			return err
		}
		if !moved {
			return &vfs.Error{Code: vfs.ErrNotFound, Message: "object not found", Path: from}
		}
		if _, err := d.moveKey(txn, contentKey(from), contentKey(to)); err != nil {
			return err
		}

		// Move the subtree, attribute and content namespaces alike.
		for _, prefix := range [][]byte{attrKey(from + "/"), contentKey(from + "/")} {
			var oldKeys [][]byte
			var newKeys [][]byte
			var values [][]byte

			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				oldKey := item.KeyCopy(nil)
				val, err := item.ValueCopy(nil)
				if err != nil {
					it.Close()
					return err
				}
				oldKeys = append(oldKeys, oldKey)
				newKeys = append(newKeys, renamedKey(oldKey, from, to))
				values = append(values, val)
			}
			it.Close()

			for i := range oldKeys {
				if err := txn.Set(newKeys[i], values[i]); err != nil {
					return err
				}
				if err := txn.Delete(oldKeys[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := vfs.CodeOf(err); ok {
			return err
		}
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, err)
	}
	return nil
}

// moveKey copies src to dst and deletes src. Returns false when src does
// not exist.
func (d *Driver) moveKey(txn *badger.Txn, src, dst []byte) (bool, error) {
	item, err := txn.Get(src)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := txn.Set(dst, val); err != nil {
		return false, err
	}
	if err := txn.Delete(src); err != nil {
		return false, err
	}
	return true, nil
}

// Open implements vfs.Driver. No per-descriptor state is needed.
func (d *Driver) Open(ctx context.Context, f *vfs.File, res *vfs.Resource, flags vfs.OpenFlags, mode uint32) error {
	return ctx.Err()
}

// Close implements vfs.Driver. Closing the resource itself (mount
// teardown) flushes and closes the database.
func (d *Driver) Close(ctx context.Context, f *vfs.File, res *vfs.Resource) error {
	if f != nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}

// Seek implements vfs.Driver. Badger objects have no geometry of their
// own; the core resolves the standard whence values.
func (d *Driver) Seek(res *vfs.Resource, offset int64, whence int) (int64, error) {
	return 0, &vfs.Error{Code: vfs.ErrInvalidArgument, Message: "unsupported seek whence"}
}
