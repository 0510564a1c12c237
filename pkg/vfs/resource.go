package vfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DriverGroup classifies drivers by the namespace they serve.
type DriverGroup int

const (
	// GroupFilesystem drivers back whole subtrees with persistent
	// storage (disk, key-value store, object store).
	GroupFilesystem DriverGroup = iota

	// GroupDevice drivers expose device nodes. Mounting a device-group
	// resource flips the mountpoint kind to KindDevice.
	GroupDevice

	// GroupBuffer drivers hold bytes in memory. The buffer-file driver
	// backs every node created outside any mount.
	GroupBuffer

	// GroupFifo drivers implement first-in-first-out pipes.
	GroupFifo
)

// String returns the group name used in logs and metrics labels.
func (g DriverGroup) String() string {
	switch g {
	case GroupFilesystem:
		return "filesystem"
	case GroupDevice:
		return "device"
	case GroupBuffer:
		return "buffer"
	case GroupFifo:
		return "fifo"
	default:
		return "unknown"
	}
}

// BufferFile is the registry index of the plain buffer driver within
// GroupBuffer. Nodes created outside any mount are backed by it.
const BufferFile uint64 = 0

// Driver is the capability set the core consumes from a backing store.
//
// All paths handed to a driver are relative to the mount the resource was
// mounted at, use '/' separators and carry no leading slash ("" names the
// mount itself). Drivers must be safe for concurrent use: the core only
// serializes calls that race on the same parent directory.
//
// Blocking calls take a context and must respect its cancellation. The
// core never retries; a driver error aborts the operation and is wrapped
// into an ErrDriver graph error.
type Driver interface {
	// Name identifies the driver in logs and metrics.
	Name() string

	// Stat returns the attributes of the object at relPath, or an error
	// when the object does not exist on the backing store.
	Stat(ctx context.Context, res *Resource, relPath string) (Stat, error)

	// Locate returns the driver's opaque per-object handle for relPath.
	// The handle is stored in the node's resource and passed back on
	// every subsequent call.
	Locate(ctx context.Context, res *Resource, relPath string) (any, error)

	// Create physically creates the object at relPath.
	Create(ctx context.Context, res *Resource, relPath string, mode uint32, kind Kind) error

	// Remove physically removes the object at relPath.
	Remove(ctx context.Context, res *Resource, relPath string) error

	// Rename physically renames from -> to within the same mount.
	Rename(ctx context.Context, res *Resource, from, to string) error

	// Open prepares the resource for I/O through the given descriptor.
	Open(ctx context.Context, f *File, res *Resource, flags OpenFlags, mode uint32) error

	// Close releases per-descriptor state. A nil descriptor closes the
	// resource itself (mount teardown).
	Close(ctx context.Context, f *File, res *Resource) error

	// ReadAt reads into p starting at offset off. Returns io.EOF at end
	// of object in the usual ReaderAt manner.
	ReadAt(ctx context.Context, res *Resource, p []byte, off int64) (int, error)

	// WriteAt writes p starting at offset off, extending the object as
	// needed.
	WriteAt(ctx context.Context, res *Resource, p []byte, off int64) (int, error)

	// Seek handles whence values the core cannot resolve against the
	// cached stat (device drivers with their own geometry).
	Seek(res *Resource, offset int64, whence int) (int64, error)
}

// Resource associates a node with its backing driver.
//
// A resource is created when a node is materialized (or when a mount is
// initialized) and released when the node is freed. The Handle field holds
// whatever the driver's Locate returned and is never inspected by the core.
type Resource struct {
	// ID uniquely identifies the resource instance.
	ID uuid.UUID

	// Group and Index locate the driver in the registry.
	Group DriverGroup
	Index uint64

	// Driver is the capability set serving this resource.
	Driver Driver

	// Handle is the driver's opaque per-object state.
	Handle any

	// Arg is the caller-supplied driver argument from NodeInfo.
	Arg any
}

// NewResource builds a resource for the given driver placement. The handle
// starts empty; it is filled in by Locate when a node is materialized.
func NewResource(group DriverGroup, index uint64, driver Driver) *Resource {
	return &Resource{
		ID:     uuid.New(),
		Group:  group,
		Index:  index,
		Driver: driver,
	}
}

// driverKey addresses one registered driver.
type driverKey struct {
	group DriverGroup
	index uint64
}

// driverRegistry maps (group, index) placements to drivers.
//
// The registry exists so the core can infer the driver of a child node from
// the resource of its enclosing mount: directory children inherit the
// mount's index, file-like children inherit index+1. When no driver is
// registered at index+1 the lookup falls back to the mount's own index, so
// a single driver may serve both personalities.
type driverRegistry struct {
	mu      sync.RWMutex
	drivers map[driverKey]Driver
}

func newDriverRegistry() *driverRegistry {
	return &driverRegistry{drivers: make(map[driverKey]Driver)}
}

// register installs a driver at the given placement.
func (r *driverRegistry) register(group DriverGroup, index uint64, driver Driver) error {
	if driver == nil {
		return newError(ErrInvalidArgument, "nil driver", "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := driverKey{group: group, index: index}
	if _, exists := r.drivers[key]; exists {
		return newError(ErrAlreadyExists, fmt.Sprintf("driver already registered at %s/%d", group, index), "")
	}

	r.drivers[key] = driver
	return nil
}

// lookup finds the driver at the given placement.
func (r *driverRegistry) lookup(group DriverGroup, index uint64) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	driver, ok := r.drivers[driverKey{group: group, index: index}]
	return driver, ok
}

// RegisterDriver installs a driver at the given (group, index) placement.
//
// Filesystem drivers claim an index for their directory personality;
// file-like children of their mounts resolve to index+1, falling back to
// index when nothing is registered there. The buffer driver that backs
// mountless nodes must be registered at (GroupBuffer, BufferFile).
func (v *VFS) RegisterDriver(group DriverGroup, index uint64, driver Driver) error {
	return v.registry.register(group, index, driver)
}

// childIndex computes the registry index a child inherits from its
// enclosing mount: directory children share the mount's index, file-like
// children use the next index.
func childIndex(mountIndex uint64, kind Kind) uint64 {
	if kind.IsDirLike() {
		return mountIndex
	}
	return mountIndex + 1
}

// resourceForChild infers and instantiates the resource of a node being
// materialized under the given mount. A nil mount resource places the node
// on the buffer-file driver.
func (v *VFS) resourceForChild(mres *Resource, kind Kind, arg any) (*Resource, error) {
	if !kind.HasResource() {
		return nil, nil
	}

	group := GroupBuffer
	index := BufferFile
	if mres != nil {
		group = mres.Group
		index = childIndex(mres.Index, kind)
	}

	driver, ok := v.registry.lookup(group, index)
	if !ok && mres != nil && index != mres.Index {
		driver, ok = v.registry.lookup(group, mres.Index)
	}
	if !ok {
		return nil, newError(ErrDriver, fmt.Sprintf("no driver registered at %s/%d", group, index), "")
	}

	res := NewResource(group, index, driver)
	res.Arg = arg
	return res, nil
}
