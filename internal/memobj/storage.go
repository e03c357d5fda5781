package memobj

import (
	"sync"
	"unsafe"
)

// shardSize is the size of each backing-storage shard. Sharded locking
// lets independent regions of a large buffer be transferred or mapped
// in parallel by different queues without contending on one mutex.
const shardSize = 64 * 1024

// Device is the minimal identity a backing-storage allocator needs from
// a device: a unique key (its memory address is sufficient and avoids
// a dependency on the cpudevice package).
type Device interface {
	StorageKey() uintptr
}

// arena is one device's backing storage for a MemObject. A SubBuffer
// never owns an arena of its own; arenaFor derives an offset view
// into its parent's arena instead.
type arena struct {
	data   []byte
	shards []sync.RWMutex
}

func newArena(size int64) *arena {
	if size < 0 {
		size = 0
	}
	numShards := (size + shardSize - 1) / shardSize
	if numShards == 0 {
		numShards = 1
	}
	return &arena{
		data:   make([]byte, size),
		shards: make([]sync.RWMutex, numShards),
	}
}

func (a *arena) release() {
	a.data = nil
}

func (a *arena) shardRange(off, length int64) (start, end int) {
	if length <= 0 {
		return 0, -1
	}
	start = int(off / shardSize)
	end = int((off + length - 1) / shardSize)
	if end >= len(a.shards) {
		end = len(a.shards) - 1
	}
	return start, end
}

// ReadAt copies len(p) bytes starting at off into p.
func (a *arena) ReadAt(p []byte, off int64) {
	start, end := a.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		a.shards[i].RLock()
	}
	copy(p, a.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		a.shards[i].RUnlock()
	}
}

// WriteAt copies p into the arena starting at off.
func (a *arena) WriteAt(p []byte, off int64) {
	start, end := a.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		a.shards[i].Lock()
	}
	copy(a.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		a.shards[i].Unlock()
	}
}

// Bytes returns the raw backing slice. Callers that need a stable
// pointer for the lifetime of a kernel launch (to bind as a kernel
// argument) use this directly; the arena is never resized after
// allocation so the pointer stays valid for the MemObject's lifetime on
// that device.
func (a *arena) Bytes() []byte { return a.data }

func (a *arena) Pointer() unsafe.Pointer {
	if len(a.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&a.data[0])
}

// Allocate ensures per-device backing storage exists for m on dev,
// allocating it on first use. Allocation is idempotent and lazy. A SubBuffer's storage is always its parent's storage viewed at
// an offset, so allocating a SubBuffer recursively allocates its
// parent.
func (m *MemObject) Allocate(dev Device) error {
	if m.Kind == KindSubBuffer {
		return m.Parent.Allocate(dev)
	}
	key := deviceKey(dev.StorageKey())

	m.storageMu.Lock()
	defer m.storageMu.Unlock()
	if _, ok := m.storage[key]; ok {
		return nil
	}

	if m.useHostPtr != nil {
		m.storage[key] = &arena{data: m.useHostPtr, shards: make([]sync.RWMutex, (int64(len(m.useHostPtr))+shardSize-1)/shardSize+1)}
		return nil
	}

	a := newArena(m.ByteSize())
	if m.staging != nil {
		copy(a.data, m.staging)
		if m.stagingPool != nil {
			m.stagingPool.Put(m.staging)
		}
		m.staging = nil
	}
	m.storage[key] = a
	return nil
}

// arenaFor returns the backing arena to use for byte-level access,
// resolving through a SubBuffer's parent and applying its Offset.
// allocate must have already been called for dev.
func (m *MemObject) arenaFor(dev Device) (a *arena, offset int64, ok bool) {
	if m.Kind == KindSubBuffer {
		parentArena, parentOffset, ok := m.Parent.arenaFor(dev)
		if !ok {
			return nil, 0, false
		}
		return parentArena, parentOffset + m.Offset, true
	}
	m.storageMu.Lock()
	a, ok = m.storage[deviceKey(dev.StorageKey())]
	m.storageMu.Unlock()
	return a, 0, ok
}

// ReadAt reads len(p) bytes from this object's backing storage on dev,
// starting at the object-relative offset off.
func (m *MemObject) ReadAt(dev Device, p []byte, off int64) error {
	a, base, ok := m.arenaFor(dev)
	if !ok {
		return errNotAllocated(m, dev)
	}
	a.ReadAt(p, base+off)
	return nil
}

// WriteAt writes p into this object's backing storage on dev, starting
// at the object-relative offset off.
func (m *MemObject) WriteAt(dev Device, p []byte, off int64) error {
	a, base, ok := m.arenaFor(dev)
	if !ok {
		return errNotAllocated(m, dev)
	}
	a.WriteAt(p, base+off)
	return nil
}

// DevicePointer returns a raw pointer to this object's backing storage
// on dev at the object-relative offset off, for binding as a kernel
// buffer argument. The pointer is valid only while the arena lives,
// i.e. for the lifetime of the MemObject on that device.
func (m *MemObject) DevicePointer(dev Device, off int64) (unsafe.Pointer, error) {
	a, base, ok := m.arenaFor(dev)
	if !ok {
		return nil, errNotAllocated(m, dev)
	}
	p := a.Pointer()
	if p == nil {
		return nil, nil
	}
	return unsafe.Pointer(uintptr(p) + uintptr(base+off)), nil
}

// MapView returns a slice aliasing this object's backing storage on dev
// for [off, off+size) directly — the runtime has no separate host
// address space to copy into, so a "mapped" host pointer is simply a
// view into the device arena itself. Used by the map-buffer event's
// device-data initializer.
func (m *MemObject) MapView(dev Device, off, size int64) ([]byte, error) {
	a, base, ok := m.arenaFor(dev)
	if !ok {
		return nil, errNotAllocated(m, dev)
	}
	start := base + off
	return a.data[start : start+size], nil
}

func errNotAllocated(m *MemObject, _ Device) error {
	return &NotAllocatedError{Object: m}
}

// NotAllocatedError is returned when a transfer or bind is attempted
// against a device the object has never been allocated on. Callers
// are expected to call Allocate before any transfer or kernel launch
// that touches the object.
type NotAllocatedError struct {
	Object *MemObject
}

func (e *NotAllocatedError) Error() string {
	return "memobj: object has no backing storage on the requested device; call Allocate first"
}
