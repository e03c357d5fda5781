// Package memobj implements the Memory Object Model: buffers,
// sub-buffers, and 2D/3D images, each lazily backed by one storage
// arena per device that has touched them.
package memobj

import (
	"fmt"
	"sync"

	"github.com/cloverproject/clovercore/internal/devinfo"
	"github.com/cloverproject/clovercore/internal/object"
)

// HostPtrDisposition describes how a memory object relates to a
// caller-supplied host pointer.
type HostPtrDisposition int

const (
	HostPtrNone HostPtrDisposition = iota
	HostPtrUse
	HostPtrAlloc
	HostPtrCopy
)

// Flags describes access and host-pointer disposition for a memory
// object, mirroring the CL_MEM_* flag families (access + host ptr
// disposition are orthogonal, so they're kept as separate fields rather
// than a single bitset — clearer at the call site than bit twiddling).
type Flags struct {
	ReadWrite     bool // true: read_write, false: one of the two below applies
	WriteOnly     bool
	ReadOnly      bool
	HostPtr       HostPtrDisposition
	HostWriteOnly bool
	HostReadOnly  bool
	HostNoAccess  bool
}

// Kind identifies the concrete shape of a MemObject.
type Kind int

const (
	KindBuffer Kind = iota
	KindSubBuffer
	KindImage2D
	KindImage3D
)

// ImageFormat is the pixel layout of an image memory object. Pixel
// codecs and sampler address-mode math are out of scope for this
// runtime; only the shape needed to size backing storage
// and validate bind-time limits is modeled here.
type ImageFormat struct {
	ChannelOrder    string
	ChannelDataType string
	BytesPerPixel   int
}

// MemObject is a buffer, sub-buffer, or 2D/3D image. All variants share
// an Object header for refcounting and a per-device backing-storage
// table, allocated lazily.
type MemObject struct {
	Obj object.Object

	Kind  Kind
	Flags Flags
	Size  int64 // total byte size (buffers/sub-buffers); 0 for images

	// SubBuffer-only fields.
	Parent *MemObject
	Offset int64

	// Image-only fields.
	Width, Height, Depth int
	RowPitch, SlicePitch int
	Format               ImageFormat

	storageMu sync.Mutex
	storage   map[deviceKey]*arena

	// Host-pointer staging, set only by NewBufferWithHostPtr.
	stagingPool *StagingPool
	staging     []byte
	useHostPtr  []byte
}

type deviceKey uintptr

// NewBuffer constructs a plain buffer of the given size.
func NewBuffer(size int64, flags Flags) *MemObject {
	m := &MemObject{Kind: KindBuffer, Flags: flags, Size: size}
	object.Init(&m.Obj, object.KindMemObject, m, nil, false)
	m.storage = make(map[deviceKey]*arena)
	return m
}

// NewBufferWithHostPtr constructs a buffer whose initial contents come
// from a host-supplied slice, per flags.HostPtr:
//
//   - HostPtrCopy: hostData is staged in pool until the first device
//     allocation, at which point it is copied into the new arena and
//     the staging buffer is returned to pool.
//   - HostPtrUse: hostData backs the object directly; no device
//     allocation is needed (or, here, the device's arena aliases it).
//   - otherwise hostData is ignored.
func NewBufferWithHostPtr(pool *StagingPool, size int64, flags Flags, hostData []byte) *MemObject {
	m := NewBuffer(size, flags)
	switch flags.HostPtr {
	case HostPtrCopy:
		staged := pool.Get(size)
		copy(staged, hostData)
		m.stagingPool = pool
		m.staging = staged
	case HostPtrUse:
		m.useHostPtr = hostData
	}
	return m
}

// NewSubBuffer constructs a view into parent at [offset, offset+size).
// Flags must not contradict the parent's flags (e.g. a write-only
// sub-buffer of a read-only parent is not sound) and offset+size must
// fit within the parent.
func NewSubBuffer(parent *MemObject, offset, size int64, flags Flags) (*MemObject, error) {
	if parent.Kind != KindBuffer && parent.Kind != KindSubBuffer {
		return nil, fmt.Errorf("memobj: sub-buffer parent must be a buffer")
	}
	if offset < 0 || size < 0 || offset+size > parent.Size {
		return nil, fmt.Errorf("memobj: sub-buffer [%d,%d) out of bounds of parent size %d", offset, offset+size, parent.Size)
	}
	if err := validateSubBufferFlags(parent.Flags, flags); err != nil {
		return nil, err
	}
	m := &MemObject{
		Kind:   KindSubBuffer,
		Flags:  flags,
		Size:   size,
		Parent: parent,
		Offset: offset,
	}
	object.Init(&m.Obj, object.KindMemObject, m, &parent.Obj, true)
	return m, nil
}

func validateSubBufferFlags(parent, child Flags) error {
	if child.WriteOnly && parent.ReadOnly {
		return fmt.Errorf("memobj: sub-buffer requests write access to a read-only parent")
	}
	if child.ReadOnly && parent.WriteOnly {
		return fmt.Errorf("memobj: sub-buffer requests read access to a write-only parent")
	}
	return nil
}

// NewImage2D constructs a 2D image.
func NewImage2D(width, height, rowPitch int, format ImageFormat, flags Flags) *MemObject {
	if rowPitch == 0 {
		rowPitch = width * format.BytesPerPixel
	}
	m := &MemObject{
		Kind: KindImage2D, Flags: flags,
		Width: width, Height: height, RowPitch: rowPitch, Format: format,
	}
	object.Init(&m.Obj, object.KindMemObject, m, nil, false)
	m.storage = make(map[deviceKey]*arena)
	return m
}

// NewImage3D constructs a 3D image.
func NewImage3D(width, height, depth, rowPitch, slicePitch int, format ImageFormat, flags Flags) *MemObject {
	if rowPitch == 0 {
		rowPitch = width * format.BytesPerPixel
	}
	if slicePitch == 0 {
		slicePitch = rowPitch * height
	}
	m := &MemObject{
		Kind: KindImage3D, Flags: flags,
		Width: width, Height: height, Depth: depth,
		RowPitch: rowPitch, SlicePitch: slicePitch, Format: format,
	}
	object.Init(&m.Obj, object.KindMemObject, m, nil, false)
	m.storage = make(map[deviceKey]*arena)
	return m
}

// OnDestroy satisfies object.Destroyer.
func (m *MemObject) OnDestroy() {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()
	for k, a := range m.storage {
		a.release()
		delete(m.storage, k)
	}
	if m.staging != nil && m.stagingPool != nil {
		m.stagingPool.Put(m.staging)
		m.staging = nil
	}
}

// ByteSize reports the total backing size an allocator should reserve
// for this object, independent of whether it's a buffer or an image.
func (m *MemObject) ByteSize() int64 {
	switch m.Kind {
	case KindBuffer, KindSubBuffer:
		return m.Size
	case KindImage2D:
		return int64(m.RowPitch) * int64(m.Height)
	case KindImage3D:
		return int64(m.SlicePitch) * int64(m.Depth)
	}
	return 0
}

// CheckImageLimits validates an image's dimensions against a device's
// reported capability table.
func (m *MemObject) CheckImageLimits(info devinfo.Info) error {
	switch m.Kind {
	case KindImage2D:
		if m.Width > info.MaxImageWidth2D || m.Height > info.MaxImageHeight2D {
			return fmt.Errorf("memobj: image2d %dx%d exceeds device limits %dx%d", m.Width, m.Height, info.MaxImageWidth2D, info.MaxImageHeight2D)
		}
	case KindImage3D:
		if m.Width > info.MaxImageWidth3D || m.Height > info.MaxImageHeight3D || m.Depth > info.MaxImageDepth3D {
			return fmt.Errorf("memobj: image3d %dx%dx%d exceeds device limits %dx%dx%d", m.Width, m.Height, m.Depth, info.MaxImageWidth3D, info.MaxImageHeight3D, info.MaxImageDepth3D)
		}
	}
	return nil
}

// CheckSubBufferAlignment validates that a SubBuffer's offset is
// aligned to the target device's base-address alignment, checked
// whenever it is bound to a kernel arg or a transfer.
func (m *MemObject) CheckSubBufferAlignment(info devinfo.Info) error {
	if m.Kind != KindSubBuffer {
		return nil
	}
	align := int64(info.BaseAddressAlignBytes)
	if align <= 0 {
		return nil
	}
	if m.Offset%align != 0 {
		return fmt.Errorf("memobj: sub-buffer offset %d is not aligned to device base address alignment %d", m.Offset, align)
	}
	return nil
}
