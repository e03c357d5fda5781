package event

import "github.com/cloverproject/clovercore/internal/memobj"

// Type identifies the kind of work an event represents.
type Type int

const (
	TypeReadBuffer Type = iota
	TypeWriteBuffer
	TypeCopyBuffer
	TypeReadBufferRect
	TypeWriteBufferRect
	TypeCopyBufferRect
	TypeReadImage
	TypeWriteImage
	TypeCopyImage
	TypeMapBuffer
	TypeUnmapMemObject
	TypeNDRangeKernel
	TypeTaskKernel
	TypeNativeKernel
	TypeMarker
	TypeBarrier
	TypeWaitForEvents
	TypeUser
)

// IsDummy reports whether an event of this type has no device-side
// work and must transition straight to Complete once it reaches the
// head of its queue.
func (t Type) IsDummy() bool {
	switch t {
	case TypeMarker, TypeUser, TypeBarrier, TypeWaitForEvents:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	names := [...]string{
		"read_buffer", "write_buffer", "copy_buffer",
		"read_buffer_rect", "write_buffer_rect", "copy_buffer_rect",
		"read_image", "write_image", "copy_image",
		"map_buffer", "unmap_mem_object",
		"ndrange_kernel", "task_kernel", "native_kernel",
		"marker", "barrier", "wait_for_events", "user",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "unknown"
	}
	return names[t]
}

// BufferTransfer carries the payload shared by read/write/copy buffer
// events.
type BufferTransfer struct {
	Buffer       *memobj.MemObject
	Offset       int64
	Size         int64
	HostPtr      []byte            // read/write target or source
	Source       *memobj.MemObject // copy only
	SourceOffset int64
}

// Origin3D and Region3D describe a 3D sub-region for *Rect transfers.
type Origin3D [3]int64
type Region3D [3]int64

// RectTransfer carries the payload for buffer-rect and image
// transfers.
type RectTransfer struct {
	Buffer       *memobj.MemObject
	Source       *memobj.MemObject // nil for host<->buffer transfers
	HostPtr      []byte
	BufferOrigin Origin3D
	HostOrigin   Origin3D
	Region       Region3D

	BufferRowPitch, BufferSlicePitch int64
	HostRowPitch, HostSlicePitch     int64

	ToHost bool // true: device->host (read); false: host->device (write)
}

// MapUnmap carries the payload for map/unmap events.
type MapUnmap struct {
	Buffer    *memobj.MemObject
	Offset    int64
	Size      int64
	ForWrite  bool
	MappedPtr []byte // populated by the device's event-data initializer at enqueue
	Unmap     bool   // true for TypeUnmapMemObject
}

// KernelLaunch carries the payload for ND-range and task kernel events.
// The concrete Kernel/WorkGroup machinery lives in internal/kernel; this
// package only needs an opaque handle plus the launch geometry so that
// event, queue, and cpudevice don't need to import kernel directly.
type KernelLaunch struct {
	Kernel       any // *kernel.Kernel
	WorkDim      int
	GlobalOffset [3]int64
	GlobalSize   [3]int64
	LocalSize    [3]int64 // zero entries mean "let the engine choose"
}

// NativeKernelArg describes one relocation in a native kernel's flat
// argument buffer: at Offset bytes into Args, a MemObject pointer must
// be substituted in before invocation.
type NativeKernelArg struct {
	Offset int
	Object *memobj.MemObject
}

// NativeKernel carries the payload for a native kernel event.
type NativeKernel struct {
	Func        func(args []byte) error
	Args        []byte
	Relocations []NativeKernelArg
}
