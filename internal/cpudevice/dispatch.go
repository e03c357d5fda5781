package cpudevice

import (
	"fmt"

	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/kernel"
	"github.com/cloverproject/clovercore/internal/memobj"
)

// dispatch executes e's device-side work and returns the error (if
// any) that should collapse its status. Kernel events are handled separately by stepKernel,
// since they are claimed work-group by work-group rather than run to
// completion in one call.
func (d *Device) dispatch(e *event.Event) error {
	switch e.Type {
	case event.TypeReadBuffer, event.TypeWriteBuffer:
		return d.execBufferTransfer(e)
	case event.TypeCopyBuffer:
		return d.execCopyBuffer(e)
	case event.TypeReadBufferRect, event.TypeWriteBufferRect, event.TypeCopyBufferRect:
		return d.execRectTransfer(e)
	case event.TypeReadImage, event.TypeWriteImage:
		return d.execImageRect(e)
	case event.TypeCopyImage:
		return d.execCopyImage(e)
	case event.TypeMapBuffer, event.TypeUnmapMemObject:
		// All preparation happened in InitEventData at enqueue time.
		return nil
	case event.TypeNativeKernel:
		return d.execNativeKernel(e)
	default:
		return fmt.Errorf("cpudevice: event type %v has no device dispatch", e.Type)
	}
}

// execBufferTransfer is the single-memcpy read/write buffer dispatch.
func (d *Device) execBufferTransfer(e *event.Event) error {
	bt := e.Payload.(*event.BufferTransfer)
	if err := bt.Buffer.Allocate(d); err != nil {
		return &ResourceError{Msg: err.Error()}
	}
	if e.Type == event.TypeReadBuffer {
		return bt.Buffer.ReadAt(d, bt.HostPtr, bt.Offset)
	}
	return bt.Buffer.WriteAt(d, bt.HostPtr, bt.Offset)
}

// execCopyBuffer implements copy-buffer as the zero-pitch-difference
// special case of rectCopy: a single "row" spanning
// the whole transfer, through the same increment-vector-driven walk
// buffer-rect uses.
func (d *Device) execCopyBuffer(e *event.Event) error {
	bt := e.Payload.(*event.BufferTransfer)
	if err := bt.Buffer.Allocate(d); err != nil {
		return &ResourceError{Msg: err.Error()}
	}
	if err := bt.Source.Allocate(d); err != nil {
		return &ResourceError{Msg: err.Error()}
	}
	return rectCopy(d, rectJob{
		dst:           bt.Buffer,
		src:           bt.Source,
		dstOrigin:     event.Origin3D{bt.Offset, 0, 0},
		srcOrigin:     event.Origin3D{bt.SourceOffset, 0, 0},
		region:        event.Region3D{bt.Size, 1, 1},
		dstRowPitch:   bt.Size,
		dstSlicePitch: bt.Size,
		srcRowPitch:   bt.Size,
		srcSlicePitch: bt.Size,
	})
}

// execRectTransfer is the buffer-rect dispatch: a nested two-axis
// walk, one row-copy per iteration, over host and
// device pitches.
func (d *Device) execRectTransfer(e *event.Event) error {
	rt := e.Payload.(*event.RectTransfer)
	if err := rt.Buffer.Allocate(d); err != nil {
		return &ResourceError{Msg: err.Error()}
	}
	if rt.Source != nil {
		if err := rt.Source.Allocate(d); err != nil {
			return &ResourceError{Msg: err.Error()}
		}
		return rectCopy(d, rectJob{
			dst: rt.Buffer, src: rt.Source,
			dstOrigin: rt.BufferOrigin, srcOrigin: rt.HostOrigin, region: rt.Region,
			dstRowPitch: rt.BufferRowPitch, dstSlicePitch: rt.BufferSlicePitch,
			srcRowPitch: rt.HostRowPitch, srcSlicePitch: rt.HostSlicePitch,
		})
	}
	return rectCopy(d, rectJob{
		dst: rt.Buffer, host: rt.HostPtr, toHost: rt.ToHost,
		dstOrigin: rt.BufferOrigin, hostOrigin: rt.HostOrigin, region: rt.Region,
		dstRowPitch: rt.BufferRowPitch, dstSlicePitch: rt.BufferSlicePitch,
		srcRowPitch: rt.HostRowPitch, srcSlicePitch: rt.HostSlicePitch,
	})
}

// execImageRect implements read/write image as a buffer-rect transfer
// against the image's backing arena, since pixel codecs and sampler
// address-mode math are out of scope for this runtime —
// only the row/slice pitch arithmetic is exercised.
func (d *Device) execImageRect(e *event.Event) error {
	return d.execRectTransfer(e)
}

// execCopyImage implements copy-image as a device-to-device rect
// transfer, walking the payload's origins and pitches.
func (d *Device) execCopyImage(e *event.Event) error {
	return d.execRectTransfer(e)
}

// execNativeKernel applies mem-object pointer relocations into the
// flat argument buffer, then invokes the supplied function pointer.
func (d *Device) execNativeKernel(e *event.Event) error {
	nk := e.Payload.(*event.NativeKernel)
	args := append([]byte(nil), nk.Args...)
	for _, r := range nk.Relocations {
		if err := r.Object.Allocate(d); err != nil {
			return &ResourceError{Msg: err.Error()}
		}
		ptr, err := r.Object.DevicePointer(d, 0)
		if err != nil {
			return err
		}
		if r.Offset < 0 || r.Offset+int(ptrSize) > len(args) {
			return fmt.Errorf("cpudevice: native kernel relocation offset %d out of range", r.Offset)
		}
		putPointer(args[r.Offset:], ptr)
	}
	return nk.Func(args)
}

// rectJob describes one rectCopy invocation: either a buffer/image
// (dst) paired with another buffer/image (src, device-to-device) or
// with a host byte slice (host, toHost selecting direction).
type rectJob struct {
	dst, src *memobj.MemObject
	host     []byte
	toHost   bool

	dstOrigin, srcOrigin, hostOrigin event.Origin3D
	region                           event.Region3D
	dstRowPitch, dstSlicePitch       int64
	srcRowPitch, srcSlicePitch       int64
}

// rectCopy is the shared rect-transfer primitive: the same
// increment-vector walk the work-group engine uses to step local ids,
// reused for rect/buffer-rect/copy transfers. Row (axis 0) is the
// contiguous copy
// unit; axes 1 and 2 are walked by incrementing a [3]int64 vector whose
// axis-0 bound is pinned to 1, so every call advances exactly one row.
func rectCopy(d *Device, j rectJob) error {
	rowBytes := j.region[0]
	if rowBytes == 0 {
		return nil
	}
	bound := [3]int64{1, j.region[1], j.region[2]}
	if bound[1] == 0 {
		bound[1] = 1
	}
	if bound[2] == 0 {
		bound[2] = 1
	}
	row := make([]byte, rowBytes)
	vec := [3]int64{}
	for {
		dstOff := j.dstOrigin[0] + (j.dstOrigin[1]+vec[1])*j.dstRowPitch + (j.dstOrigin[2]+vec[2])*j.dstSlicePitch

		switch {
		case j.src != nil:
			srcOff := j.srcOrigin[0] + (j.srcOrigin[1]+vec[1])*j.srcRowPitch + (j.srcOrigin[2]+vec[2])*j.srcSlicePitch
			if err := j.src.ReadAt(d, row, srcOff); err != nil {
				return err
			}
			if err := j.dst.WriteAt(d, row, dstOff); err != nil {
				return err
			}
		case j.toHost:
			hostOff := j.hostOrigin[0] + (j.hostOrigin[1]+vec[1])*j.srcRowPitch + (j.hostOrigin[2]+vec[2])*j.srcSlicePitch
			if err := j.dst.ReadAt(d, row, dstOff); err != nil {
				return err
			}
			copy(j.host[hostOff:hostOff+rowBytes], row)
		default:
			hostOff := j.hostOrigin[0] + (j.hostOrigin[1]+vec[1])*j.srcRowPitch + (j.hostOrigin[2]+vec[2])*j.srcSlicePitch
			copy(row, j.host[hostOff:hostOff+rowBytes])
			if err := j.dst.WriteAt(d, row, dstOff); err != nil {
				return err
			}
		}

		if kernel.IncrementVector(&vec, bound) {
			return nil
		}
	}
}
