package clover

import (
	"errors"
	"time"

	"github.com/cloverproject/clovercore/internal/cpudevice"
	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/memobj"
	"github.com/cloverproject/clovercore/internal/object"
	"github.com/cloverproject/clovercore/internal/queue"
)

// Origin and Region describe a 3D sub-region for rect transfers, in
// (x, y, z) order with x in bytes.
type (
	Origin = event.Origin3D
	Region = event.Region3D
)

// NativeArg describes one mem-object relocation inside a native
// kernel's flat argument buffer.
type NativeArg = event.NativeKernelArg

// Queue is the host-facing handle for one command queue bound to the
// context's device.
type Queue struct {
	cq  *queue.CommandQueue
	ctx *Context
	dev *Device
}

// Retain increments the queue's reference count.
func (q *Queue) Retain() { object.Retain(&q.cq.Obj) }

// Release decrements the queue's reference count. The queue object
// survives its last host release for as long as inflight events still
// retain it.
func (q *Queue) Release() { object.Release(&q.cq.Obj) }

// IsLive reports whether the queue object is still live.
func (q *Queue) IsLive() bool { return object.IsA(&q.cq.Obj, object.KindQueue) }

// Flush waits until every enqueued event has at least been handed to
// the device.
func (q *Queue) Flush() { q.cq.Flush() }

// Finish waits until every enqueued event has completed and been
// swept.
func (q *Queue) Finish() { q.cq.Finish() }

// Pending reports the number of live events on the queue.
func (q *Queue) Pending() int { return q.cq.Len() }

func (q *Queue) enqueue(op string, typ EventType, payload any, waitList []*Event) (*Event, error) {
	e, err := event.New(typ, waitList)
	if err != nil {
		return nil, WrapError(op, ErrCodeArgumentValidation, err)
	}
	e.Payload = payload
	if err := q.cq.Enqueue(e, func() error { return q.dev.pool.InitEventData(e) }); err != nil {
		ReleaseEvent(e)
		code := ErrCodeArgumentValidation
		var re *cpudevice.ResourceError
		if errors.As(err, &re) {
			code = ErrCodeResource
		}
		return nil, WrapError(op, code, err)
	}
	q.ctx.observer.ObserveQueueDepth(q.cq.Len())
	return e, nil
}

// checkTransferArgs validates the common buffer-transfer preconditions
// and runs the bind-time sub-buffer alignment check against the
// queue's device.
func (q *Queue) checkTransferArgs(op string, buf *MemObject, offset, size int64) error {
	if buf == nil || !object.IsA(&buf.Obj, object.KindMemObject) {
		return NewError(op, ErrCodeInvalidObject, "buffer is not a live memory object")
	}
	if offset < 0 || size < 0 || offset+size > buf.ByteSize() {
		return NewError(op, ErrCodeArgumentValidation, "transfer range out of buffer bounds")
	}
	if err := buf.CheckSubBufferAlignment(q.dev.info); err != nil {
		return WrapError(op, ErrCodeAlignment, err)
	}
	return nil
}

// EnqueueWriteBuffer enqueues a host-to-device write of data into buf
// at offset.
func (q *Queue) EnqueueWriteBuffer(buf *MemObject, offset int64, data []byte, waitList []*Event) (*Event, error) {
	const op = "EnqueueWriteBuffer"
	if err := q.checkTransferArgs(op, buf, offset, int64(len(data))); err != nil {
		return nil, err
	}
	return q.enqueue(op, event.TypeWriteBuffer, &event.BufferTransfer{
		Buffer:  buf,
		Offset:  offset,
		Size:    int64(len(data)),
		HostPtr: data,
	}, waitList)
}

// EnqueueReadBuffer enqueues a device-to-host read from buf at offset
// into dst.
func (q *Queue) EnqueueReadBuffer(buf *MemObject, offset int64, dst []byte, waitList []*Event) (*Event, error) {
	const op = "EnqueueReadBuffer"
	if err := q.checkTransferArgs(op, buf, offset, int64(len(dst))); err != nil {
		return nil, err
	}
	return q.enqueue(op, event.TypeReadBuffer, &event.BufferTransfer{
		Buffer:  buf,
		Offset:  offset,
		Size:    int64(len(dst)),
		HostPtr: dst,
	}, waitList)
}

// EnqueueCopyBuffer enqueues a device-side copy of size bytes from src
// at srcOffset into dst at dstOffset.
func (q *Queue) EnqueueCopyBuffer(dst, src *MemObject, dstOffset, srcOffset, size int64, waitList []*Event) (*Event, error) {
	const op = "EnqueueCopyBuffer"
	if err := q.checkTransferArgs(op, dst, dstOffset, size); err != nil {
		return nil, err
	}
	if err := q.checkTransferArgs(op, src, srcOffset, size); err != nil {
		return nil, err
	}
	return q.enqueue(op, event.TypeCopyBuffer, &event.BufferTransfer{
		Buffer:       dst,
		Offset:       dstOffset,
		Size:         size,
		Source:       src,
		SourceOffset: srcOffset,
	}, waitList)
}

// RectArgs carries the shared parameters of the rect-transfer family.
// Zero pitches default to tightly-packed: row pitch Region[0], slice
// pitch rowPitch*Region[1].
type RectArgs struct {
	BufferOrigin Origin
	HostOrigin   Origin
	Region       Region

	BufferRowPitch   int64
	BufferSlicePitch int64
	HostRowPitch     int64
	HostSlicePitch   int64
}

func (r *RectArgs) applyDefaults() {
	if r.BufferRowPitch == 0 {
		r.BufferRowPitch = r.Region[0]
	}
	if r.BufferSlicePitch == 0 {
		r.BufferSlicePitch = r.BufferRowPitch * max64(r.Region[1], 1)
	}
	if r.HostRowPitch == 0 {
		r.HostRowPitch = r.Region[0]
	}
	if r.HostSlicePitch == 0 {
		r.HostSlicePitch = r.HostRowPitch * max64(r.Region[1], 1)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (q *Queue) enqueueRect(op string, typ EventType, buf, src *MemObject, host []byte, toHost bool, args RectArgs, waitList []*Event) (*Event, error) {
	args.applyDefaults()
	if args.Region[0] <= 0 {
		return nil, NewError(op, ErrCodeArgumentValidation, "rect region must span at least one byte per row")
	}
	lastByte := args.BufferOrigin[0] + args.Region[0] +
		(args.BufferOrigin[1]+max64(args.Region[1], 1)-1)*args.BufferRowPitch +
		(args.BufferOrigin[2]+max64(args.Region[2], 1)-1)*args.BufferSlicePitch
	if err := q.checkTransferArgs(op, buf, 0, 0); err != nil {
		return nil, err
	}
	if lastByte > buf.ByteSize() {
		return nil, NewError(op, ErrCodeArgumentValidation, "rect region out of buffer bounds")
	}
	return q.enqueue(op, typ, &event.RectTransfer{
		Buffer:           buf,
		Source:           src,
		HostPtr:          host,
		BufferOrigin:     args.BufferOrigin,
		HostOrigin:       args.HostOrigin,
		Region:           args.Region,
		BufferRowPitch:   args.BufferRowPitch,
		BufferSlicePitch: args.BufferSlicePitch,
		HostRowPitch:     args.HostRowPitch,
		HostSlicePitch:   args.HostSlicePitch,
		ToHost:           toHost,
	}, waitList)
}

// EnqueueWriteBufferRect enqueues a rectangular host-to-device write.
func (q *Queue) EnqueueWriteBufferRect(buf *MemObject, host []byte, args RectArgs, waitList []*Event) (*Event, error) {
	return q.enqueueRect("EnqueueWriteBufferRect", event.TypeWriteBufferRect, buf, nil, host, false, args, waitList)
}

// EnqueueReadBufferRect enqueues a rectangular device-to-host read.
func (q *Queue) EnqueueReadBufferRect(buf *MemObject, host []byte, args RectArgs, waitList []*Event) (*Event, error) {
	return q.enqueueRect("EnqueueReadBufferRect", event.TypeReadBufferRect, buf, nil, host, true, args, waitList)
}

// EnqueueCopyBufferRect enqueues a rectangular device-side copy. The
// HostOrigin/HostRowPitch/HostSlicePitch fields of args describe the
// source buffer.
func (q *Queue) EnqueueCopyBufferRect(dst, src *MemObject, args RectArgs, waitList []*Event) (*Event, error) {
	const op = "EnqueueCopyBufferRect"
	if err := q.checkTransferArgs(op, src, 0, 0); err != nil {
		return nil, err
	}
	return q.enqueueRect(op, event.TypeCopyBufferRect, dst, src, nil, false, args, waitList)
}

// EnqueueWriteImage enqueues a rectangular host-to-device image write;
// pitches default to the image's own row/slice pitch.
func (q *Queue) EnqueueWriteImage(img *MemObject, host []byte, args RectArgs, waitList []*Event) (*Event, error) {
	q.applyImagePitches(img, &args)
	return q.enqueueRect("EnqueueWriteImage", event.TypeWriteImage, img, nil, host, false, args, waitList)
}

// EnqueueReadImage enqueues a rectangular device-to-host image read.
func (q *Queue) EnqueueReadImage(img *MemObject, host []byte, args RectArgs, waitList []*Event) (*Event, error) {
	q.applyImagePitches(img, &args)
	return q.enqueueRect("EnqueueReadImage", event.TypeReadImage, img, nil, host, true, args, waitList)
}

// EnqueueCopyImage enqueues a device-side image copy.
func (q *Queue) EnqueueCopyImage(dst, src *MemObject, args RectArgs, waitList []*Event) (*Event, error) {
	const op = "EnqueueCopyImage"
	q.applyImagePitches(dst, &args)
	if err := q.checkTransferArgs(op, src, 0, 0); err != nil {
		return nil, err
	}
	return q.enqueueRect(op, event.TypeCopyImage, dst, src, nil, false, args, waitList)
}

func (q *Queue) applyImagePitches(img *MemObject, args *RectArgs) {
	if img == nil {
		return
	}
	if args.BufferRowPitch == 0 && img.RowPitch > 0 {
		args.BufferRowPitch = int64(img.RowPitch)
	}
	if args.BufferSlicePitch == 0 && img.SlicePitch > 0 {
		args.BufferSlicePitch = int64(img.SlicePitch)
	}
}

// EnqueueMapBuffer enqueues a map of [offset, offset+size) of buf. The
// mapped pointer is prepared at enqueue time and can be read with
// MappedPointer once the event completes.
func (q *Queue) EnqueueMapBuffer(buf *MemObject, offset, size int64, forWrite bool, waitList []*Event) (*Event, error) {
	const op = "EnqueueMapBuffer"
	if err := q.checkTransferArgs(op, buf, offset, size); err != nil {
		return nil, err
	}
	return q.enqueue(op, event.TypeMapBuffer, &event.MapUnmap{
		Buffer:   buf,
		Offset:   offset,
		Size:     size,
		ForWrite: forWrite,
	}, waitList)
}

// EnqueueUnmap enqueues the unmap of a previously mapped region.
func (q *Queue) EnqueueUnmap(buf *MemObject, waitList []*Event) (*Event, error) {
	const op = "EnqueueUnmap"
	if buf == nil || !object.IsA(&buf.Obj, object.KindMemObject) {
		return nil, NewError(op, ErrCodeInvalidObject, "buffer is not a live memory object")
	}
	return q.enqueue(op, event.TypeUnmapMemObject, &event.MapUnmap{
		Buffer: buf,
		Unmap:  true,
	}, waitList)
}

// MappedPointer returns the host view prepared for a completed
// map-buffer event.
func MappedPointer(e *Event) ([]byte, error) {
	mu, ok := e.Payload.(*event.MapUnmap)
	if !ok || mu.Unmap {
		return nil, NewError("MappedPointer", ErrCodeArgumentValidation, "event is not a map-buffer event")
	}
	return mu.MappedPtr, nil
}

// EnqueueNDRangeKernel enqueues an N-dimensional kernel launch. Axes
// of local left at zero let the engine derive a work-group size.
func (q *Queue) EnqueueNDRangeKernel(k *Kernel, workDim int, offset, global, local [3]int64, waitList []*Event) (*Event, error) {
	const op = "EnqueueNDRangeKernel"
	if k == nil || !object.IsA(&k.Obj, object.KindKernel) {
		return nil, NewError(op, ErrCodeInvalidObject, "kernel is not a live kernel object")
	}
	if !k.Ready() {
		return nil, NewError(op, ErrCodeArgumentValidation, "kernel has unset arguments")
	}
	if err := k.EachBufferArg(func(m *memobj.MemObject) error {
		return m.CheckSubBufferAlignment(q.dev.info)
	}); err != nil {
		return nil, WrapError(op, ErrCodeAlignment, err)
	}
	return q.enqueue(op, event.TypeNDRangeKernel, &event.KernelLaunch{
		Kernel:       k,
		WorkDim:      workDim,
		GlobalOffset: offset,
		GlobalSize:   global,
		LocalSize:    local,
	}, waitList)
}

// EnqueueTask enqueues a single-work-item kernel launch.
func (q *Queue) EnqueueTask(k *Kernel, waitList []*Event) (*Event, error) {
	const op = "EnqueueTask"
	if k == nil || !object.IsA(&k.Obj, object.KindKernel) {
		return nil, NewError(op, ErrCodeInvalidObject, "kernel is not a live kernel object")
	}
	if !k.Ready() {
		return nil, NewError(op, ErrCodeArgumentValidation, "kernel has unset arguments")
	}
	if err := k.EachBufferArg(func(m *memobj.MemObject) error {
		return m.CheckSubBufferAlignment(q.dev.info)
	}); err != nil {
		return nil, WrapError(op, ErrCodeAlignment, err)
	}
	return q.enqueue(op, event.TypeTaskKernel, &event.KernelLaunch{
		Kernel:     k,
		WorkDim:    1,
		GlobalSize: [3]int64{1, 1, 1},
		LocalSize:  [3]int64{1, 1, 1},
	}, waitList)
}

// EnqueueNativeKernel enqueues a host-function invocation over a flat
// argument buffer. Each relocation substitutes a mem-object's device
// pointer into the buffer before the call.
func (q *Queue) EnqueueNativeKernel(fn func(args []byte) error, args []byte, relocations []NativeArg, waitList []*Event) (*Event, error) {
	const op = "EnqueueNativeKernel"
	if fn == nil {
		return nil, NewError(op, ErrCodeArgumentValidation, "native kernel function must be non-nil")
	}
	for _, r := range relocations {
		if r.Object == nil || !object.IsA(&r.Object.Obj, object.KindMemObject) {
			return nil, NewError(op, ErrCodeInvalidObject, "relocation target is not a live memory object")
		}
		if err := r.Object.CheckSubBufferAlignment(q.dev.info); err != nil {
			return nil, WrapError(op, ErrCodeAlignment, err)
		}
	}
	return q.enqueue(op, event.TypeNativeKernel, &event.NativeKernel{
		Func:        fn,
		Args:        args,
		Relocations: relocations,
	}, waitList)
}

// EnqueueMarker enqueues a marker: a dummy event that completes once
// everything ahead of it has.
func (q *Queue) EnqueueMarker(waitList []*Event) (*Event, error) {
	return q.enqueue("EnqueueMarker", event.TypeMarker, nil, waitList)
}

// EnqueueBarrier enqueues a barrier: no event behind it may start
// until everything ahead of it has completed, even on an out-of-order
// queue.
func (q *Queue) EnqueueBarrier() (*Event, error) {
	return q.enqueue("EnqueueBarrier", event.TypeBarrier, nil, nil)
}

// EnqueueWaitForEvents enqueues a synchronization point that blocks
// the queue's readiness scan until every wait-list entry completes.
func (q *Queue) EnqueueWaitForEvents(waitList []*Event) (*Event, error) {
	const op = "EnqueueWaitForEvents"
	if len(waitList) == 0 {
		return nil, NewError(op, ErrCodeArgumentValidation, "wait list must be non-empty")
	}
	return q.enqueue(op, event.TypeWaitForEvents, nil, waitList)
}

// WaitForEvents blocks until every event reaches a terminal status and
// returns an error if any of them failed.
func WaitForEvents(events ...*Event) error {
	for _, e := range events {
		if e == nil {
			return NewError("WaitForEvents", ErrCodeArgumentValidation, "nil event in wait list")
		}
		if st := e.WaitForStatus(); st.IsError() {
			return StatusError("WaitForEvents", st)
		}
	}
	return nil
}

// Profiling carries an event's four timestamps. The values come from
// one monotonic clock, so their differences are exact nanosecond
// durations.
type Profiling struct {
	Queued    time.Time
	Submitted time.Time
	Started   time.Time
	Ended     time.Time
}

// EventProfiling returns the profiling timestamps recorded for e. The
// Queued/Submit/Start stamps are only populated when the owning queue
// was created with the profiling property. End is populated under the
// same condition, and additionally for every kernel event and for any
// event that fails.
func EventProfiling(e *Event) Profiling {
	return Profiling{
		Queued:    e.QueuedAt,
		Submitted: e.SubmittedAt,
		Started:   e.StartedAt,
		Ended:     e.EndedAt,
	}
}
