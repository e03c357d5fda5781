//go:build integration
// +build integration

package integration

import (
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	clover "github.com/cloverproject/clovercore"
)

// End-to-end scenarios driving the full pipeline: host API -> queue
// readiness scan -> device worker pool -> dispatch -> completion.

func newContext(t *testing.T) *clover.Context {
	t.Helper()
	ctx, err := clover.NewContext(clover.DefaultParams(), nil)
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func requireOrdered(t *testing.T, label string, earlier, later time.Time) {
	t.Helper()
	require.False(t, later.Before(earlier), "%s: %v should not precede %v", label, later, earlier)
}

// Scenario: buffered write then map-read on an in-order profiling
// queue, with the write gated on a user event.
func TestWriteThenMapReadInOrderProfiled(t *testing.T) {
	ctx := newContext(t)
	q, err := ctx.CreateQueue(clover.Properties{Profiling: true})
	require.NoError(t, err)
	defer q.Release()

	buf, err := ctx.CreateBufferFrom([]byte("Original conte"), clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(buf)

	gate := ctx.NewUserEvent()
	defer clover.ReleaseEvent(gate)

	w, err := q.EnqueueWriteBuffer(buf, 0, []byte("Modified conte"), []*clover.Event{gate})
	require.NoError(t, err)

	m, err := q.EnqueueMapBuffer(buf, 0, 14, false, []*clover.Event{w})
	require.NoError(t, err)

	// Nothing can advance before the user event completes.
	require.Equal(t, clover.StatusQueued, w.Status())
	gate.SetStatus(clover.StatusComplete)

	require.NoError(t, clover.WaitForEvents(m))
	view, err := clover.MappedPointer(m)
	require.NoError(t, err)
	require.Equal(t, "Modified conte", string(view))

	p := clover.EventProfiling(w)
	requireOrdered(t, "queued<=submit", p.Queued, p.Submitted)
	requireOrdered(t, "submit<=start", p.Submitted, p.Started)
	requireOrdered(t, "start<=end", p.Started, p.Ended)

	_, err = q.EnqueueUnmap(buf, []*clover.Event{m})
	require.NoError(t, err)
	q.Finish()
}

// Scenario: out-of-order queue with an explicit wait-list joining two
// independent writes.
func TestOutOfOrderWaitList(t *testing.T) {
	ctx := newContext(t)
	q, err := ctx.CreateQueue(clover.Properties{OutOfOrder: true, Profiling: true})
	require.NoError(t, err)
	defer q.Release()

	buf, err := ctx.CreateBuffer(10, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(buf)

	e1, err := q.EnqueueWriteBuffer(buf, 0, []byte("AAAAA"), nil)
	require.NoError(t, err)
	e2, err := q.EnqueueWriteBuffer(buf, 5, []byte("BBBBB"), nil)
	require.NoError(t, err)

	out := make([]byte, 10)
	e3, err := q.EnqueueReadBuffer(buf, 0, out, []*clover.Event{e1, e2})
	require.NoError(t, err)

	require.NoError(t, clover.WaitForEvents(e3))
	require.Equal(t, "AAAAABBBBB", string(out))

	p1, p2, p3 := clover.EventProfiling(e1), clover.EventProfiling(e2), clover.EventProfiling(e3)
	requireOrdered(t, "e3 after e1", p1.Ended, p3.Started)
	requireOrdered(t, "e3 after e2", p2.Ended, p3.Started)
	q.Finish()
}

// Scenario: a barrier not at the head blocks everything behind it on
// an in-order queue.
func TestBarrierDiscipline(t *testing.T) {
	ctx := newContext(t)
	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	buf, err := ctx.CreateBuffer(4, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(buf)

	gate := ctx.NewUserEvent()
	defer clover.ReleaseEvent(gate)

	w1, err := q.EnqueueWriteBuffer(buf, 0, []byte("1111"), []*clover.Event{gate})
	require.NoError(t, err)
	bar, err := q.EnqueueBarrier()
	require.NoError(t, err)
	w2, err := q.EnqueueWriteBuffer(buf, 0, []byte("2222"), nil)
	require.NoError(t, err)

	// While w1 is blocked, neither the barrier nor w2 may advance.
	require.Equal(t, clover.StatusQueued, bar.Status())
	require.Equal(t, clover.StatusQueued, w2.Status())

	gate.SetStatus(clover.StatusComplete)
	require.NoError(t, clover.WaitForEvents(w1, bar, w2))
	q.Finish()

	out := make([]byte, 4)
	r, err := q.EnqueueReadBuffer(buf, 0, out, nil)
	require.NoError(t, err)
	require.NoError(t, clover.WaitForEvents(r))
	require.Equal(t, "2222", string(out))
	q.Finish()
}

func bitInvert(size int) (func([]byte) error, []byte) {
	fn := func(args []byte) error {
		p := *(*uintptr)(unsafe.Pointer(&args[0]))
		data := unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
		for i := range data {
			data[i] = ^data[i]
		}
		return nil
	}
	return fn, make([]byte, unsafe.Sizeof(uintptr(0)))
}

// Scenario: two native-kernel events each bit-inverting a distinct
// buffer.
func TestNativeKernelInvertsTwoBuffers(t *testing.T) {
	ctx := newContext(t)
	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	bufA, err := ctx.CreateBufferFrom([]byte{0x00, 0x0F, 0xF0, 0xFF}, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(bufA)
	bufB, err := ctx.CreateBufferFrom([]byte{0xAA, 0x55, 0xAA, 0x55}, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(bufB)

	fnA, argsA := bitInvert(4)
	eA, err := q.EnqueueNativeKernel(fnA, argsA, []clover.NativeArg{{Offset: 0, Object: bufA}}, nil)
	require.NoError(t, err)

	fnB, argsB := bitInvert(4)
	eB, err := q.EnqueueNativeKernel(fnB, argsB, []clover.NativeArg{{Offset: 0, Object: bufB}}, nil)
	require.NoError(t, err)

	require.NoError(t, clover.WaitForEvents(eA, eB))

	outA, outB := make([]byte, 4), make([]byte, 4)
	rA, err := q.EnqueueReadBuffer(bufA, 0, outA, nil)
	require.NoError(t, err)
	rB, err := q.EnqueueReadBuffer(bufB, 0, outB, nil)
	require.NoError(t, err)
	require.NoError(t, clover.WaitForEvents(rA, rB))

	require.Equal(t, []byte{0xFF, 0xF0, 0x0F, 0x00}, outA)
	require.Equal(t, []byte{0x55, 0xAA, 0x55, 0xAA}, outB)
	q.Finish()
}

// Scenario: a 4x4 kernel in 2x2 work-groups marks every work-item,
// barriers, then sums its group's marks; every output cell must see
// the whole group.
func TestWorkGroupBarrierKernel(t *testing.T) {
	ctx := newContext(t)
	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	marks, err := ctx.CreateBuffer(16*4, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(marks)
	out, err := ctx.CreateBuffer(16*4, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(out)

	prog := ctx.NewNativeProgram(map[string]clover.KernelFunc{
		"mark_and_sum": func(item *clover.WorkItem, args []any) {
			markSlots := unsafe.Slice((*int32)(args[0].(unsafe.Pointer)), 16)
			outSlots := unsafe.Slice((*int32)(args[1].(unsafe.Pointer)), 16)

			gx, gy := item.GlobalID(0), item.GlobalID(1)
			idx := gy*4 + gx
			markSlots[idx] = 1

			item.Barrier()

			ox, oy := gx-item.LocalID(0), gy-item.LocalID(1)
			var sum int32
			for dy := int64(0); dy < 2; dy++ {
				for dx := int64(0); dx < 2; dx++ {
					sum += markSlots[(oy+dy)*4+(ox+dx)]
				}
			}
			outSlots[idx] = sum
		},
	})
	defer clover.ReleaseProgram(prog)

	k, err := prog.CreateKernel("mark_and_sum", 2)
	require.NoError(t, err)
	defer clover.ReleaseKernel(k)
	require.NoError(t, k.SetArg(0, clover.Arg{Kind: clover.ArgBuffer, Buffer: marks}))
	require.NoError(t, k.SetArg(1, clover.Arg{Kind: clover.ArgBuffer, Buffer: out}))

	e, err := q.EnqueueNDRangeKernel(k, 2,
		[3]int64{}, [3]int64{4, 4, 1}, [3]int64{2, 2, 1}, nil)
	require.NoError(t, err)

	var completions atomic.Int32
	e.AddCallback(clover.StatusComplete, func(_ *clover.Event, st clover.Status, _ any) {
		completions.Add(1)
	}, nil)

	require.NoError(t, clover.WaitForEvents(e))
	q.Finish()

	m, err := q.EnqueueMapBuffer(out, 0, 16*4, false, nil)
	require.NoError(t, err)
	require.NoError(t, clover.WaitForEvents(m))
	view, err := clover.MappedPointer(m)
	require.NoError(t, err)
	cells := unsafe.Slice((*int32)(unsafe.Pointer(&view[0])), 16)
	for i, cell := range cells {
		require.EqualValues(t, 4, cell, "output cell %d", i)
	}

	require.EqualValues(t, 1, completions.Load(), "kernel event must complete exactly once")

	snap := ctx.Metrics().Snapshot()
	require.EqualValues(t, 1, snap.KernelLaunches)
	require.EqualValues(t, 4, snap.WorkGroupsTotal)
	require.EqualValues(t, 4, snap.WorkGroupsDone, "finished-work-group count must equal the launch total")
	q.Finish()
}

// Scenario: a queue released while an event it parents is inflight
// survives until the event is swept and the host releases its event
// handle, then the stale queue handle fails the liveness check.
func TestQueueRefcountAndLiveSet(t *testing.T) {
	ctx := newContext(t)
	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)

	buf, err := ctx.CreateBuffer(4, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(buf)

	gate := ctx.NewUserEvent()
	defer clover.ReleaseEvent(gate)

	w, err := q.EnqueueWriteBuffer(buf, 0, []byte("abcd"), []*clover.Event{gate})
	require.NoError(t, err)

	// Host drops its reference while the event is still inflight; the
	// event's parent retention keeps the queue alive.
	q.Release()
	require.True(t, q.IsLive())

	gate.SetStatus(clover.StatusComplete)
	require.NoError(t, clover.WaitForEvents(w))
	q.Finish()

	// The host's event handle still pins the parent chain.
	require.True(t, q.IsLive())
	clover.ReleaseEvent(w)
	require.False(t, q.IsLive(), "stale queue handle must fail the liveness check once its last event is destroyed")
}
