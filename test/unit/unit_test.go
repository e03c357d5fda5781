//go:build !integration
// +build !integration

package unit

import (
	"testing"

	"github.com/stretchr/testify/require"

	clover "github.com/cloverproject/clovercore"
)

// These tests exercise the host-facing API surface without driving
// full device concurrency; the end-to-end scenarios live in
// test/integration.

func newContext(t *testing.T) *clover.Context {
	t.Helper()
	ctx, err := clover.NewContext(clover.DefaultParams(), nil)
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func TestDefaultParams(t *testing.T) {
	params := clover.DefaultParams()

	require.Zero(t, params.Workers, "default worker count should auto-detect from CPUs")
	require.Nil(t, params.Compiler)
	require.Nil(t, params.JIT)
}

func TestDeviceInfo(t *testing.T) {
	ctx := newContext(t)
	info := ctx.Device().Info()

	require.Positive(t, info.MaxWorkGroupSize)
	require.Equal(t, 3, info.MaxWorkItemDimensions)
	require.Positive(t, info.BaseAddressAlignBytes)
	require.Positive(t, info.ComputeUnits)
	require.Positive(t, info.ProfilingTimerResNs)
}

func TestErrorTypes(t *testing.T) {
	var _ error = clover.NewError("op", clover.ErrCodeResource, "msg")

	err := clover.NewError("CreateBuffer", clover.ErrCodeArgumentValidation, "size must be positive")
	require.Equal(t, "clover: size must be positive (op=CreateBuffer)", err.Error())
	require.True(t, clover.IsCode(err, clover.ErrCodeArgumentValidation))
}

func TestUserEventLifecycle(t *testing.T) {
	ctx := newContext(t)

	u := ctx.NewUserEvent()
	require.Equal(t, clover.StatusQueued, u.Status())
	require.True(t, clover.EventIsLive(u))

	u.SetStatus(clover.StatusComplete)
	require.Equal(t, clover.StatusComplete, u.Status())

	clover.ReleaseEvent(u)
	require.False(t, clover.EventIsLive(u), "a released handle must fail the liveness check")
}

func TestUserEventErrorCollapse(t *testing.T) {
	ctx := newContext(t)

	u := ctx.NewUserEvent()
	defer clover.ReleaseEvent(u)

	u.SetStatus(clover.StatusExecutionFailure)
	require.Equal(t, clover.StatusExecutionFailure, u.Status())

	// A collapsed status never advances again.
	u.SetStatus(clover.StatusComplete)
	require.Equal(t, clover.StatusExecutionFailure, u.Status())

	err := clover.WaitForEvents(u)
	require.True(t, clover.IsCode(err, clover.ErrCodeExecutionFailure))
}

func TestCallbacksFireInOrder(t *testing.T) {
	ctx := newContext(t)

	u := ctx.NewUserEvent()
	defer clover.ReleaseEvent(u)

	var order []int
	u.AddCallback(clover.StatusComplete, func(e *clover.Event, st clover.Status, userData any) {
		order = append(order, userData.(int))
	}, 1)
	u.AddCallback(clover.StatusComplete, func(e *clover.Event, st clover.Status, userData any) {
		order = append(order, userData.(int))
	}, 2)

	u.SetStatus(clover.StatusComplete)
	require.Equal(t, []int{1, 2}, order, "completion callbacks fire in registration order")

	// Late registration fires immediately.
	u.AddCallback(clover.StatusComplete, func(e *clover.Event, st clover.Status, userData any) {
		order = append(order, userData.(int))
	}, 3)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestMarkerCompletesWithoutDeviceWork(t *testing.T) {
	ctx := newContext(t)

	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	m, err := q.EnqueueMarker(nil)
	require.NoError(t, err)

	require.NoError(t, clover.WaitForEvents(m))
	require.Zero(t, ctx.Device().PendingEvents(), "a dummy event must never reach the device FIFO")
	q.Finish()
}

func TestFlushAndFinishOnEmptyQueue(t *testing.T) {
	ctx := newContext(t)

	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	// Both must return immediately on an idle queue.
	q.Flush()
	q.Finish()
	require.Zero(t, q.Pending())
}

func TestWaitListRejectsFailedEntry(t *testing.T) {
	ctx := newContext(t)

	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	failed := ctx.NewUserEvent()
	defer clover.ReleaseEvent(failed)
	failed.SetStatus(clover.StatusExecutionFailure)

	buf, err := ctx.CreateBuffer(4, clover.Flags{ReadWrite: true})
	require.NoError(t, err)
	defer clover.ReleaseMemObject(buf)

	_, err = q.EnqueueWriteBuffer(buf, 0, []byte("abcd"), []*clover.Event{failed})
	require.True(t, clover.IsCode(err, clover.ErrCodeArgumentValidation))
}

func TestEnqueueWaitForEventsNeedsAList(t *testing.T) {
	ctx := newContext(t)

	q, err := ctx.CreateQueue(clover.Properties{})
	require.NoError(t, err)
	defer q.Release()

	_, err = q.EnqueueWaitForEvents(nil)
	require.True(t, clover.IsCode(err, clover.ErrCodeArgumentValidation))
}
