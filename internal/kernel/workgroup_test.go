package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustLaunch(t *testing.T, workDim int, global, local [3]int64) *Launch {
	t.Helper()
	l, err := NewLaunch(workDim, [3]int64{}, global, local, 4)
	require.NoError(t, err)
	return l
}

type step struct {
	phase string
	id    [3]int64
}

func TestGroupRunsEveryWorkItemWithoutBarrier(t *testing.T) {
	l := mustLaunch(t, 2, [3]int64{2, 2, 0}, [3]int64{2, 2, 0})
	g := newGroup(l, [3]int64{})

	var ran [][3]int64
	fn := func(ctx *WorkItemContext, _ []any) {
		ran = append(ran, [3]int64{ctx.LocalID(0), ctx.LocalID(1), ctx.LocalID(2)})
	}
	g.run(fn, nil)

	require.Len(t, ran, 4)
	require.False(t, g.hadBarrier)
	require.Equal(t, [3]int64{0, 0, 0}, ran[0])
	require.Equal(t, [3]int64{1, 1, 0}, ran[3])
}

func TestBarrierOrderingAllReachBeforeAnyPasses(t *testing.T) {
	l := mustLaunch(t, 2, [3]int64{2, 2, 0}, [3]int64{2, 2, 0})
	g := newGroup(l, [3]int64{})

	var steps []step
	fn := func(ctx *WorkItemContext, _ []any) {
		id := [3]int64{ctx.LocalID(0), ctx.LocalID(1), ctx.LocalID(2)}
		steps = append(steps, step{"before", id})
		ctx.Barrier()
		steps = append(steps, step{"after", id})
	}
	g.run(fn, nil)

	require.Len(t, steps, 8)
	require.True(t, g.hadBarrier)
	for i := 0; i < 4; i++ {
		require.Equal(t, "before", steps[i].phase, "step %d: every work-item reaches the barrier before any passes it", i)
	}
	for i := 4; i < 8; i++ {
		require.Equal(t, "after", steps[i].phase, "step %d", i)
	}
}

func TestMultipleBarriers(t *testing.T) {
	l := mustLaunch(t, 1, [3]int64{3, 0, 0}, [3]int64{3, 0, 0})
	g := newGroup(l, [3]int64{})

	var phases []string
	fn := func(ctx *WorkItemContext, _ []any) {
		phases = append(phases, "a")
		ctx.Barrier()
		phases = append(phases, "b")
		ctx.Barrier()
		phases = append(phases, "c")
	}
	g.run(fn, nil)

	require.Len(t, phases, 9)
	require.Equal(t, []string{"a", "a", "a", "b", "b", "b", "c", "c", "c"}, phases)
}

func TestBarrierCommunicatesThroughSharedSlots(t *testing.T) {
	l := mustLaunch(t, 2, [3]int64{2, 2, 0}, [3]int64{2, 2, 0})
	g := newGroup(l, [3]int64{})

	marks := make([]int32, 4)
	sums := make([]int32, 4)
	fn := func(ctx *WorkItemContext, _ []any) {
		idx := ctx.LocalID(1)*2 + ctx.LocalID(0)
		marks[idx] = 1
		ctx.Barrier()
		var sum int32
		for _, m := range marks {
			sum += m
		}
		sums[idx] = sum
	}
	g.run(fn, nil)

	for i, s := range sums {
		require.EqualValues(t, 4, s, "slot %d must see every mark from before the barrier", i)
	}
}

func TestWorkItemIDs(t *testing.T) {
	l, err := NewLaunch(2, [3]int64{100, 200, 0}, [3]int64{4, 4, 0}, [3]int64{2, 2, 0}, 4)
	require.NoError(t, err)
	g := newGroup(l, [3]int64{1, 0, 0})

	var gids [][2]int64
	fn := func(ctx *WorkItemContext, _ []any) {
		gids = append(gids, [2]int64{ctx.GlobalID(0), ctx.GlobalID(1)})
		require.EqualValues(t, 1, ctx.GroupIndex(0))
		require.EqualValues(t, 0, ctx.GroupIndex(1))
		require.Zero(t, ctx.GlobalID(5), "out-of-range axis reads as zero")
	}
	g.run(fn, nil)

	require.Equal(t, [2]int64{102, 200}, gids[0], "global id includes the launch offset")
	require.Equal(t, [2]int64{103, 201}, gids[3])
}

func TestEmptyGroupIsANoOp(t *testing.T) {
	g := &Group{Local: [3]int64{0, 1, 1}, dim: 1}
	called := false
	g.run(func(*WorkItemContext, []any) { called = true }, nil)
	require.False(t, called)
}

func TestNativeJITResolvesClosures(t *testing.T) {
	var jit NativeJIT

	fn, err := jit.AddressOf(KernelFunc(func(*WorkItemContext, []any) {}))
	require.NoError(t, err)
	require.NotNil(t, fn)

	_, err = jit.AddressOf("not a kernel")
	require.Error(t, err)
}
