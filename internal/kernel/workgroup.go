package kernel

// Group is the per-work-group runtime object: its origin in the global index space, its local bounds, and
// (lazily, only once a barrier is actually hit) the cooperative
// contexts driving its work-items.
type Group struct {
	Index  [3]int64 // this group's position in the group-index space
	Origin [3]int64 // global-id of local-id (0,0,0) in this group
	Local  [3]int64
	dim    int

	hadBarrier bool
}

// newGroup computes a work-group's origin,
// group_index[d]*local_size[d] + global_offset[d] on each axis.
func newGroup(launch *Launch, index [3]int64) *Group {
	g := &Group{Index: index, Local: launch.LocalSize, dim: launch.WorkDim}
	for d := 0; d < 3; d++ {
		g.Origin[d] = index[d]*launch.LocalSize[d] + launch.GlobalOffset[d]
	}
	return g
}

func (g *Group) totalItems() int64 {
	total := int64(1)
	for d := 0; d < g.dim; d++ {
		total *= g.Local[d]
	}
	return total
}

// run drives one work-group's execution: run the first work-item on
// its own cooperative goroutine and wait for it; if it never calls
// Barrier, the kernel is assumed barrier-free for this group and every
// remaining work-item is run directly in the calling goroutine, with no
// further goroutines. Only if the first work-item actually yields at a
// barrier does run switch to the cooperative driver that keeps one
// parked goroutine per remaining work-item.
func (g *Group) run(fn KernelFunc, args []any) {
	if g.totalItems() == 0 {
		return
	}

	first := newCooperativeContext(g, [3]int64{})
	first.start(fn, args)
	<-first.toDriver // runs until it finishes or hits its first barrier

	if first.finished {
		// Fast path: no barrier. Run every remaining work-item directly
		// in this same goroutine; Barrier() degrades to a no-op here
		// since work-items never overlap in time on this path (see
		// WorkItemContext.Barrier).
		id := [3]int64{}
		for !IncrementVector(&id, g.Local) {
			fastCtx := &WorkItemContext{group: g, localID: id}
			fn(fastCtx, args)
		}
		return
	}

	g.hadBarrier = true
	g.runCooperative(fn, args, first)
}

// runCooperative is the barrier path: every remaining
// work-item gets its own parked goroutine. Each goroutine is run,
// round by round, until it reaches its next barrier or finishes; a
// round only moves on to resuming items past the barrier once every
// item in this round has reached it — establishing "once all
// work-items have reached the barrier, they are each resumed to
// continue past it" by simple serialization rather than true
// concurrency, which satisfies the required observable ordering
// without needing stackful fibers.
func (g *Group) runCooperative(fn KernelFunc, args []any, first *WorkItemContext) {
	items := make([]*WorkItemContext, 0, g.totalItems())
	items = append(items, first)

	id := [3]int64{}
	for !IncrementVector(&id, g.Local) {
		ctx := newCooperativeContext(g, id)
		ctx.start(fn, args)
		<-ctx.toDriver
		items = append(items, ctx)
	}

	for {
		anyPending := false
		for _, ctx := range items {
			if ctx.finished {
				continue
			}
			anyPending = true
			ctx.toItem <- struct{}{} // resume past its current barrier
			<-ctx.toDriver           // wait for its next barrier or finish
		}
		if !anyPending {
			return
		}
	}
}
