package kernel

// WorkItemContext is the per-work-item cooperative context: the handle every in-kernel builtin (GlobalID, LocalID, Barrier)
// resolves against. Builtins are reached by an explicit ctx parameter
// on KernelFunc rather than a thread-local lookup — goroutines have no
// stable OS-thread identity to hang a thread-local off of, and passing
// ctx explicitly routes every builtin through the active work-group
// all the same.
type WorkItemContext struct {
	group   *Group
	localID [3]int64

	// toItem/toDriver are nil for a work-item run on the fast,
	// barrier-free path (see Group.run); non-nil once this context is
	// being driven cooperatively by runCooperative.
	toItem   chan struct{}
	toDriver chan struct{}
	finished bool
}

// newCooperativeContext builds a context wired for cooperative
// barrier support: its own rendezvous channels, not yet started.
func newCooperativeContext(g *Group, localID [3]int64) *WorkItemContext {
	return &WorkItemContext{
		group:    g,
		localID:  localID,
		toItem:   make(chan struct{}),
		toDriver: make(chan struct{}),
	}
}

// start launches the work-item's goroutine and hands it its initial
// go-ahead. The caller still must receive on toDriver to learn when
// the item reaches its first barrier or finishes.
func (c *WorkItemContext) start(fn KernelFunc, args []any) {
	go func() {
		<-c.toItem
		fn(c, args)
		c.finished = true
		c.toDriver <- struct{}{}
	}()
	c.toItem <- struct{}{}
}

// GlobalID returns this work-item's position in the global index
// space on axis dim, or 0 for an axis beyond the kernel's work_dim.
func (c *WorkItemContext) GlobalID(dim int) int64 {
	if dim < 0 || dim >= c.group.dim {
		return 0
	}
	return c.group.Origin[dim] + c.localID[dim]
}

// LocalID returns this work-item's position within its work-group on
// axis dim, or 0 for an axis beyond the kernel's work_dim.
func (c *WorkItemContext) LocalID(dim int) int64 {
	if dim < 0 || dim >= c.group.dim {
		return 0
	}
	return c.localID[dim]
}

// GroupIndex returns the work-group's index on axis dim.
func (c *WorkItemContext) GroupIndex(dim int) int64 {
	if dim < 0 || dim >= c.group.dim {
		return 0
	}
	return c.group.Index[dim]
}

// FenceFlags selects which memory-fence instruction, if any, a barrier
// issues before yielding.
type FenceFlags int

const (
	FenceLocal FenceFlags = 1 << iota
	FenceGlobal
)

// Barrier is a work-group barrier with no memory fence: a cooperative yield back to the work-group driver, which
// resumes every other work-item up to the same point before resuming
// any of them past it.
func (c *WorkItemContext) Barrier() {
	c.BarrierFence(0)
}

// BarrierFence is Barrier with an explicit fence: flags carrying
// FenceGlobal issue a full memory fence, any other non-zero flags issue
// a store fence, before the cooperative yield.
//
// On the fast, barrier-free path (see Group.run) a work-item never
// overlaps in time with another, so there is nothing to synchronize
// against beyond the fence instruction itself; the yield is a no-op
// there rather than a panic, since the driver has no goroutine parked
// to hand control to.
func (c *WorkItemContext) BarrierFence(flags FenceFlags) {
	switch {
	case flags&FenceGlobal != 0:
		Mfence()
	case flags != 0:
		Sfence()
	}
	if c.toItem == nil {
		return
	}
	c.toDriver <- struct{}{}
	<-c.toItem
}
