// Package queue implements the command queue: an ordered (or
// out-of-order) pipeline of events bound to one device, with a
// readiness scan that decides, one event at a time, whether the next
// queued command can be handed to the device or must wait on its
// predecessors, its explicit wait-list, or a barrier.
package queue

import (
	"sync"

	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/object"
)

// Device is the minimal surface a CommandQueue needs from the backing
// device: hand a Submitted event off for asynchronous execution. The
// device stamps Start/End and drives the event to Complete or an error
// status itself; the queue never blocks waiting for that to happen.
type Device interface {
	Submit(e *event.Event)
}

// Properties carries the queue's out-of-order and profiling bits.
type Properties struct {
	OutOfOrder bool
	Profiling  bool
}

// CommandQueue is a per-device event pipeline: a device
// binding, a properties bitset, an ordered list of live events, a
// "flushed" boolean, and the mutex/condvar protecting all three.
type CommandQueue struct {
	Obj object.Object

	device     Device
	outOfOrder bool
	profiling  bool

	mu      sync.Mutex
	cond    *sync.Cond
	events  []*event.Event // append-only from the host, erase-only on sweep
	flushed bool
}

// New constructs a CommandQueue bound to device with the given
// properties. At rest (no events yet) flushed is true.
func New(device Device, props Properties) *CommandQueue {
	q := &CommandQueue{
		device:     device,
		outOfOrder: props.OutOfOrder,
		profiling:  props.Profiling,
		flushed:    true,
	}
	q.cond = sync.NewCond(&q.mu)
	object.Init(&q.Obj, object.KindQueue, q, nil, false)
	return q
}

// OnDestroy satisfies object.Destroyer. By the time a CommandQueue's
// refcount reaches zero every event that named it as a parent has
// already been released by cleanEvents, so there is nothing left to
// tear down here.
func (q *CommandQueue) OnDestroy() {}

// Enqueue binds e to this queue: run the device's event-data initializer first (failing fast
// without touching the queue if it errors), then append under the
// queue mutex, clear flushed, and kick off a readiness scan.
//
// Binding an event to a queue is a one-way, one-time operation: the
// event retains the queue for its own lifetime (object.SetParent), and
// the queue retains the event back for as long as it's on the list —
// cleanEvents is the only place that reference is ever dropped.
func (q *CommandQueue) Enqueue(e *event.Event, initDeviceData func() error) error {
	if initDeviceData != nil {
		if err := initDeviceData(); err != nil {
			return err
		}
	}

	object.SetParent(&e.Obj, &q.Obj, true)
	object.Retain(&e.Obj)
	e.ParentQueue = q

	for _, w := range e.WaitList {
		if w.ParentQueue == nil {
			w.AddDependentQueue(q)
		}
	}

	q.mu.Lock()
	q.events = append(q.events, e)
	q.flushed = false
	if q.profiling {
		e.StampQueued()
	}
	q.mu.Unlock()

	q.PushEvents()
	return nil
}

// PushEvents is the readiness scan: walk the event
// list from the head, submitting or completing whatever is ready. An
// in-order queue stops at the first thing that isn't; an out-of-order
// queue skips it and goes on, stopping only at a barrier or
// wait-for-events entry that cannot yet proceed. It is always safe to call
// redundantly — from Enqueue, from a completed event's nudge, or from
// a worker reporting a status change — since a scan that finds nothing
// to do is a no-op besides the flushed/broadcast bookkeeping.
//
// The queue mutex is held only for the bookkeeping of the scan itself.
// Completing a dummy event or collapsing a dependency failure calls
// into Event.SetStatus, which re-enters this same method through the
// event's parent-queue nudge; both paths explicitly unlock first so
// that reentry never deadlocks on q.mu.
func (q *CommandQueue) PushEvents() {
	q.mu.Lock()
	inOrder := !q.outOfOrder

	// pos counts live (not yet swept) predecessors seen so far in this
	// walk. Completed/failed events still linger in the list until
	// cleanEvents sweeps them, so "at the head" means no live
	// predecessor — not literally index zero.
	pos := 0

scan:
	for _, e := range q.events {
		switch st := e.Status(); {
		case st == event.StatusComplete, st.IsError():
			continue // awaiting cleanEvents' sweep; doesn't occupy a position
		case st != event.StatusQueued:
			// Submitted or Running: already handed to the device.
			pos++
			if inOrder {
				break scan
			}
			continue
		}

		atHead := pos == 0
		pos++

		if e.Type == event.TypeBarrier && !atHead {
			break scan
		}

		ready, depFailed := waitListReady(e)
		switch {
		case depFailed:
			q.mu.Unlock()
			e.SetStatus(event.StatusDependencyFailure)
			return
		case !ready && e.Type == event.TypeWaitForEvents:
			break scan
		case !ready:
			if inOrder {
				break scan
			}
			continue
		}

		if e.IsDummy() {
			q.mu.Unlock()
			if q.profiling {
				e.StampSubmit()
			}
			e.SetStatus(event.StatusComplete)
			return
		}

		if q.profiling {
			e.StampSubmit()
		}
		e.SetStatus(event.StatusSubmitted)
		q.device.Submit(e)
		if inOrder {
			break scan
		}
	}

	// flushed means no unsubmitted work remains: every live event has
	// at least been handed to the device (or finished).
	flushed := true
	for _, e := range q.events {
		if e.Status() == event.StatusQueued {
			flushed = false
			break
		}
	}
	q.flushed = flushed
	q.cond.Broadcast()
	q.mu.Unlock()
}

// waitListReady reports whether every entry in e's wait-list has
// reached Complete (ready), or whether one of them has instead
// collapsed to an error status (depFailed), which fails the dependent
// with a distinguished wait-list error instead of leaving it stuck.
func waitListReady(e *event.Event) (ready, depFailed bool) {
	for _, w := range e.WaitList {
		switch st := w.Status(); {
		case st.IsError():
			return false, true
		case st != event.StatusComplete:
			return false, false
		}
	}
	return true, false
}

// cleanEvents removes every Complete or failed event from the list.
// Each removed event's own queue-held reference is released
// here; disabling SetReleaseParentOnDestroy first keeps that release
// from re-entering this queue's destruction while cleanEvents is still
// mid-sweep with q.mu held — if the release does turn out to be the
// event's last reference, the deferred parent release is issued
// manually, after q.mu is unlocked.
func (q *CommandQueue) cleanEvents() {
	q.mu.Lock()
	kept := q.events[:0]
	var destroyedCount int
	for _, e := range q.events {
		st := e.Status()
		if st != event.StatusComplete && !st.IsError() {
			kept = append(kept, e)
			continue
		}
		e.Obj.SetReleaseParentOnDestroy(false)
		if object.Release(&e.Obj) {
			destroyedCount++
		} else {
			e.Obj.SetReleaseParentOnDestroy(true)
		}
	}
	q.events = kept
	q.mu.Unlock()

	for i := 0; i < destroyedCount; i++ {
		object.Release(&q.Obj)
	}
}

// Flush waits until the queue has no unsubmitted work left pending.
func (q *CommandQueue) Flush() {
	q.mu.Lock()
	for !q.flushed {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Finish sweeps completed events and waits until the list is empty.
func (q *CommandQueue) Finish() {
	q.cleanEvents()
	q.mu.Lock()
	for len(q.events) != 0 {
		q.cond.Wait()
		q.mu.Unlock()
		q.cleanEvents()
		q.mu.Lock()
	}
	q.mu.Unlock()
}

// Profiling reports whether this queue was created with the profiling
// property set. The device worker pool consults this (through a narrow
// interface of its own) to decide whether to stamp an event's Start/End
// timestamps.
func (q *CommandQueue) Profiling() bool {
	return q.profiling
}

// Len reports the number of live (not yet swept) events on the queue.
// Intended for tests and diagnostics.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
