// Package event implements the unit of scheduled work: an Event
// carries a type, a monotonically-advancing status, an immutable
// retained wait-list, four profiling timestamps, and a multimap of
// status-keyed callbacks.
package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/cloverproject/clovercore/internal/object"
)

// QueueNotifier is the minimal surface an Event needs from its parent
// CommandQueue: a nudge to re-scan readiness once this event completes.
// Defining it here (rather than importing internal/queue) keeps the
// dependency order leaf-first: queue depends on event,
// not the reverse.
type QueueNotifier interface {
	PushEvents()
}

// Callback is invoked with the event, the status that triggered it, and
// the user data supplied at registration.
type Callback func(e *Event, status Status, userData any)

type callbackEntry struct {
	fn       Callback
	userData any
}

// Event is the unit of scheduled work. Status only moves forward through
// Queued→Submitted→Running→Complete or collapses once to a negative
// code, callbacks fire exactly once at or after their key status is
// reached, and the wait-list is immutable and fully retained after
// construction.
type Event struct {
	Obj object.Object

	Type Type

	mu        sync.Mutex
	cond      *sync.Cond
	status    Status
	callbacks map[Status][]callbackEntry

	WaitList []*Event // retained at construction, released at destruction

	ParentQueue QueueNotifier // nil for a User event

	// DependentQueues is populated only on User events: the queues that
	// have this event somewhere in a wait-list and must be nudged when
	// it completes, since a User event has no parent queue of its own
	// to push through.
	DependentQueues []QueueNotifier

	// Payload is one of the structs in types.go, selected by Type.
	Payload any

	// Profiling timestamps. A single monotonic clock source
	// (time.Now()) is used throughout, in nanoseconds.
	QueuedAt, SubmittedAt, StartedAt, EndedAt time.Time

	// DeviceData is an opaque back-end scratch pointer the device's
	// event-data initializer may populate at enqueue time (e.g. a
	// map-buffer's returned host pointer).
	DeviceData any
}

// New constructs an event of the given type with the given wait-list.
// Construction validates that no wait-list entry is
// nil or already in an error status, then retains every entry; they are
// released when the event is destroyed.
func New(typ Type, waitList []*Event) (*Event, error) {
	for i, w := range waitList {
		if w == nil {
			return nil, fmt.Errorf("event: wait-list entry %d is nil", i)
		}
		if w.Status().IsError() {
			return nil, fmt.Errorf("event: wait-list entry %d has already failed with status %v", i, w.Status())
		}
	}
	e := &Event{
		Type:      typ,
		status:    StatusQueued,
		callbacks: make(map[Status][]callbackEntry),
		WaitList:  append([]*Event(nil), waitList...),
	}
	e.cond = sync.NewCond(&e.mu)
	object.Init(&e.Obj, object.KindEvent, e, nil, false)
	for _, w := range e.WaitList {
		object.Retain(&w.Obj)
	}
	return e, nil
}

// NewUser constructs a User event: no parent queue, Queued status,
// eligible to be completed (or failed) directly by the host.
func NewUser() *Event {
	e, _ := New(TypeUser, nil)
	return e
}

// OnDestroy satisfies object.Destroyer: it releases every retained
// wait-list entry.
func (e *Event) OnDestroy() {
	for _, w := range e.WaitList {
		object.Release(&w.Obj)
	}
}

// Status returns the event's current status.
func (e *Event) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// IsDummy reports whether this event has no device-side work.
func (e *Event) IsDummy() bool { return e.Type.IsDummy() }

// AddDependentQueue registers a queue to be nudged when this (User)
// event reaches a terminal status. Queues call this when they enqueue
// an event whose wait-list names a User event, which has no parent
// queue of its own to push through.
func (e *Event) AddDependentQueue(q QueueNotifier) {
	e.mu.Lock()
	e.DependentQueues = append(e.DependentQueues, q)
	e.mu.Unlock()
}

// AddCallback registers fn to fire once the event reaches status s. A
// callback keyed on Complete also fires on an error collapse; callbacks
// keyed on other statuses do not. If the event has already reached or
// passed s (or, for a Complete key, has failed), fn fires immediately
// and synchronously.
func (e *Event) AddCallback(s Status, fn Callback, userData any) {
	e.mu.Lock()
	cur := e.status
	fire := (!cur.IsError() && cur <= s) || (cur.IsError() && s == StatusComplete)
	if fire {
		e.mu.Unlock()
		fn(e, cur, userData)
		return
	}
	e.callbacks[s] = append(e.callbacks[s], callbackEntry{fn: fn, userData: userData})
	e.mu.Unlock()
}

// SetStatus advances the event to a new status. It is the sole mutator
// of status, and it drives every downstream effect: the status
// condition variable is broadcast, registered callbacks for the new
// status fire in registration order while the event's own mutex is
// still held (callback code must not call back into this
// event's queue — a documented constraint, not a bug), and — only
// after that mutex is released — the parent queue (or, for a User
// event, every dependent queue) is nudged to re-scan readiness.
//
// The queue must never be nudged while the event's mutex is held: the
// nudge re-enters this same event's Status() for the readiness scan,
// and for a dummy event at the head of the queue the Complete
// transition happens synchronously inside that same scan.
func (e *Event) SetStatus(s Status) {
	e.mu.Lock()
	if !e.status.advancesTo(s) {
		e.mu.Unlock()
		return
	}
	e.status = s
	if s.IsError() {
		// An error collapse always has End-of-life semantics.
		if e.EndedAt.IsZero() {
			e.EndedAt = time.Now()
		}
	}
	e.cond.Broadcast()

	key := s
	if s.IsError() {
		key = StatusComplete
	}
	fired := e.callbacks[key]
	delete(e.callbacks, key)
	for _, cb := range fired {
		cb.fn(e, s, cb.userData)
	}

	deps := append([]QueueNotifier(nil), e.DependentQueues...)
	e.mu.Unlock()

	if s != StatusComplete && !s.IsError() {
		return
	}
	if e.ParentQueue != nil {
		e.ParentQueue.PushEvents()
	}
	for _, q := range deps {
		q.PushEvents()
	}
}

// WaitForStatus blocks until the event reaches Complete or any error
// status, returning the terminal status.
func (e *Event) WaitForStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.status != StatusComplete && !e.status.IsError() {
		e.cond.Wait()
	}
	return e.status
}

// StampQueued, StampSubmit, StampStart, StampEnd record profiling
// timestamps. The queue and device stamp them when the owning queue's
// profiling property is set; End is also stamped on every kernel
// event and whenever SetStatus collapses an event to an error.
func (e *Event) StampQueued() { e.stamp(&e.QueuedAt) }
func (e *Event) StampSubmit() { e.stamp(&e.SubmittedAt) }
func (e *Event) StampStart()  { e.stamp(&e.StartedAt) }
func (e *Event) StampEnd()    { e.stamp(&e.EndedAt) }

func (e *Event) stamp(field *time.Time) {
	e.mu.Lock()
	*field = time.Now()
	e.mu.Unlock()
}
