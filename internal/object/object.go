// Package object provides the process-wide reference-counting and
// liveness bookkeeping shared by every externally addressable entity in
// the runtime: contexts, queues, events, memory objects, programs,
// kernels, samplers, and devices.
package object

import "sync/atomic"

// Kind tags the concrete type of an Object so that a boundary cast can
// be validated without runtime type introspection beyond this tag.
type Kind int

const (
	KindContext Kind = iota
	KindQueue
	KindEvent
	KindMemObject
	KindProgram
	KindKernel
	KindSampler
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindQueue:
		return "queue"
	case KindEvent:
		return "event"
	case KindMemObject:
		return "mem_object"
	case KindProgram:
		return "program"
	case KindKernel:
		return "kernel"
	case KindSampler:
		return "sampler"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Destroyer is implemented by owners that need to free resources when
// their Object's reference count reaches zero.
type Destroyer interface {
	OnDestroy()
}

// Object is embedded by every reference-counted entity in the runtime.
// It owns the refcount, the optional parent link, and its own
// registration in the process-wide live set.
//
// Invariants:
//   - the parent retains the child at construction;
//   - destruction dereferences the parent and, if releaseParent is set
//     and the parent's count reaches zero, destroys it recursively;
//   - IsA returns false unless the pointer is currently in the live set
//     and its type tag matches.
type Object struct {
	kind          Kind
	refcount      atomic.Int32
	parent        *Object
	releaseParent atomic.Bool
	owner         Destroyer
}

// Init must be called once, by the embedding type's constructor, before
// the Object is published to any other goroutine. It registers the
// object in the live set with an initial refcount of 1.
func Init(o *Object, kind Kind, owner Destroyer, parent *Object, releaseParentOnDestroy bool) {
	o.kind = kind
	o.owner = owner
	o.refcount.Store(1)
	o.parent = parent
	o.releaseParent.Store(releaseParentOnDestroy)
	if parent != nil {
		Retain(parent)
	}
	registry.add(o)
}

// Kind returns the type tag of the object.
func (o *Object) Kind() Kind { return o.kind }

// Parent returns the object's parent, or nil if it has none.
func (o *Object) Parent() *Object { return o.parent }

// SetParent binds o's parent after construction, retaining it
// immediately. Used when an object is constructed standalone and only
// later published into a relationship that should keep its new parent
// alive — e.g. a freshly constructed Event bound to a CommandQueue by
// Enqueue. Must be called at most once, before o is shared with
// anything else that might concurrently retain or release it.
func SetParent(o *Object, parent *Object, releaseParentOnDestroy bool) {
	o.parent = parent
	o.releaseParent.Store(releaseParentOnDestroy)
	if parent != nil {
		Retain(parent)
	}
}

// SetReleaseParentOnDestroy toggles whether destruction recursively
// releases the parent. CommandQueue.cleanEvents disables this
// temporarily while it sweeps a completed event so that the event's
// destruction does not re-enter the queue that is sweeping it.
func (o *Object) SetReleaseParentOnDestroy(v bool) {
	o.releaseParent.Store(v)
}

// RefCount returns the current reference count. Intended for tests and
// diagnostics only; the value is immediately stale under concurrency.
func (o *Object) RefCount() int32 { return o.refcount.Load() }

// Retain increments an object's reference count.
func Retain(o *Object) {
	if o == nil {
		return
	}
	o.refcount.Add(1)
}

// Release decrements an object's reference count. When the count
// reaches zero the object's owner is destroyed and, if configured, the
// parent is released too (recursively).
// It reports whether this call was the one that drove the count to
// zero, which callers that disable SetReleaseParentOnDestroy need in
// order to perform that deferred parent release themselves once it's
// safe to do so.
func Release(o *Object) bool {
	if o == nil {
		return false
	}
	if o.refcount.Add(-1) != 0 {
		return false
	}
	registry.remove(o)
	parent := o.parent
	releaseParent := o.releaseParent.Load()
	if o.owner != nil {
		o.owner.OnDestroy()
	}
	if releaseParent && parent != nil {
		Release(parent)
	}
	return true
}

// IsA reports whether o is currently live and tagged with kind. This is
// the sole defense against use-after-free on an opaque handle crossing
// the API boundary: a stale pointer whose memory has been reused for
// something else, or simply freed, returns false rather than reading
// through dangling memory.
func IsA(o *Object, kind Kind) bool {
	if o == nil {
		return false
	}
	if !registry.contains(o) {
		return false
	}
	return o.kind == kind
}
