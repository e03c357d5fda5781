package clover

import (
	"sync"

	"github.com/cloverproject/clovercore/internal/compiler"
	"github.com/cloverproject/clovercore/internal/event"
)

// RecordingObserver is an Observer that records every observation for
// later verification. It is useful for black-box tests of the
// scheduling pipeline.
type RecordingObserver struct {
	mu sync.Mutex

	completed []EventType
	failed    []Status
	launches  []int64
	groups    int
	depths    []int
}

// NewRecordingObserver creates an empty recording observer.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (r *RecordingObserver) ObserveEventComplete(typ event.Type, _ int64) {
	r.mu.Lock()
	r.completed = append(r.completed, typ)
	r.mu.Unlock()
}

func (r *RecordingObserver) ObserveEventFailed(_ event.Type, status event.Status, _ int64) {
	r.mu.Lock()
	r.failed = append(r.failed, status)
	r.mu.Unlock()
}

func (r *RecordingObserver) ObserveKernelLaunch(totalGroups int64) {
	r.mu.Lock()
	r.launches = append(r.launches, totalGroups)
	r.mu.Unlock()
}

func (r *RecordingObserver) ObserveWorkGroupDone() {
	r.mu.Lock()
	r.groups++
	r.mu.Unlock()
}

func (r *RecordingObserver) ObserveQueueDepth(depth int) {
	r.mu.Lock()
	r.depths = append(r.depths, depth)
	r.mu.Unlock()
}

// Completed returns the types of every event observed completing, in
// observation order.
func (r *RecordingObserver) Completed() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventType(nil), r.completed...)
}

// Failed returns the statuses of every event observed failing.
func (r *RecordingObserver) Failed() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.failed...)
}

// Launches returns the work-group totals of every kernel launch
// observed.
func (r *RecordingObserver) Launches() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.launches...)
}

// WorkGroupsDone returns the number of finished work-groups observed.
func (r *RecordingObserver) WorkGroupsDone() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups
}

var _ Observer = (*RecordingObserver)(nil)

// NewNativeProgram builds a Program directly from a table of Go
// closures keyed by kernel name, bypassing the compiler front-end
// entirely. This is how tests and the demo CLI supply kernel bodies
// without a real compiler/JIT.
func (c *Context) NewNativeProgram(kernels map[string]KernelFunc) *Program {
	handles := make(map[string]compiler.FunctionHandle, len(kernels))
	for name, fn := range kernels {
		handles[name] = fn
	}
	return c.CreateProgramFromModule(compiler.NewNativeModule(handles))
}
