// Package cpudevice implements the CPU device worker pool: a
// fixed-size pool of execution threads that pull ready events off a
// per-device FIFO and run them — memcpy-style transfers, native kernel
// calls, or ND-range/task kernel dispatch into internal/kernel's
// work-group engine.
package cpudevice

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/logging"
)

// Observer is the narrow slice of the root Observer surface the worker
// pool itself drives. Defined here (rather than imported from the root
// package) to keep internal/cpudevice a leaf with respect to the root
// glue.
type Observer interface {
	ObserveEventComplete(typ event.Type, durationNs int64)
	ObserveEventFailed(typ event.Type, status event.Status, durationNs int64)
	ObserveKernelLaunch(totalGroups int64)
	ObserveWorkGroupDone()
}

type noopObserver struct{}

func (noopObserver) ObserveEventComplete(event.Type, int64)             {}
func (noopObserver) ObserveEventFailed(event.Type, event.Status, int64) {}
func (noopObserver) ObserveKernelLaunch(int64)                          {}
func (noopObserver) ObserveWorkGroupDone()                              {}

// Config configures a Device's worker pool.
type Config struct {
	// Workers is the number of worker goroutines to run. Zero means one
	// per logical CPU.
	Workers int

	// CPUAffinity, if non-empty, pins worker i to CPU
	// CPUAffinity[i%len(CPUAffinity)], round-robin.
	CPUAffinity []int

	Logger   *logging.Logger
	Observer Observer
}

// Device is the CPU execution device: a mutex-protected FIFO of
// events and a pool of worker goroutines. It implements
// queue.Device (Submit) and memobj.Device (StorageKey) so it can serve
// both as a CommandQueue's hand-off target and as the storage-arena
// keying identity for the Memory Object Model.
type Device struct {
	cfg      Config
	logger   *logging.Logger
	observer Observer

	mu       sync.Mutex
	cond     *sync.Cond
	fifo     []*event.Event
	stopping bool

	group   *errgroup.Group
	groupCh chan struct{} // closed once group.Wait() returns
}

// New constructs a Device worker pool. The pool is not started until
// Start is called.
func New(cfg Config) *Device {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	d := &Device{cfg: cfg, logger: cfg.Logger, observer: cfg.Observer}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// StorageKey satisfies memobj.Device: a per-process-unique identity for
// this device's backing-storage allocations. The Device's own address
// is stable for its lifetime and never aliases another live Device.
func (d *Device) StorageKey() uintptr {
	return uintptr(unsafe.Pointer(d))
}

// ComputeUnits reports the degree of parallelism this device offers a
// kernel launch's local-size heuristic.
func (d *Device) ComputeUnits() int {
	return d.cfg.Workers
}

// Start launches the worker pool. Each worker is supervised by an
// errgroup.Group, replacing a hand-rolled sync.WaitGroup loop with the
// idiomatic "N workers, first error wins, join on shutdown" shape,
// though in steady state a worker only returns when
// the device is shutting down, never with an error of its own, since
// per-event failures are captured on the event, not propagated to the
// pool.
func (d *Device) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	d.group = g
	d.groupCh = make(chan struct{})
	for i := 0; i < d.cfg.Workers; i++ {
		idx := i
		g.Go(func() error {
			d.workerLoop(idx)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(d.groupCh)
	}()
}

// Shutdown signals every worker to exit once it has drained the event
// currently in hand, and blocks until all have joined; in-flight
// events drain normally.
func (d *Device) Shutdown() {
	d.mu.Lock()
	d.stopping = true
	d.cond.Broadcast()
	d.mu.Unlock()
	if d.groupCh != nil {
		<-d.groupCh
	}
}

// Submit satisfies queue.Device: hand a Submitted event to this
// device's FIFO for asynchronous execution. The queue never blocks
// waiting for the work itself.
func (d *Device) Submit(e *event.Event) {
	d.mu.Lock()
	d.fifo = append(d.fifo, e)
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Len reports the number of events currently waiting in the FIFO,
// including a kernel event still being claimed against by workers.
// Intended for tests and queue-depth observability.
func (d *Device) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fifo)
}

// workerLoop is the per-worker pump: block on the condition
// variable when idle, pop (or, for an in-flight kernel event, peek) the
// head, and dispatch.
func (d *Device) workerLoop(idx int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	setAffinity(d.cfg.CPUAffinity, idx, d.logger.With("worker", idx))

	for {
		d.mu.Lock()
		for len(d.fifo) == 0 && !d.stopping {
			d.cond.Wait()
		}
		if len(d.fifo) == 0 && d.stopping {
			d.mu.Unlock()
			return
		}
		e := d.fifo[0]
		isKernel := e.Type == event.TypeNDRangeKernel || e.Type == event.TypeTaskKernel
		if !isKernel {
			d.fifo = d.fifo[1:]
		}
		d.mu.Unlock()

		d.runSafely(e, isKernel)
	}
}

// removeFIFOHead removes e from the front of the FIFO if it is still
// there. Used once a kernel event's last work-group has been claimed,
// so no other worker tries to claim against an exhausted cursor.
func (d *Device) removeFIFOHead(e *event.Event) {
	d.mu.Lock()
	if len(d.fifo) > 0 && d.fifo[0] == e {
		d.fifo = d.fifo[1:]
	}
	d.mu.Unlock()
}

// runSafely dispatches e and converts a panic inside a kernel's native
// code into a failed event; a panic on one event must never take the
// whole pool down with it.
func (d *Device) runSafely(e *event.Event, isKernel bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event panicked", "type", e.Type, "panic", r)
			e.StampEnd()
			e.SetStatus(event.StatusExecutionFailure)
			d.observer.ObserveEventFailed(e.Type, event.StatusExecutionFailure, 0)
		}
	}()
	if isKernel {
		d.stepKernel(e)
		return
	}
	d.runOnce(e)
}

func (d *Device) profilingEnabled(e *event.Event) bool {
	type profiled interface{ Profiling() bool }
	pq, ok := e.ParentQueue.(profiled)
	return ok && pq.Profiling()
}

// runOnce executes a single-step event to completion: stamp Start,
// dispatch by type, stamp End, set the terminal status.
func (d *Device) runOnce(e *event.Event) {
	started := time.Now()
	if d.profilingEnabled(e) {
		e.StampStart()
	}
	err := d.dispatch(e)
	if d.profilingEnabled(e) {
		e.StampEnd()
	}
	durNs := time.Since(started).Nanoseconds()
	if err != nil {
		st := classifyError(err)
		e.SetStatus(st)
		d.observer.ObserveEventFailed(e.Type, st, durNs)
		return
	}
	e.SetStatus(event.StatusComplete)
	d.observer.ObserveEventComplete(e.Type, durNs)
}

// classifyError maps a dispatch error to the negative status code it
// best represents.
func classifyError(err error) event.Status {
	switch err.(type) {
	case *AlignmentError:
		return event.StatusAlignment
	case *ResourceError:
		return event.StatusResource
	default:
		return event.StatusExecutionFailure
	}
}

// AlignmentError reports a sub-buffer or transfer offset that fails a
// device's base-address alignment requirement.
type AlignmentError struct{ Msg string }

func (e *AlignmentError) Error() string { return fmt.Sprintf("cpudevice: alignment: %s", e.Msg) }

// ResourceError reports a backing-storage or work-group-arena
// allocation failure.
type ResourceError struct{ Msg string }

func (e *ResourceError) Error() string { return fmt.Sprintf("cpudevice: resource: %s", e.Msg) }
