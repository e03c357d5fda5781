package cpudevice

import (
	"fmt"
	"sync"
	"time"

	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/kernel"
	"github.com/cloverproject/clovercore/internal/memobj"
)

// kernelState is the per-launch runtime state attached to a kernel
// event's DeviceData by InitEventData at enqueue time: the
// launch geometry and the shared cursor workers claim work-groups from.
type kernelState struct {
	kernel *kernel.Kernel
	launch *kernel.Launch
	cursor *kernel.Cursor

	startOnce sync.Once
	startedAt time.Time
}

// InitEventData is the device's event-data initializer:
// CommandQueue.Enqueue calls this before
// touching the queue at all, so a failure here (e.g. an unready
// kernel, or launch geometry that doesn't divide evenly) is surfaced to
// the caller before any launch state is attached to the event. Buffer
// arguments are allocated on the device before the geometry is
// checked, so that storage may already exist when a launch is rejected.
func (d *Device) InitEventData(e *event.Event) error {
	switch e.Type {
	case event.TypeNDRangeKernel, event.TypeTaskKernel:
		return d.initKernelEvent(e)
	case event.TypeMapBuffer:
		return d.initMapEvent(e)
	default:
		return nil
	}
}

func (d *Device) initKernelEvent(e *event.Event) error {
	kl := e.Payload.(*event.KernelLaunch)
	k, ok := kl.Kernel.(*kernel.Kernel)
	if !ok {
		return fmt.Errorf("cpudevice: kernel event payload's Kernel field is not *kernel.Kernel")
	}
	if !k.Ready() {
		return fmt.Errorf("cpudevice: kernel %q has unset arguments", k.Name)
	}
	// Buffer arguments must be backed on this device before the
	// trampoline resolves their pointers.
	if err := k.EachBufferArg(func(m *memobj.MemObject) error {
		if err := m.Allocate(d); err != nil {
			return &ResourceError{Msg: err.Error()}
		}
		return nil
	}); err != nil {
		return err
	}
	launch, err := kernel.NewLaunch(kl.WorkDim, kl.GlobalOffset, kl.GlobalSize, kl.LocalSize, d.ComputeUnits())
	if err != nil {
		return err
	}
	e.DeviceData = &kernelState{kernel: k, launch: launch, cursor: kernel.NewCursor(launch)}
	d.observer.ObserveKernelLaunch(launch.TotalGroups)
	return nil
}

func (d *Device) initMapEvent(e *event.Event) error {
	mu := e.Payload.(*event.MapUnmap)
	if mu.Unmap {
		return nil
	}
	if err := mu.Buffer.Allocate(d); err != nil {
		return &ResourceError{Msg: err.Error()}
	}
	view, err := mu.Buffer.MapView(d, mu.Offset, mu.Size)
	if err != nil {
		return err
	}
	mu.MappedPtr = view
	return nil
}

// stepKernel is the dispatcher's per-worker step for an ND-range/task
// kernel event still sitting in the FIFO: claim one work-group, run it, and — once every
// work-group has finished — complete the event exactly once.
func (d *Device) stepKernel(e *event.Event) {
	ks, ok := e.DeviceData.(*kernelState)
	if !ok {
		d.removeFIFOHead(e)
		e.SetStatus(event.StatusExecutionFailure)
		return
	}

	idx, isLast, ok := ks.cursor.ReserveAndTake()
	if !ok {
		// Every work-group was already claimed by another worker between
		// this worker peeking the FIFO head and taking its turn; nothing
		// left to do but make sure the head gets swept.
		d.removeFIFOHead(e)
		return
	}
	if isLast {
		// No further claims are possible once the cursor is exhausted;
		// pull the event out of the FIFO now so no other worker spins on
		// it while this last group is still running.
		d.removeFIFOHead(e)
	}
	ks.startOnce.Do(func() {
		ks.startedAt = time.Now()
		if d.profilingEnabled(e) {
			e.StampStart()
		}
	})

	err := ks.kernel.RunGroup(d, ks.launch, idx)
	d.observer.ObserveWorkGroupDone()
	allDone := ks.cursor.MarkFinished()

	if err != nil {
		e.StampEnd()
		e.SetStatus(event.StatusExecutionFailure)
		d.observer.ObserveEventFailed(e.Type, event.StatusExecutionFailure, time.Since(ks.startedAt).Nanoseconds())
		return
	}
	if allDone {
		e.StampEnd()
		e.SetStatus(event.StatusComplete)
		d.observer.ObserveEventComplete(e.Type, time.Since(ks.startedAt).Nanoseconds())
	}
}
