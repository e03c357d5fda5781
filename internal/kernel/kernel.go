// Package kernel implements the kernel work-group engine: binding argument vectors to a compiled kernel, deriving launch
// geometry, claiming work-groups off a shared cursor, and driving each
// work-group's work-items through a JIT trampoline with cooperative
// barrier support.
package kernel

import (
	"fmt"
	"sync"

	"github.com/cloverproject/clovercore/internal/compiler"
	"github.com/cloverproject/clovercore/internal/memobj"
	"github.com/cloverproject/clovercore/internal/object"
)

// ArgKind tags the concrete shape an Arg resolves to at launch time.
// The host API distinguishes scalar widths, buffer, image2d/3d, and
// sampler; this runtime's trampoline only distinguishes the three shapes that differ
// in how they resolve to a value, not every scalar width.
type ArgKind int

const (
	ArgScalar ArgKind = iota
	ArgBuffer
	ArgLocal
)

// Arg is one slot of a Kernel's argument vector. Only one of Value,
// Buffer, or LocalBytes is meaningful, selected by Kind.
type Arg struct {
	Kind       ArgKind
	Value      any              // ArgScalar: the literal argument value
	Buffer     *memobj.MemObject // ArgBuffer: the bound memory object
	BufferOff  int64             // ArgBuffer: offset into Buffer
	LocalBytes int               // ArgLocal: per-work-group scratch size

	set bool
}

// Kernel is a compiled function handle resolved through a JIT, plus
// an argument vector that
// must be fully bound before the kernel is eligible for launch.
type Kernel struct {
	Obj object.Object

	Name   string
	Handle compiler.FunctionHandle
	jit    JIT

	mu   sync.Mutex
	args []Arg
}

// New constructs a Kernel with numArgs unset argument slots.
func New(name string, handle compiler.FunctionHandle, jit JIT, numArgs int) *Kernel {
	k := &Kernel{
		Name:   name,
		Handle: handle,
		jit:    jit,
		args:   make([]Arg, numArgs),
	}
	object.Init(&k.Obj, object.KindKernel, k, nil, false)
	return k
}

// OnDestroy satisfies object.Destroyer. A Kernel holds no retained
// references of its own — the buffers named in its Args are borrowed,
// not owned, exactly as the host API's SetKernelArg never retains.
func (k *Kernel) OnDestroy() {}

// SetArg binds argument index to arg, marking it set. Rebinding an
// already-set arg (e.g. between two launches with different buffers)
// is legal and simply overwrites the slot.
func (k *Kernel) SetArg(index int, arg Arg) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("kernel: arg index %d out of range [0,%d)", index, len(k.args))
	}
	arg.set = true
	k.args[index] = arg
	return nil
}

// Ready reports whether every argument slot has been set; a kernel is
// eligible for launch only when it is.
func (k *Kernel) Ready() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, a := range k.args {
		if !a.set {
			return false
		}
	}
	return true
}

// NumArgs returns the size of the argument vector.
func (k *Kernel) NumArgs() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.args)
}

// EachBufferArg calls fn for every set buffer argument, in slot order.
// Enqueue-time validation uses this to run bind-time checks (such as
// sub-buffer alignment) against the target device.
func (k *Kernel) EachBufferArg(fn func(*memobj.MemObject) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, a := range k.args {
		if a.Kind != ArgBuffer || !a.set || a.Buffer == nil {
			continue
		}
		if err := fn(a.Buffer); err != nil {
			return err
		}
	}
	return nil
}

// resolveArgs is the first half of the trampoline step:
// substitute each Arg slot with a concrete value — a scalar's literal,
// a buffer's device pointer, or a freshly-allocated local scratch
// slice. It is called once per work-group rather than cached across
// the whole launch: scalars and buffer pointers don't strictly need
// re-resolving per group, but a kernel's __local args do (they are
// work-group-private scratch), and re-resolving everything together
// keeps this trampoline-building step simple and correct at a cost
// that's negligible for a CPU-side runtime.
func (k *Kernel) resolveArgs(dev memobj.Device) ([]any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]any, len(k.args))
	for i, a := range k.args {
		switch a.Kind {
		case ArgScalar:
			out[i] = a.Value
		case ArgBuffer:
			if a.Buffer == nil {
				return nil, fmt.Errorf("kernel: arg %d is a buffer arg with no buffer bound", i)
			}
			ptr, err := a.Buffer.DevicePointer(dev, a.BufferOff)
			if err != nil {
				return nil, err
			}
			out[i] = ptr
		case ArgLocal:
			out[i] = make([]byte, a.LocalBytes)
		default:
			return nil, fmt.Errorf("kernel: arg %d has unrecognized kind %d", i, a.Kind)
		}
	}
	return out, nil
}

// trampoline resolves the native code address for this kernel's
// compiled handle. There is no separate native-code synthesis step
// here, since the JIT's input is already a callable Go closure;
// AddressOf is the whole of it.
func (k *Kernel) trampoline() (KernelFunc, error) {
	return k.jit.AddressOf(k.Handle)
}

// RunGroup resolves this kernel's arguments and trampoline for dev and
// drives one work-group's work-items through it. Callers (the cpudevice dispatcher)
// call this once per claim handed out by a Cursor's ReserveAndTake.
func (k *Kernel) RunGroup(dev memobj.Device, launch *Launch, groupIndex [3]int64) error {
	fn, err := k.trampoline()
	if err != nil {
		return err
	}
	args, err := k.resolveArgs(dev)
	if err != nil {
		return err
	}
	g := newGroup(launch, groupIndex)
	g.run(fn, args)
	return nil
}
