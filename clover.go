// Package clover provides the host-side API surface of the clovercore
// compute runtime: contexts, a CPU execution device, command queues,
// memory objects, programs, and kernels. The scheduling core lives in
// the internal packages; this package glues them together, validates
// arguments at the boundary, and re-exports the handful of types a
// host program needs.
package clover

import (
	"context"
	"fmt"
	"runtime"

	"github.com/cloverproject/clovercore/internal/compiler"
	"github.com/cloverproject/clovercore/internal/constants"
	"github.com/cloverproject/clovercore/internal/cpudevice"
	"github.com/cloverproject/clovercore/internal/devinfo"
	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/kernel"
	"github.com/cloverproject/clovercore/internal/logging"
	"github.com/cloverproject/clovercore/internal/memobj"
	"github.com/cloverproject/clovercore/internal/object"
	"github.com/cloverproject/clovercore/internal/queue"
)

// Re-exported core types. The internal packages cannot be imported
// from outside this module, so the host-facing handles live here.
type (
	Event       = event.Event
	Status      = event.Status
	EventType   = event.Type
	Callback    = event.Callback
	MemObject   = memobj.MemObject
	Flags       = memobj.Flags
	ImageFormat = memobj.ImageFormat
	Kernel      = kernel.Kernel
	Arg         = kernel.Arg
	KernelFunc  = kernel.KernelFunc
	WorkItem    = kernel.WorkItemContext
	Properties  = queue.Properties
	DeviceInfo  = devinfo.Info
	Module      = compiler.Module
	Compiler    = compiler.Compiler
)

// Re-exported event statuses.
const (
	StatusQueued    = event.StatusQueued
	StatusSubmitted = event.StatusSubmitted
	StatusRunning   = event.StatusRunning
	StatusComplete  = event.StatusComplete

	StatusArgumentValidation = event.StatusArgumentValidation
	StatusAlignment          = event.StatusAlignment
	StatusResource           = event.StatusResource
	StatusDependencyFailure  = event.StatusDependencyFailure
	StatusExecutionFailure   = event.StatusExecutionFailure
)

// Re-exported argument kinds and host-pointer dispositions.
const (
	ArgScalar = kernel.ArgScalar
	ArgBuffer = kernel.ArgBuffer
	ArgLocal  = kernel.ArgLocal

	HostPtrNone  = memobj.HostPtrNone
	HostPtrUse   = memobj.HostPtrUse
	HostPtrAlloc = memobj.HostPtrAlloc
	HostPtrCopy  = memobj.HostPtrCopy
)

// DeviceParams contains parameters for creating a runtime context.
type DeviceParams struct {
	// Workers is the number of device worker goroutines. Zero selects
	// one per logical CPU.
	Workers int

	// CPUAffinity, if non-empty, pins worker i to CPU
	// CPUAffinity[i%len(CPUAffinity)].
	CPUAffinity []int

	// Compiler lowers kernel source to a Module. Nil leaves
	// BuildProgram unavailable; programs can still be created from
	// pre-built modules with CreateProgramFromModule.
	Compiler Compiler

	// JIT resolves a compiled function handle to callable native code.
	// Nil selects the in-process native JIT.
	JIT kernel.JIT
}

// DefaultParams returns default context parameters.
func DefaultParams() DeviceParams {
	return DeviceParams{
		Workers: constants.AutoWorkers,
	}
}

// Options contains additional options for context creation.
type Options struct {
	// Context for worker-pool cancellation (if nil, uses
	// context.Background()).
	Context context.Context

	// Logger for debug/info messages (if nil, the package default).
	Logger *logging.Logger

	// Observer receives scheduling statistics (if nil, the context's
	// own Metrics instance).
	Observer Observer
}

// Context owns one CPU device, its worker pool, the staging pool for
// copy-host-pointer buffers, and the compiler/JIT pair used to build
// programs.
type Context struct {
	Obj object.Object

	params   DeviceParams
	logger   *logging.Logger
	observer Observer
	metrics  *Metrics

	compiler Compiler
	jit      kernel.JIT
	pool     *memobj.StagingPool
	device   *Device

	cancel context.CancelFunc
}

// Device is the host-facing handle for the CPU execution device: the
// worker pool plus the capability table the scheduler validates
// against.
type Device struct {
	Obj object.Object

	pool *cpudevice.Device
	info DeviceInfo
}

// OnDestroy satisfies the registry's destroyer hook.
func (d *Device) OnDestroy() {}

// Info returns the device's capability table.
func (d *Device) Info() DeviceInfo { return d.info }

// PendingEvents reports the number of events waiting in the device
// FIFO, for queue-depth observability.
func (d *Device) PendingEvents() int { return d.pool.Len() }

// NewContext creates a runtime context, starts its device worker pool,
// and returns it ready for queue creation.
func NewContext(params DeviceParams, opts *Options) (*Context, error) {
	if opts == nil {
		opts = &Options{}
	}
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	c := &Context{
		params:   params,
		logger:   logger,
		metrics:  NewMetrics(),
		compiler: params.Compiler,
		jit:      params.JIT,
		pool:     memobj.NewStagingPool(),
	}
	c.observer = opts.Observer
	if c.observer == nil {
		c.observer = c.metrics
	}
	if c.jit == nil {
		c.jit = kernel.NativeJIT{}
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	info := devinfo.CPU()
	info.ComputeUnits = workers

	devPool := cpudevice.New(cpudevice.Config{
		Workers:     workers,
		CPUAffinity: params.CPUAffinity,
		Logger:      logger,
		Observer:    c.observer,
	})
	runCtx, cancel := context.WithCancel(baseCtx)
	c.cancel = cancel
	devPool.Start(runCtx)

	c.device = &Device{pool: devPool, info: info}
	object.Init(&c.device.Obj, object.KindDevice, c.device, nil, false)
	object.Init(&c.Obj, object.KindContext, c, nil, false)

	logger.Debug("context created", "workers", workers)
	return c, nil
}

// OnDestroy satisfies the registry's destroyer hook.
func (c *Context) OnDestroy() {}

// Device returns the context's CPU device.
func (c *Context) Device() *Device { return c.device }

// Metrics returns the context's built-in metrics instance. It is
// populated only when no custom Observer was supplied at creation.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Close shuts the device worker pool down (in-flight events drain
// normally) and releases the context's own references.
func (c *Context) Close() {
	c.cancel()
	c.device.pool.Shutdown()
	object.Release(&c.device.Obj)
	object.Release(&c.Obj)
	c.logger.Debug("context closed")
}

// CreateQueue creates a command queue bound to the context's device.
func (c *Context) CreateQueue(props Properties) (*Queue, error) {
	if props.Profiling && c.device.info.QueuePropertyMask&devinfo.QueuePropertyProfiling == 0 {
		return nil, NewError("CreateQueue", ErrCodeArgumentValidation, "device does not support profiling queues")
	}
	if props.OutOfOrder && c.device.info.QueuePropertyMask&devinfo.QueuePropertyOutOfOrder == 0 {
		return nil, NewError("CreateQueue", ErrCodeArgumentValidation, "device does not support out-of-order queues")
	}
	return &Queue{
		cq:  queue.New(c.device.pool, props),
		ctx: c,
		dev: c.device,
	}, nil
}

// CreateBuffer creates a plain buffer of the given size.
func (c *Context) CreateBuffer(size int64, flags Flags) (*MemObject, error) {
	if size <= 0 {
		return nil, NewError("CreateBuffer", ErrCodeArgumentValidation, "buffer size must be positive")
	}
	return memobj.NewBuffer(size, flags), nil
}

// CreateBufferFrom creates a buffer initialized from hostData
// according to flags.HostPtr. With HostPtrCopy the data is staged in
// the context's pool until the device allocates backing storage.
func (c *Context) CreateBufferFrom(hostData []byte, flags Flags) (*MemObject, error) {
	if len(hostData) == 0 {
		return nil, NewError("CreateBufferFrom", ErrCodeArgumentValidation, "host data must be non-empty")
	}
	if flags.HostPtr == HostPtrNone {
		flags.HostPtr = HostPtrCopy
	}
	return memobj.NewBufferWithHostPtr(c.pool, int64(len(hostData)), flags, hostData), nil
}

// CreateSubBuffer creates a view into parent at [offset,
// offset+size). The offset's alignment against the device is checked
// later, at bind time.
func (c *Context) CreateSubBuffer(parent *MemObject, offset, size int64, flags Flags) (*MemObject, error) {
	if parent == nil || !object.IsA(&parent.Obj, object.KindMemObject) {
		return nil, NewError("CreateSubBuffer", ErrCodeInvalidObject, "parent is not a live memory object")
	}
	sub, err := memobj.NewSubBuffer(parent, offset, size, flags)
	if err != nil {
		return nil, WrapError("CreateSubBuffer", ErrCodeArgumentValidation, err)
	}
	return sub, nil
}

// CreateImage2D creates a 2D image, validating its dimensions against
// the device's limits.
func (c *Context) CreateImage2D(width, height, rowPitch int, format ImageFormat, flags Flags) (*MemObject, error) {
	if width <= 0 || height <= 0 || format.BytesPerPixel <= 0 {
		return nil, NewError("CreateImage2D", ErrCodeArgumentValidation, "image dimensions and pixel size must be positive")
	}
	img := memobj.NewImage2D(width, height, rowPitch, format, flags)
	if err := img.CheckImageLimits(c.device.info); err != nil {
		object.Release(&img.Obj)
		return nil, WrapError("CreateImage2D", ErrCodeArgumentValidation, err)
	}
	return img, nil
}

// CreateImage3D creates a 3D image, validating its dimensions against
// the device's limits.
func (c *Context) CreateImage3D(width, height, depth, rowPitch, slicePitch int, format ImageFormat, flags Flags) (*MemObject, error) {
	if width <= 0 || height <= 0 || depth <= 0 || format.BytesPerPixel <= 0 {
		return nil, NewError("CreateImage3D", ErrCodeArgumentValidation, "image dimensions and pixel size must be positive")
	}
	img := memobj.NewImage3D(width, height, depth, rowPitch, slicePitch, format, flags)
	if err := img.CheckImageLimits(c.device.info); err != nil {
		object.Release(&img.Obj)
		return nil, WrapError("CreateImage3D", ErrCodeArgumentValidation, err)
	}
	return img, nil
}

// Program is a built module plus the context whose JIT will resolve
// its kernels.
type Program struct {
	Obj object.Object

	ctx      *Context
	module   Module
	buildLog compiler.BuildLog
}

// OnDestroy satisfies the registry's destroyer hook.
func (p *Program) OnDestroy() {}

// BuildLog returns the compiler diagnostics from the build that
// produced this program.
func (p *Program) BuildLog() string { return string(p.buildLog) }

// BuildProgram lowers source text through the context's compiler.
func (c *Context) BuildProgram(source, options string) (*Program, error) {
	if c.compiler == nil {
		return nil, NewError("BuildProgram", ErrCodeBuildFailure, "context has no compiler")
	}
	module, buildLog, err := c.compiler.Compile(source, options)
	if err != nil {
		return nil, &Error{
			Op:    "BuildProgram",
			Code:  ErrCodeBuildFailure,
			Msg:   string(buildLog),
			Inner: err,
		}
	}
	return c.newProgram(module, buildLog), nil
}

// CreateProgramFromModule wraps a pre-built module (e.g. a native
// in-memory module from NewNativeProgram) as a Program.
func (c *Context) CreateProgramFromModule(module Module) *Program {
	return c.newProgram(module, "")
}

func (c *Context) newProgram(module Module, buildLog compiler.BuildLog) *Program {
	p := &Program{ctx: c, module: module, buildLog: buildLog}
	object.Init(&p.Obj, object.KindProgram, p, &c.Obj, false)
	return p
}

// CreateKernel resolves the named kernel entry point in the program
// and wraps it with numArgs unset argument slots.
func (p *Program) CreateKernel(name string, numArgs int) (*Kernel, error) {
	handle, ok := p.module.Kernel(name)
	if !ok {
		return nil, NewError("CreateKernel", ErrCodeArgumentValidation, fmt.Sprintf("program has no kernel %q", name))
	}
	return kernel.New(name, handle, p.ctx.jit, numArgs), nil
}

// NewUserEvent creates a user event the host completes (or fails)
// directly via SetStatus.
func (c *Context) NewUserEvent() *Event {
	return event.NewUser()
}

// Reference-count helpers for handles whose lifetime outlives a single
// call. Each Release may destroy the object; using a handle after its
// last release is caught by the registry's liveness check, not by the
// type system.

func RetainEvent(e *Event)          { object.Retain(&e.Obj) }
func ReleaseEvent(e *Event)         { object.Release(&e.Obj) }
func RetainMemObject(m *MemObject)  { object.Retain(&m.Obj) }
func ReleaseMemObject(m *MemObject) { object.Release(&m.Obj) }
func RetainKernel(k *Kernel)        { object.Retain(&k.Obj) }
func ReleaseKernel(k *Kernel)       { object.Release(&k.Obj) }
func RetainProgram(p *Program)      { object.Retain(&p.Obj) }
func ReleaseProgram(p *Program)     { object.Release(&p.Obj) }

// EventIsLive reports whether e still refers to a live event object.
func EventIsLive(e *Event) bool { return e != nil && object.IsA(&e.Obj, object.KindEvent) }

// MemObjectIsLive reports whether m still refers to a live memory
// object.
func MemObjectIsLive(m *MemObject) bool { return m != nil && object.IsA(&m.Obj, object.KindMemObject) }
