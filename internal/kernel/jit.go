package kernel

import "github.com/cloverproject/clovercore/internal/compiler"

// KernelFunc is the native code address the JIT hands back for a
// trampoline: a function over one work-item's cooperative context and
// its resolved argument vector. Every in-kernel builtin (GlobalID,
// LocalID, Barrier) is reached through ctx.
type KernelFunc func(ctx *WorkItemContext, args []any)

// JIT is the external collaborator that turns a compiled
// FunctionHandle into native code. The engine never
// inspects a FunctionHandle itself; it only ever resolves one through
// JIT and calls the result.
type JIT interface {
	AddressOf(h compiler.FunctionHandle) (KernelFunc, error)
}

// NativeJIT resolves a FunctionHandle that is already a KernelFunc —
// the identity case exercised by internal/compiler's in-memory
// NativeModule stand-in, where a "compiled" kernel is just a Go
// closure registered under its name.
type NativeJIT struct{}

func (NativeJIT) AddressOf(h compiler.FunctionHandle) (KernelFunc, error) {
	fn, ok := h.(KernelFunc)
	if !ok {
		return nil, &BadHandleError{Handle: h}
	}
	return fn, nil
}

// BadHandleError is returned when a FunctionHandle's concrete type
// isn't one NativeJIT knows how to address.
type BadHandleError struct {
	Handle compiler.FunctionHandle
}

func (e *BadHandleError) Error() string {
	return "kernel: function handle is not a native KernelFunc"
}
