package compiler

import "fmt"

// NativeModule is an in-memory stand-in for a compiled Module. It maps
// kernel names directly to opaque FunctionHandle values — in practice,
// for the demo and test harnesses in this repository, those handles are
// Go closures matching the JIT-facing kernel.KernelFunc signature,
// stored as FunctionHandle (interface{}) to avoid this package needing
// to depend on internal/kernel.
type NativeModule struct {
	kernels map[string]FunctionHandle
}

// NewNativeModule builds a Module directly from a name->handle table,
// bypassing Compile entirely. This is how tests and the demo CLI supply
// kernel bodies without a real compiler front-end.
func NewNativeModule(kernels map[string]FunctionHandle) *NativeModule {
	m := &NativeModule{kernels: make(map[string]FunctionHandle, len(kernels))}
	for k, v := range kernels {
		m.kernels[k] = v
	}
	return m
}

func (m *NativeModule) Kernel(name string) (FunctionHandle, bool) {
	h, ok := m.kernels[name]
	return h, ok
}

// NativeCompiler resolves build requests against a fixed registry of
// pre-built NativeModules keyed by source text, so callers can still go
// through the Compiler interface (e.g. clover.Context.BuildProgram)
// without a real front-end lowering anything.
type NativeCompiler struct {
	modules map[string]*NativeModule
}

// NewNativeCompiler creates a compiler whose "source text" is just a
// lookup key into modules.
func NewNativeCompiler(modules map[string]*NativeModule) *NativeCompiler {
	c := &NativeCompiler{modules: make(map[string]*NativeModule, len(modules))}
	for k, v := range modules {
		c.modules[k] = v
	}
	return c
}

func (c *NativeCompiler) Compile(source, _ string) (Module, BuildLog, error) {
	m, ok := c.modules[source]
	if !ok {
		return nil, BuildLog(fmt.Sprintf("no native module registered for %q", source)), fmt.Errorf("compiler: unknown source key %q", source)
	}
	return m, "", nil
}

func (c *NativeCompiler) ParseBinary(_ []byte) (Module, error) {
	return nil, fmt.Errorf("compiler: ParseBinary not supported by the native stand-in")
}
