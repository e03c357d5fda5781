// Package compiler defines the interfaces the scheduling core consumes
// from the compiler front-end and the JIT. Both are external
// collaborators: lowering source text to an
// intermediate module, and turning a function handle into native code,
// are explicitly out of scope for this repository. The core only ever
// calls Compile/ParseBinary to obtain a Module, and a Module's Kernel
// lookup to obtain a FunctionHandle.
package compiler

// FunctionHandle identifies a single kernel entry point inside a built
// Module. Its concrete representation is owned by the compiler/JIT
// pair; the core treats it as opaque.
type FunctionHandle interface{}

// Module is the intermediate representation produced by Compile or
// ParseBinary. The core only ever resolves named kernel entry points
// out of it.
type Module interface {
	// Kernel resolves a named kernel entry point. ok is false if the
	// module has no kernel with that name.
	Kernel(name string) (FunctionHandle, bool)
}

// BuildLog carries the diagnostic text a real compiler would produce
// alongside a failed or successful build.
type BuildLog string

// Compiler is the external front-end that lowers kernel source text to
// a Module.
type Compiler interface {
	Compile(source, options string) (Module, BuildLog, error)
	ParseBinary(bytes []byte) (Module, error)
}
