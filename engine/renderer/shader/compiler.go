package shader

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/gogpu/naga"
)

// Compiler checks a WGSL program before it reaches the device.
type Compiler interface {
	// Compile rejects an invalid program with a *gpu_error.ShaderCompileError.
	//
	// Parameters:
	//   - label: the program's debug label
	//   - source: the expanded WGSL source
	//
	// Returns:
	//   - error: nil if the program is accepted
	Compile(label, source string) error
}

// CompilerFunc adapts an ordinary function to the Compiler interface.
type CompilerFunc func(label, source string) error

func (f CompilerFunc) Compile(label, source string) error {
	return f(label, source)
}

// nagaCompiler runs the naga WGSL front end, validator and SPIR-V back end. The SPIR-V
// output is discarded; the device compiles the WGSL text itself.
type nagaCompiler struct{}

var _ Compiler = nagaCompiler{}

// NewNagaCompiler returns the default Compiler, backed by github.com/gogpu/naga.
func NewNagaCompiler() Compiler {
	return nagaCompiler{}
}

func (nagaCompiler) Compile(label, source string) error {
	if _, err := naga.Compile(source); err != nil {
		return &gpu_error.ShaderCompileError{Label: label, Diagnostics: err.Error(), Err: err}
	}
	return nil
}
