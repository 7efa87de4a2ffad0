package shader

// ShaderBuilderOption is a functional option applied to a shader during NewShader.
type ShaderBuilderOption func(*shader)

// WithPreProcessor sets the pre-processor used to expand directives. Shaders sharing a
// registry of includes should share one pre-processor.
//
// Parameters:
//   - pp: the pre-processor
//
// Returns:
//   - ShaderBuilderOption: a function that applies the pre-processor option to a shader
func WithPreProcessor(pp PreProcessor) ShaderBuilderOption {
	return func(s *shader) {
		s.pp = pp
	}
}

// WithCompiler sets the front end the expanded source is checked with. The default is naga.
//
// Parameters:
//   - c: the compiler
//
// Returns:
//   - ShaderBuilderOption: a function that applies the compiler option to a shader
func WithCompiler(c Compiler) ShaderBuilderOption {
	return func(s *shader) {
		s.compiler = c
	}
}
