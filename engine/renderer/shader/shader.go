// Package shader analyzes WGSL programs for the pipeline builder. It expands @oxy:
// directives, runs the program through a front end for diagnostics, and extracts
// the entry points, the vertex inputs each entry point consumes, and every
// @group/@binding resource with its class.
package shader

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/cogentcore/webgpu/wgpu"
)

// Stage identifies the pipeline stage an entry point runs in.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Visibility returns the wgpu shader stage flag for s.
func (s Stage) Visibility() wgpu.ShaderStage {
	switch s {
	case StageVertex:
		return wgpu.ShaderStageVertex
	case StageFragment:
		return wgpu.ShaderStageFragment
	case StageCompute:
		return wgpu.ShaderStageCompute
	default:
		return wgpu.ShaderStageNone
	}
}

// ResourceClass is the coarse kind of a bound resource. Bindings only match a layout
// entry of the same class.
type ResourceClass int

const (
	ResourceClassUndefined ResourceClass = iota
	ResourceClassBuffer
	ResourceClassTexture
	ResourceClassSampler
)

func (c ResourceClass) String() string {
	switch c {
	case ResourceClassBuffer:
		return "buffer"
	case ResourceClassTexture:
		return "texture"
	case ResourceClassSampler:
		return "sampler"
	default:
		return "undefined"
	}
}

// ClassOf reports the resource class a bind group layout entry describes.
//
// Parameters:
//   - entry: the layout entry to classify
//
// Returns:
//   - ResourceClass: the class, or ResourceClassUndefined for an empty entry
func ClassOf(entry wgpu.BindGroupLayoutEntry) ResourceClass {
	switch {
	case entry.Buffer.Type != wgpu.BufferBindingTypeUndefined:
		return ResourceClassBuffer
	case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
		return ResourceClassSampler
	case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined,
		entry.StorageTexture.Format != wgpu.TextureFormatUndefined:
		return ResourceClassTexture
	default:
		return ResourceClassUndefined
	}
}

// Location is one vertex input consumed by a vertex entry point.
type Location struct {
	Location uint32
	Name     string
	Type     string
	// Format is the vertex format the WGSL type is normally fed from, or zero when the
	// type has no direct vertex format.
	Format wgpu.VertexFormat
}

// Binding is one @group/@binding resource declared by the program.
type Binding struct {
	Group        int
	Binding      int
	Name         string
	Type         string
	AddressSpace string
	Class        ResourceClass
	// Size is the minimum binding size of a buffer resource, or 0 when unknown.
	Size uint64
	// Entry is the layout entry the declaration implies, without visibility.
	Entry wgpu.BindGroupLayoutEntry
}

// shader is the implementation of the Shader interface.
type shader struct {
	key          string
	source       string
	entryPoints  []parsedFunction
	structs      []parsedStruct
	bindings     []Binding
	declarations []Annotation

	pp       PreProcessor
	compiler Compiler
}

// Shader is an analyzed WGSL program. It is immutable once created.
type Shader interface {
	// Key retrieves the identifier the shader was created with, used as its debug label.
	Key() string

	// Source retrieves the WGSL source after directive expansion. This is the text handed
	// to the device.
	Source() string

	// EntryPoints lists the entry point names of a stage in source order.
	//
	// Parameters:
	//   - stage: the stage to list
	//
	// Returns:
	//   - []string: the entry point names
	EntryPoints(stage Stage) []string

	// HasEntryPoint reports whether name is an entry point of the given stage.
	HasEntryPoint(stage Stage, name string) bool

	// Inputs lists the @location inputs a vertex entry point consumes, sorted by location.
	// Inputs are taken from the entry point's parameters and from the members of any struct
	// parameter. Builtins are excluded.
	//
	// Parameters:
	//   - entryPoint: the vertex entry point name
	//
	// Returns:
	//   - []Location: the consumed locations
	//   - bool: false if entryPoint is not a vertex entry point
	Inputs(entryPoint string) ([]Location, bool)

	// Bindings lists every @group/@binding resource, sorted by group then binding.
	Bindings() []Binding

	// Binding looks up one resource declaration.
	Binding(group, binding int) (Binding, bool)

	// BindGroupLayoutDescriptors derives layout descriptors from the declarations, keyed by
	// group index, with the given visibility on every entry.
	//
	// Parameters:
	//   - visibility: the shader stages to set on each entry
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors(visibility wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor

	// Declarations returns the group directives expanded by the pre-processor.
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader expands, compiles and analyzes a WGSL program.
//
// Directive and front-end failures are returned as *gpu_error.ShaderCompileError carrying
// the diagnostic text verbatim.
//
// Parameters:
//   - key: the shader identifier, used as its debug label
//   - source: the WGSL source
//   - options: functional options such as WithPreProcessor or WithCompiler
//
// Returns:
//   - Shader: the analyzed program
//   - error: a *gpu_error.ShaderCompileError if the program is rejected
func NewShader(key, source string, options ...ShaderBuilderOption) (Shader, error) {
	s := &shader{
		key: key,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.pp == nil {
		s.pp = NewPreProcessor()
	}
	if s.compiler == nil {
		s.compiler = NewNagaCompiler()
	}

	expanded, declarations, err := s.pp.Process(source)
	if err != nil {
		return nil, &gpu_error.ShaderCompileError{Label: key, Diagnostics: err.Error(), Err: err}
	}
	s.source = expanded
	s.declarations = declarations

	if err := s.compiler.Compile(key, expanded); err != nil {
		var compileErr *gpu_error.ShaderCompileError
		if errors.As(err, &compileErr) {
			return nil, err
		}
		return nil, &gpu_error.ShaderCompileError{Label: key, Diagnostics: err.Error(), Err: err}
	}

	cleaned := stripComments(expanded)
	s.structs = parseStructBlocks(cleaned)
	s.entryPoints = parseEntryPoints(cleaned)
	s.bindings = parseBindings(cleaned, s.structs)
	return s, nil
}

// LoadShader reads a WGSL file and passes its contents to NewShader.
//
// Parameters:
//   - key: the shader identifier
//   - path: the WGSL file path
//   - options: functional options forwarded to NewShader
//
// Returns:
//   - Shader: the analyzed program
//   - error: an error if the file cannot be read or the program is rejected
func LoadShader(key, path string, options ...ShaderBuilderOption) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read source file %q: %w", path, err)
	}
	return NewShader(key, string(data), options...)
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoints(stage Stage) []string {
	var names []string
	for _, fn := range s.entryPoints {
		if fn.stage == stage {
			names = append(names, fn.name)
		}
	}
	return names
}

func (s *shader) HasEntryPoint(stage Stage, name string) bool {
	return slices.Contains(s.EntryPoints(stage), name)
}

func (s *shader) Inputs(entryPoint string) ([]Location, bool) {
	for _, fn := range s.entryPoints {
		if fn.stage != StageVertex || fn.name != entryPoint {
			continue
		}
		return resolveInputs(fn, s.structs), true
	}
	return nil, false
}

func (s *shader) Bindings() []Binding {
	return slices.Clone(s.bindings)
}

func (s *shader) Binding(group, binding int) (Binding, bool) {
	for _, b := range s.bindings {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return Binding{}, false
}

func (s *shader) BindGroupLayoutDescriptors(visibility wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor {
	groups := make(map[int][]wgpu.BindGroupLayoutEntry)
	for _, b := range s.bindings {
		entry := b.Entry
		entry.Visibility = visibility
		groups[b.Group] = append(groups[b.Group], entry)
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		result[g] = wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s Group %d Layout", s.key, g),
			Entries: entries,
		}
	}
	return result
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}
