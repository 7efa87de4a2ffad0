// Package pipeline compiles WGSL programs into immutable render pipelines. Every input that
// affects the compiled result takes part in a canonical cache key, so building the same tuple
// twice returns the same Pipeline and a failed build leaves nothing behind.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrEntryPointNotFound is wrapped by the ShaderCompileError returned when a requested entry
// point does not exist in the program.
var ErrEntryPointNotFound = errors.New("entry point not found")

// builder is the implementation of the Builder interface.
type builder struct {
	mu       *sync.Mutex
	device   device.Device
	compiler shader.Compiler
	pp       shader.PreProcessor
	cache    map[string]*pipeline
}

// Builder compiles and caches render pipelines.
type Builder interface {
	// Build validates source against the options and compiles it into a Pipeline, or returns
	// the cached Pipeline for an identical input tuple.
	//
	// Parameters:
	//   - source: the WGSL program
	//   - opts: the build options; see the With* functions
	//
	// Returns:
	//   - Pipeline: the compiled pipeline
	//   - error: a *gpu_error.ShaderCompileError if the program or an entry point is rejected,
	//     a *gpu_error.LayoutMismatchError if the program consumes a location or resource the
	//     layouts do not provide
	Build(source string, opts ...PipelineBuilderOption) (Pipeline, error)

	// Lookup returns the cached Pipeline for an input tuple without building it.
	Lookup(source string, opts ...PipelineBuilderOption) (Pipeline, bool)

	// Len returns the number of cached pipelines.
	Len() int

	// Release frees every cached pipeline and empties the cache.
	Release()
}

var _ Builder = &builder{}

// NewBuilder creates a pipeline Builder on dev.
//
// Parameters:
//   - dev: the device pipelines are created on
//   - opts: functional options such as WithShaderCompiler
//
// Returns:
//   - Builder: the new builder
func NewBuilder(dev device.Device, opts ...BuilderOption) Builder {
	b := &builder{
		mu:     &sync.Mutex{},
		device: dev,
		cache:  make(map[string]*pipeline),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.compiler == nil {
		b.compiler = shader.NewNagaCompiler()
	}
	if b.pp == nil {
		b.pp = shader.NewPreProcessor()
	}
	return b
}

func (b *builder) Build(source string, opts ...PipelineBuilderOption) (Pipeline, error) {
	cfg := b.config(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	key := canonicalKey(source, cfg)

	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.cache[key]; ok {
		return p, nil
	}

	p, err := b.build(key, source, cfg)
	if err != nil {
		common.Logger().Warn("pipeline build failed", "label", cfg.label, "error", err)
		return nil, err
	}
	b.cache[key] = p
	common.Logger().Debug("pipeline built", "label", cfg.label, "key", key[:12], "groups", len(cfg.resourceLayout))
	return p, nil
}

func (b *builder) Lookup(source string, opts ...PipelineBuilderOption) (Pipeline, bool) {
	key := canonicalKey(source, b.config(opts))

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.cache[key]
	if !ok {
		return nil, false
	}
	return p, true
}

func (b *builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cache)
}

func (b *builder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, p := range b.cache {
		p.release()
		delete(b.cache, key)
	}
}

func (b *builder) config(opts []PipelineBuilderOption) config {
	cfg := defaultConfig(b.device.SurfaceFormat())
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// build runs the checks and device calls of a cache miss. Device objects created before a
// failure are released.
func (b *builder) build(key, source string, cfg config) (_ *pipeline, err error) {
	s, err := shader.NewShader(cfg.label, source, shader.WithCompiler(b.compiler), shader.WithPreProcessor(b.pp))
	if err != nil {
		return nil, err
	}
	if err := checkEntryPoints(s, cfg); err != nil {
		return nil, err
	}
	if err := checkVertexInputs(s, cfg); err != nil {
		return nil, err
	}
	if err := checkBindings(s, cfg); err != nil {
		return nil, err
	}

	p := &pipeline{
		key:    key,
		label:  cfg.label,
		shader: s,
		cfg:    cfg,
	}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	maxGroup := -1
	for g := range cfg.resourceLayout {
		maxGroup = max(maxGroup, g)
	}
	p.bindGroupLayouts = make([]device.BindGroupLayout, maxGroup+1)
	for g := range p.bindGroupLayouts {
		desc, ok := cfg.resourceLayout[g]
		if !ok {
			desc = wgpu.BindGroupLayoutDescriptor{Label: fmt.Sprintf("%s Empty Group %d", cfg.label, g)}
		}
		layout, layoutErr := b.device.CreateBindGroupLayout(&desc)
		if layoutErr != nil {
			return nil, fmt.Errorf("pipeline %s: failed to create bind group layout for group %d: %w", cfg.label, g, layoutErr)
		}
		p.bindGroupLayouts[g] = layout
	}

	p.module, err = b.device.CreateShaderModule(cfg.label, s.Source())
	if err != nil {
		return nil, &gpu_error.ShaderCompileError{Label: cfg.label, Diagnostics: err.Error(), Err: err}
	}

	p.renderPipeline, err = b.device.CreateRenderPipeline(device.RenderPipelineDescriptor{
		Label:              cfg.label + " Render Pipeline",
		Module:             p.module,
		VertexEntryPoint:   cfg.vertexEntryPoint,
		FragmentEntryPoint: cfg.fragmentEntryPoint,
		VertexBuffers:      cfg.vertexLayouts,
		BindGroupLayouts:   p.bindGroupLayouts,
		Target: wgpu.ColorTargetState{
			Format:    cfg.format,
			Blend:     cfg.blendPolicy.blendState(),
			WriteMask: cfg.writeMask,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  cfg.topology,
			FrontFace: cfg.frontFace,
			CullMode:  cfg.cullMode,
		},
		SampleCount:  cfg.sampleCount,
		DepthStencil: cfg.depthPolicy.depthStencilState(cfg.depthBias, cfg.depthBiasSlope),
	})
	if err != nil {
		return nil, &gpu_error.ShaderCompileError{Label: cfg.label, Diagnostics: err.Error(), Err: err}
	}
	return p, nil
}

func (c config) validate() error {
	if !device.MSAASampleCount(c.sampleCount).Valid() {
		return fmt.Errorf("pipeline %s: unsupported sample count %d", c.label, c.sampleCount)
	}
	if c.vertexEntryPoint == "" || c.fragmentEntryPoint == "" {
		return fmt.Errorf("pipeline %s: entry point names must not be empty", c.label)
	}
	for g := range c.resourceLayout {
		if g < 0 {
			return fmt.Errorf("pipeline %s: negative group index %d", c.label, g)
		}
	}
	return nil
}

func checkEntryPoints(s shader.Shader, cfg config) error {
	checks := []struct {
		stage shader.Stage
		name  string
	}{
		{shader.StageVertex, cfg.vertexEntryPoint},
		{shader.StageFragment, cfg.fragmentEntryPoint},
	}
	for _, c := range checks {
		if s.HasEntryPoint(c.stage, c.name) {
			continue
		}
		err := fmt.Errorf("%s %q: %w", c.stage, c.name, ErrEntryPointNotFound)
		return &gpu_error.ShaderCompileError{
			Label:       cfg.label,
			Diagnostics: fmt.Sprintf("no @%s function named %q; found %v", c.stage, c.name, s.EntryPoints(c.stage)),
			Err:         err,
		}
	}
	return nil
}

func checkVertexInputs(s shader.Shader, cfg config) error {
	provided := make(map[uint32]bool)
	for _, l := range cfg.vertexLayouts {
		for _, a := range l.Attributes {
			provided[a.ShaderLocation] = true
		}
	}

	inputs, _ := s.Inputs(cfg.vertexEntryPoint)
	for _, in := range inputs {
		if !provided[in.Location] {
			return &gpu_error.LayoutMismatchError{
				Label:  cfg.label,
				Detail: fmt.Sprintf("vertex input %s @location(%d) is not provided by the vertex layout", in.Name, in.Location),
			}
		}
	}
	return nil
}

func checkBindings(s shader.Shader, cfg config) error {
	for _, b := range s.Bindings() {
		desc, ok := cfg.resourceLayout[b.Group]
		if !ok {
			return &gpu_error.LayoutMismatchError{
				Label:  cfg.label,
				Detail: fmt.Sprintf("%s @group(%d) has no layout", b.Name, b.Group),
			}
		}
		idx := slices.IndexFunc(desc.Entries, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Binding == uint32(b.Binding)
		})
		if idx < 0 {
			return &gpu_error.LayoutMismatchError{
				Label:  cfg.label,
				Detail: fmt.Sprintf("%s @group(%d) @binding(%d) is missing from the layout", b.Name, b.Group, b.Binding),
			}
		}
		if got := shader.ClassOf(desc.Entries[idx]); got != b.Class {
			return &gpu_error.LayoutMismatchError{
				Label:  cfg.label,
				Detail: fmt.Sprintf("%s @group(%d) @binding(%d) is a %s in the program but a %s in the layout", b.Name, b.Group, b.Binding, b.Class, got),
			}
		}
	}
	return nil
}

// canonicalKey hashes the source and every keyed field of cfg. Map-valued inputs are written
// in sorted order.
func canonicalKey(source string, cfg config) string {
	h := sha256.New()
	writeField(h, "source", source)
	for i, l := range cfg.vertexLayouts {
		writeField(h, "vertex", i, l.ArrayStride, l.StepMode)
		for _, a := range l.Attributes {
			writeField(h, "attr", a.ShaderLocation, a.Format, a.Offset)
		}
	}

	groups := make([]int, 0, len(cfg.resourceLayout))
	for g := range cfg.resourceLayout {
		groups = append(groups, g)
	}
	sort.Ints(groups)
	for _, g := range groups {
		entries := slices.Clone(cfg.resourceLayout[g].Entries)
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		writeField(h, "group", g, len(entries))
		for _, e := range entries {
			writeField(h, "entry", e.Binding, e.Visibility,
				e.Buffer.Type, e.Buffer.HasDynamicOffset, e.Buffer.MinBindingSize,
				e.Sampler.Type,
				e.Texture.SampleType, e.Texture.ViewDimension, e.Texture.Multisampled,
				e.StorageTexture.Access, e.StorageTexture.Format, e.StorageTexture.ViewDimension)
		}
	}

	writeField(h, "target", cfg.format, cfg.sampleCount, cfg.writeMask)
	writeField(h, "depth", cfg.depthPolicy, cfg.depthBias, cfg.depthBiasSlope)
	writeField(h, "blend", cfg.blendPolicy)
	writeField(h, "entry_points", cfg.vertexEntryPoint, cfg.fragmentEntryPoint)
	writeField(h, "primitive", cfg.topology, cfg.frontFace, cfg.cullMode)
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes one length-delimited record so adjacent values can never run together.
func writeField(h hash.Hash, name string, values ...any) {
	var sb strings.Builder
	sb.WriteString(name)
	for _, v := range values {
		fmt.Fprintf(&sb, "|%#v", v)
	}
	fmt.Fprintf(h, "%d:%s;", sb.Len(), sb.String())
}
