package pipeline

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// DepthPolicy selects how a pipeline uses the depth attachment. Every pipeline carries a
// depth-stencil state because every render target owns a depth texture.
type DepthPolicy int

const (
	// DepthTestWrite tests against and writes to depth. This is the default.
	DepthTestWrite DepthPolicy = iota
	// DepthTestReadOnly tests against depth without writing it.
	DepthTestReadOnly
	// DepthDisabled always passes and never writes.
	DepthDisabled
)

func (d DepthPolicy) String() string {
	switch d {
	case DepthTestWrite:
		return "test-write"
	case DepthTestReadOnly:
		return "test-read-only"
	case DepthDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("DepthPolicy(%d)", int(d))
	}
}

// depthStencilState builds the wgpu depth-stencil state for d.
func (d DepthPolicy) depthStencilState(bias int32, slopeScale float32) *wgpu.DepthStencilState {
	compare := wgpu.CompareFunctionLess
	if d == DepthDisabled {
		compare = wgpu.CompareFunctionAlways
	}
	return &wgpu.DepthStencilState{
		Format:              device.DepthFormat,
		DepthWriteEnabled:   d == DepthTestWrite,
		DepthCompare:        compare,
		DepthBias:           bias,
		DepthBiasSlopeScale: slopeScale,
		StencilFront: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
		StencilBack: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
	}
}

// BlendPolicy selects the color blend applied to the single color target.
type BlendPolicy int

const (
	// BlendOpaque replaces the destination. This is the default.
	BlendOpaque BlendPolicy = iota
	// BlendAlpha is straight alpha blending.
	BlendAlpha
	// BlendAdditive adds the source onto the destination.
	BlendAdditive
)

func (b BlendPolicy) String() string {
	switch b {
	case BlendOpaque:
		return "opaque"
	case BlendAlpha:
		return "alpha"
	case BlendAdditive:
		return "additive"
	default:
		return fmt.Sprintf("BlendPolicy(%d)", int(b))
	}
}

// blendState returns the wgpu blend state for b, or nil for opaque.
func (b BlendPolicy) blendState() *wgpu.BlendState {
	switch b {
	case BlendAlpha:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	case BlendAdditive:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	default:
		return nil
	}
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	key    string
	label  string
	shader shader.Shader

	renderPipeline   device.RenderPipeline
	module           device.ShaderModule
	bindGroupLayouts []device.BindGroupLayout

	cfg config
}

// Pipeline is an immutable compiled render pipeline together with the inputs it was built from.
// Identical inputs to Builder.Build return the identical Pipeline.
type Pipeline interface {
	// Key returns the canonical cache key of the pipeline's inputs.
	Key() string

	// Label returns the debug label the pipeline was built with.
	Label() string

	// RenderPipeline returns the device pipeline to bind in a render pass.
	RenderPipeline() device.RenderPipeline

	// Shader returns the analyzed program the pipeline was compiled from.
	Shader() shader.Shader

	// VertexEntryPoint returns the vertex stage entry point name.
	VertexEntryPoint() string

	// FragmentEntryPoint returns the fragment stage entry point name.
	FragmentEntryPoint() string

	// VertexLayouts returns the vertex buffer layouts, one per vertex buffer slot.
	VertexLayouts() []wgpu.VertexBufferLayout

	// ResourceLayout returns the bind group layout descriptors keyed by group index.
	ResourceLayout() map[int]wgpu.BindGroupLayoutDescriptor

	// Groups returns the group indices of the resource layout in ascending order.
	Groups() []int

	// Format returns the color target format the pipeline renders to.
	Format() wgpu.TextureFormat

	// SampleCount returns the multisample count the pipeline renders with.
	SampleCount() uint32

	// DepthPolicy returns the depth policy the pipeline was built with.
	DepthPolicy() DepthPolicy

	// BlendPolicy returns the blend policy the pipeline was built with.
	BlendPolicy() BlendPolicy

	// Primitive returns the primitive state: topology, front face and cull mode.
	Primitive() wgpu.PrimitiveState
}

var _ Pipeline = &pipeline{}

func (p *pipeline) Key() string {
	return p.key
}

func (p *pipeline) Label() string {
	return p.label
}

func (p *pipeline) RenderPipeline() device.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) VertexEntryPoint() string {
	return p.cfg.vertexEntryPoint
}

func (p *pipeline) FragmentEntryPoint() string {
	return p.cfg.fragmentEntryPoint
}

func (p *pipeline) VertexLayouts() []wgpu.VertexBufferLayout {
	return slices.Clone(p.cfg.vertexLayouts)
}

func (p *pipeline) ResourceLayout() map[int]wgpu.BindGroupLayoutDescriptor {
	out := make(map[int]wgpu.BindGroupLayoutDescriptor, len(p.cfg.resourceLayout))
	for g, desc := range p.cfg.resourceLayout {
		out[g] = desc
	}
	return out
}

func (p *pipeline) Groups() []int {
	groups := make([]int, 0, len(p.cfg.resourceLayout))
	for g := range p.cfg.resourceLayout {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	return groups
}

func (p *pipeline) Format() wgpu.TextureFormat {
	return p.cfg.format
}

func (p *pipeline) SampleCount() uint32 {
	return p.cfg.sampleCount
}

func (p *pipeline) DepthPolicy() DepthPolicy {
	return p.cfg.depthPolicy
}

func (p *pipeline) BlendPolicy() BlendPolicy {
	return p.cfg.blendPolicy
}

func (p *pipeline) Primitive() wgpu.PrimitiveState {
	return wgpu.PrimitiveState{
		Topology:  p.cfg.topology,
		FrontFace: p.cfg.frontFace,
		CullMode:  p.cfg.cullMode,
	}
}

// release frees the device objects the pipeline owns.
func (p *pipeline) release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	for _, l := range p.bindGroupLayouts {
		if l != nil {
			l.Release()
		}
	}
	p.bindGroupLayouts = nil
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}
