package pipeline

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// Build defaults.
const (
	DefaultVertexEntryPoint   = "vertexMain"
	DefaultFragmentEntryPoint = "fragmentMain"
	DefaultSampleCount        = 4
)

// config is the full input tuple of a Build call apart from the source. Every field
// takes part in the cache key except label.
type config struct {
	label              string
	vertexLayouts      []wgpu.VertexBufferLayout
	resourceLayout     map[int]wgpu.BindGroupLayoutDescriptor
	format             wgpu.TextureFormat
	sampleCount        uint32
	depthPolicy        DepthPolicy
	depthBias          int32
	depthBiasSlope     float32
	blendPolicy        BlendPolicy
	writeMask          wgpu.ColorWriteMask
	vertexEntryPoint   string
	fragmentEntryPoint string
	cullMode           wgpu.CullMode
	topology           wgpu.PrimitiveTopology
	frontFace          wgpu.FrontFace
}

func defaultConfig(format wgpu.TextureFormat) config {
	return config{
		label:              "Pipeline",
		resourceLayout:     map[int]wgpu.BindGroupLayoutDescriptor{},
		format:             format,
		sampleCount:        DefaultSampleCount,
		depthPolicy:        DepthTestWrite,
		blendPolicy:        BlendOpaque,
		writeMask:          wgpu.ColorWriteMaskAll,
		vertexEntryPoint:   DefaultVertexEntryPoint,
		fragmentEntryPoint: DefaultFragmentEntryPoint,
		cullMode:           wgpu.CullModeNone,
		topology:           wgpu.PrimitiveTopologyTriangleList,
		frontFace:          wgpu.FrontFaceCCW,
	}
}

// PipelineBuilderOption is a functional option used to configure a single Build call.
type PipelineBuilderOption func(*config)

// WithLabel sets the debug label of the pipeline and its device objects. The label does not
// take part in the cache key.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - PipelineBuilderOption: a function that sets the label
func WithLabel(label string) PipelineBuilderOption {
	return func(c *config) {
		c.label = label
	}
}

// WithVertexLayouts sets the vertex buffer layouts, one per vertex buffer slot in order.
//
// Parameters:
//   - layouts: the vertex buffer layouts
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex layouts
func WithVertexLayouts(layouts ...wgpu.VertexBufferLayout) PipelineBuilderOption {
	return func(c *config) {
		c.vertexLayouts = append([]wgpu.VertexBufferLayout(nil), layouts...)
	}
}

// WithResourceLayout sets the bind group layout descriptors keyed by group index. Groups
// absent from the map but below the highest index are bound as empty groups.
//
// Parameters:
//   - layout: the descriptors keyed by group index
//
// Returns:
//   - PipelineBuilderOption: a function that sets the resource layout
func WithResourceLayout(layout map[int]wgpu.BindGroupLayoutDescriptor) PipelineBuilderOption {
	return func(c *config) {
		c.resourceLayout = make(map[int]wgpu.BindGroupLayoutDescriptor, len(layout))
		for g, desc := range layout {
			c.resourceLayout[g] = desc
		}
	}
}

// WithGroupLayout sets the descriptor of a single group, leaving the others as they are.
func WithGroupLayout(group int, desc wgpu.BindGroupLayoutDescriptor) PipelineBuilderOption {
	return func(c *config) {
		if c.resourceLayout == nil {
			c.resourceLayout = make(map[int]wgpu.BindGroupLayoutDescriptor)
		}
		c.resourceLayout[group] = desc
	}
}

// WithFormat sets the color target format. The default is the device's surface format.
func WithFormat(format wgpu.TextureFormat) PipelineBuilderOption {
	return func(c *config) {
		c.format = format
	}
}

// WithSampleCount sets the multisample count. The default is 4.
func WithSampleCount(count uint32) PipelineBuilderOption {
	return func(c *config) {
		c.sampleCount = count
	}
}

// WithDepthPolicy sets the depth policy. The default is DepthTestWrite.
func WithDepthPolicy(policy DepthPolicy) PipelineBuilderOption {
	return func(c *config) {
		c.depthPolicy = policy
	}
}

// WithDepthBias sets the constant and slope-scaled depth bias.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth bias
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(c *config) {
		c.depthBias = bias
		c.depthBiasSlope = slopeScale
	}
}

// WithBlendPolicy sets the blend policy. The default is BlendOpaque.
func WithBlendPolicy(policy BlendPolicy) PipelineBuilderOption {
	return func(c *config) {
		c.blendPolicy = policy
	}
}

// WithWriteMask sets the color write mask. The default is wgpu.ColorWriteMaskAll.
func WithWriteMask(mask wgpu.ColorWriteMask) PipelineBuilderOption {
	return func(c *config) {
		c.writeMask = mask
	}
}

// WithEntryPoints sets the vertex and fragment entry point names. The defaults are
// vertexMain and fragmentMain.
//
// Parameters:
//   - vertex: the vertex entry point
//   - fragment: the fragment entry point
//
// Returns:
//   - PipelineBuilderOption: a function that sets the entry points
func WithEntryPoints(vertex, fragment string) PipelineBuilderOption {
	return func(c *config) {
		c.vertexEntryPoint = vertex
		c.fragmentEntryPoint = fragment
	}
}

// WithCullMode sets the cull mode. The default is wgpu.CullModeNone.
func WithCullMode(mode wgpu.CullMode) PipelineBuilderOption {
	return func(c *config) {
		c.cullMode = mode
	}
}

// WithTopology sets the primitive topology. The default is a triangle list.
func WithTopology(topology wgpu.PrimitiveTopology) PipelineBuilderOption {
	return func(c *config) {
		c.topology = topology
	}
}

// WithFrontFace sets the front face winding order. The default is counter-clockwise.
func WithFrontFace(frontFace wgpu.FrontFace) PipelineBuilderOption {
	return func(c *config) {
		c.frontFace = frontFace
	}
}

// BuilderOption is a functional option applied to a Builder during NewBuilder.
type BuilderOption func(*builder)

// WithShaderCompiler sets the front end programs are checked with. The default is naga.
//
// Parameters:
//   - c: the compiler
//
// Returns:
//   - BuilderOption: a function that sets the compiler
func WithShaderCompiler(c shader.Compiler) BuilderOption {
	return func(b *builder) {
		b.compiler = c
	}
}

// WithShaderPreProcessor sets the pre-processor whose includes programs may use.
func WithShaderPreProcessor(pp shader.PreProcessor) BuilderOption {
	return func(b *builder) {
		b.pp = pp
	}
}
