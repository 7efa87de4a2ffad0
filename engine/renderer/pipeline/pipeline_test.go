package pipeline

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device/mock"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const texturedSource = `
//@oxy:include vertex

struct ObjectUniform {
    mvp: mat4x4<f32>,
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@group(0) @binding(0) var<uniform> object: ObjectUniform;
@group(2) @binding(0) var diffuse: texture_2d<f32>;
@group(2) @binding(1) var diffuseSampler: sampler;

@vertex
fn vertexMain(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.position = object.mvp * vec4<f32>(in.position, 1.0);
    out.uv = in.uv;
    return out;
}

@fragment
fn fragmentMain(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(diffuse, diffuseSampler, in.uv);
}
`

var accept = shader.CompilerFunc(func(string, string) error { return nil })

func uniformGroup() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{Entries: []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageVertex, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
	}}
}

func materialGroup() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{Entries: []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageFragment, Texture: wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: wgpu.TextureViewDimension2D}},
		{Binding: 1, Visibility: wgpu.ShaderStageFragment, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
	}}
}

func texturedOptions() []PipelineBuilderOption {
	return []PipelineBuilderOption{
		WithVertexLayouts(common.VertexLayout()),
		WithResourceLayout(map[int]wgpu.BindGroupLayoutDescriptor{0: uniformGroup(), 2: materialGroup()}),
	}
}

func newBuilder() (Builder, *mock.Device) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8UnormSrgb)
	return NewBuilder(dev, WithShaderCompiler(accept)), dev
}

func TestIdenticalInputsShareOnePipeline(t *testing.T) {
	b, dev := newBuilder()

	first, err := b.Build(texturedSource, texturedOptions()...)
	require.NoError(t, err)
	second, err := b.Build(texturedSource, append(texturedOptions(), WithLabel("renamed"))...)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, dev.Count(mock.OpCreateRenderPipeline))

	found, ok := b.Lookup(texturedSource, texturedOptions()...)
	require.True(t, ok)
	assert.Same(t, first, found)

	third, err := b.Build(texturedSource, append(texturedOptions(), WithSampleCount(1))...)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.Key(), third.Key())
	assert.Equal(t, 2, b.Len())
}

func TestDefaults(t *testing.T) {
	b, _ := newBuilder()
	p, err := b.Build(texturedSource, texturedOptions()...)
	require.NoError(t, err)

	assert.Equal(t, "vertexMain", p.VertexEntryPoint())
	assert.Equal(t, "fragmentMain", p.FragmentEntryPoint())
	assert.Equal(t, uint32(4), p.SampleCount())
	assert.Equal(t, wgpu.TextureFormatBGRA8UnormSrgb, p.Format())
	assert.Equal(t, DepthTestWrite, p.DepthPolicy())
	assert.Equal(t, BlendOpaque, p.BlendPolicy())
	assert.Equal(t, []int{0, 2}, p.Groups())

	desc := p.RenderPipeline().(*mock.RenderPipeline).Desc
	require.Len(t, desc.BindGroupLayouts, 3, "group 1 is filled with an empty layout")
	assert.Empty(t, desc.BindGroupLayouts[1].(*mock.BindGroupLayout).Desc.Entries)
	require.NotNil(t, desc.DepthStencil)
	assert.True(t, desc.DepthStencil.DepthWriteEnabled)
	assert.Nil(t, desc.Target.Blend)
}

func TestMissingEntryPoint(t *testing.T) {
	b, dev := newBuilder()
	_, err := b.Build(texturedSource, append(texturedOptions(), WithEntryPoints("vertexMain", "shade"))...)

	var compileErr *gpu_error.ShaderCompileError
	require.ErrorAs(t, err, &compileErr)
	assert.True(t, errors.Is(err, ErrEntryPointNotFound))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, dev.Count(mock.OpCreateRenderPipeline))
}

func TestLayoutMismatches(t *testing.T) {
	tests := []struct {
		name string
		opts []PipelineBuilderOption
	}{
		{
			name: "missing vertex location",
			opts: []PipelineBuilderOption{
				WithVertexLayouts(wgpu.VertexBufferLayout{
					ArrayStride: 12,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 0}},
				}),
				WithResourceLayout(map[int]wgpu.BindGroupLayoutDescriptor{0: uniformGroup(), 2: materialGroup()}),
			},
		},
		{
			name: "missing group",
			opts: []PipelineBuilderOption{
				WithVertexLayouts(common.VertexLayout()),
				WithResourceLayout(map[int]wgpu.BindGroupLayoutDescriptor{0: uniformGroup()}),
			},
		},
		{
			name: "missing binding",
			opts: []PipelineBuilderOption{
				WithVertexLayouts(common.VertexLayout()),
				WithResourceLayout(map[int]wgpu.BindGroupLayoutDescriptor{0: uniformGroup(), 2: {Entries: materialGroup().Entries[:1]}}),
			},
		},
		{
			name: "class mismatch",
			opts: []PipelineBuilderOption{
				WithVertexLayouts(common.VertexLayout()),
				WithResourceLayout(map[int]wgpu.BindGroupLayoutDescriptor{0: materialGroup(), 2: materialGroup()}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBuilder()
			_, err := b.Build(texturedSource, tt.opts...)
			var mismatch *gpu_error.LayoutMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, 0, b.Len())
		})
	}
}

func TestDeviceFailureLeavesNoEntry(t *testing.T) {
	b, dev := newBuilder()
	dev.FailRenderPipelines(errors.New("validation error: target format"))

	_, err := b.Build(texturedSource, texturedOptions()...)
	var compileErr *gpu_error.ShaderCompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, compileErr.Diagnostics, "target format")
	assert.Equal(t, 0, b.Len())

	dev.FailRenderPipelines(nil)
	_, err = b.Build(texturedSource, texturedOptions()...)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
}

func TestCompilerDiagnosticsAreVerbatim(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	diag := "error: expected ';', found '}'\n  ┌─ wgsl:12:5"
	b := NewBuilder(dev, WithShaderCompiler(shader.CompilerFunc(func(string, string) error {
		return errors.New(diag)
	})))

	_, err := b.Build(texturedSource, texturedOptions()...)
	var compileErr *gpu_error.ShaderCompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, diag, compileErr.Diagnostics)
	assert.Equal(t, 0, dev.Count(mock.OpCreateShaderModule))
}

func TestPoliciesReachTheDevice(t *testing.T) {
	b, _ := newBuilder()
	p, err := b.Build(texturedSource, append(texturedOptions(),
		WithDepthPolicy(DepthDisabled),
		WithBlendPolicy(BlendAlpha),
		WithCullMode(wgpu.CullModeBack),
		WithTopology(wgpu.PrimitiveTopologyLineList),
		WithFormat(wgpu.TextureFormatRGBA8Unorm),
	)...)
	require.NoError(t, err)

	desc := p.RenderPipeline().(*mock.RenderPipeline).Desc
	assert.Equal(t, wgpu.CompareFunctionAlways, desc.DepthStencil.DepthCompare)
	assert.False(t, desc.DepthStencil.DepthWriteEnabled)
	require.NotNil(t, desc.Target.Blend)
	assert.Equal(t, wgpu.BlendFactorSrcAlpha, desc.Target.Blend.Color.SrcFactor)
	assert.Equal(t, wgpu.CullModeBack, desc.Primitive.CullMode)
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, desc.Target.Format)
}

func TestRelease(t *testing.T) {
	b, _ := newBuilder()
	p, err := b.Build(texturedSource, texturedOptions()...)
	require.NoError(t, err)
	rp := p.RenderPipeline().(*mock.RenderPipeline)

	b.Release()
	assert.True(t, rp.Released)
	assert.Equal(t, 0, b.Len())
}

func TestInvalidSampleCount(t *testing.T) {
	b, _ := newBuilder()
	_, err := b.Build(texturedSource, append(texturedOptions(), WithSampleCount(3))...)
	assert.Error(t, err)
}
