package shader

import (
	"errors"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acceptAll = CompilerFunc(func(string, string) error { return nil })

const litSource = `
//@oxy:include vertex

struct ObjectUniform {
    model: mat4x4<f32>,
    view: mat4x4<f32>,
    projection: mat4x4<f32>,
    mvp: mat4x4<f32>,
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@group(0) @binding(0) var<uniform> tint: vec4<f32>;
@group(0) @binding(1) var diffuse: texture_2d<f32>;
@group(0) @binding(2) var diffuseSampler: sampler;
@binding(0) @group(1) var<uniform> object: ObjectUniform;

/* @vertex fn commentedOut() {} */

@vertex
fn vertexMain(in: VertexInput, @builtin(instance_index) instance: u32) -> VertexOutput {
    var out: VertexOutput;
    out.position = object.mvp * vec4<f32>(in.position, 1.0);
    out.uv = in.uv;
    return out;
}

@fragment
fn fragmentMain(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(diffuse, diffuseSampler, in.uv) * tint;
}
`

func TestEntryPointsAndInputs(t *testing.T) {
	s, err := NewShader("lit", litSource, WithCompiler(acceptAll))
	require.NoError(t, err)

	assert.Equal(t, []string{"vertexMain"}, s.EntryPoints(StageVertex))
	assert.Equal(t, []string{"fragmentMain"}, s.EntryPoints(StageFragment))
	assert.Empty(t, s.EntryPoints(StageCompute))
	assert.False(t, s.HasEntryPoint(StageVertex, "commentedOut"))

	inputs, ok := s.Inputs("vertexMain")
	require.True(t, ok)
	require.Len(t, inputs, 3)
	assert.Equal(t, uint32(0), inputs[0].Location)
	assert.Equal(t, "position", inputs[0].Name)
	assert.Equal(t, wgpu.VertexFormatFloat32x3, inputs[0].Format)
	assert.Equal(t, uint32(2), inputs[2].Location)

	_, ok = s.Inputs("fragmentMain")
	assert.False(t, ok)
}

func TestDirectParameterInputs(t *testing.T) {
	src := `
@vertex
fn vs(@location(1) uv: vec2f, @builtin(vertex_index) i: u32, @location(0) @interpolate(flat) id: u32) -> @builtin(position) vec4f {
    return vec4f(uv, 0.0, 1.0);
}
`
	s, err := NewShader("direct", src, WithCompiler(acceptAll))
	require.NoError(t, err)

	inputs, ok := s.Inputs("vs")
	require.True(t, ok)
	require.Len(t, inputs, 2)
	assert.Equal(t, "id", inputs[0].Name)
	assert.Equal(t, wgpu.VertexFormatUint32, inputs[0].Format)
	assert.Equal(t, "uv", inputs[1].Name)
}

func TestBindings(t *testing.T) {
	s, err := NewShader("lit", litSource, WithCompiler(acceptAll))
	require.NoError(t, err)

	bindings := s.Bindings()
	require.Len(t, bindings, 4)

	tests := []struct {
		group, binding int
		name           string
		class          ResourceClass
		size           uint64
	}{
		{0, 0, "tint", ResourceClassBuffer, 16},
		{0, 1, "diffuse", ResourceClassTexture, 0},
		{0, 2, "diffuseSampler", ResourceClassSampler, 0},
		{1, 0, "object", ResourceClassBuffer, 256},
	}
	for i, tt := range tests {
		b := bindings[i]
		assert.Equal(t, tt.group, b.Group)
		assert.Equal(t, tt.binding, b.Binding)
		assert.Equal(t, tt.name, b.Name)
		assert.Equal(t, tt.class, b.Class, tt.name)
		assert.Equal(t, tt.size, b.Size, tt.name)
		assert.Equal(t, tt.class, ClassOf(b.Entry), tt.name)
	}

	descs := s.BindGroupLayoutDescriptors(wgpu.ShaderStageFragment)
	require.Len(t, descs, 2)
	assert.Len(t, descs[0].Entries, 3)
	assert.Equal(t, wgpu.ShaderStageFragment, descs[1].Entries[0].Visibility)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, descs[0].Entries[1].Texture.SampleType)
}

func TestPreProcessor(t *testing.T) {
	pp := NewPreProcessor()
	layout := uniform.RecordLayout(
		uniform.FieldLayout{Name: "color", Type: uniform.FieldTypeVec4F, Offset: 0},
		uniform.FieldLayout{Name: "strength", Type: uniform.FieldTypeF32, Offset: 16},
	)
	pp.RegisterLayout("tint", "TintUniform", layout)

	src := "//@oxy:include tint\n//@oxy:include tint\n//@oxy:group 2 0 uniform material tint\n"
	out, decls, err := pp.Process(src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "struct TintUniform"))
	assert.Contains(t, out, "@group(2) @binding(0) var<uniform> material: TintUniform;")
	require.Len(t, decls, 1)
	assert.Equal(t, 2, *decls[0].Group)

	out, _, err = pp.Process("//@oxy:group 0 1 handle shadowMap texture_depth_2d")
	require.NoError(t, err)
	assert.Equal(t, "@group(0) @binding(1) var shadowMap: texture_depth_2d;", out)

	_, _, err = pp.Process("//@oxy:include nothing")
	assert.Error(t, err)
	_, _, err = pp.Process("//@oxy:group x 0 uniform a b")
	assert.Error(t, err)
	_, _, err = pp.Process("//@oxy:frobnicate")
	assert.Error(t, err)
}

func TestUnknownIncludeIsCompileError(t *testing.T) {
	_, err := NewShader("bad", "//@oxy:include nothing\n", WithCompiler(acceptAll))
	var compileErr *gpu_error.ShaderCompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "bad", compileErr.Label)
}

func TestCompilerErrorsAreWrapped(t *testing.T) {
	boom := errors.New("line 3: expected ';'")
	_, err := NewShader("x", "fn", WithCompiler(CompilerFunc(func(string, string) error { return boom })))

	var compileErr *gpu_error.ShaderCompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, boom.Error(), compileErr.Diagnostics)
	assert.ErrorIs(t, err, boom)
}

func TestNagaRejectsMalformedSource(t *testing.T) {
	_, err := NewShader("broken", "@vertex fn vertexMain( -> {")
	var compileErr *gpu_error.ShaderCompileError
	require.ErrorAs(t, err, &compileErr)
	assert.NotEmpty(t, compileErr.Diagnostics)
}
