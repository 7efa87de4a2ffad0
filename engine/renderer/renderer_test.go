package renderer

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device/mock"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatSource = `
//@oxy:include vertex

@group(0) @binding(0) var<uniform> mvp: mat4x4<f32>;

@vertex
fn vertexMain(in: VertexInput) -> @builtin(position) vec4<f32> {
    return mvp * vec4<f32>(in.position, 1.0);
}

@fragment
fn fragmentMain() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.5, 0.0, 1.0);
}
`

type fixture struct {
	dev   *mock.Device
	r     Renderer
	table slot_table.SlotTable
	pipe  pipeline.Pipeline
	mesh  Mesh
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	accept := shader.CompilerFunc(func(string, string) error { return nil })
	r, err := NewRenderer(dev, 800, 600, WithPipelineBuilder(pipeline.NewBuilder(dev, pipeline.WithShaderCompiler(accept))))
	require.NoError(t, err)

	table := slot_table.NewSlotTable(dev, slot_table.WithLabel("Objects"))
	mvp, err := uniform.EncodeMat4(common.IdentityMat4())
	require.NoError(t, err)
	require.NoError(t, table.Declare(0, 0, slot_table.SlotKindUniformBuffer, slot_table.UniformResource(mvp)))

	pipe, err := r.Pipelines().Build(flatSource,
		pipeline.WithLabel("Flat"),
		pipeline.WithVertexLayouts(common.VertexLayout()),
		pipeline.WithResourceLayout(table.ResourceLayout()),
	)
	require.NoError(t, err)

	vb, err := dev.CreateBuffer(device.BufferDescriptor{Label: "Cube Vertices", Size: 24 * 32, Usage: wgpu.BufferUsageVertex})
	require.NoError(t, err)
	ib, err := dev.CreateBuffer(device.BufferDescriptor{Label: "Cube Indices", Size: 36 * 4, Usage: wgpu.BufferUsageIndex})
	require.NoError(t, err)

	return &fixture{
		dev:   dev,
		r:     r,
		table: table,
		pipe:  pipe,
		mesh:  Mesh{VertexBuffer: vb, VertexCount: 24, IndexBuffer: ib, IndexCount: 36},
	}
}

func (f *fixture) item(label string) DrawItem {
	return DrawItem{
		Label:    label,
		Pipeline: f.pipe,
		Mesh:     f.mesh,
		Bindings: []GroupBinding{{Index: 0, Table: f.table, Group: 0}},
	}
}

func lastPass(t *testing.T, dev *mock.Device) *mock.RenderPass {
	t.Helper()
	passes := dev.Passes()
	require.NotEmpty(t, passes)
	return passes[len(passes)-1]
}

func TestRenderFrameDrawsInSubmissionOrder(t *testing.T) {
	f := newFixture(t)

	cubes := f.item("cubes")
	cubes.InstanceCount = 10
	tri := f.item("triangle")
	tri.Mesh = Mesh{VertexBuffer: f.mesh.VertexBuffer, VertexCount: 3}

	stats, err := f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{cubes, tri}})
	require.NoError(t, err)
	assert.Equal(t, FrameStats{Drawn: 2, Passes: 1, BindGroupBuilds: 1}, stats)
	assert.Equal(t, uint64(1), f.r.Frames())

	pass := lastPass(t, f.dev)
	assert.True(t, pass.Ended)
	assert.Equal(t, "Main Pass", pass.Desc.Label)
	assert.Equal(t, wgpu.LoadOpClear, pass.Desc.Color.LoadOp)
	assert.Equal(t, target.DefaultClearColor, pass.Desc.Color.ClearValue)
	assert.Equal(t, "surface", pass.Desc.Color.ResolveTarget.(*mock.TextureView).Label)
	require.NotNil(t, pass.Desc.Depth)
	assert.Equal(t, float32(1.0), pass.Desc.Depth.ClearValue)

	draws := pass.Draws()
	require.Len(t, draws, 2)
	assert.Equal(t, mock.Command{Op: "DrawIndexed", Count: 36, InstanceCount: 10}, draws[0])
	assert.Equal(t, mock.Command{Op: "Draw", Count: 3, InstanceCount: 1}, draws[1])

	ops := make([]string, 0, len(pass.Commands))
	for _, c := range pass.Commands[:5] {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"SetPipeline", "SetBindGroup", "SetVertexBuffer", "SetIndexBuffer", "DrawIndexed"}, ops)

	calls := f.dev.Calls()
	assert.Equal(t, mock.OpPresent, calls[len(calls)-1])
	assert.Equal(t, mock.OpSubmit, calls[len(calls)-2])
}

func TestUniformUpdatesDoNotRebuild(t *testing.T) {
	f := newFixture(t)
	frame := Frame{Main: []DrawItem{f.item("cube")}}

	_, err := f.r.RenderFrame(context.Background(), frame)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		m, err := uniform.EncodeMat4(common.Translate(float32(i), 0, 0))
		require.NoError(t, err)
		require.NoError(t, f.table.Update(0, 0, slot_table.UniformResource(m)))
	}
	stats, err := f.r.RenderFrame(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.BindGroupBuilds)
	assert.Equal(t, 0, f.table.RebuildCount(0))
}

func TestResizeSkipsOneFrameThenRecovers(t *testing.T) {
	f := newFixture(t)
	frame := Frame{Main: []DrawItem{f.item("cube")}}

	f.r.Resize(1024, 768)
	_, err := f.r.RenderFrame(context.Background(), frame)
	require.Error(t, err)
	assert.True(t, gpu_error.IsSurfaceLost(err))
	assert.Equal(t, 0, f.dev.Count(mock.OpSubmit))

	w, h, _ := f.dev.SurfaceSize()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), h)

	stats, err := f.r.RenderFrame(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Drawn)

	pass := lastPass(t, f.dev)
	msaa := pass.Desc.Color.View.(*mock.TextureView).Texture
	depth := pass.Desc.Depth.View.(*mock.TextureView).Texture
	assert.Equal(t, uint32(1024), msaa.Width())
	assert.Equal(t, uint32(768), depth.Height())
}

func TestZeroSizeResizeKeepsSkipping(t *testing.T) {
	f := newFixture(t)
	frame := Frame{Main: []DrawItem{f.item("cube")}}

	f.r.Resize(0, 0)
	for i := 0; i < 2; i++ {
		_, err := f.r.RenderFrame(context.Background(), frame)
		assert.True(t, gpu_error.IsSurfaceLost(err))
	}

	f.r.Resize(640, 480)
	_, err := f.r.RenderFrame(context.Background(), frame)
	assert.True(t, gpu_error.IsSurfaceLost(err))
	_, err = f.r.RenderFrame(context.Background(), frame)
	assert.NoError(t, err)
}

func TestAcquireFailureReconfigures(t *testing.T) {
	f := newFixture(t)
	frame := Frame{Main: []DrawItem{f.item("cube")}}
	configures := f.dev.Count(mock.OpConfigureSurface)

	f.dev.FailNextAcquire(errors.New("outdated"))
	_, err := f.r.RenderFrame(context.Background(), frame)
	assert.True(t, gpu_error.IsSurfaceLost(err))
	assert.Equal(t, configures+1, f.dev.Count(mock.OpConfigureSurface))

	_, err = f.r.RenderFrame(context.Background(), frame)
	assert.NoError(t, err)
}

func TestItemErrorsSkipOnlyThatItem(t *testing.T) {
	f := newFixture(t)

	singleSample, err := f.r.Pipelines().Build(flatSource,
		pipeline.WithVertexLayouts(common.VertexLayout()),
		pipeline.WithResourceLayout(f.table.ResourceLayout()),
		pipeline.WithSampleCount(1),
	)
	require.NoError(t, err)
	sampler, err := f.dev.CreateSampler("Nearest", common.SamplerStagingData{})
	require.NoError(t, err)

	noPipeline := f.item("no pipeline")
	noPipeline.Pipeline = nil

	wrongSamples := f.item("wrong sample count")
	wrongSamples.Pipeline = singleSample

	wrongKind := f.item("wrong kind")
	wrongKind.Overrides = []slot_table.Override{{Group: 0, Slot: 0, Resource: slot_table.SamplerResource(sampler)}}

	unbound := f.item("unbound override")
	unbound.Overrides = []slot_table.Override{{Group: 3, Slot: 0, Resource: slot_table.SamplerResource(sampler)}}

	good := f.item("good")

	stats, err := f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{noPipeline, wrongSamples, wrongKind, unbound, good}})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Skipped)
	assert.Equal(t, 1, stats.Drawn)

	pass := lastPass(t, f.dev)
	require.Len(t, pass.Draws(), 1)
	assert.Equal(t, "SetPipeline", pass.Commands[0].Op)
	assert.Same(t, f.pipe.RenderPipeline(), pass.Commands[0].Pipeline)
}

func TestItemsMustMatchThePipelineLayout(t *testing.T) {
	f := newFixture(t)
	sampler, err := f.dev.CreateSampler("Linear", common.SamplerStagingData{})
	require.NoError(t, err)
	mvp, err := uniform.EncodeMat4(common.IdentityMat4())
	require.NoError(t, err)

	samplers := slot_table.NewSlotTable(f.dev, slot_table.WithLabel("Samplers"))
	require.NoError(t, samplers.Declare(0, 0, slot_table.SlotKindSampler, slot_table.SamplerResource(sampler)))

	wide := slot_table.NewSlotTable(f.dev, slot_table.WithLabel("Wide"))
	require.NoError(t, wide.Declare(0, 0, slot_table.SlotKindUniformBuffer, slot_table.UniformResource(mvp)))
	require.NoError(t, wide.Declare(0, 1, slot_table.SlotKindSampler, slot_table.SamplerResource(sampler)))

	wrongKind := f.item("sampler where a uniform is expected")
	wrongKind.Bindings = []GroupBinding{{Index: 0, Table: samplers, Group: 0}}
	unbound := f.item("nothing bound")
	unbound.Bindings = nil
	extraSlot := f.item("extra slot")
	extraSlot.Bindings = []GroupBinding{{Index: 0, Table: wide, Group: 0}}
	good := f.item("good")

	var mismatch *gpu_error.SlotKindMismatchError
	require.ErrorAs(t, checkLayout(f.pipe, wrongKind.Bindings), &mismatch)
	assert.Equal(t, 0, mismatch.Group)
	assert.Equal(t, 0, mismatch.Slot)
	assert.Equal(t, "UniformBuffer", mismatch.Declared)
	assert.Equal(t, "Sampler", mismatch.Got)

	require.ErrorAs(t, checkLayout(f.pipe, extraSlot.Bindings), &mismatch)
	assert.Equal(t, 1, mismatch.Slot)
	assert.ErrorIs(t, checkLayout(f.pipe, unbound.Bindings), ErrUnboundGroup)
	assert.NoError(t, checkLayout(f.pipe, good.Bindings))

	stats, err := f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{wrongKind, unbound, extraSlot, good}})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 1, stats.Drawn)

	pass := lastPass(t, f.dev)
	require.Len(t, pass.Draws(), 1)
	bindGroups := 0
	for _, c := range pass.Commands {
		if c.Op == "SetBindGroup" {
			bindGroups++
		}
	}
	assert.Equal(t, 1, bindGroups, "skipped items record nothing")
	assert.Equal(t, 0, samplers.BuildCount(0))
}

func TestOverridesAreReleasedAfterSubmit(t *testing.T) {
	f := newFixture(t)

	m, err := uniform.EncodeMat4(common.Scale(2, 2, 2))
	require.NoError(t, err)
	big := f.item("big")
	big.Overrides = []slot_table.Override{{Group: 0, Slot: 0, Resource: slot_table.UniformResource(m)}}
	plain := f.item("plain")

	_, err = f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{big, plain}})
	require.NoError(t, err)

	var bound []*mock.BindGroup
	for _, c := range lastPass(t, f.dev).Commands {
		if c.Op == "SetBindGroup" {
			bound = append(bound, c.BindGroup.(*mock.BindGroup))
		}
	}
	require.Len(t, bound, 2)
	assert.NotSame(t, bound[0], bound[1])
	assert.True(t, bound[0].Released, "override bind group is transient")
	assert.False(t, bound[1].Released, "table bind group is kept")
}

func TestOffscreenPassIsRecordedFirst(t *testing.T) {
	f := newFixture(t)
	off, err := target.NewOffscreen(f.dev, 256, 256, target.WithLabel("Minimap"))
	require.NoError(t, err)
	f.r.SetOffscreenTarget(off)
	assert.Same(t, off, f.r.OffscreenTarget())

	stats, err := f.r.RenderFrame(context.Background(), Frame{
		Offscreen: []DrawItem{f.item("minimap")},
		Main:      []DrawItem{f.item("world")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Passes)
	assert.Equal(t, 2, stats.Drawn)

	passes := f.dev.Passes()
	require.Len(t, passes, 2)
	assert.Equal(t, "Offscreen Pass", passes[0].Desc.Label)
	assert.Same(t, off.View(), passes[0].Desc.Color.ResolveTarget)
	assert.Equal(t, "Main Pass", passes[1].Desc.Label)

	stats, err = f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{f.item("world")}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Passes)
}

func TestSetClearColorReachesTheMainPass(t *testing.T) {
	f := newFixture(t)
	_, err := f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{f.item("a")}})
	require.NoError(t, err)
	assert.Equal(t, target.DefaultClearColor, lastPass(t, f.dev).Desc.Color.ClearValue)

	blue := wgpu.Color{B: 1, A: 1}
	f.r.SetClearColor(blue)
	assert.Equal(t, blue, f.r.Surface().ClearColor())

	_, err = f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{f.item("a")}})
	require.NoError(t, err)
	assert.Equal(t, blue, lastPass(t, f.dev).Desc.Color.ClearValue)
}

func TestSubmitFailureIsDeviceLost(t *testing.T) {
	f := newFixture(t)
	f.dev.FailSubmit(errors.New("device removed"))

	_, err := f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{f.item("cube")}})
	require.Error(t, err)
	assert.True(t, gpu_error.IsDeviceLost(err))
	assert.Equal(t, uint64(0), f.r.Frames())
	assert.Equal(t, 0, f.dev.Count(mock.OpPresent))
}

func TestFinishFailureIsDeviceLost(t *testing.T) {
	f := newFixture(t)
	f.dev.FailFinish(errors.New("encoder invalid"))

	_, err := f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{f.item("cube")}})
	assert.True(t, gpu_error.IsDeviceLost(err))

	f.dev.FailFinish(nil)
	_, err = f.r.RenderFrame(context.Background(), Frame{Main: []DrawItem{f.item("cube")}})
	assert.NoError(t, err, "the surface texture of the failed frame was returned")
}

func TestCancelledContextAbandonsBeforeAcquire(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.r.RenderFrame(ctx, Frame{Main: []DrawItem{f.item("cube")}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.dev.Count(mock.OpAcquire))
}
