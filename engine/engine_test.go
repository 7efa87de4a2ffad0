package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/config"
	"github.com/Carmen-Shannon/oxy-core/engine/game_object"
	"github.com/Carmen-Shannon/oxy-core/engine/model"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device/mock"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/Carmen-Shannon/oxy-core/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatSource = `
//@oxy:include vertex

struct Transform {
    model: mat4x4<f32>,
    view: mat4x4<f32>,
    projection: mat4x4<f32>,
    mvp: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> transform: Transform;

@vertex
fn vertexMain(in: VertexInput) -> @builtin(position) vec4<f32> {
    return transform.mvp * vec4<f32>(in.position, 1.0);
}

@fragment
fn fragmentMain() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

type fixture struct {
	dev  *mock.Device
	r    renderer.Renderer
	cam  camera.Camera
	cube model.Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	accept := shader.CompilerFunc(func(string, string) error { return nil })
	r, err := renderer.NewRenderer(dev, 640, 480, renderer.WithPipelineBuilder(pipeline.NewBuilder(dev, pipeline.WithShaderCompiler(accept))))
	require.NoError(t, err)

	cam, err := camera.NewCamera(camera.WithEye(0, 2, 8), camera.WithAspect(640.0/480.0))
	require.NoError(t, err)

	cube, err := model.NewModel(common.Cube(1, 1, 1), model.WithName("Cube"))
	require.NoError(t, err)
	return &fixture{dev: dev, r: r, cam: cam, cube: cube}
}

// scene builds a scene of one cube per label, drawn with a pipeline matching the transform group.
func (f *fixture) scene(t *testing.T, name string, offscreen bool, labels ...string) scene.Scene {
	t.Helper()
	s, err := scene.NewScene(name, f.cam, f.r, scene.WithOffscreen(offscreen), scene.WithComposeWorkers(2))
	require.NoError(t, err)

	var pipe pipeline.Pipeline
	for _, label := range labels {
		obj := game_object.NewGameObject(game_object.WithLabel(label), game_object.WithMesh(f.cube), game_object.WithRotationSpeed(0, 1, 0))
		id, err := s.Add(obj)
		require.NoError(t, err)
		if pipe == nil {
			layout, ok := s.Table().LayoutDescriptor(int(id))
			require.True(t, ok)
			pipe, err = f.r.Pipelines().Build(flatSource,
				pipeline.WithLabel("Flat"),
				pipeline.WithVertexLayouts(common.VertexLayout()),
				pipeline.WithGroupLayout(0, layout),
			)
			require.NoError(t, err)
		}
		obj.SetPipeline(pipe)
	}
	return s
}

func labels(items []renderer.DrawItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}

func TestNewEngineRequiresRenderer(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)
}

func TestBuildFrameMergesScenesInKeyOrder(t *testing.T) {
	f := newFixture(t)
	front := f.scene(t, "Front", false, "hud")
	back := f.scene(t, "Back", false, "ground", "tree")
	minimap := f.scene(t, "Minimap", true, "marker")
	paused := f.scene(t, "Paused", false, "menu")
	paused.SetActive(false)

	e, err := NewEngine(f.r,
		WithScene(2, front),
		WithScene(1, back),
		WithScene(0, minimap),
		WithScene(3, paused),
	)
	require.NoError(t, err)

	frame := e.BuildFrame()
	assert.Equal(t, []string{"ground", "tree", "hud"}, labels(frame.Main))
	assert.Equal(t, []string{"marker"}, labels(frame.Offscreen))

	e.RemoveScene(1)
	assert.Nil(t, e.Scene(1))
	assert.Len(t, e.Scenes(), 3)
	assert.Equal(t, []string{"hud"}, labels(e.BuildFrame().Main))
}

func TestRenderOnceDrawsEveryScene(t *testing.T) {
	f := newFixture(t)
	off, err := target.NewOffscreen(f.dev, 128, 128)
	require.NoError(t, err)
	f.r.SetOffscreenTarget(off)

	e, err := NewEngine(f.r,
		WithScene(0, f.scene(t, "World", false, "a", "b")),
		WithScene(1, f.scene(t, "Minimap", true, "c")),
	)
	require.NoError(t, err)

	stats, err := e.RenderOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Drawn)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 2, stats.Passes)

	passes := f.dev.Passes()
	require.Len(t, passes, 2)
	assert.Len(t, passes[0].Draws(), 1)
	assert.Len(t, passes[1].Draws(), 2)
}

func TestResizeUpdatesRendererAndCameras(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.r, WithScene(0, f.scene(t, "World", false, "a")))
	require.NoError(t, err)

	e.Resize(1000, 500)
	assert.InDelta(t, 2, f.cam.Aspect(), 1e-6)

	_, err = e.RenderOnce(context.Background())
	assert.True(t, gpu_error.IsSurfaceLost(err), "the resize frame is skipped")
	w, h, configured := f.dev.SurfaceSize()
	assert.True(t, configured)
	assert.Equal(t, uint32(1000), w)
	assert.Equal(t, uint32(500), h)

	_, err = e.RenderOnce(context.Background())
	assert.NoError(t, err)

	e.Resize(0, 0)
	assert.InDelta(t, 2, f.cam.Aspect(), 1e-6, "a minimized window keeps the aspect")
}

func TestRunStopsOnDeviceLost(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.r, WithScene(0, f.scene(t, "World", false, "a")), WithRenderFrameLimit(500))
	require.NoError(t, err)
	f.dev.FailSubmit(errors.New("device removed"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = e.Run(ctx)
	require.Error(t, err)
	assert.True(t, gpu_error.IsDeviceLost(err))
	assert.False(t, e.Running())
	assert.NoError(t, ctx.Err(), "stopped by the device, not the timeout")
}

func TestRunTicksAndRendersUntilCancelled(t *testing.T) {
	f := newFixture(t)
	world := f.scene(t, "World", false, "spinner")
	e, err := NewEngine(f.r, WithScene(0, world), WithTickRate(500), WithRenderFrameLimit(500), WithProfiling(true))
	require.NoError(t, err)

	var ticks, frames atomic.Int64
	e.SetTickCallback(func(float32) { ticks.Add(1) })
	e.SetRenderCallback(func(float32) { frames.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() > 2 && frames.Load() > 2 }, 5*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, e.Run(context.Background()), ErrEngineRunning)
	e.SetTickRate(250)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, e.Running())
	assert.Positive(t, world.Objects()[0].Rotation()[1])
	assert.Positive(t, f.r.Frames())
}

func TestSurfaceBackoffDoublesUpToTheCap(t *testing.T) {
	var got []time.Duration
	var backoff time.Duration
	for i := 0; i < 8; i++ {
		backoff = nextSurfaceBackoff(backoff)
		got = append(got, backoff)
	}
	assert.Equal(t, []time.Duration{
		5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond,
		80 * time.Millisecond, 160 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond,
	}, got)
}

func TestMinimizedWindowDoesNotSpin(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.r, WithScene(0, f.scene(t, "World", false, "a")))
	require.NoError(t, err)
	e.Resize(0, 0)

	var frames atomic.Int64
	e.SetRenderCallback(func(float32) { frames.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	// 5+10+20+40+80+160 ms of backoff already exceeds the run time.
	assert.Positive(t, frames.Load())
	assert.LessOrEqual(t, frames.Load(), int64(8))
	assert.Equal(t, uint64(0), f.r.Frames())
}

func TestQuitStopsRun(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.r, WithRenderFrameLimit(500))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	require.Eventually(t, e.Running, 5*time.Second, time.Millisecond)

	e.Quit()
	e.Quit()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
}

func TestConfigOptions(t *testing.T) {
	prev := common.Logger()
	t.Cleanup(func() { common.SetLogger(prev) })

	cfg, err := config.Parse([]byte("engine:\n  tick_rate: 120\n  frame_limit: 30\n  profiling: true\nlog:\n  level: warn\n"))
	require.NoError(t, err)

	f := newFixture(t)
	e, err := NewEngine(f.r, ConfigOptions(cfg)...)
	require.NoError(t, err)

	impl := e.(*engine)
	assert.Equal(t, time.Second/120, impl.engineTickRate)
	assert.Equal(t, time.Second/30, impl.renderFrameLimit)
	assert.True(t, impl.profilingEnabled)
	assert.NotSame(t, prev, common.Logger())
}

func TestReleaseRunsInReverseOrder(t *testing.T) {
	f := newFixture(t)
	var order []int
	e, err := NewEngine(f.r,
		withRelease(func() { order = append(order, 1) }),
		withRelease(func() { order = append(order, 2) }),
	)
	require.NoError(t, err)

	e.Release()
	e.Release()
	assert.Equal(t, []int{2, 1}, order)
}
