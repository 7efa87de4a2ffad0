package renderer

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipelineBuilder sets the pipeline builder the renderer exposes. It must be bound to the same
// device. The default is a new pipeline.Builder.
//
// Parameters:
//   - b: the pipeline builder
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline builder option to a renderer
func WithPipelineBuilder(b pipeline.Builder) RendererBuilderOption {
	return func(r *renderer) {
		r.pipelines = b
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode device.PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = &mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count of the surface target.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
// Pipelines drawing into the surface must be built with the same sample count.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff, MSAA4x, MSAA8x, or MSAA16x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count device.MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.sampleCount = count
	}
}

// WithClearColor sets the color the main pass clears to.
//
// Parameters:
//   - color: the clear color
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color option to a renderer
func WithClearColor(color wgpu.Color) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = color
	}
}

// WithOffscreenTarget sets the initial offscreen target.
func WithOffscreenTarget(t target.Target) RendererBuilderOption {
	return func(r *renderer) {
		r.offscreen = t
	}
}
