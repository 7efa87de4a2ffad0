// Package device holds the single process-wide GPU handle. Every component that touches the GPU
// (slot tables, the pipeline builder, render targets and the orchestrator) receives a Device
// explicitly at construction time. Two implementations exist: NewWGPUDevice for real hardware,
// and the recording mock in device/mock for tests.
package device

import (
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// DepthFormat is the depth attachment format used by every render target and pipeline.
const DepthFormat = wgpu.TextureFormatDepth24Plus

// Buffer is a GPU buffer created by a Device.
type Buffer interface {
	Label() string
	Size() uint64
	Release()
}

// Texture is a GPU texture created by a Device.
type Texture interface {
	Label() string
	Width() uint32
	Height() uint32
	Format() wgpu.TextureFormat
	SampleCount() uint32

	// CreateView creates a default view over the whole texture.
	//
	// Returns:
	//   - TextureView: the new view
	//   - error: error if the view could not be created
	CreateView() (TextureView, error)
	Release()
}

// TextureView is a view over a Texture usable as an attachment or binding.
type TextureView interface {
	Release()
}

// Sampler is a GPU sampler.
type Sampler interface {
	Release()
}

// BindGroupLayout is a compiled bind group layout.
type BindGroupLayout interface {
	Release()
}

// BindGroup is a materialized set of resource bindings for one group index.
type BindGroup interface {
	Release()
}

// ShaderModule is a compiled WGSL module holding both the vertex and fragment entry points.
type ShaderModule interface {
	Release()
}

// RenderPipeline is a compiled render pipeline.
type RenderPipeline interface {
	Release()
}

// CommandBuffer is a finished, submittable command encoder.
type CommandBuffer interface {
	Release()
}

// SurfaceTexture is the presentable image acquired from the surface for one frame.
type SurfaceTexture interface {
	View() TextureView
	Release()
}

// RenderPass records draw commands into a single render pass.
type RenderPass interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(group uint32, bg BindGroup)
	SetVertexBuffer(slot uint32, buf Buffer)
	SetIndexBuffer(buf Buffer, format wgpu.IndexFormat)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)

	// End closes the pass. No further commands may be recorded on it.
	End() error
}

// CommandEncoder records one or more render passes for a single submission.
type CommandEncoder interface {
	BeginRenderPass(desc RenderPassDescriptor) RenderPass

	// Finish closes the encoder and produces a command buffer ready for Device.Submit.
	//
	// Returns:
	//   - CommandBuffer: the finished commands
	//   - error: error if the encoder could not be finished
	Finish() (CommandBuffer, error)
	Release()
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

// TextureDescriptor describes a single-layer, single-mip 2D texture to create.
type TextureDescriptor struct {
	Label       string
	Width       uint32
	Height      uint32
	Format      wgpu.TextureFormat
	SampleCount uint32
	Usage       wgpu.TextureUsage
}

// BindGroupEntry binds exactly one of Buffer, TextureView or Sampler to a binding index.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      Buffer
	Offset      uint64
	Size        uint64
	TextureView TextureView
	Sampler     Sampler
}

// BindGroupDescriptor describes a bind group to create against a compiled layout.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// RenderPipelineDescriptor describes a render pipeline. Both stages come from the same module.
// BindGroupLayouts is indexed by group; every index up to the highest used group must be set.
type RenderPipelineDescriptor struct {
	Label              string
	Module             ShaderModule
	VertexEntryPoint   string
	FragmentEntryPoint string
	VertexBuffers      []wgpu.VertexBufferLayout
	BindGroupLayouts   []BindGroupLayout
	Target             wgpu.ColorTargetState
	Primitive          wgpu.PrimitiveState
	SampleCount        uint32
	DepthStencil       *wgpu.DepthStencilState
}

// ColorAttachment is the single color attachment of a render pass. ResolveTarget is set when
// View is multisampled.
type ColorAttachment struct {
	View          TextureView
	ResolveTarget TextureView
	LoadOp        wgpu.LoadOp
	StoreOp       wgpu.StoreOp
	ClearValue    wgpu.Color
}

// DepthAttachment is the depth attachment of a render pass.
type DepthAttachment struct {
	View       TextureView
	LoadOp     wgpu.LoadOp
	StoreOp    wgpu.StoreOp
	ClearValue float32
}

// RenderPassDescriptor describes one render pass.
type RenderPassDescriptor struct {
	Label string
	Color ColorAttachment
	Depth *DepthAttachment
}

// Device is the GPU handle. Implementations must be safe for use from a single frame-producing
// goroutine while uploads happen from others.
type Device interface {
	// Limits returns the limits the device was created with.
	Limits() wgpu.Limits

	// SurfaceFormat returns the color format of the presentation surface. Headless devices
	// report wgpu.TextureFormatRGBA8UnormSrgb.
	SurfaceFormat() wgpu.TextureFormat

	// ConfigureSurface (re)configures the presentation surface to the given size.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	//
	// Returns:
	//   - error: error if the device has no surface or the size is zero
	ConfigureSurface(width, height uint32) error

	// SetPresentMode selects the present mode used by the next ConfigureSurface.
	SetPresentMode(mode PresentMode)

	// AcquireSurfaceTexture obtains the next presentable image. This is the only call that may
	// block waiting on the display.
	//
	// Returns:
	//   - SurfaceTexture: the acquired image
	//   - error: a *gpu_error.SurfaceLostError when the surface must be reconfigured
	AcquireSurfaceTexture() (SurfaceTexture, error)

	// Present displays the most recently acquired surface texture.
	Present() error

	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// WriteTexture uploads RGBA8 pixels covering the whole texture.
	WriteTexture(tex Texture, data common.TextureStagingData) error
	CreateSampler(label string, data common.SamplerStagingData) (Sampler, error)
	CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)
	CreateShaderModule(label, source string) (ShaderModule, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)

	// CreateCommandEncoder starts recording a new submission.
	//
	// Returns:
	//   - CommandEncoder: the encoder
	//   - error: a *gpu_error.DeviceLostError when the device no longer accepts work
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit hands a finished command buffer to the queue.
	//
	// Returns:
	//   - error: a *gpu_error.DeviceLostError when the device no longer accepts work
	Submit(cb CommandBuffer) error

	// Release tears down the device, surface, adapter and instance.
	Release()
}
