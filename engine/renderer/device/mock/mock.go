// Package mock provides a recording device.Device for GPU-free tests. Every call is logged by
// operation name, buffer writes land in host memory, and failures can be injected per operation.
package mock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/cogentcore/webgpu/wgpu"
)

// Operation names recorded by Device.
const (
	OpConfigureSurface      = "ConfigureSurface"
	OpAcquire               = "AcquireSurfaceTexture"
	OpPresent               = "Present"
	OpCreateBuffer          = "CreateBuffer"
	OpWriteBuffer           = "WriteBuffer"
	OpCreateTexture         = "CreateTexture"
	OpWriteTexture          = "WriteTexture"
	OpCreateSampler         = "CreateSampler"
	OpCreateBindGroupLayout = "CreateBindGroupLayout"
	OpCreateBindGroup       = "CreateBindGroup"
	OpCreateShaderModule    = "CreateShaderModule"
	OpCreateRenderPipeline  = "CreateRenderPipeline"
	OpCreateCommandEncoder  = "CreateCommandEncoder"
	OpSubmit                = "Submit"
)

// Device is a recording device.Device.
type Device struct {
	mu *sync.Mutex

	format      wgpu.TextureFormat
	limits      wgpu.Limits
	presentMode device.PresentMode

	surfaceWidth  uint32
	surfaceHeight uint32
	configured    bool
	acquired      bool

	acquireErrs  []error
	submitErr    error
	finishErr    error
	shaderErr    error
	pipelineErr  error
	bindGroupErr error

	calls    []string
	counts   map[string]int
	passes   []*RenderPass
	released bool
}

var _ device.Device = &Device{}

// NewDevice creates a mock device reporting the given surface format. The surface starts unconfigured.
func NewDevice(format wgpu.TextureFormat) *Device {
	return &Device{
		mu:     &sync.Mutex{},
		format: format,
		limits: wgpu.DefaultLimits(),
		counts: make(map[string]int),
	}
}

func (d *Device) record(op string) {
	d.calls = append(d.calls, op)
	d.counts[op]++
}

// FailNextAcquire queues err to be returned, wrapped in a *gpu_error.SurfaceLostError, by the next
// AcquireSurfaceTexture. Calls queue up in order.
func (d *Device) FailNextAcquire(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErrs = append(d.acquireErrs, err)
}

// FailSubmit makes every Submit fail with err wrapped in a *gpu_error.DeviceLostError. Nil clears it.
func (d *Device) FailSubmit(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitErr = err
}

// FailFinish makes every CommandEncoder.Finish fail with err. Nil clears it.
func (d *Device) FailFinish(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishErr = err
}

// FailShaderModules makes every CreateShaderModule fail with err. Nil clears it.
func (d *Device) FailShaderModules(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shaderErr = err
}

// FailRenderPipelines makes every CreateRenderPipeline fail with err. Nil clears it.
func (d *Device) FailRenderPipelines(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelineErr = err
}

// FailBindGroups makes every CreateBindGroup fail with err. Nil clears it.
func (d *Device) FailBindGroups(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindGroupErr = err
}

// Count returns how many times op was called.
func (d *Device) Count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[op]
}

// Calls returns the operation log in call order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// ResetCalls clears the operation log and counters.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
	d.counts = make(map[string]int)
}

// Passes returns every render pass begun on any encoder, in order.
func (d *Device) Passes() []*RenderPass {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*RenderPass, len(d.passes))
	copy(out, d.passes)
	return out
}

// SurfaceSize returns the size of the last ConfigureSurface and whether the surface is configured.
func (d *Device) SurfaceSize() (width, height uint32, configured bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceWidth, d.surfaceHeight, d.configured
}

// PresentMode returns the present mode last set on the device.
func (d *Device) PresentMode() device.PresentMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presentMode
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *Device) Limits() wgpu.Limits {
	return d.limits
}

func (d *Device) SurfaceFormat() wgpu.TextureFormat {
	return d.format
}

func (d *Device) SetPresentMode(mode device.PresentMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentMode = mode
}

func (d *Device) ConfigureSurface(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpConfigureSurface)
	if width == 0 || height == 0 {
		return fmt.Errorf("cannot configure surface to %dx%d", width, height)
	}
	d.surfaceWidth, d.surfaceHeight = width, height
	d.configured = true
	return nil
}

func (d *Device) AcquireSurfaceTexture() (device.SurfaceTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpAcquire)

	if len(d.acquireErrs) > 0 {
		err := d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		return nil, &gpu_error.SurfaceLostError{Reason: "acquire failed", Err: err}
	}
	if !d.configured {
		return nil, &gpu_error.SurfaceLostError{Reason: "surface is not configured"}
	}
	if d.acquired {
		return nil, errors.New("previous frame surface not yet presented")
	}
	d.acquired = true
	return &SurfaceTexture{device: d, view: &TextureView{Label: "surface"}, Width: d.surfaceWidth, Height: d.surfaceHeight}, nil
}

func (d *Device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpPresent)
	if !d.acquired {
		return errors.New("no surface texture acquired")
	}
	return nil
}

func (d *Device) CreateBuffer(desc device.BufferDescriptor) (device.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateBuffer)
	return &Buffer{label: desc.Label, size: desc.Size, Usage: desc.Usage, data: make([]byte, desc.Size)}, nil
}

func (d *Device) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpWriteBuffer)

	b, ok := buf.(*Buffer)
	if !ok {
		return fmt.Errorf("buffer %T was not created by this device", buf)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at offset %d overflows buffer %q of %d bytes", len(data), offset, b.label, b.size)
	}
	copy(b.data[offset:], data)
	b.Writes++
	return nil
}

func (d *Device) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateTexture)
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q has zero extent", desc.Label)
	}
	return &Texture{Desc: desc}, nil
}

func (d *Device) WriteTexture(tex device.Texture, data common.TextureStagingData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpWriteTexture)
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("texture %T was not created by this device", tex)
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if data.Width != t.Desc.Width || data.Height != t.Desc.Height {
		return fmt.Errorf("texture %q is %dx%d, staging data is %dx%d", t.Desc.Label, t.Desc.Width, t.Desc.Height, data.Width, data.Height)
	}
	t.Pixels = append([]byte(nil), data.Pixels...)
	return nil
}

func (d *Device) CreateSampler(label string, data common.SamplerStagingData) (device.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateSampler)
	return &Sampler{Label: label, Config: data.WithDefaults()}, nil
}

func (d *Device) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (device.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateBindGroupLayout)
	return &BindGroupLayout{Desc: *desc}, nil
}

func (d *Device) CreateBindGroup(desc device.BindGroupDescriptor) (device.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateBindGroup)
	if d.bindGroupErr != nil {
		return nil, d.bindGroupErr
	}
	if _, ok := desc.Layout.(*BindGroupLayout); !ok {
		return nil, fmt.Errorf("bind group %q: layout %T was not created by this device", desc.Label, desc.Layout)
	}
	for _, e := range desc.Entries {
		if e.Buffer == nil && e.TextureView == nil && e.Sampler == nil {
			return nil, fmt.Errorf("bind group %q binding %d has no resource", desc.Label, e.Binding)
		}
	}
	entries := make([]device.BindGroupEntry, len(desc.Entries))
	copy(entries, desc.Entries)
	return &BindGroup{Label: desc.Label, Entries: entries}, nil
}

func (d *Device) CreateShaderModule(label, source string) (device.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateShaderModule)
	if d.shaderErr != nil {
		return nil, d.shaderErr
	}
	return &ShaderModule{Label: label, Source: source}, nil
}

func (d *Device) CreateRenderPipeline(desc device.RenderPipelineDescriptor) (device.RenderPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateRenderPipeline)
	if d.pipelineErr != nil {
		return nil, d.pipelineErr
	}
	if _, ok := desc.Module.(*ShaderModule); !ok {
		return nil, fmt.Errorf("pipeline %q: shader module %T was not created by this device", desc.Label, desc.Module)
	}
	for g, l := range desc.BindGroupLayouts {
		if l == nil {
			return nil, fmt.Errorf("pipeline %q: group %d has no layout", desc.Label, g)
		}
	}
	return &RenderPipeline{Desc: desc}, nil
}

func (d *Device) CreateCommandEncoder(label string) (device.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpCreateCommandEncoder)
	return &CommandEncoder{device: d, Label: label}, nil
}

func (d *Device) Submit(cb device.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(OpSubmit)
	if d.submitErr != nil {
		return &gpu_error.DeviceLostError{Reason: "submit", Err: d.submitErr}
	}
	c, ok := cb.(*CommandBuffer)
	if !ok {
		return &gpu_error.DeviceLostError{Reason: fmt.Sprintf("command buffer %T was not created by this device", cb)}
	}
	c.Submitted = true
	return nil
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}
