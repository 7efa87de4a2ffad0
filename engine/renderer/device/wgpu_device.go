package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuDevice struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceDescriptor    *wgpu.SurfaceDescriptor
	surfaceFormat        wgpu.TextureFormat
	surfaceConfigured    bool
	frameSurface         *wgpu.Texture
	forceFallbackAdapter bool
	presentMode          PresentMode
	limits               wgpu.Limits
	label                string
}

var _ Device = &wgpuDevice{}

// NewWGPUDevice creates the process-wide GPU handle: instance, surface (when a descriptor is
// given), adapter, device and queue. The caller must be locked to the OS thread that owns the window.
//
// Parameters:
//   - options: functional options applied before the adapter is requested
//
// Returns:
//   - Device: the ready device
//   - error: error if no adapter or device could be obtained
func NewWGPUDevice(options ...DeviceBuilderOption) (Device, error) {
	d := &wgpuDevice{
		mu:            &sync.Mutex{},
		surfaceFormat: wgpu.TextureFormatRGBA8UnormSrgb,
		presentMode:   PresentModeUncapped,
		limits:        wgpu.DefaultLimits(),
		label:         "Main Device",
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	if d.surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(d.surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	d.adapter = a

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: d.limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	if d.surface != nil {
		capabilities := d.surface.GetCapabilities(d.adapter)
		if len(capabilities.Formats) > 0 {
			d.surfaceFormat = capabilities.Formats[0]
		}
	}

	common.Logger().Info("gpu device created",
		"label", d.label,
		"surface", d.surface != nil,
		"format", d.surfaceFormat,
		"fallback", d.forceFallbackAdapter,
	)
	return d, nil
}

func (d *wgpuDevice) Limits() wgpu.Limits {
	return d.limits
}

func (d *wgpuDevice) SurfaceFormat() wgpu.TextureFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceFormat
}

func (d *wgpuDevice) SetPresentMode(mode PresentMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentMode = mode
}

func (d *wgpuDevice) ConfigureSurface(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return errors.New("device has no presentation surface")
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("cannot configure surface to %dx%d", width, height)
	}

	capabilities := d.surface.GetCapabilities(d.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return errors.New("surface reports no supported formats for this adapter")
	}
	d.surfaceFormat = capabilities.Formats[0]

	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       width,
		Height:      height,
		PresentMode: d.presentMode.WGPU(),
		AlphaMode:   capabilities.AlphaModes[0],
	})
	d.surfaceConfigured = true

	common.Logger().Info("surface configured", "width", width, "height", height, "present", d.presentMode.String())
	return nil
}

func (d *wgpuDevice) AcquireSurfaceTexture() (SurfaceTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil || !d.surfaceConfigured {
		return nil, &gpu_error.SurfaceLostError{Reason: "surface is not configured"}
	}
	if d.frameSurface != nil {
		return nil, errors.New("previous frame surface not yet presented")
	}

	tex, err := d.surface.GetCurrentTexture()
	if err != nil {
		return nil, &gpu_error.SurfaceLostError{Reason: "acquire failed", Err: err}
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, &gpu_error.SurfaceLostError{Reason: "surface view", Err: err}
	}

	d.frameSurface = tex
	return &wgpuSurfaceTexture{device: d, texture: tex, view: &wgpuTextureView{view: view}}, nil
}

func (d *wgpuDevice) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface == nil {
		return errors.New("no surface texture acquired")
	}
	d.surface.Present()
	return nil
}

func (d *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            desc.Usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{buffer: buf, label: desc.Label, size: desc.Size}, nil
}

func (d *wgpuDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*wgpuBuffer)
	if !ok || b.buffer == nil {
		return fmt.Errorf("buffer %T was not created by this device", buf)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at offset %d overflows buffer %q of %d bytes", len(data), offset, b.label, b.size)
	}
	d.queue.WriteBuffer(b.buffer, offset, data)
	return nil
}

func (d *wgpuDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     wgpu.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", desc.Label, err)
	}
	return &wgpuTexture{texture: tex, desc: desc}, nil
}

func (d *wgpuDevice) WriteTexture(tex Texture, data common.TextureStagingData) error {
	t, ok := tex.(*wgpuTexture)
	if !ok || t.texture == nil {
		return fmt.Errorf("texture %T was not created by this device", tex)
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if data.Width != t.desc.Width || data.Height != t.desc.Height {
		return fmt.Errorf("texture %q is %dx%d, staging data is %dx%d", t.desc.Label, t.desc.Width, t.desc.Height, data.Width, data.Height)
	}

	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (d *wgpuDevice) CreateSampler(label string, data common.SamplerStagingData) (Sampler, error) {
	s := data.WithDefaults()
	samp, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  s.AddressModeU,
		AddressModeV:  s.AddressModeV,
		AddressModeW:  s.AddressModeW,
		MagFilter:     s.MagFilter,
		MinFilter:     s.MinFilter,
		MipmapFilter:  s.MipmapFilter,
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   s.LodMaxClamp,
		MaxAnisotropy: s.MaxAnisotropy,
		Compare:       s.Compare,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler %q: %w", label, err)
	}
	return &wgpuSampler{sampler: samp}, nil
}

func (d *wgpuDevice) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	layout, err := d.device.CreateBindGroupLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group layout %q: %w", desc.Label, err)
	}
	return &wgpuBindGroupLayout{layout: layout}, nil
}

func (d *wgpuDevice) CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error) {
	layout, ok := desc.Layout.(*wgpuBindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("bind group %q: layout %T was not created by this device", desc.Label, desc.Layout)
	}

	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Buffer != nil:
			b, ok := e.Buffer.(*wgpuBuffer)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: foreign buffer %T", desc.Label, e.Binding, e.Buffer)
			}
			entry.Buffer = b.buffer
			entry.Offset = e.Offset
			entry.Size = e.Size
		case e.TextureView != nil:
			v, ok := e.TextureView.(*wgpuTextureView)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: foreign texture view %T", desc.Label, e.Binding, e.TextureView)
			}
			entry.TextureView = v.view
		case e.Sampler != nil:
			s, ok := e.Sampler.(*wgpuSampler)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: foreign sampler %T", desc.Label, e.Binding, e.Sampler)
			}
			entry.Sampler = s.sampler
		default:
			return nil, fmt.Errorf("bind group %q binding %d has no resource", desc.Label, e.Binding)
		}
		entries[i] = entry
	}

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group %q: %w", desc.Label, err)
	}
	return &wgpuBindGroup{group: bg}, nil
}

func (d *wgpuDevice) CreateShaderModule(label, source string) (ShaderModule, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	})
	if err != nil {
		return nil, err
	}
	return &wgpuShaderModule{module: module}, nil
}

func (d *wgpuDevice) CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error) {
	module, ok := desc.Module.(*wgpuShaderModule)
	if !ok {
		return nil, fmt.Errorf("pipeline %q: shader module %T was not created by this device", desc.Label, desc.Module)
	}

	layouts := make([]*wgpu.BindGroupLayout, len(desc.BindGroupLayouts))
	for g, l := range desc.BindGroupLayouts {
		bgl, ok := l.(*wgpuBindGroupLayout)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: group %d layout %T was not created by this device", desc.Label, g, l)
		}
		layouts[g] = bgl.layout
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, err
	}
	defer pipelineLayout.Release()

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module.module,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module.module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    []wgpu.ColorTargetState{desc.Target},
		},
		Primitive: desc.Primitive,
		Multisample: wgpu.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: desc.DepthStencil,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuRenderPipeline{pipeline: created}, nil
}

func (d *wgpuDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, &gpu_error.DeviceLostError{Reason: "create command encoder", Err: err}
	}
	return &wgpuCommandEncoder{encoder: encoder}, nil
}

func (d *wgpuDevice) Submit(cb CommandBuffer) error {
	c, ok := cb.(*wgpuCommandBuffer)
	if !ok || c.buffer == nil {
		return &gpu_error.DeviceLostError{Reason: fmt.Sprintf("command buffer %T was not created by this device", cb)}
	}
	d.queue.Submit(c.buffer)
	return nil
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface != nil {
		d.frameSurface.Release()
		d.frameSurface = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

type wgpuBuffer struct {
	buffer *wgpu.Buffer
	label  string
	size   uint64
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }
func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuTexture struct {
	texture *wgpu.Texture
	desc    TextureDescriptor
}

func (t *wgpuTexture) Label() string              { return t.desc.Label }
func (t *wgpuTexture) Width() uint32              { return t.desc.Width }
func (t *wgpuTexture) Height() uint32             { return t.desc.Height }
func (t *wgpuTexture) Format() wgpu.TextureFormat { return t.desc.Format }
func (t *wgpuTexture) SampleCount() uint32        { return max(t.desc.SampleCount, 1) }

func (t *wgpuTexture) CreateView() (TextureView, error) {
	view, err := t.texture.CreateView(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create view of %q: %w", t.desc.Label, err)
	}
	return &wgpuTextureView{view: view}, nil
}

func (t *wgpuTexture) Release() {
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

type wgpuTextureView struct {
	view *wgpu.TextureView
}

func (v *wgpuTextureView) Release() {
	if v.view != nil {
		v.view.Release()
		v.view = nil
	}
}

type wgpuSampler struct {
	sampler *wgpu.Sampler
}

func (s *wgpuSampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

type wgpuBindGroupLayout struct {
	layout *wgpu.BindGroupLayout
}

func (l *wgpuBindGroupLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
}

type wgpuBindGroup struct {
	group *wgpu.BindGroup
}

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

type wgpuShaderModule struct {
	module *wgpu.ShaderModule
}

func (m *wgpuShaderModule) Release() {
	if m.module != nil {
		m.module.Release()
		m.module = nil
	}
}

type wgpuRenderPipeline struct {
	pipeline *wgpu.RenderPipeline
}

func (p *wgpuRenderPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

type wgpuCommandBuffer struct {
	buffer *wgpu.CommandBuffer
}

func (c *wgpuCommandBuffer) Release() {
	if c.buffer != nil {
		c.buffer.Release()
		c.buffer = nil
	}
}

type wgpuSurfaceTexture struct {
	device  *wgpuDevice
	texture *wgpu.Texture
	view    *wgpuTextureView
}

func (s *wgpuSurfaceTexture) View() TextureView { return s.view }

// Release drops the frame's view and texture and lets the device acquire the next image.
func (s *wgpuSurfaceTexture) Release() {
	s.view.Release()
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
	s.device.frameSurface = nil
}

type wgpuCommandEncoder struct {
	encoder *wgpu.CommandEncoder
	passes  []*wgpuRenderPass
}

func (e *wgpuCommandEncoder) BeginRenderPass(desc RenderPassDescriptor) RenderPass {
	color := wgpu.RenderPassColorAttachment{
		LoadOp:     desc.Color.LoadOp,
		StoreOp:    desc.Color.StoreOp,
		ClearValue: desc.Color.ClearValue,
	}
	if v, ok := desc.Color.View.(*wgpuTextureView); ok {
		color.View = v.view
	}
	if v, ok := desc.Color.ResolveTarget.(*wgpuTextureView); ok {
		color.ResolveTarget = v.view
	}

	passDesc := &wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
	}
	if desc.Depth != nil {
		depth := &wgpu.RenderPassDepthStencilAttachment{
			DepthLoadOp:     desc.Depth.LoadOp,
			DepthStoreOp:    desc.Depth.StoreOp,
			DepthClearValue: desc.Depth.ClearValue,
		}
		if v, ok := desc.Depth.View.(*wgpuTextureView); ok {
			depth.View = v.view
		}
		passDesc.DepthStencilAttachment = depth
	}

	pass := &wgpuRenderPass{pass: e.encoder.BeginRenderPass(passDesc)}
	e.passes = append(e.passes, pass)
	return pass
}

// Finish releases every recorded pass before finishing the encoder, as wgpu requires.
func (e *wgpuCommandEncoder) Finish() (CommandBuffer, error) {
	for _, p := range e.passes {
		p.release()
	}
	e.passes = nil

	cb, err := e.encoder.Finish(nil)
	if err != nil {
		return nil, &gpu_error.DeviceLostError{Reason: "finish command encoder", Err: err}
	}
	return &wgpuCommandBuffer{buffer: cb}, nil
}

func (e *wgpuCommandEncoder) Release() {
	for _, p := range e.passes {
		p.release()
	}
	e.passes = nil
	if e.encoder != nil {
		e.encoder.Release()
		e.encoder = nil
	}
}

type wgpuRenderPass struct {
	pass  *wgpu.RenderPassEncoder
	ended bool
}

func (p *wgpuRenderPass) SetPipeline(rp RenderPipeline) {
	if pl, ok := rp.(*wgpuRenderPipeline); ok {
		p.pass.SetPipeline(pl.pipeline)
	}
}

func (p *wgpuRenderPass) SetBindGroup(group uint32, bg BindGroup) {
	if g, ok := bg.(*wgpuBindGroup); ok {
		p.pass.SetBindGroup(group, g.group, nil)
	}
}

func (p *wgpuRenderPass) SetVertexBuffer(slot uint32, buf Buffer) {
	if b, ok := buf.(*wgpuBuffer); ok {
		p.pass.SetVertexBuffer(slot, b.buffer, 0, wgpu.WholeSize)
	}
}

func (p *wgpuRenderPass) SetIndexBuffer(buf Buffer, format wgpu.IndexFormat) {
	if b, ok := buf.(*wgpuBuffer); ok {
		p.pass.SetIndexBuffer(b.buffer, format, 0, wgpu.WholeSize)
	}
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount uint32) {
	p.pass.Draw(vertexCount, instanceCount, 0, 0)
}

func (p *wgpuRenderPass) DrawIndexed(indexCount, instanceCount uint32) {
	p.pass.DrawIndexed(indexCount, instanceCount, 0, 0, 0)
}

func (p *wgpuRenderPass) End() error {
	if p.ended {
		return errors.New("render pass already ended")
	}
	p.pass.End()
	p.ended = true
	return nil
}

func (p *wgpuRenderPass) release() {
	if p.pass != nil {
		p.pass.Release()
		p.pass = nil
	}
}
