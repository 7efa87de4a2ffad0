package mock

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Buffer is a host-memory buffer. Writes land in its backing slice.
type Buffer struct {
	label    string
	size     uint64
	data     []byte
	Usage    wgpu.BufferUsage
	Writes   int
	Released bool
}

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Size() uint64  { return b.size }
func (b *Buffer) Release()      { b.Released = true }

// Bytes returns a copy of the buffer contents in [offset, offset+size).
func (b *Buffer) Bytes(offset, size uint64) []byte {
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out
}

// Texture records its descriptor and last uploaded pixels.
type Texture struct {
	Desc     device.TextureDescriptor
	Pixels   []byte
	Views    int
	Released bool
}

func (t *Texture) Label() string              { return t.Desc.Label }
func (t *Texture) Width() uint32              { return t.Desc.Width }
func (t *Texture) Height() uint32             { return t.Desc.Height }
func (t *Texture) Format() wgpu.TextureFormat { return t.Desc.Format }
func (t *Texture) SampleCount() uint32        { return max(t.Desc.SampleCount, 1) }
func (t *Texture) Release()                   { t.Released = true }

func (t *Texture) CreateView() (device.TextureView, error) {
	if t.Released {
		return nil, errors.New("texture released")
	}
	t.Views++
	return &TextureView{Label: t.Desc.Label, Texture: t}, nil
}

// TextureView is a view over a mock Texture, or over the surface when Texture is nil.
type TextureView struct {
	Label    string
	Texture  *Texture
	Released bool
}

func (v *TextureView) Release() { v.Released = true }

// Sampler records the resolved sampler configuration.
type Sampler struct {
	Label    string
	Config   common.SamplerStagingData
	Released bool
}

func (s *Sampler) Release() { s.Released = true }

// BindGroupLayout records its descriptor.
type BindGroupLayout struct {
	Desc     wgpu.BindGroupLayoutDescriptor
	Released bool
}

func (l *BindGroupLayout) Release() { l.Released = true }

// BindGroup records its entries.
type BindGroup struct {
	Label    string
	Entries  []device.BindGroupEntry
	Released bool
}

func (g *BindGroup) Release() { g.Released = true }

// ShaderModule records its source.
type ShaderModule struct {
	Label    string
	Source   string
	Released bool
}

func (m *ShaderModule) Release() { m.Released = true }

// RenderPipeline records its descriptor.
type RenderPipeline struct {
	Desc     device.RenderPipelineDescriptor
	Released bool
}

func (p *RenderPipeline) Release() { p.Released = true }

// CommandBuffer is a finished mock encoder.
type CommandBuffer struct {
	Passes    []*RenderPass
	Submitted bool
	Released  bool
}

func (c *CommandBuffer) Release() { c.Released = true }

// SurfaceTexture is the acquired mock surface image.
type SurfaceTexture struct {
	device *Device
	view   *TextureView
	Width  uint32
	Height uint32
}

func (s *SurfaceTexture) View() device.TextureView { return s.view }

func (s *SurfaceTexture) Release() {
	s.view.Released = true
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.device.acquired = false
}

// CommandEncoder collects render passes.
type CommandEncoder struct {
	device   *Device
	Label    string
	Passes   []*RenderPass
	Released bool
}

func (e *CommandEncoder) BeginRenderPass(desc device.RenderPassDescriptor) device.RenderPass {
	p := &RenderPass{Desc: desc}
	e.Passes = append(e.Passes, p)
	e.device.mu.Lock()
	e.device.passes = append(e.device.passes, p)
	e.device.mu.Unlock()
	return p
}

func (e *CommandEncoder) Finish() (device.CommandBuffer, error) {
	e.device.mu.Lock()
	err := e.device.finishErr
	e.device.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, p := range e.Passes {
		if !p.Ended {
			return nil, errors.New("render pass was not ended before finish")
		}
	}
	return &CommandBuffer{Passes: e.Passes}, nil
}

func (e *CommandEncoder) Release() { e.Released = true }

// Command is one recorded render pass command.
type Command struct {
	Op            string
	Group         uint32
	Pipeline      device.RenderPipeline
	BindGroup     device.BindGroup
	Buffer        device.Buffer
	Count         uint32
	InstanceCount uint32
}

// RenderPass records its descriptor and every command.
type RenderPass struct {
	Desc     device.RenderPassDescriptor
	Commands []Command
	Ended    bool
}

func (p *RenderPass) SetPipeline(rp device.RenderPipeline) {
	p.Commands = append(p.Commands, Command{Op: "SetPipeline", Pipeline: rp})
}

func (p *RenderPass) SetBindGroup(group uint32, bg device.BindGroup) {
	p.Commands = append(p.Commands, Command{Op: "SetBindGroup", Group: group, BindGroup: bg})
}

func (p *RenderPass) SetVertexBuffer(slot uint32, buf device.Buffer) {
	p.Commands = append(p.Commands, Command{Op: "SetVertexBuffer", Group: slot, Buffer: buf})
}

func (p *RenderPass) SetIndexBuffer(buf device.Buffer, _ wgpu.IndexFormat) {
	p.Commands = append(p.Commands, Command{Op: "SetIndexBuffer", Buffer: buf})
}

func (p *RenderPass) Draw(vertexCount, instanceCount uint32) {
	p.Commands = append(p.Commands, Command{Op: "Draw", Count: vertexCount, InstanceCount: instanceCount})
}

func (p *RenderPass) DrawIndexed(indexCount, instanceCount uint32) {
	p.Commands = append(p.Commands, Command{Op: "DrawIndexed", Count: indexCount, InstanceCount: instanceCount})
}

func (p *RenderPass) End() error {
	if p.Ended {
		return errors.New("render pass already ended")
	}
	p.Ended = true
	return nil
}

// Draws returns the Draw and DrawIndexed commands of the pass.
func (p *RenderPass) Draws() []Command {
	var out []Command
	for _, c := range p.Commands {
		if c.Op == "Draw" || c.Op == "DrawIndexed" {
			out = append(out, c)
		}
	}
	return out
}
