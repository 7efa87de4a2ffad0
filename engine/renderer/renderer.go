// Package renderer sequences one frame of render passes: acquire the surface, record an optional
// offscreen pass and the main pass into one encoder, submit and present. Per-item failures are
// logged and skip only that item. Surface loss skips the frame after reconfiguring the target.
// Device loss is returned to the caller as fatal.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/cogentcore/webgpu/wgpu"
)

// Errors reported for skipped draw items.
var (
	ErrNilPipeline       = errors.New("draw item has no pipeline")
	ErrNoVertexBuffer    = errors.New("draw item has no vertex buffer")
	ErrTargetMismatch    = errors.New("pipeline does not match the render target")
	ErrUnboundOverride   = errors.New("override names a group the item does not bind")
	ErrMissingGroupTable = errors.New("group binding has no slot table")
	ErrUnboundGroup      = errors.New("pipeline group is not bound by the item")
)

type surfaceSize struct {
	width, height uint32
}

// tableGroup identifies one group of one slot table touched during a frame.
type tableGroup struct {
	table slot_table.SlotTable
	group int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	device    device.Device
	pipelines pipeline.Builder
	surface   target.Target
	offscreen target.Target

	width       uint32
	height      uint32
	sampleCount device.MSAASampleCount
	clearColor  wgpu.Color
	presentMode *device.PresentMode

	pending *surfaceSize
	frames  uint64
}

// Renderer records and submits frames against the surface and an optional offscreen target.
// One frame completes from Acquire to Present before the next begins.
type Renderer interface {
	// Device returns the device the renderer draws with.
	Device() device.Device

	// Pipelines returns the pipeline builder bound to the renderer's device.
	Pipelines() pipeline.Builder

	// Surface returns the presentation surface target.
	Surface() target.Target

	// RenderFrame runs one frame. The context is checked once, before Acquire; a frame that has
	// started acquiring always runs to completion.
	//
	// Parameters:
	//   - ctx: cancels the frame before it starts
	//   - frame: the draw items of the offscreen and main passes
	//
	// Returns:
	//   - FrameStats: counts for the frame, also for skipped frames
	//   - error: a wrapped *gpu_error.SurfaceLostError when the frame was skipped to reconfigure the
	//     surface, a wrapped *gpu_error.DeviceLostError when the device no longer accepts work, or
	//     the context error
	RenderFrame(ctx context.Context, frame Frame) (FrameStats, error)

	// Resize records a new surface size. The next frame reconfigures the surface and its
	// attachments and is skipped with a SurfaceLostError.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// SetPresentMode changes the present mode. It takes effect through the same reconfiguration
	// path as Resize.
	SetPresentMode(mode device.PresentMode)

	// SetClearColor changes the color the main pass clears to, starting with the next frame.
	SetClearColor(color wgpu.Color)

	// SetOffscreenTarget sets the target Frame.Offscreen items are drawn into. Nil disables the
	// offscreen pass. The caller keeps ownership of the target.
	//
	// Resizing an offscreen target releases its resolve view. Materials sampling the target must
	// be rebound to the new View() after each Resize, e.g. with material.SetTextureView.
	SetOffscreenTarget(t target.Target)

	// OffscreenTarget returns the offscreen target, or nil if none is set. Its View() changes
	// whenever the target is resized.
	OffscreenTarget() target.Target

	// Frames returns the number of frames submitted.
	Frames() uint64

	// Release frees the surface target and every cached pipeline.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a renderer on dev and configures the surface at the given size.
//
// Parameters:
//   - dev: the device to render with
//   - width: the initial surface width in pixels
//   - height: the initial surface height in pixels
//   - options: functional options such as WithMSAA and WithClearColor
//
// Returns:
//   - Renderer: the renderer
//   - error: error if the surface target cannot be created
func NewRenderer(dev device.Device, width, height int, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		device:      dev,
		width:       uint32(width),
		height:      uint32(height),
		sampleCount: device.MSAA4x,
		clearColor:  target.DefaultClearColor,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.pipelines == nil {
		r.pipelines = pipeline.NewBuilder(dev)
	}
	if r.presentMode != nil {
		dev.SetPresentMode(*r.presentMode)
	}

	surface, err := target.NewSurface(dev, r.width, r.height,
		target.WithSampleCount(r.sampleCount),
		target.WithClearColor(r.clearColor),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create surface target: %w", err)
	}
	r.surface = surface

	common.Logger().Info("renderer ready",
		"width", width, "height", height,
		"format", fmt.Sprint(surface.Format()),
		"samples", surface.SampleCount())
	return r, nil
}

func (r *renderer) Device() device.Device {
	return r.device
}

func (r *renderer) Pipelines() pipeline.Builder {
	return r.pipelines
}

func (r *renderer) Surface() target.Target {
	return r.surface
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &surfaceSize{width: uint32(max(width, 0)), height: uint32(max(height, 0))}
}

func (r *renderer) SetPresentMode(mode device.PresentMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device.SetPresentMode(mode)
	if r.pending == nil {
		w, h := r.surface.Size()
		r.pending = &surfaceSize{width: w, height: h}
	}
}

func (r *renderer) SetClearColor(color wgpu.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearColor = color
	r.surface.SetClearColor(color)
}

func (r *renderer) SetOffscreenTarget(t target.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offscreen = t
}

func (r *renderer) OffscreenTarget() target.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offscreen
}

func (r *renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines.Release()
	r.surface.Release()
}

func (r *renderer) RenderFrame(ctx context.Context, frame Frame) (FrameStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats FrameStats
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("frame abandoned: %w", err)
	}

	if r.pending != nil {
		if err := r.reconfigure(); err != nil {
			return stats, fmt.Errorf("frame skipped: %w", err)
		}
		w, h := r.surface.Size()
		return stats, fmt.Errorf("frame skipped: %w", &gpu_error.SurfaceLostError{Reason: fmt.Sprintf("surface reconfigured to %dx%d", w, h)})
	}

	main, err := r.surface.Acquire()
	if err != nil {
		if !gpu_error.IsSurfaceLost(err) {
			return stats, fmt.Errorf("acquire surface: %w", err)
		}
		w, h := r.surface.Size()
		r.pending = &surfaceSize{width: w, height: h}
		if reconfigureErr := r.reconfigure(); reconfigureErr != nil {
			common.Logger().Debug("surface reconfigure after acquire failure", "error", reconfigureErr)
		}
		return stats, fmt.Errorf("frame skipped: %w", err)
	}
	defer main.Release()

	encoder, err := r.device.CreateCommandEncoder("Frame Encoder")
	if err != nil {
		return stats, fmt.Errorf("create frame encoder: %w", asDeviceLost("create command encoder", err))
	}
	defer encoder.Release()

	touched := make(map[tableGroup]int)
	defer releaseTransient(touched)

	if r.offscreen != nil && len(frame.Offscreen) > 0 {
		off, err := r.offscreen.Acquire()
		if err != nil {
			return stats, fmt.Errorf("acquire offscreen target: %w", err)
		}
		if err := r.recordPass(encoder, "Offscreen Pass", r.offscreen, off, frame.Offscreen, touched, &stats); err != nil {
			return stats, err
		}
	}
	if err := r.recordPass(encoder, "Main Pass", r.surface, main, frame.Main, touched, &stats); err != nil {
		return stats, err
	}

	for tg, before := range touched {
		stats.BindGroupBuilds += tg.table.BuildCount(tg.group) - before
	}

	commands, err := encoder.Finish()
	if err != nil {
		return stats, fmt.Errorf("finish frame: %w", asDeviceLost("finish command encoder", err))
	}
	defer commands.Release()

	if err := r.device.Submit(commands); err != nil {
		return stats, fmt.Errorf("submit frame: %w", asDeviceLost("submit", err))
	}
	r.frames++

	if err := r.device.Present(); err != nil {
		w, h := r.surface.Size()
		r.pending = &surfaceSize{width: w, height: h}
		return stats, fmt.Errorf("present frame: %w", &gpu_error.SurfaceLostError{Reason: "present", Err: err})
	}
	return stats, nil
}

// reconfigure applies the pending surface size. The pending size stays set while it has zero area
// or the surface rejects it.
func (r *renderer) reconfigure() error {
	size := *r.pending
	if size.width == 0 || size.height == 0 {
		return &gpu_error.SurfaceLostError{Reason: fmt.Sprintf("surface has zero area %dx%d", size.width, size.height)}
	}
	if err := r.surface.Resize(size.width, size.height); err != nil {
		return &gpu_error.SurfaceLostError{Reason: "reconfigure surface", Err: err}
	}
	r.pending = nil
	common.Logger().Debug("surface reconfigured", "width", size.width, "height", size.height)
	return nil
}

// recordPass records one pass. Only a failure to end the pass is returned; item errors are logged
// and counted.
func (r *renderer) recordPass(
	encoder device.CommandEncoder,
	label string,
	t target.Target,
	attachments *target.Attachments,
	items []DrawItem,
	touched map[tableGroup]int,
	stats *FrameStats,
) error {
	pass := encoder.BeginRenderPass(attachments.Descriptor(label))
	stats.Passes++

	for i, item := range items {
		if err := recordItem(pass, t, item, touched); err != nil {
			stats.Skipped++
			common.Logger().Warn("draw item skipped", "pass", label, "item", i, "label", item.Label, "error", err)
			continue
		}
		stats.Drawn++
	}

	if err := pass.End(); err != nil {
		return fmt.Errorf("end %s: %w", label, err)
	}
	return nil
}

// recordItem resolves every bind group of an item before recording anything, so a failing item
// leaves no partial commands in the pass.
func recordItem(pass device.RenderPass, t target.Target, item DrawItem, touched map[tableGroup]int) error {
	p := item.Pipeline
	if p == nil {
		return ErrNilPipeline
	}
	if p.SampleCount() != t.SampleCount() || p.Format() != t.Format() {
		return fmt.Errorf("%w: pipeline %s renders %v x%d, %s target is %v x%d",
			ErrTargetMismatch, p.Label(), p.Format(), p.SampleCount(), t.Kind(), t.Format(), t.SampleCount())
	}
	if item.Mesh.VertexBuffer == nil {
		return ErrNoVertexBuffer
	}
	if err := checkLayout(p, item.Bindings); err != nil {
		return err
	}

	overrides := make(map[uint32][]slot_table.Override)
	for _, o := range item.Overrides {
		overrides[uint32(o.Group)] = append(overrides[uint32(o.Group)], o)
	}

	groups := make([]device.BindGroup, len(item.Bindings))
	for i, b := range item.Bindings {
		if b.Table == nil {
			return fmt.Errorf("%w: group %d", ErrMissingGroupTable, b.Index)
		}
		tg := tableGroup{table: b.Table, group: b.Group}
		if _, seen := touched[tg]; !seen {
			touched[tg] = b.Table.BuildCount(b.Group)
		}

		var err error
		if o, ok := overrides[b.Index]; ok {
			groups[i], err = b.Table.ResolveOverrides(b.Group, o)
			delete(overrides, b.Index)
		} else {
			groups[i], err = b.Table.BindGroup(b.Group)
		}
		if err != nil {
			return fmt.Errorf("group %d: %w", b.Index, err)
		}
	}
	for index := range overrides {
		return fmt.Errorf("%w: group %d", ErrUnboundOverride, index)
	}

	pass.SetPipeline(p.RenderPipeline())
	for i, b := range item.Bindings {
		pass.SetBindGroup(b.Index, groups[i])
	}
	pass.SetVertexBuffer(0, item.Mesh.VertexBuffer)
	if item.Mesh.Indexed() {
		format := item.Mesh.IndexFormat
		if format == wgpu.IndexFormatUndefined {
			format = wgpu.IndexFormatUint32
		}
		pass.SetIndexBuffer(item.Mesh.IndexBuffer, format)
		pass.DrawIndexed(item.Mesh.IndexCount, item.instances())
	} else {
		pass.Draw(item.Mesh.VertexCount, item.instances())
	}
	return nil
}

// checkLayout verifies that every group the pipeline was built against is bound, and that each
// bound table group declares exactly the slots the pipeline expects, with the same kinds.
// Groups the item binds beyond the pipeline's layout are not checked.
func checkLayout(p pipeline.Pipeline, bindings []GroupBinding) error {
	bound := make(map[int]GroupBinding, len(bindings))
	for _, b := range bindings {
		bound[int(b.Index)] = b
	}

	layout := p.ResourceLayout()
	for _, group := range p.Groups() {
		b, ok := bound[group]
		if !ok {
			return fmt.Errorf("%w: group %d of pipeline %s", ErrUnboundGroup, group, p.Label())
		}
		if b.Table == nil {
			return fmt.Errorf("%w: group %d", ErrMissingGroupTable, group)
		}
		have, ok := b.Table.LayoutDescriptor(b.Group)
		if !ok {
			return fmt.Errorf("group %d: %s has no group %d", group, b.Table.Label(), b.Group)
		}

		got := make(map[uint32]slot_table.SlotKind, len(have.Entries))
		for _, entry := range have.Entries {
			got[entry.Binding] = slotKindOf(entry)
		}
		for _, entry := range layout[group].Entries {
			want := slotKindOf(entry)
			if kind := got[entry.Binding]; kind != want {
				return &gpu_error.SlotKindMismatchError{Group: group, Slot: int(entry.Binding), Declared: want.String(), Got: kind.String()}
			}
			delete(got, entry.Binding)
		}
		for _, entry := range have.Entries {
			if kind, extra := got[entry.Binding]; extra {
				return &gpu_error.SlotKindMismatchError{Group: group, Slot: int(entry.Binding), Declared: slot_table.SlotKindUndefined.String(), Got: kind.String()}
			}
		}
	}
	return nil
}

func slotKindOf(entry wgpu.BindGroupLayoutEntry) slot_table.SlotKind {
	switch shader.ClassOf(entry) {
	case shader.ResourceClassBuffer:
		return slot_table.SlotKindUniformBuffer
	case shader.ResourceClassTexture:
		return slot_table.SlotKindSampledTexture
	case shader.ResourceClassSampler:
		return slot_table.SlotKindSampler
	default:
		return slot_table.SlotKindUndefined
	}
}

// releaseTransient frees the override bind groups of every table touched by the frame.
func releaseTransient(touched map[tableGroup]int) {
	released := make(map[slot_table.SlotTable]bool)
	for tg := range touched {
		if released[tg.table] {
			continue
		}
		tg.table.ReleaseTransient()
		released[tg.table] = true
	}
}

func asDeviceLost(reason string, err error) error {
	if gpu_error.IsDeviceLost(err) {
		return err
	}
	return &gpu_error.DeviceLostError{Reason: reason, Err: err}
}
