// Package target holds the two kinds of render target: the presentation surface and an offscreen
// texture. Each target owns its multisampled color attachment and its depth attachment, and
// recreates both together on resize. An offscreen target also owns the single-sample texture its
// color resolves into, which other pipelines may sample.
package target

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/cogentcore/webgpu/wgpu"
)

// Kind is the closed set of render target kinds.
type Kind int

const (
	// KindSurface renders into the presentation surface.
	KindSurface Kind = iota
	// KindOffscreen renders into a texture owned by the target.
	KindOffscreen
)

func (k Kind) String() string {
	if k == KindOffscreen {
		return "offscreen"
	}
	return "surface"
}

// DefaultClearColor is the color targets are cleared to unless WithClearColor says otherwise.
var DefaultClearColor = wgpu.Color{R: 0.01, G: 0.01, B: 0.02, A: 1.0}

// DepthClearValue is the far-plane value depth attachments are cleared to.
const DepthClearValue float32 = 1.0

// Attachments are the views one pass renders into for one frame.
type Attachments struct {
	Color device.ColorAttachment
	Depth device.DepthAttachment

	surface device.SurfaceTexture
}

// Descriptor builds the render pass descriptor for the attachments.
//
// Parameters:
//   - label: the debug label of the pass
//
// Returns:
//   - device.RenderPassDescriptor: the descriptor to begin the pass with
func (a *Attachments) Descriptor(label string) device.RenderPassDescriptor {
	depth := a.Depth
	return device.RenderPassDescriptor{
		Label: label,
		Color: a.Color,
		Depth: &depth,
	}
}

// Release returns the acquired surface image, if any. Call it after presenting.
func (a *Attachments) Release() {
	if a.surface != nil {
		a.surface.Release()
		a.surface = nil
	}
}

// target is the implementation of the Target interface.
type target struct {
	mu     *sync.Mutex
	device device.Device
	kind   Kind
	label  string

	width       uint32
	height      uint32
	format      wgpu.TextureFormat
	sampleCount uint32
	clearColor  wgpu.Color

	msaaTexture device.Texture
	msaaView    device.TextureView

	depthTexture device.Texture
	depthView    device.TextureView

	resolveTexture device.Texture
	resolveView    device.TextureView
}

// Target is a surface or offscreen render target together with its auxiliary attachments.
type Target interface {
	// Kind returns whether the target is the surface or an offscreen texture.
	Kind() Kind

	// Label returns the debug label of the target.
	Label() string

	// Size returns the current size of the target in pixels.
	Size() (width, height uint32)

	// Format returns the color format pipelines drawing into the target must use.
	Format() wgpu.TextureFormat

	// SampleCount returns the multisample count pipelines drawing into the target must use.
	SampleCount() uint32

	// ClearColor returns the color the target is cleared to at the start of a pass.
	ClearColor() wgpu.Color

	// SetClearColor changes the clear color from the next pass on.
	SetClearColor(color wgpu.Color)

	// Resize recreates the attachments at a new size. A surface target reconfigures the surface
	// first. An offscreen target also recreates its resolve texture, so sampled views taken from
	// the old texture must be replaced.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: error if the size is zero or an attachment cannot be created
	Resize(width, height uint32) error

	// Acquire returns the attachments for one pass. A surface target acquires the next
	// presentable image, which may block briefly.
	//
	// Returns:
	//   - *Attachments: the attachments to render into
	//   - error: a *gpu_error.SurfaceLostError if the surface must be reconfigured
	Acquire() (*Attachments, error)

	// Texture returns the sampleable resolve texture of an offscreen target, or nil for the surface.
	Texture() device.Texture

	// View returns a view of the resolve texture of an offscreen target, or nil for the surface.
	View() device.TextureView

	// Release frees every texture the target owns.
	Release()
}

var _ Target = &target{}

// NewSurface creates the surface target, configures the surface to the given size and creates
// its attachments. The color format is the device's surface format.
//
// Parameters:
//   - dev: the device owning the surface
//   - width: the initial width in pixels
//   - height: the initial height in pixels
//   - options: functional options such as WithSampleCount and WithClearColor
//
// Returns:
//   - Target: the surface target
//   - error: error if the surface cannot be configured or an attachment cannot be created
func NewSurface(dev device.Device, width, height uint32, options ...TargetBuilderOption) (Target, error) {
	t := newTarget(dev, KindSurface, "Surface", options)
	t.format = dev.SurfaceFormat()
	if err := t.Resize(width, height); err != nil {
		return nil, err
	}
	return t, nil
}

// NewOffscreen creates an offscreen target and its attachments. The color format defaults to the
// device's surface format so the same pipelines can draw into either target.
//
// Parameters:
//   - dev: the device textures are created on
//   - width: the width in pixels
//   - height: the height in pixels
//   - options: functional options such as WithFormat and WithClearColor
//
// Returns:
//   - Target: the offscreen target
//   - error: error if an attachment cannot be created
func NewOffscreen(dev device.Device, width, height uint32, options ...TargetBuilderOption) (Target, error) {
	t := newTarget(dev, KindOffscreen, "Offscreen", options)
	if t.format == wgpu.TextureFormatUndefined {
		t.format = dev.SurfaceFormat()
	}
	if err := t.Resize(width, height); err != nil {
		return nil, err
	}
	return t, nil
}

func newTarget(dev device.Device, kind Kind, label string, options []TargetBuilderOption) *target {
	t := &target{
		mu:          &sync.Mutex{},
		device:      dev,
		kind:        kind,
		label:       label,
		sampleCount: uint32(device.MSAA4x),
		clearColor:  DefaultClearColor,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *target) Kind() Kind {
	return t.kind
}

func (t *target) Label() string {
	return t.label
}

func (t *target) Size() (uint32, uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

func (t *target) Format() wgpu.TextureFormat {
	return t.format
}

func (t *target) SampleCount() uint32 {
	return t.sampleCount
}

func (t *target) ClearColor() wgpu.Color {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clearColor
}

func (t *target) SetClearColor(color wgpu.Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearColor = color
}

func (t *target) Resize(width, height uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if width == 0 || height == 0 {
		return fmt.Errorf("%s target: cannot resize to %dx%d", t.kind, width, height)
	}
	if !device.MSAASampleCount(t.sampleCount).Valid() {
		return fmt.Errorf("%s target: unsupported sample count %d", t.kind, t.sampleCount)
	}
	if t.kind == KindSurface {
		if err := t.device.ConfigureSurface(width, height); err != nil {
			return &gpu_error.SurfaceLostError{Reason: fmt.Sprintf("configure surface to %dx%d", width, height), Err: err}
		}
	}

	t.releaseAttachments()
	t.width, t.height = width, height
	if err := t.createAttachments(); err != nil {
		t.releaseAttachments()
		return fmt.Errorf("%s target: %w", t.kind, err)
	}
	return nil
}

// createAttachments creates every texture the target owns at its current size.
func (t *target) createAttachments() error {
	var err error
	if device.MSAASampleCount(t.sampleCount).Enabled() {
		t.msaaTexture, t.msaaView, err = t.createTexture(t.label+" MSAA Texture", t.format, t.sampleCount, wgpu.TextureUsageRenderAttachment)
		if err != nil {
			return err
		}
	}

	t.depthTexture, t.depthView, err = t.createTexture(t.label+" Depth Texture", device.DepthFormat, t.sampleCount, wgpu.TextureUsageRenderAttachment)
	if err != nil {
		return err
	}

	if t.kind == KindOffscreen {
		t.resolveTexture, t.resolveView, err = t.createTexture(t.label+" Resolve Texture", t.format, 1,
			wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopySrc)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *target) createTexture(label string, format wgpu.TextureFormat, samples uint32, usage wgpu.TextureUsage) (device.Texture, device.TextureView, error) {
	tex, err := t.device.CreateTexture(device.TextureDescriptor{
		Label:       label,
		Width:       t.width,
		Height:      t.height,
		Format:      format,
		SampleCount: samples,
		Usage:       usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", label, err)
	}
	view, err := tex.CreateView()
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("failed to create view of %s: %w", label, err)
	}
	return tex, view, nil
}

func (t *target) releaseAttachments() {
	for _, v := range []device.TextureView{t.msaaView, t.depthView, t.resolveView} {
		if v != nil {
			v.Release()
		}
	}
	for _, tex := range []device.Texture{t.msaaTexture, t.depthTexture, t.resolveTexture} {
		if tex != nil {
			tex.Release()
		}
	}
	t.msaaTexture, t.msaaView = nil, nil
	t.depthTexture, t.depthView = nil, nil
	t.resolveTexture, t.resolveView = nil, nil
}

func (t *target) Acquire() (*Attachments, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.depthView == nil {
		return nil, fmt.Errorf("%s target has no attachments", t.kind)
	}

	a := &Attachments{
		Depth: device.DepthAttachment{
			View:       t.depthView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpDiscard,
			ClearValue: DepthClearValue,
		},
	}

	var final device.TextureView
	switch t.kind {
	case KindSurface:
		st, err := t.device.AcquireSurfaceTexture()
		if err != nil {
			return nil, err
		}
		a.surface = st
		final = st.View()
	case KindOffscreen:
		final = t.resolveView
	}

	a.Color = device.ColorAttachment{
		LoadOp:     wgpu.LoadOpClear,
		ClearValue: t.clearColor,
	}
	if t.msaaView != nil {
		// The multisampled samples are only needed until they resolve.
		a.Color.View = t.msaaView
		a.Color.ResolveTarget = final
		a.Color.StoreOp = wgpu.StoreOpDiscard
	} else {
		a.Color.View = final
		a.Color.StoreOp = wgpu.StoreOpStore
	}
	return a, nil
}

func (t *target) Texture() device.Texture {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveTexture
}

func (t *target) View() device.TextureView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveView
}

func (t *target) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseAttachments()
}
