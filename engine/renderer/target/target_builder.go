package target

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// TargetBuilderOption is a functional option applied to a target during construction via
// NewSurface or NewOffscreen.
type TargetBuilderOption func(*target)

// WithLabel sets the debug label used for every texture the target creates.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - TargetBuilderOption: a function that applies the label option to a target
func WithLabel(label string) TargetBuilderOption {
	return func(t *target) {
		t.label = label
	}
}

// WithSampleCount sets the multisample count of the color and depth attachments. The default is
// MSAA4x. With MSAAOff the pass draws straight into the final view.
//
// Parameters:
//   - count: the sample count
//
// Returns:
//   - TargetBuilderOption: a function that applies the sample count option to a target
func WithSampleCount(count device.MSAASampleCount) TargetBuilderOption {
	return func(t *target) {
		t.sampleCount = uint32(count)
	}
}

// WithClearColor sets the color the target is cleared to.
//
// Parameters:
//   - color: the clear color
//
// Returns:
//   - TargetBuilderOption: a function that applies the clear color option to a target
func WithClearColor(color wgpu.Color) TargetBuilderOption {
	return func(t *target) {
		t.clearColor = color
	}
}

// WithFormat sets the color format of an offscreen target. Surface targets always use the
// device's surface format and ignore this option.
func WithFormat(format wgpu.TextureFormat) TargetBuilderOption {
	return func(t *target) {
		t.format = format
	}
}
