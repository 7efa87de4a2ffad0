package device

import "github.com/cogentcore/webgpu/wgpu"

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// ParsePresentMode maps a config string ("vsync" or "uncapped") to a PresentMode.
// Unknown strings report false.
func ParsePresentMode(s string) (PresentMode, bool) {
	switch s {
	case "vsync", "fifo":
		return PresentModeVSync, true
	case "uncapped", "immediate":
		return PresentModeUncapped, true
	}
	return PresentModeVSync, false
}

func (m PresentMode) String() string {
	if m == PresentModeUncapped {
		return "uncapped"
	}
	return "vsync"
}

// WGPU returns the wgpu present mode for m.
func (m PresentMode) WGPU() wgpu.PresentMode {
	if m == PresentModeUncapped {
		return wgpu.PresentModeImmediate
	}
	return wgpu.PresentModeFifo
}

// MSAASampleCount controls the number of samples used for multisample anti-aliasing.
// WebGPU guarantees support for 1 (off) and 4; higher values are adapter-dependent.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8x multisample anti-aliasing. Adapter-dependent.
	MSAA8x MSAASampleCount = 8

	// MSAA16x enables 16x multisample anti-aliasing. Adapter-dependent.
	MSAA16x MSAASampleCount = 16
)

// Valid reports whether c is one of the defined sample counts.
func (c MSAASampleCount) Valid() bool {
	switch c {
	case MSAAOff, MSAA4x, MSAA8x, MSAA16x:
		return true
	}
	return false
}

// Enabled reports whether c renders into a multisampled attachment that needs a resolve.
func (c MSAASampleCount) Enabled() bool {
	return c > 1
}
