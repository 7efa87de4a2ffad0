package device

import "github.com/cogentcore/webgpu/wgpu"

// DeviceBuilderOption is a functional option applied to the wgpu device during construction via NewWGPUDevice.
type DeviceBuilderOption func(*wgpuDevice)

// WithSurfaceDescriptor sets the platform surface the device presents into. Without it the device
// is created headless and can only render into offscreen targets.
//
// Parameters:
//   - desc: the platform surface descriptor, usually from the window
//
// Returns:
//   - DeviceBuilderOption: a function that applies the surface option to a device
func WithSurfaceDescriptor(desc *wgpu.SurfaceDescriptor) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.surfaceDescriptor = desc
	}
}

// WithForceFallbackAdapter forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that applies the fallback option to a device
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithPresentMode sets the initial surface present mode.
func WithPresentMode(mode PresentMode) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.presentMode = mode
	}
}

// WithLimits replaces the limits requested from the adapter. The default is wgpu.DefaultLimits.
func WithLimits(limits wgpu.Limits) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.limits = limits
	}
}

// WithLabel sets the debug label of the device.
func WithLabel(label string) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.label = label
	}
}
