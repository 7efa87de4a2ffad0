package loader

import (
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithDevice sets the device imported materials are created on. Without one, parts carry
// their imported material data in Part.Source but no Material.
//
// Parameters:
//   - dev: the GPU device
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithDevice(dev device.Device) LoaderBuilderOption {
	return func(l *loader) {
		l.dev = dev
	}
}

// WithSampler sets the sampler of materials whose file does not specify one.
func WithSampler(sampler common.SamplerStagingData) LoaderBuilderOption {
	return func(l *loader) {
		l.sampler = &sampler
	}
}
