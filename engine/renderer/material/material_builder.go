package material

import (
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
)

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithBaseColor is an option builder that sets the albedo/diffuse RGBA color of the material.
//
// Parameters:
//   - color: the base color as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *material) {
		m.baseColor = color
	}
}

// WithMetallic is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metallic option to a material
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *material) {
		m.metallic = metallic
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = roughness
	}
}

// WithTexture sets the pixels of the diffuse texture.
func WithTexture(data common.TextureStagingData) MaterialBuilderOption {
	return func(m *material) {
		m.pixels = &data
	}
}

// WithSampler sets the sampler configuration. Zero fields take the defaults of
// common.SamplerStagingData.
func WithSampler(data common.SamplerStagingData) MaterialBuilderOption {
	return func(m *material) {
		m.samplerData = data
	}
}

// WithTable places the material in a shared slot table at the given group instead of a table of
// its own. The caller keeps ownership of the table.
//
// Parameters:
//   - table: the shared table
//   - group: the group index within table
//
// Returns:
//   - MaterialBuilderOption: a function that applies the table option to a material
func WithTable(table slot_table.SlotTable, group int) MaterialBuilderOption {
	return func(m *material) {
		m.table = table
		m.group = group
	}
}
