package slot_table

import "github.com/cogentcore/webgpu/wgpu"

// SlotTableOption is a functional option applied to a slot table during construction via NewSlotTable.
type SlotTableOption func(*slotTable)

// WithLabel sets the debug label used for every GPU object the table creates.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - SlotTableOption: a function that applies the label option to a table
func WithLabel(label string) SlotTableOption {
	return func(t *slotTable) {
		t.label = label
	}
}

// WithVisibility sets the default shader stage visibility of slots declared on the table.
// The default is vertex and fragment.
//
// Parameters:
//   - visibility: the shader stages that may access the slots
//
// Returns:
//   - SlotTableOption: a function that applies the visibility option to a table
func WithVisibility(visibility wgpu.ShaderStage) SlotTableOption {
	return func(t *slotTable) {
		t.visibility = visibility
	}
}

// WithTextureSampleType sets the default sample type of SampledTexture slots. The default is float.
func WithTextureSampleType(sampleType wgpu.TextureSampleType) SlotTableOption {
	return func(t *slotTable) {
		t.sampleType = sampleType
	}
}

// SlotOption is a functional option applied to a single slot by Declare.
type SlotOption func(*slotState)

// WithSlotVisibility overrides the table's default visibility for one slot.
func WithSlotVisibility(visibility wgpu.ShaderStage) SlotOption {
	return func(s *slotState) {
		s.Visibility = visibility
	}
}

// WithSlotSampleType overrides the table's default texture sample type for one slot.
func WithSlotSampleType(sampleType wgpu.TextureSampleType) SlotOption {
	return func(s *slotState) {
		s.sampleType = sampleType
	}
}

// WithSlotSamplerType sets the binding type of a Sampler slot. The default is filtering.
func WithSlotSamplerType(samplerType wgpu.SamplerBindingType) SlotOption {
	return func(s *slotState) {
		s.samplerType = samplerType
	}
}
