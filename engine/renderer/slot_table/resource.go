package slot_table

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
	"github.com/cogentcore/webgpu/wgpu"
)

// SlotKind is the kind of GPU resource a slot holds. It is fixed at the first Declare.
type SlotKind int

const (
	SlotKindUndefined SlotKind = iota
	SlotKindUniformBuffer
	SlotKindSampledTexture
	SlotKindSampler
)

func (k SlotKind) String() string {
	switch k {
	case SlotKindUniformBuffer:
		return "UniformBuffer"
	case SlotKindSampledTexture:
		return "SampledTexture"
	case SlotKindSampler:
		return "Sampler"
	default:
		return "Undefined"
	}
}

// Resource is the value bound into a slot: a uniform payload, a texture view or a sampler.
// Exactly one should be set; use the constructors below.
type Resource struct {
	Payload uniform.Payload
	Texture device.TextureView
	Sampler device.Sampler
}

// UniformResource wraps a uniform payload.
func UniformResource(p uniform.Payload) Resource {
	return Resource{Payload: p}
}

// TextureResource wraps a sampled texture view.
func TextureResource(v device.TextureView) Resource {
	return Resource{Texture: v}
}

// SamplerResource wraps a sampler.
func SamplerResource(s device.Sampler) Resource {
	return Resource{Sampler: s}
}

// Kind reports which kind of resource r carries. An empty or ambiguous resource is SlotKindUndefined.
func (r Resource) Kind() SlotKind {
	kind := SlotKindUndefined
	n := 0
	if !r.Payload.IsZero() {
		kind = SlotKindUniformBuffer
		n++
	}
	if r.Texture != nil {
		kind = SlotKindSampledTexture
		n++
	}
	if r.Sampler != nil {
		kind = SlotKindSampler
		n++
	}
	if n != 1 {
		return SlotKindUndefined
	}
	return kind
}

// IsEmpty reports whether r carries nothing.
func (r Resource) IsEmpty() bool {
	return r.Payload.IsZero() && r.Texture == nil && r.Sampler == nil
}

// Override replaces one slot's resource for a single draw item. Group is the pipeline bind group
// index the override applies to; Slot is the binding within it.
type Override struct {
	Group    int
	Slot     int
	Resource Resource
}

// Slot describes one declared binding.
type Slot struct {
	Group      int
	Index      int
	Kind       SlotKind
	Visibility wgpu.ShaderStage
	// Size is the declared byte size of a uniform slot. Updates larger than this fail.
	Size uint64
	// Offset is the byte offset of a uniform slot's region inside its group buffer.
	Offset uint64
}
