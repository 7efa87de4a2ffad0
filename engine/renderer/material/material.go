// Package material binds a texture, a sampler and surface parameters as one slot table group.
package material

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
	"github.com/cogentcore/webgpu/wgpu"
)

// Binding indices within a material group.
const (
	SlotParams  = 0
	SlotTexture = 1
	SlotSampler = 2
)

// ParamsLayout is the uniform record bound at SlotParams.
var ParamsLayout = uniform.RecordLayout(
	uniform.FieldLayout{Name: "base_color", Type: uniform.FieldTypeVec4F, Offset: 0},
	uniform.FieldLayout{Name: "metallic", Type: uniform.FieldTypeF32, Offset: 16},
	uniform.FieldLayout{Name: "roughness", Type: uniform.FieldTypeF32, Offset: 20},
)

// material is the implementation of the Material interface.
type material struct {
	mu     *sync.Mutex
	device device.Device

	name      string
	baseColor [4]float32
	metallic  float32
	roughness float32

	pixels      *common.TextureStagingData
	samplerData common.SamplerStagingData

	table     slot_table.SlotTable
	ownsTable bool
	group     int
	texture   device.Texture
	view      device.TextureView
	ownsView  bool
	sampler   device.Sampler
	released  bool
}

// Material is a group of a slot table holding surface parameters at SlotParams, a sampled texture
// at SlotTexture and a sampler at SlotSampler. Shaders declare the matching bindings with WGSL.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo/diffuse RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor of the material.
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	Roughness() float32

	// SetParams writes new surface parameters in place. The bind group is not rebuilt.
	//
	// Parameters:
	//   - baseColor: the RGBA base color
	//   - metallic: the metallic factor
	//   - roughness: the roughness factor
	//
	// Returns:
	//   - error: an error if the slot table rejects the payload
	SetParams(baseColor [4]float32, metallic, roughness float32) error

	// SetTexture uploads new pixels into a fresh texture and rebinds it. The group is rebuilt the
	// next time it is bound.
	//
	// Parameters:
	//   - data: the RGBA pixels
	//
	// Returns:
	//   - error: an error if the pixels are invalid or the upload fails
	SetTexture(data common.TextureStagingData) error

	// SetTextureView binds a view the caller owns, such as an offscreen target's view.
	//
	// Parameters:
	//   - view: the view to sample
	//
	// Returns:
	//   - error: an error if the slot table rejects the view
	SetTextureView(view device.TextureView) error

	// Table returns the slot table holding the material group.
	Table() slot_table.SlotTable

	// Group returns the material's group index within Table.
	Group() int

	// Binding returns the GroupBinding that binds the material at pipeline group index.
	//
	// Parameters:
	//   - index: the @group index used by the shader
	//
	// Returns:
	//   - renderer.GroupBinding: the binding for a DrawItem
	Binding(index uint32) renderer.GroupBinding

	// LayoutDescriptor returns the bind group layout descriptor of the material group, for the
	// pipeline builder's resource layout.
	LayoutDescriptor() wgpu.BindGroupLayoutDescriptor

	// Release frees the texture and sampler the material created, and the table when the
	// material created it.
	Release()
}

var _ Material = &material{}

// NewMaterial creates a material on dev and declares its group. Without WithTexture the material
// samples a single white texel.
//
// Parameters:
//   - dev: the device to create the texture and sampler on
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
//   - error: an error if a GPU object cannot be created or the group cannot be declared
func NewMaterial(dev device.Device, options ...MaterialBuilderOption) (Material, error) {
	m := &material{
		mu:        &sync.Mutex{},
		device:    dev,
		name:      "Material",
		baseColor: [4]float32{1, 1, 1, 1},
		metallic:  0.0,
		roughness: 1.0,
	}
	for _, opt := range options {
		opt(m)
	}

	if m.table == nil {
		m.table = slot_table.NewSlotTable(dev, slot_table.WithLabel(m.name))
		m.ownsTable = true
	}

	pixels := common.CheckerTexture(1, 1, 1, [4]uint8{255, 255, 255, 255}, [4]uint8{255, 255, 255, 255})
	if m.pixels != nil {
		pixels = *m.pixels
	}

	if err := m.init(pixels); err != nil {
		m.Release()
		return nil, err
	}
	common.Logger().Debug("material created", "material", m.name, "group", m.group)
	return m, nil
}

func (m *material) init(pixels common.TextureStagingData) error {
	params, err := m.encodeParams()
	if err != nil {
		return err
	}
	if err := m.table.Declare(m.group, SlotParams, slot_table.SlotKindUniformBuffer, slot_table.UniformResource(params)); err != nil {
		return fmt.Errorf("material %q: %w", m.name, err)
	}

	tex, view, err := m.upload(pixels)
	if err != nil {
		return err
	}
	m.texture, m.view, m.ownsView = tex, view, true
	if err := m.table.Declare(m.group, SlotTexture, slot_table.SlotKindSampledTexture, slot_table.TextureResource(view),
		slot_table.WithSlotVisibility(wgpu.ShaderStageFragment)); err != nil {
		return fmt.Errorf("material %q: %w", m.name, err)
	}

	sampler, err := m.device.CreateSampler(m.name+" Sampler", m.samplerData)
	if err != nil {
		return fmt.Errorf("material %q: sampler: %w", m.name, err)
	}
	m.sampler = sampler
	if err := m.table.Declare(m.group, SlotSampler, slot_table.SlotKindSampler, slot_table.SamplerResource(sampler),
		slot_table.WithSlotVisibility(wgpu.ShaderStageFragment)); err != nil {
		return fmt.Errorf("material %q: %w", m.name, err)
	}
	return nil
}

func (m *material) upload(pixels common.TextureStagingData) (device.Texture, device.TextureView, error) {
	if err := pixels.Validate(); err != nil {
		return nil, nil, fmt.Errorf("material %q: %w", m.name, err)
	}
	tex, err := m.device.CreateTexture(device.TextureDescriptor{
		Label:       m.name + " Texture",
		Width:       pixels.Width,
		Height:      pixels.Height,
		Format:      wgpu.TextureFormatRGBA8UnormSrgb,
		SampleCount: 1,
		Usage:       wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("material %q: texture: %w", m.name, err)
	}
	if err := m.device.WriteTexture(tex, pixels); err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("material %q: texture upload: %w", m.name, err)
	}
	view, err := tex.CreateView()
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("material %q: texture view: %w", m.name, err)
	}
	return tex, view, nil
}

func (m *material) encodeParams() (uniform.Payload, error) {
	p, err := uniform.EncodeRecord(
		uniform.Field{Name: "base_color", Type: uniform.FieldTypeVec4F, Offset: 0, Value: m.baseColor},
		uniform.Field{Name: "metallic", Type: uniform.FieldTypeF32, Offset: 16, Value: m.metallic},
		uniform.Field{Name: "roughness", Type: uniform.FieldTypeF32, Offset: 20, Value: m.roughness},
	)
	if err != nil {
		return uniform.Payload{}, fmt.Errorf("material %q: %w", m.name, err)
	}
	return p, nil
}

func (m *material) Name() string {
	return m.name
}

func (m *material) BaseColor() [4]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseColor
}

func (m *material) Metallic() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metallic
}

func (m *material) Roughness() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roughness
}

func (m *material) SetParams(baseColor [4]float32, metallic, roughness float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	color, metallic0, roughness0 := m.baseColor, m.metallic, m.roughness
	m.baseColor, m.metallic, m.roughness = baseColor, metallic, roughness
	p, err := m.encodeParams()
	if err == nil {
		err = m.table.Update(m.group, SlotParams, slot_table.UniformResource(p))
	}
	if err != nil {
		m.baseColor, m.metallic, m.roughness = color, metallic0, roughness0
		return err
	}
	return nil
}

func (m *material) SetTexture(data common.TextureStagingData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tex, view, err := m.upload(data)
	if err != nil {
		return err
	}
	if err := m.table.Update(m.group, SlotTexture, slot_table.TextureResource(view)); err != nil {
		view.Release()
		tex.Release()
		return fmt.Errorf("material %q: %w", m.name, err)
	}
	m.releaseTexture()
	m.texture, m.view, m.ownsView = tex, view, true
	return nil
}

func (m *material) SetTextureView(view device.TextureView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.table.Update(m.group, SlotTexture, slot_table.TextureResource(view)); err != nil {
		return fmt.Errorf("material %q: %w", m.name, err)
	}
	m.releaseTexture()
	m.view, m.ownsView = view, false
	return nil
}

func (m *material) Table() slot_table.SlotTable {
	return m.table
}

func (m *material) Group() int {
	return m.group
}

func (m *material) Binding(index uint32) renderer.GroupBinding {
	return renderer.GroupBinding{Index: index, Table: m.table, Group: m.group}
}

func (m *material) LayoutDescriptor() wgpu.BindGroupLayoutDescriptor {
	desc, _ := m.table.LayoutDescriptor(m.group)
	return desc
}

func (m *material) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return
	}
	m.released = true
	m.releaseTexture()
	if m.sampler != nil {
		m.sampler.Release()
		m.sampler = nil
	}
	if m.ownsTable {
		m.table.Release()
	}
}

func (m *material) releaseTexture() {
	if m.ownsView && m.view != nil {
		m.view.Release()
	}
	if m.texture != nil {
		m.texture.Release()
	}
	m.texture, m.view, m.ownsView = nil, nil, false
}
