package slot_table

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/cogentcore/webgpu/wgpu"
)

// RegionSize is the byte size of one uniform slot's region inside its group buffer. It equals the
// uniform payload cap and the WebGPU default minUniformBufferOffsetAlignment, so a region offset
// is always a legal binding offset.
const RegionSize = gpu_error.UniformSizeLimit

// slotState is a declared slot plus its bound resource.
type slotState struct {
	Slot
	sampleType  wgpu.TextureSampleType
	samplerType wgpu.SamplerBindingType
	resource    Resource
	// shadow keeps the last uniform bytes so they survive a group buffer reallocation.
	shadow []byte
}

// groupState holds the slots and GPU objects of one group index.
type groupState struct {
	slots map[int]*slotState

	buffer        device.Buffer
	bufferRegions int

	layout      device.BindGroupLayout
	layoutDirty bool

	bindGroup device.BindGroup
	dirty     bool
	builds    int
}

// slotTable is the implementation of the SlotTable interface.
type slotTable struct {
	mu     *sync.Mutex
	device device.Device
	label  string

	visibility wgpu.ShaderStage
	sampleType wgpu.TextureSampleType

	groups    map[int]*groupState
	arena     *uniformArena
	transient []device.BindGroup
}

// SlotTable declares and tracks the GPU resources bound per group. Uniform updates are written in
// place into the group's buffer. Texture and sampler changes mark the group dirty, and the group's
// bind group is rebuilt once, just in time, the next time BindGroup is called.
type SlotTable interface {
	// Label returns the debug label of the table.
	Label() string

	// Declare registers a slot. A uniform slot gets its own RegionSize region in the group buffer at
	// offset slot*RegionSize, and the initial payload is written immediately. Declaring an existing
	// slot with the same kind behaves like Update.
	//
	// Parameters:
	//   - group: the group index
	//   - slot: the binding index within the group
	//   - kind: the resource kind, fixed from now on
	//   - initial: the initial resource, may be empty for textures and samplers
	//   - options: per-slot options such as visibility
	//
	// Returns:
	//   - error: *gpu_error.SlotKindMismatchError if the slot exists with another kind or initial has
	//     another kind, *gpu_error.OversizeError if the initial payload exceeds RegionSize
	Declare(group, slot int, kind SlotKind, initial Resource, options ...SlotOption) error

	// Update overwrites the resource bound to a declared slot.
	//
	// Parameters:
	//   - group: the group index
	//   - slot: the binding index within the group
	//   - r: the new resource
	//
	// Returns:
	//   - error: *gpu_error.SlotKindMismatchError if r's kind differs from the declared kind,
	//     *gpu_error.OversizeError if a payload exceeds the declared size
	Update(group, slot int, r Resource) error

	// BindGroup returns the bind group for a group, rebuilding it first if it is dirty.
	// This is the only place a bind group is (re)built.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - device.BindGroup: the materialized bind group
	//   - error: error if the group is unknown, a slot has no resource, or creation fails
	BindGroup(group int) (device.BindGroup, error)

	// LayoutDescriptor returns the bind group layout descriptor of a group. The pipeline builder
	// consumes the same descriptor so both sides agree on the layout.
	LayoutDescriptor(group int) (wgpu.BindGroupLayoutDescriptor, bool)

	// ResourceLayout returns the layout descriptors of every group, keyed by group index.
	ResourceLayout() map[int]wgpu.BindGroupLayoutDescriptor

	// ResolveOverrides returns a bind group for a group with some slots replaced for a single draw.
	// Uniform overrides are copied into a frame-scoped arena. With no overrides this is BindGroup.
	// The returned bind group lives until ReleaseTransient.
	//
	// Parameters:
	//   - group: the group index
	//   - overrides: the slot replacements; their Group field is ignored
	//
	// Returns:
	//   - device.BindGroup: the bind group to bind for the draw
	//   - error: a *gpu_error.SlotKindMismatchError or *gpu_error.OversizeError for a bad override
	ResolveOverrides(group int, overrides []Override) (device.BindGroup, error)

	// ReleaseTransient frees the bind groups made by ResolveOverrides and recycles the uniform arena.
	// Call it after the frame that used them has been submitted.
	ReleaseTransient()

	// RebuildCount returns how many times a group's bind group was rebuilt after its first build.
	RebuildCount(group int) int

	// BuildCount returns how many times a group's bind group was built, the first build included.
	BuildCount(group int) int

	// Groups returns the declared group indices in ascending order.
	Groups() []int

	// Slot returns the declaration of a slot.
	Slot(group, slot int) (Slot, bool)

	// Remove drops a group and frees its uniform buffer, layout and bind group. Removing an
	// undeclared group does nothing. A later Declare starts the group afresh.
	//
	// Parameters:
	//   - group: the group index
	Remove(group int)

	// Release frees every GPU object owned by the table. Texture views and samplers bound into
	// slots belong to the caller and are not released.
	Release()
}

var _ SlotTable = &slotTable{}

// NewSlotTable creates an empty slot table bound to a device.
//
// Parameters:
//   - dev: the device resources are created on
//   - options: functional options for the table
//
// Returns:
//   - SlotTable: the new table
func NewSlotTable(dev device.Device, options ...SlotTableOption) SlotTable {
	t := &slotTable{
		mu:         &sync.Mutex{},
		device:     dev,
		label:      "Slot Table",
		visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		sampleType: wgpu.TextureSampleTypeFloat,
		groups:     make(map[int]*groupState),
	}
	for _, opt := range options {
		opt(t)
	}
	t.arena = newUniformArena(dev, t.label+" Override Arena")
	return t
}

func (t *slotTable) Label() string {
	return t.label
}

func (t *slotTable) Declare(group, slot int, kind SlotKind, initial Resource, options ...SlotOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if group < 0 || slot < 0 {
		return fmt.Errorf("slot (%d, %d): negative index", group, slot)
	}
	if kind == SlotKindUndefined || kind > SlotKindSampler {
		return fmt.Errorf("slot (%d, %d): invalid kind %d", group, slot, int(kind))
	}
	if !initial.IsEmpty() && initial.Kind() != kind {
		return &gpu_error.SlotKindMismatchError{Group: group, Slot: slot, Declared: kind.String(), Got: initial.Kind().String()}
	}
	if size := initial.Payload.Size(); size > RegionSize {
		return &gpu_error.OversizeError{Size: size, Limit: RegionSize}
	}

	g := t.groups[group]
	if g != nil {
		if existing := g.slots[slot]; existing != nil {
			if existing.Kind != kind {
				return &gpu_error.SlotKindMismatchError{Group: group, Slot: slot, Declared: existing.Kind.String(), Got: kind.String()}
			}
			if initial.IsEmpty() {
				return nil
			}
			return t.update(g, existing, initial)
		}
	} else {
		g = &groupState{slots: make(map[int]*slotState)}
		t.groups[group] = g
	}

	s := &slotState{
		Slot: Slot{
			Group:      group,
			Index:      slot,
			Kind:       kind,
			Visibility: t.visibility,
		},
		sampleType:  t.sampleType,
		samplerType: wgpu.SamplerBindingTypeFiltering,
	}
	for _, opt := range options {
		opt(s)
	}

	if kind == SlotKindUniformBuffer {
		size := initial.Payload.Size()
		if initial.Payload.IsZero() {
			size = RegionSize
		}
		s.Size = size
		s.Offset = uint64(slot) * RegionSize
		s.shadow = make([]byte, RegionSize)
		copy(s.shadow, initial.Payload.Bytes())

		g.slots[slot] = s
		if err := t.ensureCapacity(group, g, slot+1); err != nil {
			t.forget(group, slot)
			return err
		}
		if err := t.device.WriteBuffer(g.buffer, s.Offset, s.shadow); err != nil {
			t.forget(group, slot)
			return fmt.Errorf("slot (%d, %d): initial write: %w", group, slot, err)
		}
	} else {
		s.resource = initial
		g.slots[slot] = s
	}

	g.layoutDirty = true
	g.dirty = true
	common.Logger().Debug("slot declared", "table", t.label, "group", group, "slot", slot, "kind", kind.String())
	return nil
}

// forget drops a half-declared slot, and its group if that leaves the group empty.
func (t *slotTable) forget(group, slot int) {
	g := t.groups[group]
	delete(g.slots, slot)
	if len(g.slots) == 0 && g.buffer == nil {
		delete(t.groups, group)
	}
}

// ensureCapacity grows a group's uniform buffer to hold at least regions regions, re-uploading
// every uniform slot's shadow bytes into the new buffer.
func (t *slotTable) ensureCapacity(group int, g *groupState, regions int) error {
	if g.buffer != nil && g.bufferRegions >= regions {
		return nil
	}
	regions = max(regions, g.bufferRegions)
	buf, err := t.device.CreateBuffer(device.BufferDescriptor{
		Label: fmt.Sprintf("%s Group %d Uniform Buffer", t.label, group),
		Size:  uint64(regions) * RegionSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("group %d: %w", group, err)
	}
	for _, s := range g.slots {
		if s.Kind != SlotKindUniformBuffer || s.shadow == nil {
			continue
		}
		if err := t.device.WriteBuffer(buf, s.Offset, s.shadow); err != nil {
			buf.Release()
			return fmt.Errorf("group %d: %w", group, err)
		}
	}
	if g.buffer != nil {
		g.buffer.Release()
	}
	g.buffer = buf
	g.bufferRegions = regions
	g.dirty = true
	return nil
}

func (t *slotTable) Update(group, slot int, r Resource) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.groups[group]
	if g == nil || g.slots[slot] == nil {
		return fmt.Errorf("slot (%d, %d) is not declared", group, slot)
	}
	return t.update(g, g.slots[slot], r)
}

func (t *slotTable) update(g *groupState, s *slotState, r Resource) error {
	if r.Kind() != s.Kind {
		return &gpu_error.SlotKindMismatchError{Group: s.Group, Slot: s.Index, Declared: s.Kind.String(), Got: r.Kind().String()}
	}

	switch s.Kind {
	case SlotKindUniformBuffer:
		if r.Payload.Size() > s.Size {
			return &gpu_error.OversizeError{Size: r.Payload.Size(), Limit: s.Size}
		}
		data := r.Payload.Bytes()
		if err := t.device.WriteBuffer(g.buffer, s.Offset, data); err != nil {
			return fmt.Errorf("slot (%d, %d): %w", s.Group, s.Index, err)
		}
		copy(s.shadow, data)
	case SlotKindSampledTexture:
		if s.resource.Texture != r.Texture {
			s.resource = r
			g.dirty = true
		}
	case SlotKindSampler:
		if s.resource.Sampler != r.Sampler {
			s.resource = r
			g.dirty = true
		}
	}
	return nil
}

func (t *slotTable) BindGroup(group int) (device.BindGroup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.groups[group]
	if g == nil {
		return nil, fmt.Errorf("group %d is not declared in %s", group, t.label)
	}
	if err := t.ensureLayout(group, g); err != nil {
		return nil, err
	}
	if !g.dirty && g.bindGroup != nil {
		return g.bindGroup, nil
	}

	entries, err := t.entries(g, nil)
	if err != nil {
		return nil, err
	}
	bg, err := t.device.CreateBindGroup(device.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s Group %d Bind Group", t.label, group),
		Layout:  g.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("group %d: %w", group, err)
	}

	if g.bindGroup != nil {
		g.bindGroup.Release()
	}
	g.bindGroup = bg
	g.dirty = false
	g.builds++
	if g.builds > 1 {
		common.Logger().Debug("bind group rebuilt", "table", t.label, "group", group, "rebuilds", g.builds-1)
	}
	return bg, nil
}

// ensureLayout (re)creates a group's layout after its slot set changed.
func (t *slotTable) ensureLayout(group int, g *groupState) error {
	if g.layout != nil && !g.layoutDirty {
		return nil
	}
	desc := t.layoutDescriptor(group, g)
	layout, err := t.device.CreateBindGroupLayout(&desc)
	if err != nil {
		return fmt.Errorf("group %d: %w", group, err)
	}
	if g.layout != nil {
		g.layout.Release()
	}
	g.layout = layout
	g.layoutDirty = false
	g.dirty = true
	return nil
}

// entries builds the bind group entries of a group, taking resources from overrides where given.
// Uniform overrides are copied into a fresh arena region, zero-padded to RegionSize.
func (t *slotTable) entries(g *groupState, overrides map[int]Resource) ([]device.BindGroupEntry, error) {
	indices := sortedKeys(g.slots)
	entries := make([]device.BindGroupEntry, 0, len(indices))
	for _, i := range indices {
		s := g.slots[i]
		r, overridden := overrides[i]
		if !overridden {
			r = s.resource
		}
		entry := device.BindGroupEntry{Binding: uint32(i)}

		switch s.Kind {
		case SlotKindUniformBuffer:
			entry.Buffer = g.buffer
			entry.Offset = s.Offset
			entry.Size = RegionSize
			if overridden {
				buf, offset, err := t.arena.alloc()
				if err != nil {
					return nil, err
				}
				region := make([]byte, RegionSize)
				copy(region, r.Payload.Bytes())
				if err := t.device.WriteBuffer(buf, offset, region); err != nil {
					return nil, fmt.Errorf("slot (%d, %d) override: %w", s.Group, i, err)
				}
				entry.Buffer = buf
				entry.Offset = offset
			}
		case SlotKindSampledTexture:
			if r.Texture == nil {
				return nil, fmt.Errorf("slot (%d, %d) has no texture bound", s.Group, i)
			}
			entry.TextureView = r.Texture
		case SlotKindSampler:
			if r.Sampler == nil {
				return nil, fmt.Errorf("slot (%d, %d) has no sampler bound", s.Group, i)
			}
			entry.Sampler = r.Sampler
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (t *slotTable) LayoutDescriptor(group int) (wgpu.BindGroupLayoutDescriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.groups[group]
	if g == nil {
		return wgpu.BindGroupLayoutDescriptor{}, false
	}
	return t.layoutDescriptor(group, g), true
}

func (t *slotTable) ResourceLayout() map[int]wgpu.BindGroupLayoutDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int]wgpu.BindGroupLayoutDescriptor, len(t.groups))
	for group, g := range t.groups {
		out[group] = t.layoutDescriptor(group, g)
	}
	return out
}

func (t *slotTable) layoutDescriptor(group int, g *groupState) wgpu.BindGroupLayoutDescriptor {
	indices := sortedKeys(g.slots)
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(indices))
	for _, i := range indices {
		s := g.slots[i]
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: s.Visibility,
		}
		switch s.Kind {
		case SlotKindUniformBuffer:
			entry.Buffer = wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: false,
				MinBindingSize:   0,
			}
		case SlotKindSampledTexture:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    s.sampleType,
				ViewDimension: wgpu.TextureViewDimension2D,
				Multisampled:  false,
			}
		case SlotKindSampler:
			entry.Sampler = wgpu.SamplerBindingLayout{
				Type: s.samplerType,
			}
		}
		entries = append(entries, entry)
	}
	return wgpu.BindGroupLayoutDescriptor{
		Label:   fmt.Sprintf("%s Group %d Layout", t.label, group),
		Entries: entries,
	}
}

func (t *slotTable) ResolveOverrides(group int, overrides []Override) (device.BindGroup, error) {
	if len(overrides) == 0 {
		return t.BindGroup(group)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.groups[group]
	if g == nil {
		return nil, fmt.Errorf("group %d is not declared in %s", group, t.label)
	}
	byIndex := make(map[int]Resource, len(overrides))
	for _, o := range overrides {
		s := g.slots[o.Slot]
		if s == nil {
			return nil, fmt.Errorf("override of slot (%d, %d) which is not declared", group, o.Slot)
		}
		if o.Resource.Kind() != s.Kind {
			return nil, &gpu_error.SlotKindMismatchError{Group: group, Slot: o.Slot, Declared: s.Kind.String(), Got: o.Resource.Kind().String()}
		}
		if s.Kind == SlotKindUniformBuffer && o.Resource.Payload.Size() > s.Size {
			return nil, &gpu_error.OversizeError{Size: o.Resource.Payload.Size(), Limit: s.Size}
		}
		byIndex[o.Slot] = o.Resource
	}
	if err := t.ensureLayout(group, g); err != nil {
		return nil, err
	}

	entries, err := t.entries(g, byIndex)
	if err != nil {
		return nil, err
	}
	bg, err := t.device.CreateBindGroup(device.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s Group %d Override Bind Group", t.label, group),
		Layout:  g.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("group %d override: %w", group, err)
	}
	t.transient = append(t.transient, bg)
	return bg, nil
}

func (t *slotTable) ReleaseTransient() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, bg := range t.transient {
		bg.Release()
	}
	t.transient = t.transient[:0]
	t.arena.reset()
}

func (t *slotTable) RebuildCount(group int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if g := t.groups[group]; g != nil && g.builds > 1 {
		return g.builds - 1
	}
	return 0
}

func (t *slotTable) BuildCount(group int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if g := t.groups[group]; g != nil {
		return g.builds
	}
	return 0
}

func (t *slotTable) Groups() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.groups)
}

func (t *slotTable) Slot(group, slot int) (Slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if g := t.groups[group]; g != nil {
		if s := g.slots[slot]; s != nil {
			return s.Slot, true
		}
	}
	return Slot{}, false
}

func (t *slotTable) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, bg := range t.transient {
		bg.Release()
	}
	t.transient = nil
	t.arena.release()

	for group, g := range t.groups {
		g.release()
		delete(t.groups, group)
	}
}

func (t *slotTable) Remove(group int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.groups[group]
	if g == nil {
		return
	}
	g.release()
	delete(t.groups, group)
	common.Logger().Debug("group removed", "table", t.label, "group", group)
}

// release frees the GPU objects of a group. Override bind groups built from it are freed by
// ReleaseTransient.
func (g *groupState) release() {
	if g.bindGroup != nil {
		g.bindGroup.Release()
	}
	if g.layout != nil {
		g.layout.Release()
	}
	if g.buffer != nil {
		g.buffer.Release()
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
