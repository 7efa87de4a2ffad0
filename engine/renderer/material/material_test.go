package material

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device/mock"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialDeclaresItsGroup(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	checker := common.CheckerTexture(4, 4, 2, [4]uint8{255, 0, 0, 255}, [4]uint8{0, 0, 255, 255})
	m, err := NewMaterial(dev,
		WithName("Brick"),
		WithBaseColor([4]float32{0.5, 0.5, 0.5, 1}),
		WithTexture(checker),
	)
	require.NoError(t, err)

	table := m.Table()
	params, ok := table.Slot(0, SlotParams)
	require.True(t, ok)
	assert.Equal(t, slot_table.SlotKindUniformBuffer, params.Kind)
	assert.Equal(t, ParamsLayout.Size(), params.Size)

	tex, ok := table.Slot(0, SlotTexture)
	require.True(t, ok)
	assert.Equal(t, slot_table.SlotKindSampledTexture, tex.Kind)
	assert.Equal(t, wgpu.ShaderStageFragment, tex.Visibility)

	smp, ok := table.Slot(0, SlotSampler)
	require.True(t, ok)
	assert.Equal(t, slot_table.SlotKindSampler, smp.Kind)

	assert.Len(t, m.LayoutDescriptor().Entries, 3)

	bg, err := table.BindGroup(0)
	require.NoError(t, err)
	entries := bg.(*mock.BindGroup).Entries
	require.Len(t, entries, 3)
	view := entries[SlotTexture].TextureView.(*mock.TextureView)
	assert.Equal(t, checker.Pixels, view.Texture.Pixels)
	assert.Equal(t, wgpu.TextureFormatRGBA8UnormSrgb, view.Texture.Format())

	binding := m.Binding(2)
	assert.Equal(t, uint32(2), binding.Index)
	assert.Same(t, table, binding.Table)
}

func TestSetParamsWritesInPlace(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	m, err := NewMaterial(dev)
	require.NoError(t, err)
	_, err = m.Table().BindGroup(0)
	require.NoError(t, err)

	require.NoError(t, m.SetParams([4]float32{1, 0, 0, 1}, 0.25, 0.75))
	_, err = m.Table().BindGroup(0)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Table().RebuildCount(0))
	assert.Equal(t, [4]float32{1, 0, 0, 1}, m.BaseColor())
	assert.Equal(t, float32(0.25), m.Metallic())

	bg, err := m.Table().BindGroup(0)
	require.NoError(t, err)
	entry := bg.(*mock.BindGroup).Entries[SlotParams]
	raw := entry.Buffer.(*mock.Buffer).Bytes(entry.Offset, ParamsLayout.Size())
	p, err := uniform.NewPayload(ParamsLayout, raw)
	require.NoError(t, err)
	fields, err := uniform.DecodeRecord(p)
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), fields[2].Value)
}

func TestSetTextureRebuildsOnce(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	m, err := NewMaterial(dev)
	require.NoError(t, err)
	bg, err := m.Table().BindGroup(0)
	require.NoError(t, err)
	first := bg.(*mock.BindGroup).Entries[SlotTexture].TextureView.(*mock.TextureView)

	require.NoError(t, m.SetTexture(common.CheckerTexture(2, 2, 1, [4]uint8{}, [4]uint8{255, 255, 255, 255})))
	assert.True(t, first.Released)
	assert.True(t, first.Texture.Released)

	_, err = m.Table().BindGroup(0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Table().RebuildCount(0))

	assert.Error(t, m.SetTexture(common.TextureStagingData{Width: 2, Height: 2}))
	assert.Equal(t, 1, m.Table().RebuildCount(0))
}

func TestBorrowedViewIsNotReleased(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	table := slot_table.NewSlotTable(dev, slot_table.WithLabel("Materials"))
	m, err := NewMaterial(dev, WithTable(table, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Group())
	assert.Equal(t, []int{3}, table.Groups())

	tex, err := dev.CreateTexture(mockTextureDesc())
	require.NoError(t, err)
	view, err := tex.CreateView()
	require.NoError(t, err)

	require.NoError(t, m.SetTextureView(view))
	m.Release()
	assert.False(t, view.(*mock.TextureView).Released)

	_, ok := table.Slot(3, SlotParams)
	assert.True(t, ok, "shared table outlives the material")
}

func TestRebindAfterOffscreenResize(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	off, err := target.NewOffscreen(dev, 128, 128)
	require.NoError(t, err)
	m, err := NewMaterial(dev, WithName("Screen"))
	require.NoError(t, err)

	sampled := func() device.TextureView {
		bg, err := m.Table().BindGroup(m.Group())
		require.NoError(t, err)
		for _, e := range bg.(*mock.BindGroup).Entries {
			if e.Binding == SlotTexture {
				return e.TextureView
			}
		}
		t.Fatal("no texture entry")
		return nil
	}

	old := off.View()
	require.NoError(t, m.SetTextureView(old))
	assert.Same(t, old, sampled())

	require.NoError(t, off.Resize(256, 256))
	assert.True(t, old.(*mock.TextureView).Released)
	assert.NotSame(t, old, off.View())

	require.NoError(t, m.SetTextureView(off.View()))
	assert.Same(t, off.View(), sampled())
	assert.False(t, off.View().(*mock.TextureView).Released)
}

func mockTextureDesc() device.TextureDescriptor {
	return device.TextureDescriptor{
		Label:  "Offscreen Resolve Texture",
		Width:  16,
		Height: 16,
		Format: wgpu.TextureFormatBGRA8Unorm,
		Usage:  wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	}
}
