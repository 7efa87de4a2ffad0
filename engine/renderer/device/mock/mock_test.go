package mock

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBufferLandsInHostMemory(t *testing.T) {
	d := NewDevice(wgpu.TextureFormatBGRA8Unorm)
	buf, err := d.CreateBuffer(device.BufferDescriptor{Label: "u", Size: 16})
	require.NoError(t, err)

	require.NoError(t, d.WriteBuffer(buf, 4, []byte{1, 2, 3}))
	assert.Equal(t, []byte{0, 1, 2, 3, 0}, buf.(*Buffer).Bytes(3, 5))

	assert.Error(t, d.WriteBuffer(buf, 14, []byte{1, 2, 3}))
	assert.Equal(t, 2, d.Count(OpWriteBuffer))
}

func TestAcquireRequiresConfiguredSurface(t *testing.T) {
	d := NewDevice(wgpu.TextureFormatBGRA8Unorm)

	_, err := d.AcquireSurfaceTexture()
	assert.True(t, gpu_error.IsSurfaceLost(err))

	require.NoError(t, d.ConfigureSurface(640, 480))
	st, err := d.AcquireSurfaceTexture()
	require.NoError(t, err)

	_, err = d.AcquireSurfaceTexture()
	assert.Error(t, err, "a second acquire before release must fail")

	st.Release()
	_, err = d.AcquireSurfaceTexture()
	assert.NoError(t, err)
}

func TestFailNextAcquireIsOneShot(t *testing.T) {
	d := NewDevice(wgpu.TextureFormatBGRA8Unorm)
	require.NoError(t, d.ConfigureSurface(64, 64))

	cause := errors.New("outdated")
	d.FailNextAcquire(cause)

	_, err := d.AcquireSurfaceTexture()
	require.True(t, gpu_error.IsSurfaceLost(err))
	assert.ErrorIs(t, err, cause)

	st, err := d.AcquireSurfaceTexture()
	require.NoError(t, err)
	st.Release()
}

func TestSubmitFailureIsDeviceLost(t *testing.T) {
	d := NewDevice(wgpu.TextureFormatBGRA8Unorm)
	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	cb, err := enc.Finish()
	require.NoError(t, err)

	d.FailSubmit(errors.New("gone"))
	err = d.Submit(cb)
	assert.True(t, gpu_error.IsDeviceLost(err))
}

func TestFinishRejectsOpenPass(t *testing.T) {
	d := NewDevice(wgpu.TextureFormatBGRA8Unorm)
	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)

	pass := enc.BeginRenderPass(device.RenderPassDescriptor{Label: "main"})
	pass.Draw(3, 1)
	_, err = enc.Finish()
	assert.Error(t, err)

	require.NoError(t, pass.End())
	_, err = enc.Finish()
	require.NoError(t, err)

	passes := d.Passes()
	require.Len(t, passes, 1)
	assert.Equal(t, []Command{{Op: "Draw", Count: 3, InstanceCount: 1}}, passes[0].Draws())
}
