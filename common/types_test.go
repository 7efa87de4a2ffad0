package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeTexture(t *testing.T) {
	tex, err := DecodeTextureBytes(encodePNG(t))
	require.NoError(t, err)
	require.NoError(t, tex.Validate())

	assert.Equal(t, uint32(2), tex.Width)
	assert.Equal(t, uint32(1), tex.Height)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, tex.Pixels)

	_, err = DecodeTextureBytes([]byte("not an image"))
	assert.Error(t, err)
}

func TestLoadTexture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tex.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t), 0o644))

	tex, err := LoadTexture(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tex.Width)

	_, err = LoadTexture(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTextureValidate(t *testing.T) {
	assert.Error(t, TextureStagingData{}.Validate())
	assert.Error(t, TextureStagingData{Pixels: make([]byte, 3), Width: 1, Height: 1}.Validate())
	assert.NoError(t, TextureStagingData{Pixels: make([]byte, 4), Width: 1, Height: 1}.Validate())
}

func TestCheckerTexture(t *testing.T) {
	white := [4]uint8{255, 255, 255, 255}
	black := [4]uint8{0, 0, 0, 255}
	tex := CheckerTexture(4, 4, 2, white, black)
	require.NoError(t, tex.Validate())

	at := func(x, y int) []byte {
		i := (y*4 + x) * 4
		return tex.Pixels[i : i+4]
	}
	assert.Equal(t, white[:], at(1, 1))
	assert.Equal(t, black[:], at(2, 0))
	assert.Equal(t, white[:], at(3, 3))
}

func TestSamplerDefaults(t *testing.T) {
	s := SamplerStagingData{LodMaxClamp: 4}.WithDefaults()
	assert.Equal(t, float32(4), s.LodMaxClamp)
	assert.Equal(t, wgpu.FilterModeLinear, s.MagFilter)
	assert.Equal(t, wgpu.AddressModeRepeat, s.AddressModeU)
	assert.Equal(t, uint16(1), s.MaxAnisotropy)
}
