// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
// A SampledTexture slot is fed from one of these once the device has created the texture.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// Validate reports whether the pixel buffer length matches the declared dimensions.
//
// Returns:
//   - error: an error describing the mismatch, or nil
func (t TextureStagingData) Validate() error {
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("texture has zero extent %dx%d", t.Width, t.Height)
	}
	if want := int(t.Width) * int(t.Height) * 4; len(t.Pixels) != want {
		return fmt.Errorf("texture %dx%d expects %d bytes of RGBA, got %d", t.Width, t.Height, want, len(t.Pixels))
	}
	return nil
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
// Zero-valued fields fall back to linear filtering and repeat addressing.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers.
	Compare wgpu.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// WithDefaults returns a copy of s with every zero field replaced by its default.
//
// Returns:
//   - SamplerStagingData: the resolved sampler configuration
func (s SamplerStagingData) WithDefaults() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  Coalesce(s.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  Coalesce(s.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  Coalesce(s.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     Coalesce(s.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     Coalesce(s.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  Coalesce(s.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   Coalesce(s.LodMaxClamp, 32.0),
		Compare:       s.Compare,
		MaxAnisotropy: Coalesce(s.MaxAnisotropy, 1),
	}
}

// DecodeTexture decodes an encoded image (PNG, JPEG, BMP or WebP) into RGBA staging data.
//
// Parameters:
//   - r: the encoded image stream
//
// Returns:
//   - TextureStagingData: the decoded RGBA pixels and dimensions
//   - error: error if decoding fails
func DecodeTexture(r io.Reader) (TextureStagingData, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

// DecodeTextureBytes is DecodeTexture over an in-memory encoded image.
func DecodeTextureBytes(data []byte) (TextureStagingData, error) {
	return DecodeTexture(bytes.NewReader(data))
}

// LoadTexture reads and decodes an image file from disk.
//
// Parameters:
//   - path: the image file path
//
// Returns:
//   - TextureStagingData: the decoded RGBA pixels and dimensions
//   - error: error if the file cannot be opened or decoded
func LoadTexture(path string) (TextureStagingData, error) {
	file, err := os.Open(path)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to open texture file %s: %w", path, err)
	}
	defer file.Close()

	tex, err := DecodeTexture(file)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("texture file %s: %w", path, err)
	}
	return tex, nil
}

// CheckerTexture builds a two-color checkerboard, handy as a placeholder for a SampledTexture slot.
//
// Parameters:
//   - width, height: the texture extent in pixels
//   - cell: the edge length of one checker cell in pixels
//   - a, b: the two RGBA colors
//
// Returns:
//   - TextureStagingData: the generated pixels
func CheckerTexture(width, height, cell uint32, a, b [4]uint8) TextureStagingData {
	if cell == 0 {
		cell = 1
	}
	pixels := make([]byte, int(width)*int(height)*4)
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			i := (int(y)*int(width) + int(x)) * 4
			copy(pixels[i:i+4], c[:])
		}
	}
	return TextureStagingData{Pixels: pixels, Width: width, Height: height}
}
