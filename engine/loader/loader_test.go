package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device/mock"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadOBJ = `# a unit quad
o Quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func TestOBJQuadIsTriangulatedAsAFan(t *testing.T) {
	asset, err := NewLoader().LoadReader("quad", strings.NewReader(quadOBJ), FormatOBJ)
	require.NoError(t, err)
	require.Len(t, asset.Parts, 1)

	part := asset.Parts[0]
	assert.Equal(t, "Quad", part.Name)
	assert.Nil(t, part.Material)
	assert.Nil(t, part.Source)

	data := part.Model.Data()
	assert.Len(t, data.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, data.Indices)
	assert.Equal(t, [2]float32{0, 1}, data.Vertices[0].UV, "v is flipped to a top-left origin")
	assert.Equal(t, [3]float32{0, 0, 1}, data.Vertices[2].Normal)
}

func TestOBJNegativeIndicesAndGeneratedNormals(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"
	asset, err := NewLoader().LoadReader("tri", strings.NewReader(src), FormatOBJ)
	require.NoError(t, err)
	require.Len(t, asset.Parts, 1)

	data := asset.Parts[0].Model.Data()
	assert.Equal(t, []uint32{0, 1, 2}, data.Indices)
	for _, v := range data.Vertices {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, v.Normal[:], 1e-6)
	}
}

func TestOBJErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "index out of range", src: "v 0 0 0\nv 1 0 0\nf 1 2 3\n", want: "line 3"},
		{name: "zero index", src: "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n", want: "out of range"},
		{name: "bad number", src: "v 0 zero 0\n", want: "invalid number"},
		{name: "too few corners", src: "v 0 0 0\nv 1 0 0\nf 1 2\n", want: "at least 3 corners"},
		{name: "no faces", src: "v 0 0 0\n", want: "no faces"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadReader(tt.name, strings.NewReader(tt.src), FormatOBJ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOBJMaterialsFromLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(
		"newmtl Red\nKd 1 0 0\nd 0.5\n\nnewmtl Blue\nKd 0 0 1\nPm 0.25\n",
	), 0o644))
	objPath := filepath.Join(dir, "scene.obj")
	require.NoError(t, os.WriteFile(objPath, []byte(
		"mtllib scene.mtl\nv 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nusemtl Red\nf 1 2 3\nusemtl Blue\nf 1 3 4\n",
	), 0o644))

	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	l := NewLoader(WithDevice(dev))
	asset, err := l.Load(objPath)
	require.NoError(t, err)
	assert.Equal(t, "scene", asset.Name)
	require.Len(t, asset.Parts, 2)

	red, blue := asset.Parts[0], asset.Parts[1]
	require.NotNil(t, red.Material)
	require.NotNil(t, blue.Material)
	assert.Equal(t, [4]float32{1, 0, 0, 0.5}, red.Material.BaseColor())
	assert.Equal(t, [4]float32{0, 0, 1, 1}, blue.Material.BaseColor())
	assert.InDelta(t, 0.25, blue.Material.Metallic(), 1e-6)
	assert.Equal(t, "Red", red.Source.Name)

	objects := asset.Objects()
	require.Len(t, objects, 2)
	assert.Equal(t, red.Name, objects[0].Label())
	assert.Same(t, red.Model, objects[0].Model())
	assert.Equal(t, red.Material, objects[0].Material())

	again, err := l.Load(objPath)
	require.NoError(t, err)
	assert.Same(t, asset, again, "a second load is served from the cache")
	assert.Len(t, l.Assets(), 1)

	l.Release()
	assert.Empty(t, l.Assets())
	assert.Nil(t, l.Get(filepath.Clean(objPath)))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := NewLoader().Load("model.fbx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, FormatGLB, FormatFromPath("Fox.GLB"))
	assert.Equal(t, "obj", FormatOBJ.String())
}

// triangleBuffer packs three positions in the XY plane and a ushort index list, padded to 4 bytes.
func triangleBuffer() []byte {
	var buf bytes.Buffer
	for _, f := range []float32{0, 0, 0, 1, 0, 0, 0, 1, 0} {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
	}
	for _, i := range []uint16{0, 1, 2} {
		_ = binary.Write(&buf, binary.LittleEndian, i)
	}
	buf.Write([]byte{0, 0})
	return buf.Bytes()
}

// triangleDoc describes one translated triangle with a material. A nil uri leaves the buffer
// to a GLB binary chunk.
func triangleDoc(uri *string) map[string]any {
	buffer := map[string]any{"byteLength": 44}
	if uri != nil {
		buffer["uri"] = *uri
	}
	return map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes": []any{map[string]any{
			"name": "Tri", "mesh": 0, "translation": []float32{0, 2, 0},
		}},
		"meshes": []any{map[string]any{
			"name": "TriMesh",
			"primitives": []any{map[string]any{
				"attributes": map[string]int{"POSITION": 0}, "indices": 1, "material": 0,
			}},
		}},
		"materials": []any{map[string]any{
			"name": "Paint",
			"pbrMetallicRoughness": map[string]any{
				"baseColorFactor": []float32{0.2, 0.4, 0.6, 1}, "metallicFactor": 0,
			},
		}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": gltfComponentTypeFloat, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": gltfComponentTypeUnsignedShort, "count": 3, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 6},
		},
		"buffers": []any{buffer},
	}
}

func assertTriangle(t *testing.T, asset *Asset) {
	t.Helper()
	require.Len(t, asset.Parts, 1)
	part := asset.Parts[0]
	assert.Equal(t, "Tri", part.Name)

	data := part.Model.Data()
	assert.Equal(t, []uint32{0, 1, 2}, data.Indices)
	assert.Equal(t, [3]float32{0, 2, 0}, data.Vertices[0].Position, "node translation is baked in")
	assert.Equal(t, [3]float32{1, 2, 0}, data.Vertices[1].Position)
	assert.InDeltaSlice(t, []float32{0, 0, 1}, data.Vertices[0].Normal[:], 1e-6)

	require.NotNil(t, part.Source)
	assert.Equal(t, "Paint", part.Source.Name)
	assert.Equal(t, [4]float32{0.2, 0.4, 0.6, 1}, part.Source.BaseColor)
	assert.Zero(t, part.Source.Metallic)
	assert.Equal(t, float32(1), part.Source.Roughness)
}

func TestGLTFWithEmbeddedBuffer(t *testing.T) {
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(triangleBuffer())
	doc, err := json.Marshal(triangleDoc(&uri))
	require.NoError(t, err)

	asset, err := NewLoader().LoadReader("tri", bytes.NewReader(doc), FormatGLTF)
	require.NoError(t, err)
	assert.Equal(t, "TriMesh", asset.Name)
	assertTriangle(t, asset)
}

func TestGLBContainer(t *testing.T) {
	doc, err := json.Marshal(triangleDoc(nil))
	require.NoError(t, err)
	for len(doc)%4 != 0 {
		doc = append(doc, ' ')
	}
	bin := triangleBuffer()

	var glb bytes.Buffer
	total := 12 + 8 + len(doc) + 8 + len(bin)
	_ = binary.Write(&glb, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	_ = binary.Write(&glb, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(doc)), ChunkType: gltfGLBChunkJSON})
	glb.Write(doc)
	_ = binary.Write(&glb, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	glb.Write(bin)

	dir := t.TempDir()
	path := filepath.Join(dir, "tri.glb")
	require.NoError(t, os.WriteFile(path, glb.Bytes(), 0o644))

	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)
	asset, err := NewLoader(WithDevice(dev)).Load(path)
	require.NoError(t, err)
	assertTriangle(t, asset)
	require.NotNil(t, asset.Parts[0].Material)
	assert.Equal(t, [4]float32{0.2, 0.4, 0.6, 1}, asset.Parts[0].Material.BaseColor())
}

func TestGLTFBaseColorTexture(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))

	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(triangleBuffer())
	doc := triangleDoc(&uri)
	doc["images"] = []any{map[string]any{"uri": "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded.Bytes())}}
	doc["samplers"] = []any{map[string]any{"magFilter": gltfFilterNearest, "wrapS": gltfWrapClampToEdge}}
	doc["textures"] = []any{map[string]any{"source": 0, "sampler": 0}}
	doc["materials"] = []any{map[string]any{
		"pbrMetallicRoughness": map[string]any{"baseColorTexture": map[string]any{"index": 0}},
	}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	asset, err := NewLoader().LoadReader("textured", bytes.NewReader(data), FormatGLTF)
	require.NoError(t, err)
	src := asset.Parts[0].Source
	require.NotNil(t, src)
	assert.Equal(t, "material_0", src.Name)
	require.NotNil(t, src.Texture)
	assert.Equal(t, uint32(2), src.Texture.Width)
	assert.Equal(t, byte(255), src.Texture.Pixels[0])

	require.NotNil(t, src.Sampler)
	assert.Equal(t, wgpu.FilterModeNearest, src.Sampler.MagFilter)
	assert.Equal(t, wgpu.AddressModeClampToEdge, src.Sampler.AddressModeU)
	assert.Equal(t, wgpu.AddressModeRepeat, src.Sampler.AddressModeV)
}

func TestGLTFErrors(t *testing.T) {
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(triangleBuffer())

	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		want   string
	}{
		{
			name:   "version 1",
			mutate: func(doc map[string]any) { doc["asset"] = map[string]any{"version": "1.0"} },
			want:   "version",
		},
		{
			name:   "required extension",
			mutate: func(doc map[string]any) { doc["extensionsRequired"] = []string{"KHR_draco_mesh_compression"} },
			want:   "unsupported extensions",
		},
		{
			name: "cyclic nodes",
			mutate: func(doc map[string]any) {
				doc["nodes"] = []any{map[string]any{"children": []int{1}}, map[string]any{"children": []int{0}}}
			},
			want: "deeper than",
		},
		{
			name: "only lines",
			mutate: func(doc map[string]any) {
				doc["meshes"] = []any{map[string]any{"primitives": []any{map[string]any{
					"attributes": map[string]int{"POSITION": 0}, "mode": 1,
				}}}}
			},
			want: "no triangle meshes",
		},
		{
			name: "accessor past its view",
			mutate: func(doc map[string]any) {
				doc["accessors"].([]any)[0].(map[string]any)["count"] = 4
			},
			want: "past the end",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := triangleDoc(&uri)
			tt.mutate(doc)
			data, err := json.Marshal(doc)
			require.NoError(t, err)

			_, err = NewLoader().LoadReader(tt.name, bytes.NewReader(data), FormatGLTF)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMirroringTransformKeepsWinding(t *testing.T) {
	data := common.MeshData{
		Vertices: []common.Vertex{
			{Position: [3]float32{0, 0, 0}, Normal: [3]float32{0, 0, 1}},
			{Position: [3]float32{1, 0, 0}, Normal: [3]float32{0, 0, 1}},
			{Position: [3]float32{0, 1, 0}, Normal: [3]float32{0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
	transformMesh(data, common.Scale(-1, 1, 1))

	assert.Equal(t, [3]float32{-1, 0, 0}, data.Vertices[1].Position)
	assert.Equal(t, []uint32{0, 2, 1}, data.Indices)
}

func TestNodeMatrixAppliesScaleThenRotationThenTranslation(t *testing.T) {
	half := float32(math.Sqrt2 / 2)
	node := &gltfNode{
		Translation: &[3]float32{10, 0, 0},
		Rotation:    &[4]float32{0, 0, half, half}, // 90 degrees about +Z
		Scale:       &[3]float32{2, 2, 2},
	}
	p := common.MulVec4(nodeMatrix(node), [4]float32{1, 0, 0, 1})
	assert.InDeltaSlice(t, []float32{10, 2, 0, 1}, p[:], 1e-5)
}
