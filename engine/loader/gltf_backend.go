package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// gltfBackend imports .gltf and .glb files. Every triangle primitive reachable from the default
// scene becomes one ImportedMesh with its node transforms baked into the vertices.
type gltfBackend struct {
	glb bool
}

var _ loaderBackend = &gltfBackend{}

func newGLTFBackend(glb bool) loaderBackend {
	return &gltfBackend{glb: glb}
}

func (b *gltfBackend) Load(path string) (*Imported, error) {
	p, err := parseGLTFFile(path)
	if err != nil {
		return nil, err
	}
	return p.importAll(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

func (b *gltfBackend) LoadReader(r io.Reader) (*Imported, error) {
	p, err := parseGLTFReader(r, b.glb, "")
	if err != nil {
		return nil, err
	}
	return p.importAll("")
}

// importAll extracts the materials and the meshes of the default scene. fallback names the
// result when the document has no scene or mesh name.
func (p *gltfParser) importAll(fallback string) (*Imported, error) {
	doc := p.document
	if len(doc.ExtensionsRequired) > 0 {
		return nil, fmt.Errorf("glTF requires unsupported extensions %v", doc.ExtensionsRequired)
	}

	out := &Imported{Name: fallback}
	for i := range doc.Materials {
		mat, err := p.material(i)
		if err != nil {
			return nil, err
		}
		out.Materials = append(out.Materials, mat)
	}

	roots, name := p.roots()
	if name != "" {
		out.Name = name
	}
	if len(roots) == 0 {
		// A document without a scene graph: import every mesh untransformed.
		for i := range doc.Meshes {
			if err := p.appendMesh(out, i, "", common.IdentityMat4()); err != nil {
				return nil, err
			}
		}
	}
	for _, root := range roots {
		if err := p.walk(out, root, common.IdentityMat4(), 0); err != nil {
			return nil, err
		}
	}

	if out.Name == "" && len(doc.Meshes) > 0 {
		out.Name = doc.Meshes[0].Name
	}
	if len(out.Meshes) == 0 {
		return nil, fmt.Errorf("glTF %q contains no triangle meshes", out.Name)
	}
	return out, nil
}

// roots returns the root nodes of the default scene and the scene's name.
func (p *gltfParser) roots() ([]int, string) {
	doc := p.document
	if len(doc.Scenes) == 0 {
		return nil, ""
	}
	scene := 0
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		scene = *doc.Scene
	}
	return doc.Scenes[scene].Nodes, doc.Scenes[scene].Name
}

// maxNodeDepth bounds the node walk so a cyclic hierarchy fails instead of recursing forever.
const maxNodeDepth = 64

func (p *gltfParser) walk(out *Imported, index int, parent common.Mat4, depth int) error {
	doc := p.document
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("node %d: hierarchy deeper than %d levels", index, maxNodeDepth)
	}

	node := &doc.Nodes[index]
	var world common.Mat4
	local := nodeMatrix(node)
	common.Mul4(world[:], parent[:], local[:])

	if node.Mesh != nil {
		if err := p.appendMesh(out, *node.Mesh, node.Name, world); err != nil {
			return err
		}
	}
	for _, child := range node.Children {
		if err := p.walk(out, child, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// nodeMatrix returns the node's local transform: its matrix, or T * R * S.
func nodeMatrix(node *gltfNode) common.Mat4 {
	if node.Matrix != nil {
		return *node.Matrix
	}
	m := common.IdentityMat4()
	if node.Translation != nil {
		t := common.Translate(node.Translation[0], node.Translation[1], node.Translation[2])
		common.Mul4(m[:], m[:], t[:])
	}
	if node.Rotation != nil {
		r := quatMatrix(*node.Rotation)
		common.Mul4(m[:], m[:], r[:])
	}
	if node.Scale != nil {
		s := common.Scale(node.Scale[0], node.Scale[1], node.Scale[2])
		common.Mul4(m[:], m[:], s[:])
	}
	return m
}

// quatMatrix converts a unit quaternion (x, y, z, w) to a rotation matrix.
func quatMatrix(q [4]float32) common.Mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	return common.Mat4{
		1 - 2*(y*y+z*z), 2 * (x*y + w*z), 2 * (x*z - w*y), 0,
		2 * (x*y - w*z), 1 - 2*(x*x+z*z), 2 * (y*z + w*x), 0,
		2 * (x*z + w*y), 2 * (y*z - w*x), 1 - 2*(x*x+y*y), 0,
		0, 0, 0, 1,
	}
}

func (p *gltfParser) appendMesh(out *Imported, index int, nodeName string, world common.Mat4) error {
	doc := p.document
	if index < 0 || index >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", index)
	}
	mesh := &doc.Meshes[index]
	name := common.Coalesce(nodeName, mesh.Name, fmt.Sprintf("mesh_%d", index))

	for i := range mesh.Primitives {
		prim := &mesh.Primitives[i]
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			common.Logger().Warn("skipping non-triangle primitive", "mesh", name, "primitive", i, "mode", *prim.Mode)
			continue
		}
		data, err := p.primitive(prim)
		if err != nil {
			return fmt.Errorf("mesh %q primitive %d: %w", name, i, err)
		}
		transformMesh(data, world)

		part := ImportedMesh{Name: name, Data: data, MaterialIndex: -1}
		if len(mesh.Primitives) > 1 {
			part.Name = fmt.Sprintf("%s_prim%d", name, i)
		}
		if prim.Material != nil {
			if *prim.Material < 0 || *prim.Material >= len(out.Materials) {
				return fmt.Errorf("mesh %q primitive %d: material index %d out of range", name, i, *prim.Material)
			}
			part.MaterialIndex = *prim.Material
		}
		out.Meshes = append(out.Meshes, part)
	}
	return nil
}

// primitive reads POSITION, NORMAL and TEXCOORD_0 and the index list. Missing normals are
// generated from the triangles.
func (p *gltfParser) primitive(prim *gltfPrimitive) (common.MeshData, error) {
	posIndex, ok := prim.Attributes["POSITION"]
	if !ok {
		return common.MeshData{}, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := p.readFloats(posIndex, 3)
	if err != nil {
		return common.MeshData{}, fmt.Errorf("positions: %w", err)
	}

	data := common.MeshData{Vertices: make([]common.Vertex, len(positions))}
	for i, pos := range positions {
		data.Vertices[i].Position = [3]float32{pos[0], pos[1], pos[2]}
	}

	if uvIndex, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, err := p.readFloats(uvIndex, 2)
		if err != nil {
			return common.MeshData{}, fmt.Errorf("texcoords: %w", err)
		}
		for i := range min(len(uvs), len(data.Vertices)) {
			data.Vertices[i].UV = [2]float32{uvs[i][0], uvs[i][1]}
		}
	}

	if prim.Indices != nil {
		if data.Indices, err = p.readIndices(*prim.Indices); err != nil {
			return common.MeshData{}, fmt.Errorf("indices: %w", err)
		}
		for _, idx := range data.Indices {
			if int(idx) >= len(data.Vertices) {
				return common.MeshData{}, fmt.Errorf("index %d out of range for %d vertices", idx, len(data.Vertices))
			}
		}
	}

	if normalIndex, ok := prim.Attributes["NORMAL"]; ok {
		normals, err := p.readFloats(normalIndex, 3)
		if err != nil {
			return common.MeshData{}, fmt.Errorf("normals: %w", err)
		}
		for i := range min(len(normals), len(data.Vertices)) {
			data.Vertices[i].Normal = [3]float32{normals[i][0], normals[i][1], normals[i][2]}
		}
	} else {
		generateNormals(data)
	}
	return data, nil
}

// transformMesh bakes m into positions and normals. A mirroring transform also reverses the
// winding so triangles stay counter-clockwise from outside.
func transformMesh(data common.MeshData, m common.Mat4) {
	if m == common.IdentityMat4() {
		return
	}
	for i := range data.Vertices {
		v := &data.Vertices[i]
		pos := common.MulVec4(m, [4]float32{v.Position[0], v.Position[1], v.Position[2], 1})
		v.Position = [3]float32{pos[0], pos[1], pos[2]}
		n := common.MulVec4(m, [4]float32{v.Normal[0], v.Normal[1], v.Normal[2], 0})
		v.Normal = normalize([3]float32{n[0], n[1], n[2]})
	}

	det := m[0]*(m[5]*m[10]-m[9]*m[6]) - m[4]*(m[1]*m[10]-m[9]*m[2]) + m[8]*(m[1]*m[6]-m[5]*m[2])
	if det >= 0 {
		return
	}
	if data.Indexed() {
		for i := 0; i+2 < len(data.Indices); i += 3 {
			data.Indices[i+1], data.Indices[i+2] = data.Indices[i+2], data.Indices[i+1]
		}
		return
	}
	for i := 0; i+2 < len(data.Vertices); i += 3 {
		data.Vertices[i+1], data.Vertices[i+2] = data.Vertices[i+2], data.Vertices[i+1]
	}
}

// material reads a metallic-roughness material and decodes its base color texture.
func (p *gltfParser) material(index int) (ImportedMaterial, error) {
	src := &p.document.Materials[index]
	mat := defaultMaterial(common.Coalesce(src.Name, fmt.Sprintf("material_%d", index)))

	pbr := src.PbrMetallicRoughness
	if pbr == nil {
		return mat, nil
	}
	if pbr.BaseColorFactor != nil {
		mat.BaseColor = *pbr.BaseColorFactor
	}
	if pbr.MetallicFactor != nil {
		mat.Metallic = *pbr.MetallicFactor
	}
	if pbr.RoughnessFactor != nil {
		mat.Roughness = *pbr.RoughnessFactor
	}
	if pbr.BaseColorTexture != nil {
		tex, sampler, err := p.texture(pbr.BaseColorTexture.Index)
		if err != nil {
			return ImportedMaterial{}, fmt.Errorf("material %q: base color texture: %w", mat.Name, err)
		}
		mat.Texture, mat.Sampler = tex, sampler
	}
	return mat, nil
}

// texture decodes the image of a texture from its buffer view, data URI or file, along with
// the sampler it references.
func (p *gltfParser) texture(index int) (*common.TextureStagingData, *common.SamplerStagingData, error) {
	doc := p.document
	if index < 0 || index >= len(doc.Textures) {
		return nil, nil, fmt.Errorf("texture index %d out of range", index)
	}
	tex := &doc.Textures[index]
	if tex.Source == nil {
		return nil, nil, nil
	}
	if *tex.Source < 0 || *tex.Source >= len(doc.Images) {
		return nil, nil, fmt.Errorf("image index %d out of range", *tex.Source)
	}

	var sampler *common.SamplerStagingData
	if tex.Sampler != nil && *tex.Sampler >= 0 && *tex.Sampler < len(doc.Samplers) {
		s := samplerData(&doc.Samplers[*tex.Sampler])
		sampler = &s
	}

	img := &doc.Images[*tex.Source]
	var encoded []byte
	var err error
	switch {
	case img.BufferView != nil:
		encoded, err = p.bufferView(*img.BufferView)
	case img.URI != "":
		encoded, _, err = p.resolveURI(img.URI)
	default:
		return nil, sampler, fmt.Errorf("image %q has neither a bufferView nor a URI", img.Name)
	}
	if err != nil {
		return nil, nil, err
	}

	decoded, err := common.DecodeTextureBytes(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("image %q: %w", img.Name, err)
	}
	return &decoded, sampler, nil
}

// samplerData converts a glTF sampler. Unset fields keep the glTF defaults of linear filtering
// and repeat wrapping.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#reference-sampler
func samplerData(s *gltfSampler) common.SamplerStagingData {
	out := common.SamplerStagingData{
		AddressModeU: wgpu.AddressModeRepeat,
		AddressModeV: wgpu.AddressModeRepeat,
		AddressModeW: wgpu.AddressModeRepeat,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
	}

	if s.MagFilter != nil && *s.MagFilter == gltfFilterNearest {
		out.MagFilter = wgpu.FilterModeNearest
	}
	if s.MinFilter != nil {
		switch *s.MinFilter {
		case gltfFilterNearest, gltfFilterNearestMipmapNearest, gltfFilterNearestMipmapLinear:
			out.MinFilter = wgpu.FilterModeNearest
		}
		switch *s.MinFilter {
		case gltfFilterNearest, gltfFilterLinear, gltfFilterNearestMipmapNearest, gltfFilterLinearMipmapNearest:
			out.MipmapFilter = wgpu.MipmapFilterModeNearest
		}
	}
	if s.WrapS != nil {
		out.AddressModeU = addressMode(*s.WrapS)
	}
	if s.WrapT != nil {
		out.AddressModeV = addressMode(*s.WrapT)
	}
	return out
}

func addressMode(wrap int) wgpu.AddressMode {
	switch wrap {
	case gltfWrapClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gltfWrapMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}
