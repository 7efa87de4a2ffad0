package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/chewxy/math32"
)

// ImportedMesh is one drawable piece of an imported file: a triangle list in the file's world
// space and the index of the material it is drawn with, or -1 for none.
type ImportedMesh struct {
	Name          string
	Data          common.MeshData
	MaterialIndex int
}

// ImportedMaterial is the CPU side of an imported material.
type ImportedMaterial struct {
	Name      string
	BaseColor [4]float32
	Metallic  float32
	Roughness float32
	// Texture is the decoded base color texture, or nil when the material has none.
	Texture *common.TextureStagingData
	// Sampler is the sampler the file asks for, or nil for the material default.
	Sampler *common.SamplerStagingData
}

// Imported is everything a backend read from one file.
type Imported struct {
	Name      string
	Meshes    []ImportedMesh
	Materials []ImportedMaterial
}

// loaderBackend reads one file format into CPU-side mesh and material data.
type loaderBackend interface {
	// Load imports the file at path. Relative references in the file resolve against its
	// directory.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *Imported: the imported meshes and materials
	//   - error: error if the file cannot be read or is malformed
	Load(path string) (*Imported, error)

	// LoadReader imports a file from a stream. Only embedded references can be resolved.
	//
	// Parameters:
	//   - r: the reader providing the file contents
	//
	// Returns:
	//   - *Imported: the imported meshes and materials
	//   - error: error if the data is malformed
	LoadReader(r io.Reader) (*Imported, error)
}

// defaultMaterial returns the material properties used where a file leaves them unset.
func defaultMaterial(name string) ImportedMaterial {
	return ImportedMaterial{Name: name, BaseColor: [4]float32{1, 1, 1, 1}, Metallic: 1, Roughness: 1}
}

// generateNormals fills every vertex normal with the area-weighted average of the faces
// touching it. Vertices on no face point up.
func generateNormals(m common.MeshData) {
	tri := m.Indices
	if tri == nil {
		tri = make([]uint32, len(m.Vertices))
		for i := range tri {
			tri[i] = uint32(i)
		}
	}

	n := len(m.Vertices)
	accum := make([][3]float32, n)
	for i := 0; i+2 < len(tri); i += 3 {
		i0, i1, i2 := tri[i], tri[i+1], tri[i+2]
		if int(i0) >= n || int(i1) >= n || int(i2) >= n {
			continue
		}
		p0, p1, p2 := m.Vertices[i0].Position, m.Vertices[i1].Position, m.Vertices[i2].Position
		e1 := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		e2 := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		face := [3]float32{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		for _, idx := range [3]uint32{i0, i1, i2} {
			accum[idx][0] += face[0]
			accum[idx][1] += face[1]
			accum[idx][2] += face[2]
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = normalize(accum[i])
	}
}

// normalize returns v scaled to unit length, or +Y for a degenerate vector.
func normalize(v [3]float32) [3]float32 {
	length := math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if length < 1e-6 {
		return [3]float32{0, 1, 0}
	}
	return [3]float32{v[0] / length, v[1] / length, v[2] / length}
}
