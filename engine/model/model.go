// Package model uploads CPU-side geometry to the GPU and hands it to the renderer as a Mesh.
package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrEmptyMesh is returned when a model is created without vertices.
var ErrEmptyMesh = errors.New("mesh has no vertices")

type model struct {
	mu *sync.Mutex

	name           string
	data           common.MeshData
	boundingRadius float32

	device device.Device
	mesh   renderer.Mesh
}

// Model is a named piece of geometry. Its buffers are created once, on the first Upload, and
// shared by every object that draws it.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Data returns the CPU-side geometry the model was created from.
	Data() common.MeshData

	// VertexCount returns the number of vertices in the mesh.
	VertexCount() int

	// IndexCount returns the number of indices, or 0 for a non-indexed mesh.
	IndexCount() int

	// BoundingRadius returns the largest vertex distance from the origin.
	BoundingRadius() float32

	// Upload creates and fills the vertex and index buffers on dev. Later calls return the
	// same mesh without touching the device.
	//
	// Parameters:
	//   - dev: the device to create the buffers on
	//
	// Returns:
	//   - renderer.Mesh: the uploaded mesh
	//   - error: an error if a buffer cannot be created or written, or if the model was
	//     already uploaded to another device
	Upload(dev device.Device) (renderer.Mesh, error)

	// Mesh returns the uploaded mesh and whether Upload has succeeded.
	Mesh() (renderer.Mesh, bool)

	// Release frees the GPU buffers. The model can be uploaded again afterwards.
	Release()
}

var _ Model = &model{}

// NewModel creates a Model from mesh data. Every index must refer to an existing vertex.
//
// Parameters:
//   - data: the geometry
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: the new model
//   - error: ErrEmptyMesh or an out-of-range index error
func NewModel(data common.MeshData, options ...ModelBuilderOption) (Model, error) {
	m := &model{
		mu:   &sync.Mutex{},
		name: "Model",
		data: data,
	}
	for _, opt := range options {
		opt(m)
	}

	if len(m.data.Vertices) == 0 {
		return nil, fmt.Errorf("model %q: %w", m.name, ErrEmptyMesh)
	}
	for i, idx := range m.data.Indices {
		if int(idx) >= len(m.data.Vertices) {
			return nil, fmt.Errorf("model %q: index %d at position %d is out of range (%d vertices)", m.name, idx, i, len(m.data.Vertices))
		}
	}
	if !m.data.Indexed() && len(m.data.Vertices)%3 != 0 {
		return nil, fmt.Errorf("model %q: non-indexed mesh has %d vertices, not a whole number of triangles", m.name, len(m.data.Vertices))
	}

	for _, v := range m.data.Vertices {
		p := v.Position
		m.boundingRadius = math32.Max(m.boundingRadius, math32.Sqrt(p[0]*p[0]+p[1]*p[1]+p[2]*p[2]))
	}
	return m, nil
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Data() common.MeshData {
	return m.data
}

func (m *model) VertexCount() int {
	return len(m.data.Vertices)
}

func (m *model) IndexCount() int {
	return len(m.data.Indices)
}

func (m *model) BoundingRadius() float32 {
	return m.boundingRadius
}

func (m *model) Upload(dev device.Device) (renderer.Mesh, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if m.device != dev {
			return renderer.Mesh{}, fmt.Errorf("model %q: already uploaded to another device", m.name)
		}
		return m.mesh, nil
	}

	vertexBytes := common.SliceToBytes(m.data.Vertices)
	vb, err := dev.CreateBuffer(device.BufferDescriptor{
		Label: m.name + " Vertex Buffer",
		Size:  uint64(len(vertexBytes)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return renderer.Mesh{}, fmt.Errorf("model %q: vertex buffer: %w", m.name, err)
	}
	if err := dev.WriteBuffer(vb, 0, vertexBytes); err != nil {
		vb.Release()
		return renderer.Mesh{}, fmt.Errorf("model %q: vertex upload: %w", m.name, err)
	}

	mesh := renderer.Mesh{
		VertexBuffer: vb,
		VertexCount:  uint32(len(m.data.Vertices)),
	}

	if m.data.Indexed() {
		indexBytes := common.SliceToBytes(m.data.Indices)
		ib, err := dev.CreateBuffer(device.BufferDescriptor{
			Label: m.name + " Index Buffer",
			Size:  uint64(len(indexBytes)),
			Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			vb.Release()
			return renderer.Mesh{}, fmt.Errorf("model %q: index buffer: %w", m.name, err)
		}
		if err := dev.WriteBuffer(ib, 0, indexBytes); err != nil {
			vb.Release()
			ib.Release()
			return renderer.Mesh{}, fmt.Errorf("model %q: index upload: %w", m.name, err)
		}
		mesh.IndexBuffer = ib
		mesh.IndexCount = uint32(len(m.data.Indices))
		mesh.IndexFormat = wgpu.IndexFormatUint32
	}

	m.device = dev
	m.mesh = mesh
	common.Logger().Debug("model uploaded", "model", m.name, "vertices", mesh.VertexCount, "indices", mesh.IndexCount)
	return mesh, nil
}

func (m *model) Mesh() (renderer.Mesh, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mesh, m.device != nil
}

func (m *model) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mesh.VertexBuffer != nil {
		m.mesh.VertexBuffer.Release()
	}
	if m.mesh.IndexBuffer != nil {
		m.mesh.IndexBuffer.Release()
	}
	m.mesh = renderer.Mesh{}
	m.device = nil
}
