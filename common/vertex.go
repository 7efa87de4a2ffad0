package common

import (
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
)

// Vertex is the standard textured vertex consumed by the engine's pipelines.
// The attribute contract is position at @location(0), uv at @location(1) and
// normal at @location(2), tightly packed (32 bytes per vertex).
type Vertex struct {
	Position [3]float32
	UV       [2]float32
	Normal   [3]float32
}

// SkinnedVertex extends Vertex with four joint indices at @location(3) and
// four joint weights at @location(4) (64 bytes per vertex).
type SkinnedVertex struct {
	Position [3]float32
	UV       [2]float32
	Normal   [3]float32
	Joints   [4]uint32
	Weights  [4]float32
}

// VertexLayout returns the vertex buffer layout matching Vertex.
//
// Returns:
//   - wgpu.VertexBufferLayout: the per-vertex layout for buffer slot 0
func VertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(unsafe.Sizeof(Vertex{})),
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x3, Offset: 20, ShaderLocation: 2},
		},
	}
}

// SkinnedVertexLayout returns the vertex buffer layout matching SkinnedVertex.
//
// Returns:
//   - wgpu.VertexBufferLayout: the per-vertex layout for buffer slot 0
func SkinnedVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(unsafe.Sizeof(SkinnedVertex{})),
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x3, Offset: 20, ShaderLocation: 2},
			{Format: wgpu.VertexFormatUint32x4, Offset: 32, ShaderLocation: 3},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 4},
		},
	}
}
