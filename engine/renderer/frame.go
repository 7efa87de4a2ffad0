package renderer

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
	"github.com/cogentcore/webgpu/wgpu"
)

// Mesh is the geometry a DrawItem draws. Without an IndexBuffer the item is drawn non-indexed
// with VertexCount vertices.
type Mesh struct {
	VertexBuffer device.Buffer
	VertexCount  uint32

	IndexBuffer device.Buffer
	IndexCount  uint32
	// IndexFormat defaults to wgpu.IndexFormatUint32.
	IndexFormat wgpu.IndexFormat
}

// Indexed reports whether the mesh is drawn with its index buffer.
func (m Mesh) Indexed() bool {
	return m.IndexBuffer != nil
}

// GroupBinding binds one group of a slot table to a pipeline bind group index.
type GroupBinding struct {
	// Index is the pipeline's @group index.
	Index uint32
	// Table owns the resources.
	Table slot_table.SlotTable
	// Group is the group within Table.
	Group int
}

// DrawItem is one instanced draw. It lives for a single frame.
type DrawItem struct {
	Label    string
	Pipeline pipeline.Pipeline
	Mesh     Mesh
	// InstanceCount is the number of instances to draw. Zero draws one.
	InstanceCount uint32
	Bindings      []GroupBinding
	// Overrides replace slots for this item only. An override's Group is matched against
	// GroupBinding.Index.
	Overrides []slot_table.Override
}

func (d DrawItem) instances() uint32 {
	return max(d.InstanceCount, 1)
}

// Frame is everything one RenderFrame call draws. Offscreen items are recorded first, into the
// offscreen target, so the main pass can sample the result in the same frame.
type Frame struct {
	Offscreen []DrawItem
	Main      []DrawItem
}

// FrameStats summarizes one RenderFrame call.
type FrameStats struct {
	// Drawn is the number of draw calls recorded.
	Drawn int
	// Skipped is the number of items dropped because of a per-item error.
	Skipped int
	// BindGroupBuilds is the number of slot table bind groups built or rebuilt while recording.
	BindGroupBuilds int
	// Passes is the number of render passes recorded.
	Passes int
}
