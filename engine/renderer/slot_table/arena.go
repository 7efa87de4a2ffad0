package slot_table

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// arenaChunkRegions is the number of RegionSize regions per arena buffer.
const arenaChunkRegions = 64

// uniformArena hands out RegionSize regions for per-draw uniform overrides. Regions are recycled
// wholesale by reset once the frame that used them has been submitted.
type uniformArena struct {
	device device.Device
	label  string
	chunks []device.Buffer
	cursor int
}

func newUniformArena(dev device.Device, label string) *uniformArena {
	return &uniformArena{device: dev, label: label}
}

// alloc returns the buffer and offset of the next free region, growing by one chunk when full.
func (a *uniformArena) alloc() (device.Buffer, uint64, error) {
	chunk := a.cursor / arenaChunkRegions
	if chunk >= len(a.chunks) {
		buf, err := a.device.CreateBuffer(device.BufferDescriptor{
			Label: fmt.Sprintf("%s %d", a.label, chunk),
			Size:  arenaChunkRegions * RegionSize,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, 0, err
		}
		a.chunks = append(a.chunks, buf)
	}
	offset := uint64(a.cursor%arenaChunkRegions) * RegionSize
	a.cursor++
	return a.chunks[chunk], offset, nil
}

func (a *uniformArena) reset() {
	a.cursor = 0
}

func (a *uniformArena) release() {
	for _, c := range a.chunks {
		c.Release()
	}
	a.chunks = nil
	a.cursor = 0
}
