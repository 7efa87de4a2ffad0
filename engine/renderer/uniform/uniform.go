// Package uniform implements the byte-span uniform descriptor: an immutable, type-erased
// payload of at most 256 bytes plus the layout it was encoded against.
//
// The typed Encode* functions are the only place concrete Go types meet uniform data.
// Everything downstream (slot tables, pipelines, the orchestrator) sees only bytes, a size
// and an alignment.
package uniform

import (
	"bytes"
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
)

// Payload is an immutable encoded uniform value. The zero Payload is empty and invalid.
type Payload struct {
	layout Layout
	data   []byte
}

// NewPayload wraps pre-encoded bytes after validating the layout and the byte count.
// The bytes are copied.
//
// Parameters:
//   - layout: the layout the bytes were encoded against
//   - data: the encoded bytes, exactly layout.Size() long
//
// Returns:
//   - Payload: the wrapped payload
//   - error: a layout validation error, or a length mismatch
func NewPayload(layout Layout, data []byte) (Payload, error) {
	if err := layout.Validate(); err != nil {
		return Payload{}, err
	}
	if uint64(len(data)) != layout.Size() {
		return Payload{}, fmt.Errorf("payload has %d bytes, layout requires %d", len(data), layout.Size())
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Payload{layout: layout, data: buf}, nil
}

// Zeroed returns a payload of the given layout with every byte cleared.
//
// Parameters:
//   - layout: the payload layout
//
// Returns:
//   - Payload: the zero-filled payload
//   - error: a layout validation error
func Zeroed(layout Layout) (Payload, error) {
	if err := layout.Validate(); err != nil {
		return Payload{}, err
	}
	return Payload{layout: layout, data: make([]byte, layout.Size())}, nil
}

// Bytes returns a copy of the encoded bytes.
func (p Payload) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Size returns the encoded size in bytes. It never exceeds gpu_error.UniformSizeLimit.
func (p Payload) Size() uint64 {
	return uint64(len(p.data))
}

// Align returns the alignment requirement derived from the payload's layout.
func (p Payload) Align() uint64 {
	return p.layout.Align()
}

// Layout returns the layout the payload was encoded against.
func (p Payload) Layout() Layout {
	return p.layout
}

// IsZero reports whether p is the empty zero Payload.
func (p Payload) IsZero() bool {
	return p.data == nil
}

// Equal reports whether two payloads hold identical bytes.
func (p Payload) Equal(other Payload) bool {
	return bytes.Equal(p.data, other.data)
}

// checkLimit is the fast path used by encoders before allocating.
func checkLimit(size uint64) error {
	if size > gpu_error.UniformSizeLimit {
		return &gpu_error.OversizeError{Size: size, Limit: gpu_error.UniformSizeLimit}
	}
	return nil
}
