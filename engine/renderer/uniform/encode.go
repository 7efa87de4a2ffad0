package uniform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrValueType is returned when a record field's Go value does not match its declared FieldType.
var ErrValueType = errors.New("value does not match declared field type")

// Scalar is the set of Go types that map directly onto a WGSL scalar.
type Scalar interface {
	float32 | int32 | uint32
}

// Field is one named value of a record, placed at a caller-declared byte offset.
// The Go type of Value is fixed by Type:
//
//	FieldTypeF32   float32        FieldTypeVec4F  [4]float32
//	FieldTypeI32   int32          FieldTypeVec4I  [4]int32
//	FieldTypeU32   uint32         FieldTypeVec4U  [4]uint32
//	FieldTypeVec2F [2]float32     FieldTypeMat4F  [16]float32 (column-major)
//	FieldTypeVec3F [3]float32
type Field struct {
	Name   string
	Type   FieldType
	Offset uint64
	Value  any
}

// scalarFieldType maps a Scalar type parameter to its FieldType.
func scalarFieldType[T Scalar]() FieldType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return FieldTypeF32
	case int32:
		return FieldTypeI32
	default:
		return FieldTypeU32
	}
}

// EncodeScalar encodes a single scalar value.
//
// Parameters:
//   - v: the value to encode
//
// Returns:
//   - Payload: a 4-byte payload
//   - error: always nil for the supported scalar types
func EncodeScalar[T Scalar](v T) (Payload, error) {
	layout := ScalarLayout(scalarFieldType[T]())
	buf := make([]byte, layout.Size())
	if err := putValue(buf, layout.elem, v); err != nil {
		return Payload{}, err
	}
	return Payload{layout: layout, data: buf}, nil
}

// EncodeArray encodes a fixed-length array of scalars packed at a 4-byte stride.
// 64 elements fill the 256 byte limit exactly; 65 fail with *gpu_error.OversizeError.
//
// Parameters:
//   - values: the elements to encode, at least one
//
// Returns:
//   - Payload: the encoded array
//   - error: *gpu_error.OversizeError when the array exceeds the limit,
//     *gpu_error.AlignmentError when it is empty
func EncodeArray[T Scalar](values []T) (Payload, error) {
	layout := ArrayLayout(scalarFieldType[T](), len(values))
	if err := checkLimit(layout.Size()); err != nil {
		return Payload{}, err
	}
	if err := layout.Validate(); err != nil {
		return Payload{}, err
	}
	stride := layout.stride()
	buf := make([]byte, layout.Size())
	for i, v := range values {
		if err := putValue(buf[uint64(i)*stride:], layout.elem, v); err != nil {
			return Payload{}, err
		}
	}
	return Payload{layout: layout, data: buf}, nil
}

// EncodeMat4 encodes a single column-major 4x4 matrix (64 bytes).
func EncodeMat4(m [16]float32) (Payload, error) {
	return EncodeRecord(Field{Name: "m", Type: FieldTypeMat4F, Value: m})
}

// EncodeRecord encodes named fields at their declared offsets. Gaps and trailing padding are
// zero-filled. The record's size is its last byte rounded up to its widest member's alignment,
// and a record whose padded size exceeds the limit fails even if its fields alone would fit.
//
// Parameters:
//   - fields: the record fields in any order
//
// Returns:
//   - Payload: the encoded record
//   - error: *gpu_error.AlignmentError for misaligned or overlapping fields,
//     *gpu_error.OversizeError for records over the limit, or ErrValueType
func EncodeRecord(fields ...Field) (Payload, error) {
	layouts := make([]FieldLayout, len(fields))
	for i, f := range fields {
		layouts[i] = FieldLayout{Name: f.Name, Type: f.Type, Offset: f.Offset}
	}
	layout := RecordLayout(layouts...)
	if err := layout.Validate(); err != nil {
		return Payload{}, err
	}

	buf := make([]byte, layout.Size())
	for _, f := range fields {
		if err := putValue(buf[f.Offset:], f.Type, f.Value); err != nil {
			return Payload{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return Payload{layout: layout, data: buf}, nil
}

// DecodeScalar reads back the value of a scalar payload.
//
// Returns:
//   - T: the decoded value
//   - error: an error if the payload is not a scalar of type T
func DecodeScalar[T Scalar](p Payload) (T, error) {
	var zero T
	want := scalarFieldType[T]()
	if p.layout.kind != LayoutKindScalar || p.layout.elem != want {
		return zero, fmt.Errorf("payload is %s %s, not scalar %s", p.layout.kind, p.layout.elem, want)
	}
	v, err := getValue(p.data, want)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// DecodeArray reads back the elements of an array payload.
//
// Returns:
//   - []T: the decoded elements
//   - error: an error if the payload is not an array of T
func DecodeArray[T Scalar](p Payload) ([]T, error) {
	want := scalarFieldType[T]()
	if p.layout.kind != LayoutKindArray || p.layout.elem != want {
		return nil, fmt.Errorf("payload is %s %s, not array of %s", p.layout.kind, p.layout.elem, want)
	}
	stride := p.layout.stride()
	out := make([]T, p.layout.count)
	for i := range out {
		v, err := getValue(p.data[uint64(i)*stride:], want)
		if err != nil {
			return nil, err
		}
		out[i] = v.(T)
	}
	return out, nil
}

// DecodeRecord reads back every field of a record payload against its declared layout.
// The returned fields are in offset order.
//
// Returns:
//   - []Field: the decoded fields
//   - error: an error if the payload is not a record
func DecodeRecord(p Payload) ([]Field, error) {
	if p.layout.kind != LayoutKindRecord {
		return nil, fmt.Errorf("payload is %s, not record", p.layout.kind)
	}
	out := make([]Field, len(p.layout.fields))
	for i, fl := range p.layout.fields {
		v, err := getValue(p.data[fl.Offset:], fl.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fl.Name, err)
		}
		out[i] = Field{Name: fl.Name, Type: fl.Type, Offset: fl.Offset, Value: v}
	}
	return out, nil
}

// DecodeMat4 reads the first mat4x4<f32> field of a record payload.
func DecodeMat4(p Payload) ([16]float32, error) {
	fields, err := DecodeRecord(p)
	if err != nil {
		return [16]float32{}, err
	}
	for _, f := range fields {
		if m, ok := f.Value.([16]float32); ok {
			return m, nil
		}
	}
	return [16]float32{}, errors.New("record has no mat4x4<f32> field")
}

// putValue writes v into buf as type t, little-endian.
func putValue(buf []byte, t FieldType, v any) error {
	le := binary.LittleEndian
	switch t {
	case FieldTypeF32:
		x, ok := v.(float32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		le.PutUint32(buf, math.Float32bits(x))
	case FieldTypeI32:
		x, ok := v.(int32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		le.PutUint32(buf, uint32(x))
	case FieldTypeU32:
		x, ok := v.(uint32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		le.PutUint32(buf, x)
	case FieldTypeVec2F:
		x, ok := v.([2]float32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		putFloats(buf, x[:])
	case FieldTypeVec3F:
		x, ok := v.([3]float32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		putFloats(buf, x[:])
	case FieldTypeVec4F:
		x, ok := v.([4]float32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		putFloats(buf, x[:])
	case FieldTypeVec4I:
		x, ok := v.([4]int32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		for i, c := range x {
			le.PutUint32(buf[i*4:], uint32(c))
		}
	case FieldTypeVec4U:
		x, ok := v.([4]uint32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		for i, c := range x {
			le.PutUint32(buf[i*4:], c)
		}
	case FieldTypeMat4F:
		x, ok := v.([16]float32)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, v, t)
		}
		putFloats(buf, x[:])
	default:
		return fmt.Errorf("%w: unknown type %s", ErrValueType, t)
	}
	return nil
}

// getValue reads a value of type t from buf, returning it as the Go type putValue accepts.
func getValue(buf []byte, t FieldType) (any, error) {
	le := binary.LittleEndian
	switch t {
	case FieldTypeF32:
		return math.Float32frombits(le.Uint32(buf)), nil
	case FieldTypeI32:
		return int32(le.Uint32(buf)), nil
	case FieldTypeU32:
		return le.Uint32(buf), nil
	case FieldTypeVec2F:
		var x [2]float32
		getFloats(buf, x[:])
		return x, nil
	case FieldTypeVec3F:
		var x [3]float32
		getFloats(buf, x[:])
		return x, nil
	case FieldTypeVec4F:
		var x [4]float32
		getFloats(buf, x[:])
		return x, nil
	case FieldTypeVec4I:
		var x [4]int32
		for i := range x {
			x[i] = int32(le.Uint32(buf[i*4:]))
		}
		return x, nil
	case FieldTypeVec4U:
		var x [4]uint32
		for i := range x {
			x[i] = le.Uint32(buf[i*4:])
		}
		return x, nil
	case FieldTypeMat4F:
		var x [16]float32
		getFloats(buf, x[:])
		return x, nil
	}
	return nil, fmt.Errorf("%w: unknown type %s", ErrValueType, t)
}

func putFloats(buf []byte, fs []float32) {
	for i, f := range fs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
}

func getFloats(buf []byte, fs []float32) {
	for i := range fs {
		fs[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}
