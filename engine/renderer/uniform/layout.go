package uniform

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
)

// FieldType identifies a WGSL host-shareable type that may appear in a uniform payload.
type FieldType int

const (
	FieldTypeUndefined FieldType = iota
	FieldTypeF32
	FieldTypeI32
	FieldTypeU32
	FieldTypeVec2F
	FieldTypeVec3F
	FieldTypeVec4F
	FieldTypeVec4I
	FieldTypeVec4U
	FieldTypeMat4F
)

// fieldTypeInfo holds the byte size, alignment and WGSL spelling of a FieldType.
type fieldTypeInfo struct {
	size  uint64
	align uint64
	wgsl  string
}

// fieldTypeInfoMap follows the WGSL alignment and size table.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var fieldTypeInfoMap = map[FieldType]fieldTypeInfo{
	FieldTypeF32:   {4, 4, "f32"},
	FieldTypeI32:   {4, 4, "i32"},
	FieldTypeU32:   {4, 4, "u32"},
	FieldTypeVec2F: {8, 8, "vec2<f32>"},
	FieldTypeVec3F: {12, 16, "vec3<f32>"},
	FieldTypeVec4F: {16, 16, "vec4<f32>"},
	FieldTypeVec4I: {16, 16, "vec4<i32>"},
	FieldTypeVec4U: {16, 16, "vec4<u32>"},
	FieldTypeMat4F: {64, 16, "mat4x4<f32>"},
}

// Size returns the byte size of the type, or 0 for an unknown type.
func (t FieldType) Size() uint64 {
	return fieldTypeInfoMap[t].size
}

// Align returns the required byte alignment of the type, or 0 for an unknown type.
func (t FieldType) Align() uint64 {
	return fieldTypeInfoMap[t].align
}

func (t FieldType) String() string {
	if info, ok := fieldTypeInfoMap[t]; ok {
		return info.wgsl
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// LayoutKind is the logical shape of a uniform payload.
type LayoutKind int

const (
	LayoutKindScalar LayoutKind = iota + 1
	LayoutKindArray
	LayoutKindRecord
)

func (k LayoutKind) String() string {
	switch k {
	case LayoutKindScalar:
		return "scalar"
	case LayoutKindArray:
		return "array"
	case LayoutKindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// FieldLayout places one named field of a record at a caller-declared byte offset.
type FieldLayout struct {
	Name   string
	Type   FieldType
	Offset uint64
}

// Layout describes the byte shape of a uniform payload: a single scalar, a fixed-length
// array, or a record of named fields at explicit offsets. A Layout never carries values.
type Layout struct {
	kind   LayoutKind
	elem   FieldType
	count  int
	fields []FieldLayout
}

// ScalarLayout describes a payload holding a single value of type t.
func ScalarLayout(t FieldType) Layout {
	return Layout{kind: LayoutKindScalar, elem: t, count: 1}
}

// ArrayLayout describes a payload holding count tightly packed elements of type t.
// Elements are placed at a stride of t's size rounded up to t's alignment, so
// an array of 64 f32 occupies exactly 256 bytes.
func ArrayLayout(t FieldType, count int) Layout {
	return Layout{kind: LayoutKindArray, elem: t, count: count}
}

// RecordLayout describes a payload holding the given fields. Fields are kept sorted by offset.
func RecordLayout(fields ...FieldLayout) Layout {
	sorted := make([]FieldLayout, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})
	return Layout{kind: LayoutKindRecord, fields: sorted}
}

// Kind returns the logical shape of the layout.
func (l Layout) Kind() LayoutKind {
	return l.kind
}

// Elem returns the element type of a scalar or array layout.
func (l Layout) Elem() FieldType {
	return l.elem
}

// Count returns the element count of an array layout (1 for a scalar, 0 for a record).
func (l Layout) Count() int {
	return l.count
}

// Fields returns a copy of a record layout's fields in offset order.
func (l Layout) Fields() []FieldLayout {
	out := make([]FieldLayout, len(l.fields))
	copy(out, l.fields)
	return out
}

// stride returns the distance in bytes between consecutive array elements.
func (l Layout) stride() uint64 {
	return roundUpAlign(l.elem.Align(), l.elem.Size())
}

// Align returns the alignment requirement of the payload, derived from its widest member.
func (l Layout) Align() uint64 {
	switch l.kind {
	case LayoutKindScalar, LayoutKindArray:
		return l.elem.Align()
	case LayoutKindRecord:
		var align uint64
		for _, f := range l.fields {
			align = max(align, f.Type.Align())
		}
		return align
	}
	return 0
}

// Size returns the byte size of the payload including trailing padding. Records are rounded
// up to their widest member's alignment, the same rule WGSL applies to structs.
func (l Layout) Size() uint64 {
	switch l.kind {
	case LayoutKindScalar:
		return l.elem.Size()
	case LayoutKindArray:
		if l.count <= 0 {
			return 0
		}
		return mulClamped(l.stride(), uint64(l.count))
	case LayoutKindRecord:
		var end uint64
		for _, f := range l.fields {
			end = max(end, addClamped(f.Offset, f.Type.Size()))
		}
		align := l.Align()
		if end > math.MaxUint64-align {
			return end
		}
		return roundUpAlign(align, end)
	}
	return 0
}

// addClamped returns a+b, or math.MaxUint64 when the sum overflows.
func addClamped(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// mulClamped returns a*b, or math.MaxUint64 when the product overflows.
func mulClamped(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// Validate checks the layout against the uniform contract: known field types, offsets that
// are multiples of each field's alignment, no overlapping fields, and a total size within
// gpu_error.UniformSizeLimit once padding is applied.
//
// Returns:
//   - error: an *gpu_error.AlignmentError or *gpu_error.OversizeError, or nil
func (l Layout) Validate() error {
	switch l.kind {
	case LayoutKindScalar, LayoutKindArray:
		if _, ok := fieldTypeInfoMap[l.elem]; !ok {
			return &gpu_error.AlignmentError{Field: l.kind.String(), Reason: "unknown element type " + l.elem.String()}
		}
		if l.count <= 0 {
			return &gpu_error.AlignmentError{Field: l.kind.String(), Reason: fmt.Sprintf("element count %d must be positive", l.count)}
		}
	case LayoutKindRecord:
		if len(l.fields) == 0 {
			return &gpu_error.AlignmentError{Field: "record", Reason: "record has no fields"}
		}
		var prevEnd uint64
		prevName := ""
		for i, f := range l.fields {
			info, ok := fieldTypeInfoMap[f.Type]
			if !ok {
				return &gpu_error.AlignmentError{Field: f.Name, Offset: f.Offset, Reason: "unknown field type " + f.Type.String()}
			}
			if f.Offset%info.align != 0 {
				return &gpu_error.AlignmentError{Field: f.Name, Offset: f.Offset, Align: info.align}
			}
			if i > 0 && f.Offset < prevEnd {
				return &gpu_error.AlignmentError{Field: f.Name, Offset: f.Offset, Align: info.align, Reason: fmt.Sprintf("overlaps field %q ending at %d", prevName, prevEnd)}
			}
			prevEnd = addClamped(f.Offset, info.size)
			prevName = f.Name
		}
	default:
		return &gpu_error.AlignmentError{Field: "payload", Reason: "layout has no kind"}
	}

	if size := l.Size(); size > gpu_error.UniformSizeLimit {
		return &gpu_error.OversizeError{Size: size, Limit: gpu_error.UniformSizeLimit}
	}
	return nil
}

// WGSL renders a record layout as a WGSL struct declaration. Gaps between fields are filled
// with explicit @align/@size attributes so the shader sees the same byte offsets as the host.
// Scalar and array layouts render as a single-member struct named value.
//
// Parameters:
//   - name: the WGSL struct name
//
// Returns:
//   - string: the struct declaration
func (l Layout) WGSL(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "struct %s {\n", name)
	switch l.kind {
	case LayoutKindScalar:
		fmt.Fprintf(&b, "    value: %s,\n", l.elem)
	case LayoutKindArray:
		fmt.Fprintf(&b, "    value: array<%s, %d>,\n", l.elem, l.count)
	case LayoutKindRecord:
		if len(l.fields) > 0 && l.fields[0].Offset > 0 {
			fmt.Fprintf(&b, "    @size(%d) _pad0: u32,\n", l.fields[0].Offset)
		}
		for i, f := range l.fields {
			if i+1 < len(l.fields) {
				nextField := l.fields[i+1]
				natural := roundUpAlign(nextField.Type.Align(), f.Offset+f.Type.Size())
				if nextField.Offset != natural {
					fmt.Fprintf(&b, "    @size(%d) %s: %s,\n", nextField.Offset-f.Offset, f.Name, f.Type)
					continue
				}
			}
			fmt.Fprintf(&b, "    %s: %s,\n", f.Name, f.Type)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}
