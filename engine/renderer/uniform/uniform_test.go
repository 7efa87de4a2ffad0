package uniform

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeArrayAtLimit(t *testing.T) {
	values := make([]float32, 64)
	for i := range values {
		values[i] = float32(i) * 0.5
	}

	p, err := EncodeArray(values)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), p.Size())
	assert.Equal(t, uint64(4), p.Align())

	decoded, err := DecodeArray[float32](p)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestEncodeArrayOverLimit(t *testing.T) {
	_, err := EncodeArray(make([]float32, 65))

	var oversize *gpu_error.OversizeError
	require.ErrorAs(t, err, &oversize)
	assert.Equal(t, uint64(260), oversize.Size)
	assert.Equal(t, uint64(256), oversize.Limit)
}

func TestEncodeArrayEmpty(t *testing.T) {
	_, err := EncodeArray([]uint32{})

	var alignment *gpu_error.AlignmentError
	assert.ErrorAs(t, err, &alignment)
}

func TestScalarRoundTrip(t *testing.T) {
	pf, err := EncodeScalar(float32(-3.25))
	require.NoError(t, err)
	f, err := DecodeScalar[float32](pf)
	require.NoError(t, err)
	assert.Equal(t, float32(-3.25), f)

	pi, err := EncodeScalar(int32(-7))
	require.NoError(t, err)
	i, err := DecodeScalar[int32](pi)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i)

	_, err = DecodeScalar[uint32](pi)
	assert.Error(t, err, "decoding against the wrong scalar type must fail")
}

func TestRecordRoundTrip(t *testing.T) {
	model := [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 4, 5, 6, 1}
	fields := []Field{
		{Name: "model", Type: FieldTypeMat4F, Offset: 0, Value: model},
		{Name: "tint", Type: FieldTypeVec4F, Offset: 64, Value: [4]float32{0.1, 0.2, 0.3, 1}},
		{Name: "offset", Type: FieldTypeVec3F, Offset: 80, Value: [3]float32{-1, 2, -3}},
		{Name: "time", Type: FieldTypeF32, Offset: 92, Value: float32(12.5)},
		{Name: "uv", Type: FieldTypeVec2F, Offset: 96, Value: [2]float32{0.25, 0.75}},
		{Name: "index", Type: FieldTypeU32, Offset: 104, Value: uint32(9)},
		{Name: "delta", Type: FieldTypeI32, Offset: 108, Value: int32(-2)},
		{Name: "flags", Type: FieldTypeVec4U, Offset: 112, Value: [4]uint32{1, 2, 3, 4}},
		{Name: "ids", Type: FieldTypeVec4I, Offset: 128, Value: [4]int32{-1, -2, 3, 4}},
	}

	p, err := EncodeRecord(fields...)
	require.NoError(t, err)
	assert.Equal(t, uint64(144), p.Size())
	assert.Equal(t, uint64(16), p.Align())

	decoded, err := DecodeRecord(p)
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)
}

func TestRecordFieldOrderDoesNotMatter(t *testing.T) {
	a, err := EncodeRecord(
		Field{Name: "a", Type: FieldTypeF32, Offset: 0, Value: float32(1)},
		Field{Name: "b", Type: FieldTypeVec4F, Offset: 16, Value: [4]float32{1, 2, 3, 4}},
	)
	require.NoError(t, err)
	b, err := EncodeRecord(
		Field{Name: "b", Type: FieldTypeVec4F, Offset: 16, Value: [4]float32{1, 2, 3, 4}},
		Field{Name: "a", Type: FieldTypeF32, Offset: 0, Value: float32(1)},
	)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestRecordAlignment(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{
			name:   "vec4 off a 16 byte boundary",
			fields: []Field{{Name: "color", Type: FieldTypeVec4F, Offset: 4, Value: [4]float32{}}},
		},
		{
			name:   "vec3 at 8",
			fields: []Field{{Name: "pos", Type: FieldTypeVec3F, Offset: 8, Value: [3]float32{}}},
		},
		{
			name:   "mat4 at 32 plus 8",
			fields: []Field{{Name: "m", Type: FieldTypeMat4F, Offset: 40, Value: [16]float32{}}},
		},
		{
			name: "overlapping fields",
			fields: []Field{
				{Name: "a", Type: FieldTypeVec4F, Offset: 0, Value: [4]float32{}},
				{Name: "b", Type: FieldTypeF32, Offset: 8, Value: float32(0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeRecord(tt.fields...)
			var alignment *gpu_error.AlignmentError
			assert.ErrorAs(t, err, &alignment)
		})
	}
}

func TestRecordPaddingPastLimit(t *testing.T) {
	// Three mat4, a vec3 and an f32 ending exactly at 256.
	fits := []Field{
		{Name: "a", Type: FieldTypeMat4F, Offset: 0, Value: [16]float32{}},
		{Name: "b", Type: FieldTypeMat4F, Offset: 64, Value: [16]float32{}},
		{Name: "c", Type: FieldTypeMat4F, Offset: 128, Value: [16]float32{}},
		{Name: "d", Type: FieldTypeVec3F, Offset: 192, Value: [3]float32{}},
		{Name: "e", Type: FieldTypeF32, Offset: 252, Value: float32(0)},
	}
	p, err := EncodeRecord(fits...)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), p.Size())

	// A single f32 at offset 256 only adds four bytes of data, but the record
	// is padded to its 16 byte alignment and becomes 272 bytes.
	over := append(fits, Field{Name: "f", Type: FieldTypeF32, Offset: 256, Value: float32(0)})
	_, err = EncodeRecord(over...)
	var oversize *gpu_error.OversizeError
	require.ErrorAs(t, err, &oversize)
	assert.Equal(t, uint64(272), oversize.Size)
}

func TestRecordOffsetNearWrapIsOversize(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{
			name:   "single field",
			fields: []Field{{Name: "far", Type: FieldTypeF32, Offset: math.MaxUint64 - 3, Value: float32(1)}},
		},
		{
			name: "after a valid field",
			fields: []Field{
				{Name: "near", Type: FieldTypeVec4F, Offset: 0, Value: [4]float32{}},
				{Name: "far", Type: FieldTypeMat4F, Offset: math.MaxUint64 - 15, Value: [16]float32{}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			var err error
			require.NotPanics(t, func() { p, err = EncodeRecord(tt.fields...) })
			assert.True(t, p.IsZero())

			var oversize *gpu_error.OversizeError
			require.ErrorAs(t, err, &oversize)
			assert.Equal(t, uint64(math.MaxUint64), oversize.Size)
		})
	}
}

func TestHugeArrayCountIsOversize(t *testing.T) {
	err := ArrayLayout(FieldTypeVec4F, math.MaxInt).Validate()

	var oversize *gpu_error.OversizeError
	require.ErrorAs(t, err, &oversize)
	assert.Equal(t, uint64(math.MaxUint64), oversize.Size)
}

func TestRecordValueTypeMismatch(t *testing.T) {
	_, err := EncodeRecord(Field{Name: "t", Type: FieldTypeF32, Value: 1.0})
	assert.True(t, errors.Is(err, ErrValueType))
}

func TestMat4RoundTrip(t *testing.T) {
	var m [16]float32
	for i := range m {
		m[i] = float32(i) - 8
	}
	p, err := EncodeMat4(m)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), p.Size())

	got, err := DecodeMat4(p)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestNewPayload(t *testing.T) {
	layout := ArrayLayout(FieldTypeU32, 4)
	p, err := NewPayload(layout, make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, uint64(16), p.Size())

	_, err = NewPayload(layout, make([]byte, 12))
	assert.Error(t, err)

	_, err = NewPayload(ArrayLayout(FieldTypeVec4F, 17), make([]byte, 272))
	var oversize *gpu_error.OversizeError
	assert.ErrorAs(t, err, &oversize)
}

func TestBytesIsACopy(t *testing.T) {
	p, err := EncodeScalar(uint32(5))
	require.NoError(t, err)

	b := p.Bytes()
	b[0] = 0xFF

	v, err := DecodeScalar[uint32](p)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)
}

func TestRecordWGSL(t *testing.T) {
	layout := RecordLayout(
		FieldLayout{Name: "time", Type: FieldTypeF32, Offset: 0},
		FieldLayout{Name: "color", Type: FieldTypeVec4F, Offset: 32},
	)
	require.NoError(t, layout.Validate())

	want := "struct Params {\n" +
		"    @size(32) time: f32,\n" +
		"    color: vec4<f32>,\n" +
		"}\n"
	assert.Equal(t, want, layout.WGSL("Params"))
}
