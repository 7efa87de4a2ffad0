package gpu_error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	cause := errors.New("outdated")
	lost := fmt.Errorf("present: %w", &SurfaceLostError{Reason: "resize", Err: cause})
	assert.True(t, IsSurfaceLost(lost))
	assert.False(t, IsDeviceLost(lost))
	assert.ErrorIs(t, lost, cause)
	assert.Equal(t, "present: surface lost: resize: outdated", lost.Error())

	dead := fmt.Errorf("submit: %w", &DeviceLostError{Reason: "driver reset"})
	assert.True(t, IsDeviceLost(dead))
	assert.False(t, IsBuildError(dead))
}

func TestIsBuildError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "oversize", err: &OversizeError{Size: 272, Limit: UniformSizeLimit}, want: true},
		{name: "alignment", err: &AlignmentError{Field: "color", Offset: 4, Align: 16}, want: true},
		{name: "compile", err: fmt.Errorf("build: %w", &ShaderCompileError{Label: "cube"}), want: true},
		{name: "layout", err: &LayoutMismatchError{Label: "cube", Detail: "location 3"}, want: true},
		{name: "slot kind", err: &SlotKindMismatchError{Group: 0, Slot: 1, Declared: "uniform", Got: "texture"}, want: false},
		{name: "surface lost", err: &SurfaceLostError{Reason: "resize"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBuildError(tt.err))
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "uniform payload of 272 bytes exceeds the 256 byte limit",
		(&OversizeError{Size: 272, Limit: UniformSizeLimit}).Error())
	assert.Equal(t, `field "color" at offset 4 is not aligned to 16 bytes`,
		(&AlignmentError{Field: "color", Offset: 4, Align: 16}).Error())
	assert.Equal(t, `field "count" at offset 0: expected u32`,
		(&AlignmentError{Field: "count", Reason: "expected u32"}).Error())
	assert.Equal(t, "slot (0, 1) is declared as uniform but received texture",
		(&SlotKindMismatchError{Group: 0, Slot: 1, Declared: "uniform", Got: "texture"}).Error())
}
