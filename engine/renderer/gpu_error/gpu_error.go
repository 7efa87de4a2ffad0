// Package gpu_error defines the typed failures raised by the rendering core.
//
// Build-time errors (OversizeError, AlignmentError, ShaderCompileError, LayoutMismatchError)
// are returned before any frame is recorded and indicate a programming error.
// SlotKindMismatchError is isolated to a single draw item when it surfaces mid-frame.
// SurfaceLostError is recovered automatically by reconfiguring the surface and skipping the frame.
// DeviceLostError is fatal.
package gpu_error

import (
	"errors"
	"fmt"
)

// UniformSizeLimit is the hard cap, in bytes, on a single uniform payload.
const UniformSizeLimit = 256

// OversizeError reports a uniform payload whose computed layout exceeds its limit.
type OversizeError struct {
	// Size is the computed size of the rejected payload in bytes, including padding.
	Size uint64
	// Limit is the maximum allowed size in bytes.
	Limit uint64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("uniform payload of %d bytes exceeds the %d byte limit", e.Size, e.Limit)
}

// AlignmentError reports a record field placed at an offset the backend cannot address,
// or a field whose value does not match its declared type.
type AlignmentError struct {
	Field  string
	Offset uint64
	Align  uint64
	Reason string
}

func (e *AlignmentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("field %q at offset %d: %s", e.Field, e.Offset, e.Reason)
	}
	return fmt.Sprintf("field %q at offset %d is not aligned to %d bytes", e.Field, e.Offset, e.Align)
}

// SlotKindMismatchError reports an update or declaration whose resource kind disagrees
// with the kind the slot was first declared with.
type SlotKindMismatchError struct {
	Group    int
	Slot     int
	Declared string
	Got      string
}

func (e *SlotKindMismatchError) Error() string {
	return fmt.Sprintf("slot (%d, %d) is declared as %s but received %s", e.Group, e.Slot, e.Declared, e.Got)
}

// ShaderCompileError carries the compiler diagnostics for a shader program that failed to build.
// Diagnostics holds the compiler message verbatim.
type ShaderCompileError struct {
	Label       string
	Diagnostics string
	Err         error
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("shader %q failed to compile: %s", e.Label, e.Diagnostics)
}

func (e *ShaderCompileError) Unwrap() error {
	return e.Err
}

// LayoutMismatchError reports a vertex location or resource binding referenced by a shader
// that the declared layouts do not provide.
type LayoutMismatchError struct {
	Label  string
	Detail string
}

func (e *LayoutMismatchError) Error() string {
	return fmt.Sprintf("pipeline %q layout mismatch: %s", e.Label, e.Detail)
}

// SurfaceLostError reports that the presentation surface must be reconfigured before it can
// produce another frame, typically after a resize.
type SurfaceLostError struct {
	Reason string
	Err    error
}

func (e *SurfaceLostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("surface lost: %s: %v", e.Reason, e.Err)
	}
	return "surface lost: " + e.Reason
}

func (e *SurfaceLostError) Unwrap() error {
	return e.Err
}

// DeviceLostError reports that the GPU device can no longer accept work. All GPU resident
// state is invalid once this is returned.
type DeviceLostError struct {
	Reason string
	Err    error
}

func (e *DeviceLostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device lost: %s: %v", e.Reason, e.Err)
	}
	return "device lost: " + e.Reason
}

func (e *DeviceLostError) Unwrap() error {
	return e.Err
}

// IsSurfaceLost reports whether err wraps a SurfaceLostError.
func IsSurfaceLost(err error) bool {
	var target *SurfaceLostError
	return errors.As(err, &target)
}

// IsDeviceLost reports whether err wraps a DeviceLostError.
func IsDeviceLost(err error) bool {
	var target *DeviceLostError
	return errors.As(err, &target)
}

// IsBuildError reports whether err is one of the build-time failures that must be fixed
// in code rather than retried.
func IsBuildError(err error) bool {
	var (
		oversize  *OversizeError
		alignment *AlignmentError
		compile   *ShaderCompileError
		layout    *LayoutMismatchError
	)
	return errors.As(err, &oversize) || errors.As(err, &alignment) ||
		errors.As(err, &compile) || errors.As(err, &layout)
}
