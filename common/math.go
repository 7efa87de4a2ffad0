package common

import (
	"unsafe"

	"github.com/chewxy/math32"
)

// Mat4 is a 4x4 float32 matrix stored in column-major order (WebGPU convention).
// Element (row r, column c) lives at index c*4+r.
type Mat4 = [16]float32

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// IdentityMat4 returns a new identity matrix.
//
// Returns:
//   - Mat4: the identity matrix
func IdentityMat4() Mat4 {
	var m Mat4
	Identity(m[:])
	return m
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order (OpenGL/WebGPU convention).
// Result: out = a * b, so b is applied to a vector first.
// out may alias a or b.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// MulVec4 transforms the column vector v by m.
//
// Parameters:
//   - m: column-major matrix
//   - v: the vector to transform
//
// Returns:
//   - [4]float32: m * v
func MulVec4(m Mat4, v [4]float32) [4]float32 {
	var out [4]float32
	for r := 0; r < 4; r++ {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// Perspective creates a perspective projection matrix mapping view-space depth
// into the WebGPU clip-space range [0, 1].
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := 1.0 / math32.Tan(fovY/2.0)
	Identity(out)

	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	out[15] = 0.0
}

// Orthographic creates an orthographic projection matrix mapping the given box
// into WebGPU clip space, with depth in [0, 1].
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - left, right: horizontal extents of the view volume
//   - bottom, top: vertical extents of the view volume
//   - near, far: depth extents of the view volume
func Orthographic(out []float32, left, right, bottom, top, near, far float32) {
	Identity(out)

	out[0] = 2 / (right - left)
	out[5] = 2 / (top - bottom)
	out[10] = 1 / (near - far)
	out[12] = -(right + left) / (right - left)
	out[13] = -(top + bottom) / (top - bottom)
	out[14] = near / (near - far)
}

// BuildModelMatrix constructs a 4x4 model matrix from position, Euler rotation, and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll). All matrices are column-major.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - pos: translation in world space
//   - rot: rotation angles in radians around the x, y and z axes
//   - scale: scale factors along each axis
func BuildModelMatrix(out []float32, pos, rot, scale [3]float32) {
	sx, cx := math32.Sincos(rot[0])
	sy, cy := math32.Sincos(rot[1])
	sz, cz := math32.Sincos(rot[2])

	// R = Ry * Rx * Rz, column-major
	out[0] = (cy*cz + sy*sx*sz) * scale[0]
	out[1] = (cx * sz) * scale[0]
	out[2] = (-sy*cz + cy*sx*sz) * scale[0]
	out[3] = 0

	out[4] = (cy*-sz + sy*sx*cz) * scale[1]
	out[5] = (cx * cz) * scale[1]
	out[6] = (sy*sz + cy*sx*cz) * scale[1]
	out[7] = 0

	out[8] = (sy * cx) * scale[2]
	out[9] = (-sx) * scale[2]
	out[10] = (cy * cx) * scale[2]
	out[11] = 0

	out[12] = pos[0]
	out[13] = pos[1]
	out[14] = pos[2]
	out[15] = 1
}

// Translate returns a translation matrix.
func Translate(x, y, z float32) Mat4 {
	m := IdentityMat4()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scale returns a non-uniform scale matrix.
func Scale(x, y, z float32) Mat4 {
	m := IdentityMat4()
	m[0], m[5], m[10] = x, y, z
	return m
}

// Rotate returns a rotation matrix of angle radians around an arbitrary axis.
// The axis does not need to be normalized. A zero-length axis yields the identity.
//
// Parameters:
//   - axis: the rotation axis
//   - angle: the rotation angle in radians, counter-clockwise looking down the axis
//
// Returns:
//   - Mat4: the rotation matrix
func Rotate(axis [3]float32, angle float32) Mat4 {
	l := math32.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if l == 0 {
		return IdentityMat4()
	}
	x, y, z := axis[0]/l, axis[1]/l, axis[2]/l
	s, c := math32.Sincos(angle)
	t := 1 - c

	return Mat4{
		t*x*x + c, t*x*y + s*z, t*x*z - s*y, 0,
		t*x*y - s*z, t*y*y + c, t*y*z + s*x, 0,
		t*x*z + s*y, t*y*z - s*x, t*z*z + c, 0,
		0, 0, 0, 1,
	}
}

// LookAt creates a view matrix that positions and orients the camera.
// The resulting matrix transforms world coordinates to view/camera space.
// Degenerate inputs (eye == center, or up parallel to the view direction) fall back
// to unit-length normalization rather than producing NaNs.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector defining camera orientation (typically 0,1,0)
func LookAt(out []float32, eye, center, up [3]float32) {
	z0 := eye[0] - center[0]
	z1 := eye[1] - center[1]
	z2 := eye[2] - center[2]
	invLen := invLength(z0, z1, z2)
	z0 *= invLen
	z1 *= invLen
	z2 *= invLen

	x0 := up[1]*z2 - up[2]*z1
	x1 := up[2]*z0 - up[0]*z2
	x2 := up[0]*z1 - up[1]*z0
	invLen = invLength(x0, x1, x2)
	x0 *= invLen
	x1 *= invLen
	x2 *= invLen

	y0 := z1*x2 - z2*x1
	y1 := z2*x0 - z0*x2
	y2 := z0*x1 - z1*x0

	out[0], out[4], out[8], out[12] = x0, x1, x2, -(x0*eye[0] + x1*eye[1] + x2*eye[2])
	out[1], out[5], out[9], out[13] = y0, y1, y2, -(y0*eye[0] + y1*eye[1] + y2*eye[2])
	out[2], out[6], out[10], out[14] = z0, z1, z2, -(z0*eye[0] + z1*eye[1] + z2*eye[2])
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

func invLength(x, y, z float32) float32 {
	val := x*x + y*y + z*z
	if val == 0 {
		val = 1
	}
	return 1.0 / math32.Sqrt(val)
}

// Radians converts degrees to radians.
func Radians(deg float32) float32 {
	return deg * math32.Pi / 180
}
