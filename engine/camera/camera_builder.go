package camera

// CameraBuilderOption is a functional option for configuring a Camera created with NewCamera.
type CameraBuilderOption func(*camera)

// WithEye sets the initial camera position.
//
// Parameters:
//   - x: X coordinate of the eye
//   - y: Y coordinate of the eye
//   - z: Z coordinate of the eye
//
// Returns:
//   - CameraBuilderOption: functional option to set the eye position
func WithEye(x, y, z float32) CameraBuilderOption {
	return func(c *camera) {
		c.eye = [3]float32{x, y, z}
	}
}

// WithTarget sets the initial look-at point.
//
// Parameters:
//   - x: X coordinate of the target
//   - y: Y coordinate of the target
//   - z: Z coordinate of the target
//
// Returns:
//   - CameraBuilderOption: functional option to set the target
func WithTarget(x, y, z float32) CameraBuilderOption {
	return func(c *camera) {
		c.target = [3]float32{x, y, z}
	}
}

// WithUp sets the camera's up vector.
//
// Parameters:
//   - x: X component of the up vector
//   - y: Y component of the up vector
//   - z: Z component of the up vector
//
// Returns:
//   - CameraBuilderOption: functional option to set the up vector
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *camera) {
		c.up = [3]float32{x, y, z}
	}
}

// WithFov sets the vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: functional option to set the FOV
func WithFov(fov float32) CameraBuilderOption {
	return func(c *camera) {
		c.fov = fov
	}
}

// WithAspect sets the aspect ratio (width / height).
//
// Parameters:
//   - aspect: aspect ratio value
//
// Returns:
//   - CameraBuilderOption: functional option to set the aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *camera) {
		c.aspect = aspect
	}
}

// WithNear sets the near clipping plane distance.
//
// Parameters:
//   - near: near plane distance
//
// Returns:
//   - CameraBuilderOption: functional option to set the near plane
func WithNear(near float32) CameraBuilderOption {
	return func(c *camera) {
		c.near = near
	}
}

// WithFar sets the far clipping plane distance.
//
// Parameters:
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: functional option to set the far plane
func WithFar(far float32) CameraBuilderOption {
	return func(c *camera) {
		c.far = far
	}
}

// WithOrthographic starts the camera with an orthographic projection of the given box.
// The aspect ratio is derived from the box.
func WithOrthographic(left, right, bottom, top, near, far float32) CameraBuilderOption {
	return func(c *camera) {
		c.projection = ProjectionOrthographic
		c.left, c.right, c.bottom, c.top = left, right, bottom, top
		c.near, c.far = near, far
		if top != bottom {
			c.aspect = (right - left) / (top - bottom)
		}
	}
}
