// Package camera holds the view and projection half of the transform system.
package camera

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/chewxy/math32"
)

// Projection identifies the projection a Camera applies.
type Projection int

const (
	ProjectionPerspective Projection = iota
	ProjectionOrthographic
)

// String returns the name of the projection.
func (p Projection) String() string {
	switch p {
	case ProjectionPerspective:
		return "perspective"
	case ProjectionOrthographic:
		return "orthographic"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

// Camera defaults.
const (
	DefaultFov    float32 = math32.Pi / 4
	DefaultAspect float32 = 16.0 / 9.0
	DefaultNear   float32 = 0.1
	DefaultFar    float32 = 5000
)

type camera struct {
	mu *sync.Mutex

	eye    [3]float32
	target [3]float32
	up     [3]float32

	projection Projection
	fov        float32
	aspect     float32
	near       float32
	far        float32

	// orthographic extents
	left, right, bottom, top float32

	view     common.Mat4
	proj     common.Mat4
	viewProj common.Mat4

	version uint64
}

// Camera holds a view matrix and a projection matrix. Every mutation bumps Version, which
// drawables compare against to decide whether their composed transform is stale.
type Camera interface {
	// SetView positions the camera.
	//
	// Parameters:
	//   - eye: camera position in world space
	//   - target: the point the camera looks at
	//   - up: the up direction, typically (0, 1, 0)
	SetView(eye, target, up [3]float32)

	// SetPerspective switches to a perspective projection with WebGPU depth in [0, 1].
	//
	// Parameters:
	//   - fovY: vertical field of view in radians
	//   - aspect: width / height
	//   - near: near plane distance (> 0)
	//   - far: far plane distance (> near)
	//
	// Returns:
	//   - error: if the parameters describe an empty or inverted volume
	SetPerspective(fovY, aspect, near, far float32) error

	// SetOrthographic switches to an orthographic projection of the given box.
	//
	// Returns:
	//   - error: if any extent pair is empty
	SetOrthographic(left, right, bottom, top, near, far float32) error

	// SetAspect changes the aspect ratio while keeping the rest of the projection. An
	// orthographic box keeps its vertical extent and center and is widened or narrowed.
	//
	// Parameters:
	//   - aspect: width / height (> 0)
	SetAspect(aspect float32)

	Eye() [3]float32
	Target() [3]float32
	Up() [3]float32

	Projection() Projection
	Fov() float32
	Aspect() float32
	Near() float32
	Far() float32

	// ViewMatrix returns the column-major view matrix.
	ViewMatrix() common.Mat4

	// ProjectionMatrix returns the column-major projection matrix.
	ProjectionMatrix() common.Mat4

	// ViewProjectionMatrix returns ProjectionMatrix × ViewMatrix.
	ViewProjectionMatrix() common.Mat4

	// Snapshot returns the view and projection matrices together with the version they belong
	// to, read under one lock.
	//
	// Returns:
	//   - view: the view matrix
	//   - proj: the projection matrix
	//   - version: the camera version of both matrices
	Snapshot() (view, proj common.Mat4, version uint64)

	// Version returns a counter that changes whenever either matrix changes.
	Version() uint64
}

var _ Camera = &camera{}

// NewCamera creates a perspective camera at (0, 0, 5) looking at the origin.
//
// Parameters:
//   - opts: functional options to configure the camera
//
// Returns:
//   - Camera: the configured camera
//   - error: if the options describe an invalid projection
func NewCamera(opts ...CameraBuilderOption) (Camera, error) {
	c := &camera{
		mu:         &sync.Mutex{},
		eye:        [3]float32{0, 0, 5},
		up:         [3]float32{0, 1, 0},
		projection: ProjectionPerspective,
		fov:        DefaultFov,
		aspect:     DefaultAspect,
		near:       DefaultNear,
		far:        DefaultFar,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	c.updateView()
	c.updateProjection()
	c.version = 1
	return c, nil
}

func (c *camera) SetView(eye, target, up [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eye = eye
	c.target = target
	c.up = up
	c.updateView()
	c.version++
}

func (c *camera) SetPerspective(fovY, aspect, near, far float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c
	next.projection = ProjectionPerspective
	next.fov, next.aspect, next.near, next.far = fovY, aspect, near, far
	if err := next.validate(); err != nil {
		return err
	}

	c.projection = ProjectionPerspective
	c.fov, c.aspect, c.near, c.far = fovY, aspect, near, far
	c.updateProjection()
	c.version++
	return nil
}

func (c *camera) SetOrthographic(left, right, bottom, top, near, far float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c
	next.projection = ProjectionOrthographic
	next.left, next.right, next.bottom, next.top = left, right, bottom, top
	next.near, next.far = near, far
	if err := next.validate(); err != nil {
		return err
	}

	c.projection = ProjectionOrthographic
	c.left, c.right, c.bottom, c.top = left, right, bottom, top
	c.near, c.far = near, far
	c.aspect = (right - left) / (top - bottom)
	c.updateProjection()
	c.version++
	return nil
}

func (c *camera) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if aspect <= 0 || aspect == c.aspect {
		return
	}
	c.aspect = aspect
	if c.projection == ProjectionOrthographic {
		halfWidth := (c.top - c.bottom) * aspect / 2
		center := (c.left + c.right) / 2
		c.left, c.right = center-halfWidth, center+halfWidth
	}
	c.updateProjection()
	c.version++
}

func (c *camera) Eye() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eye
}

func (c *camera) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *camera) Up() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *camera) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *camera) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *camera) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *camera) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *camera) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *camera) ViewMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *camera) ProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proj
}

func (c *camera) ViewProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProj
}

func (c *camera) Snapshot() (view, proj common.Mat4, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.proj, c.version
}

func (c *camera) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *camera) validate() error {
	switch c.projection {
	case ProjectionPerspective:
		if c.fov <= 0 || c.fov >= math32.Pi {
			return fmt.Errorf("camera: field of view %v out of range (0, pi)", c.fov)
		}
		if c.aspect <= 0 {
			return fmt.Errorf("camera: aspect %v must be positive", c.aspect)
		}
		if c.near <= 0 || c.far <= c.near {
			return fmt.Errorf("camera: invalid depth range near=%v far=%v", c.near, c.far)
		}
	case ProjectionOrthographic:
		if c.left == c.right || c.bottom == c.top || c.near == c.far {
			return fmt.Errorf("camera: empty orthographic volume")
		}
	default:
		return fmt.Errorf("camera: unknown projection %v", c.projection)
	}
	return nil
}

func (c *camera) updateView() {
	common.LookAt(c.view[:], c.eye, c.target, c.up)
	common.Mul4(c.viewProj[:], c.proj[:], c.view[:])
}

func (c *camera) updateProjection() {
	switch c.projection {
	case ProjectionOrthographic:
		common.Orthographic(c.proj[:], c.left, c.right, c.bottom, c.top, c.near, c.far)
	default:
		common.Perspective(c.proj[:], c.fov, c.aspect, c.near, c.far)
	}
	common.Mul4(c.viewProj[:], c.proj[:], c.view[:])
}
