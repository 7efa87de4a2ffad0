package camera

import (
	"sync"

	"github.com/chewxy/math32"
)

// Orbit defaults.
const (
	DefaultRadius       float32 = 250
	DefaultElevation    float32 = math32.Pi / 6
	DefaultMinRadius    float32 = 20
	DefaultMaxRadius    float32 = 2000
	DefaultMinElevation float32 = 0.05
	DefaultMaxElevation float32 = math32.Pi/2 - 0.1
	DefaultOrbitSpeed   float32 = 0.03
	DefaultZoomSpeed    float32 = 15
	DefaultPanSpeed     float32 = 1
)

type orbitRig struct {
	mu     *sync.Mutex
	camera Camera

	target    [3]float32
	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32
	panSpeed   float32
}

// OrbitRig moves a Camera on a sphere around a target point. Every change is pushed to the camera
// through SetView, so the camera version tracks the rig.
type OrbitRig interface {
	// Camera returns the driven camera.
	Camera() Camera

	// Position returns the eye position derived from target, radius, azimuth and elevation.
	Position() [3]float32

	Target() [3]float32
	SetTarget(x, y, z float32)

	Radius() float32
	// SetRadius sets the distance from the target, clamped to the rig's radius limits.
	SetRadius(radius float32)
	// Zoom moves toward the target by delta × zoom speed. Positive delta zooms in.
	Zoom(delta float32)

	Azimuth() float32
	SetAzimuth(azimuth float32)
	Elevation() float32
	// SetElevation sets the angle above the horizontal plane, clamped to the rig's limits.
	SetElevation(elevation float32)

	OrbitLeft()
	OrbitRight()
	OrbitUp()
	OrbitDown()

	// PanRight slides target and eye along the camera's horizontal right axis.
	PanRight(delta float32)
	// PanUp slides target and eye along the camera's up axis.
	PanUp(delta float32)
}

var _ OrbitRig = &orbitRig{}

// NewOrbitRig attaches a rig to cam and immediately applies its position.
//
// Parameters:
//   - cam: the camera to drive
//   - opts: functional options to configure the rig
//
// Returns:
//   - OrbitRig: the rig
func NewOrbitRig(cam Camera, opts ...OrbitRigOption) OrbitRig {
	r := &orbitRig{
		mu:           &sync.Mutex{},
		camera:       cam,
		radius:       DefaultRadius,
		elevation:    DefaultElevation,
		minRadius:    DefaultMinRadius,
		maxRadius:    DefaultMaxRadius,
		minElevation: DefaultMinElevation,
		maxElevation: DefaultMaxElevation,
		orbitSpeed:   DefaultOrbitSpeed,
		zoomSpeed:    DefaultZoomSpeed,
		panSpeed:     DefaultPanSpeed,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.radius = clamp(r.radius, r.minRadius, r.maxRadius)
	r.elevation = clamp(r.elevation, r.minElevation, r.maxElevation)
	r.apply()
	return r
}

func (r *orbitRig) Camera() Camera {
	return r.camera
}

func (r *orbitRig) Position() [3]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position()
}

func (r *orbitRig) Target() [3]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *orbitRig) SetTarget(x, y, z float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = [3]float32{x, y, z}
	r.apply()
}

func (r *orbitRig) Radius() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.radius
}

func (r *orbitRig) SetRadius(radius float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.radius = clamp(radius, r.minRadius, r.maxRadius)
	r.apply()
}

func (r *orbitRig) Zoom(delta float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.radius = clamp(r.radius-delta*r.zoomSpeed, r.minRadius, r.maxRadius)
	r.apply()
}

func (r *orbitRig) Azimuth() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.azimuth
}

func (r *orbitRig) SetAzimuth(azimuth float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.azimuth = azimuth
	r.apply()
}

func (r *orbitRig) Elevation() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elevation
}

func (r *orbitRig) SetElevation(elevation float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elevation = clamp(elevation, r.minElevation, r.maxElevation)
	r.apply()
}

func (r *orbitRig) OrbitLeft() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.azimuth -= r.orbitSpeed
	r.apply()
}

func (r *orbitRig) OrbitRight() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.azimuth += r.orbitSpeed
	r.apply()
}

func (r *orbitRig) OrbitUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elevation = clamp(r.elevation+r.orbitSpeed, r.minElevation, r.maxElevation)
	r.apply()
}

func (r *orbitRig) OrbitDown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elevation = clamp(r.elevation-r.orbitSpeed, r.minElevation, r.maxElevation)
	r.apply()
}

func (r *orbitRig) PanRight(delta float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	right, _ := r.localAxes()
	offset := delta * r.panSpeed
	for i := range r.target {
		r.target[i] += right[i] * offset
	}
	r.apply()
}

func (r *orbitRig) PanUp(delta float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, up := r.localAxes()
	offset := delta * r.panSpeed
	for i := range r.target {
		r.target[i] += up[i] * offset
	}
	r.apply()
}

// position places the eye at target + radius × (cosE·sinA, sinE, cosE·cosA).
func (r *orbitRig) position() [3]float32 {
	sinA, cosA := math32.Sincos(r.azimuth)
	sinE, cosE := math32.Sincos(r.elevation)
	return [3]float32{
		r.target[0] + r.radius*cosE*sinA,
		r.target[1] + r.radius*sinE,
		r.target[2] + r.radius*cosE*cosA,
	}
}

// localAxes returns the camera's right and up axes for world up (0, 1, 0).
func (r *orbitRig) localAxes() (right, up [3]float32) {
	sinA, cosA := math32.Sincos(r.azimuth)
	sinE, cosE := math32.Sincos(r.elevation)

	// backward points from the target toward the eye
	back := [3]float32{cosE * sinA, sinE, cosE * cosA}
	right = [3]float32{cosA, 0, -sinA}
	up = [3]float32{
		back[1]*right[2] - back[2]*right[1],
		back[2]*right[0] - back[0]*right[2],
		back[0]*right[1] - back[1]*right[0],
	}
	return right, up
}

func (r *orbitRig) apply() {
	r.camera.SetView(r.position(), r.target, [3]float32{0, 1, 0})
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}
