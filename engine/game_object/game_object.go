// Package game_object holds the model half of the transform system: a drawable with a translation,
// Euler rotation and scale that composes its MVP uniform against a camera.
package game_object

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/model"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
)

// ErrNoCamera is returned by Compose when called without a camera.
var ErrNoCamera = errors.New("compose needs a camera")

// Composition selects the shape of the composed transform uniform.
type Composition int

const (
	// CompositionSeparate uploads {model, view, projection, mvp}, 256 bytes.
	CompositionSeparate Composition = iota
	// CompositionProduct uploads only mvp, 64 bytes.
	CompositionProduct
)

func (c Composition) String() string {
	switch c {
	case CompositionSeparate:
		return "separate"
	case CompositionProduct:
		return "product"
	default:
		return fmt.Sprintf("Composition(%d)", int(c))
	}
}

// Byte offsets of the matrices in a CompositionSeparate record.
const (
	OffsetModel      = 0
	OffsetView       = 64
	OffsetProjection = 128
	OffsetMVP        = 192
)

// TransformLayout returns the uniform layout Compose produces for a composition mode. Pass it to
// Layout.WGSL to declare the matching struct in a shader.
//
// Parameters:
//   - c: the composition mode
//
// Returns:
//   - uniform.Layout: the record layout
func TransformLayout(c Composition) uniform.Layout {
	if c == CompositionProduct {
		return uniform.RecordLayout(uniform.FieldLayout{Name: "mvp", Type: uniform.FieldTypeMat4F})
	}
	return uniform.RecordLayout(
		uniform.FieldLayout{Name: "model", Type: uniform.FieldTypeMat4F, Offset: OffsetModel},
		uniform.FieldLayout{Name: "view", Type: uniform.FieldTypeMat4F, Offset: OffsetView},
		uniform.FieldLayout{Name: "projection", Type: uniform.FieldTypeMat4F, Offset: OffsetProjection},
		uniform.FieldLayout{Name: "mvp", Type: uniform.FieldTypeMat4F, Offset: OffsetMVP},
	)
}

type gameObject struct {
	mu *sync.Mutex

	id      uint64
	label   string
	visible atomic.Bool

	mdl           model.Model
	material      material.Material
	pipeline      pipeline.Pipeline
	instanceCount uint32
	composition   Composition

	position      [3]float32
	rotation      [3]float32
	scale         [3]float32
	rotationSpeed [3]float32

	dirty       bool
	modelMatrix common.Mat4

	composed      bool
	payload       uniform.Payload
	lastCamera    camera.Camera
	cameraVersion uint64
	compositions  int
}

// GameObject is a drawable. It owns a model transform and caches the uniform payload composed from
// it and a camera. The payload is only recomputed when the transform changed or the camera's
// version moved on since the last Compose.
type GameObject interface {
	// ID returns the object's identifier.
	//
	// Returns:
	//   - uint64: the object ID
	ID() uint64

	// SetID sets the object's identifier.
	SetID(id uint64)

	// Label returns the name used in logs and draw item labels.
	Label() string

	// Visible reports whether the object is drawn.
	Visible() bool

	// SetVisible shows or hides the object. Hidden objects are neither composed nor drawn.
	SetVisible(visible bool)

	// Model returns the geometry drawn for this object, or nil.
	Model() model.Model

	// SetMesh assigns the geometry drawn for this object.
	SetMesh(m model.Model)

	// Material returns the material bound for this object, or nil.
	Material() material.Material

	// SetMaterial assigns the material bound for this object.
	SetMaterial(m material.Material)

	// Pipeline returns the pipeline the object is drawn with, or nil to use the scene default.
	Pipeline() pipeline.Pipeline

	// SetPipeline assigns the pipeline the object is drawn with.
	SetPipeline(p pipeline.Pipeline)

	// InstanceCount returns the number of instances drawn. Zero draws one.
	InstanceCount() uint32

	// SetInstanceCount sets the number of instances drawn.
	SetInstanceCount(n uint32)

	// Composition returns the composition mode of the object's transform uniform.
	Composition() Composition

	// SetModel replaces the whole model transform.
	//
	// Parameters:
	//   - translation: the world position
	//   - rotation: Euler angles in radians around x, y and z, applied as Y * X * Z
	//   - scale: per-axis scale factors
	SetModel(translation, rotation, scale [3]float32)

	// Position returns the translation.
	Position() [3]float32

	// SetPosition sets the translation.
	SetPosition(x, y, z float32)

	// Rotation returns the Euler rotation in radians.
	Rotation() [3]float32

	// SetRotation sets the Euler rotation in radians.
	SetRotation(rx, ry, rz float32)

	// Scale returns the per-axis scale.
	Scale() [3]float32

	// SetScale sets the per-axis scale.
	SetScale(sx, sy, sz float32)

	// RotationSpeed returns the spin applied by Advance, in radians per second.
	RotationSpeed() [3]float32

	// SetRotationSpeed sets the spin applied by Advance, in radians per second.
	SetRotationSpeed(rx, ry, rz float32)

	// Advance applies the rotation speed over dt seconds. A zero speed leaves the object clean.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Advance(dt float32)

	// ModelMatrix returns the column-major model matrix.
	ModelMatrix() common.Mat4

	// Compose returns the transform uniform for cam. The result is cached: when neither the
	// transform nor the camera changed since the last call the identical payload is returned.
	//
	// Parameters:
	//   - cam: the camera to compose against
	//
	// Returns:
	//   - uniform.Payload: the transform record described by TransformLayout(Composition())
	//   - error: ErrNoCamera, or an encoding error
	Compose(cam camera.Camera) (uniform.Payload, error)

	// Compositions returns how many times Compose recomputed the payload.
	Compositions() int
}

var _ GameObject = &gameObject{}

// NewGameObject creates a visible object at the origin with unit scale.
//
// Parameters:
//   - options: a variadic list of GameObjectBuilderOption functions
//
// Returns:
//   - GameObject: the new object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		mu:    &sync.Mutex{},
		label: "Game Object",
		scale: [3]float32{1, 1, 1},
		dirty: true,
	}
	obj.visible.Store(true)
	for _, option := range options {
		option(obj)
	}
	return obj
}

func (g *gameObject) ID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *gameObject) SetID(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

func (g *gameObject) Label() string {
	return g.label
}

func (g *gameObject) Visible() bool {
	return g.visible.Load()
}

func (g *gameObject) SetVisible(visible bool) {
	g.visible.Store(visible)
}

func (g *gameObject) Model() model.Model {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mdl
}

func (g *gameObject) SetMesh(m model.Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mdl = m
}

func (g *gameObject) Material() material.Material {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.material
}

func (g *gameObject) SetMaterial(m material.Material) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.material = m
}

func (g *gameObject) Pipeline() pipeline.Pipeline {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pipeline
}

func (g *gameObject) SetPipeline(p pipeline.Pipeline) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pipeline = p
}

func (g *gameObject) InstanceCount() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.instanceCount
}

func (g *gameObject) SetInstanceCount(n uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instanceCount = n
}

func (g *gameObject) Composition() Composition {
	return g.composition
}

func (g *gameObject) SetModel(translation, rotation, scale [3]float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position, g.rotation, g.scale = translation, rotation, scale
	g.dirty = true
}

func (g *gameObject) Position() [3]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position = [3]float32{x, y, z}
	g.dirty = true
}

func (g *gameObject) Rotation() [3]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotation
}

func (g *gameObject) SetRotation(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = [3]float32{rx, ry, rz}
	g.dirty = true
}

func (g *gameObject) Scale() [3]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scale
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = [3]float32{sx, sy, sz}
	g.dirty = true
}

func (g *gameObject) RotationSpeed() [3]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotationSpeed
}

func (g *gameObject) SetRotationSpeed(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = [3]float32{rx, ry, rz}
}

func (g *gameObject) Advance(dt float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rotationSpeed == [3]float32{} || dt == 0 {
		return
	}
	for i := range g.rotation {
		g.rotation[i] += g.rotationSpeed[i] * dt
	}
	g.dirty = true
}

func (g *gameObject) ModelMatrix() common.Mat4 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dirty {
		common.BuildModelMatrix(g.modelMatrix[:], g.position, g.rotation, g.scale)
	}
	return g.modelMatrix
}

func (g *gameObject) Compose(cam camera.Camera) (uniform.Payload, error) {
	if cam == nil {
		return uniform.Payload{}, ErrNoCamera
	}
	view, proj, version := cam.Snapshot()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.composed && !g.dirty && g.lastCamera == cam && g.cameraVersion == version {
		return g.payload, nil
	}

	if g.dirty {
		common.BuildModelMatrix(g.modelMatrix[:], g.position, g.rotation, g.scale)
	}
	var vp, mvp common.Mat4
	common.Mul4(vp[:], proj[:], view[:])
	common.Mul4(mvp[:], vp[:], g.modelMatrix[:])

	var (
		p   uniform.Payload
		err error
	)
	switch g.composition {
	case CompositionProduct:
		p, err = uniform.EncodeRecord(uniform.Field{Name: "mvp", Type: uniform.FieldTypeMat4F, Value: mvp})
	default:
		p, err = uniform.EncodeRecord(
			uniform.Field{Name: "model", Type: uniform.FieldTypeMat4F, Offset: OffsetModel, Value: g.modelMatrix},
			uniform.Field{Name: "view", Type: uniform.FieldTypeMat4F, Offset: OffsetView, Value: view},
			uniform.Field{Name: "projection", Type: uniform.FieldTypeMat4F, Offset: OffsetProjection, Value: proj},
			uniform.Field{Name: "mvp", Type: uniform.FieldTypeMat4F, Offset: OffsetMVP, Value: mvp},
		)
	}
	if err != nil {
		return uniform.Payload{}, fmt.Errorf("object %q: compose: %w", g.label, err)
	}

	g.payload = p
	g.composed = true
	g.dirty = false
	g.lastCamera = cam
	g.cameraVersion = version
	g.compositions++
	return p, nil
}

func (g *gameObject) Compositions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compositions
}
