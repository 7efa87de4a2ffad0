package game_object

import (
	"github.com/Carmen-Shannon/oxy-core/engine/model"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithLabel sets the name used in logs and draw item labels.
func WithLabel(label string) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.label = label
	}
}

// WithVisible sets whether the GameObject is drawn.
//
// Parameters:
//   - visible: true to draw the object, false to skip it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the visibility
func WithVisible(visible bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.visible.Store(visible)
	}
}

// WithMesh sets the geometry drawn for the GameObject.
//
// Parameters:
//   - m: the model to draw
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the model
func WithMesh(m model.Model) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.mdl = m
	}
}

// WithMaterial sets the material bound when the GameObject is drawn.
func WithMaterial(m material.Material) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.material = m
	}
}

// WithPipeline sets the pipeline the GameObject is drawn with.
func WithPipeline(p pipeline.Pipeline) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.pipeline = p
	}
}

// WithInstanceCount sets the number of instances drawn.
func WithInstanceCount(n uint32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.instanceCount = n
	}
}

// WithComposition selects the shape of the transform uniform. The default is
// CompositionSeparate.
//
// Parameters:
//   - c: the composition mode
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the composition mode
func WithComposition(c Composition) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.composition = c
	}
}

// WithPosition sets the initial position of the GameObject.
//
// Parameters:
//   - x: the x position
//   - y: the y position
//   - z: the z position
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the initial position
func WithPosition(x, y, z float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.position = [3]float32{x, y, z}
	}
}

// WithScale sets the initial scale of the GameObject.
//
// Parameters:
//   - sx: the x scale factor
//   - sy: the y scale factor
//   - sz: the z scale factor
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the initial scale
func WithScale(sx, sy, sz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.scale = [3]float32{sx, sy, sz}
	}
}

// WithRotation sets the initial rotation of the GameObject.
//
// Parameters:
//   - rx: the x rotation angle in radians
//   - ry: the y rotation angle in radians
//   - rz: the z rotation angle in radians
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the initial rotation
func WithRotation(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotation = [3]float32{rx, ry, rz}
	}
}

// WithRotationSpeed sets the spin applied by Advance.
//
// Parameters:
//   - rx: the x rotation speed in radians per second
//   - ry: the y rotation speed in radians per second
//   - rz: the z rotation speed in radians per second
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the initial rotation speed
func WithRotationSpeed(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotationSpeed = [3]float32{rx, ry, rz}
	}
}
