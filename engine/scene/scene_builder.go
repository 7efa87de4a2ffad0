package scene

import (
	"github.com/Carmen-Shannon/oxy-core/engine/game_object"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering. Scenes start active.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithObjects adds initial objects to the scene. Objects without IDs are assigned new IDs.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		s.pending = append(s.pending, objects...)
	}
}

// WithPipeline sets the pipeline used for objects that do not carry their own.
//
// Parameters:
//   - p: the default pipeline
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithPipeline(p pipeline.Pipeline) SceneBuilderOption {
	return func(s *scene) {
		s.pipeline = p
	}
}

// WithGroups sets the @group indices the transform and material bindings are bound at.
// The defaults are DefaultTransformGroup and DefaultMaterialGroup.
//
// Parameters:
//   - transform: the group of the object transform uniform
//   - material: the group of the object's material
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithGroups(transform, material uint32) SceneBuilderOption {
	return func(s *scene) {
		s.transformGroup = transform
		s.materialGroup = material
	}
}

// WithOffscreen routes the scene's items to the renderer's offscreen pass.
func WithOffscreen(offscreen bool) SceneBuilderOption {
	return func(s *scene) {
		s.offscreen = offscreen
	}
}

// WithComposeWorkers sets the number of worker goroutines Prepare composes on.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComposeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.composeWorkers = n
	}
}
