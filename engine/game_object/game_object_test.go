package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCamera(t *testing.T) camera.Camera {
	t.Helper()
	cam, err := camera.NewCamera(camera.WithEye(0, 2, 8), camera.WithAspect(4.0/3.0))
	require.NoError(t, err)
	return cam
}

func decodeMatrices(t *testing.T, p uniform.Payload) map[string][16]float32 {
	t.Helper()
	fields, err := uniform.DecodeRecord(p)
	require.NoError(t, err)
	out := make(map[string][16]float32, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value.([16]float32)
	}
	return out
}

func TestComposeSeparate(t *testing.T) {
	cam := newCamera(t)
	obj := NewGameObject(WithPosition(1, 2, 3), WithRotation(0, 0.5, 0), WithScale(2, 2, 2))

	p, err := obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), p.Size())
	assert.Equal(t, TransformLayout(CompositionSeparate), p.Layout())

	m := decodeMatrices(t, p)
	view, proj, _ := cam.Snapshot()
	assert.Equal(t, obj.ModelMatrix(), common.Mat4(m["model"]))
	assert.Equal(t, view, common.Mat4(m["view"]))
	assert.Equal(t, proj, common.Mat4(m["projection"]))

	var vp, want common.Mat4
	common.Mul4(vp[:], proj[:], view[:])
	model := obj.ModelMatrix()
	common.Mul4(want[:], vp[:], model[:])
	assert.Equal(t, want, common.Mat4(m["mvp"]))
}

func TestComposeProduct(t *testing.T) {
	cam := newCamera(t)
	obj := NewGameObject(WithComposition(CompositionProduct))

	p, err := obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), p.Size())
	assert.Equal(t, TransformLayout(CompositionProduct), p.Layout())

	mvp, err := uniform.DecodeMat4(p)
	require.NoError(t, err)
	assert.Equal(t, cam.ViewProjectionMatrix(), common.Mat4(mvp), "identity model")
}

func TestComposeIsCachedUntilSomethingChanges(t *testing.T) {
	cam := newCamera(t)
	obj := NewGameObject(WithPosition(0, 1, 0))

	first, err := obj.Compose(cam)
	require.NoError(t, err)
	second, err := obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes(), second.Bytes())
	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, obj.Compositions())

	cam.SetView([3]float32{0, 0, 10}, [3]float32{}, [3]float32{0, 1, 0})
	third, err := obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, 2, obj.Compositions())
	assert.False(t, third.Equal(second))

	obj.SetPosition(5, 0, 0)
	_, err = obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, 3, obj.Compositions())

	obj.SetModel([3]float32{5, 0, 0}, [3]float32{}, [3]float32{1, 1, 1})
	_, err = obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, 4, obj.Compositions(), "setters always mark dirty")

	other := newCamera(t)
	_, err = obj.Compose(other)
	require.NoError(t, err)
	assert.Equal(t, 5, obj.Compositions(), "switching cameras")
}

func TestComposeWithoutCamera(t *testing.T) {
	_, err := NewGameObject().Compose(nil)
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestModelMatrixPlacesOrigin(t *testing.T) {
	obj := NewGameObject()
	obj.SetModel([3]float32{4, 5, 6}, [3]float32{0.3, 1.2, -0.7}, [3]float32{1, 2, 3})
	p := common.MulVec4(obj.ModelMatrix(), [4]float32{0, 0, 0, 1})
	assert.Equal(t, [4]float32{4, 5, 6, 1}, p)
}

func TestAdvance(t *testing.T) {
	cam := newCamera(t)
	obj := NewGameObject()
	_, err := obj.Compose(cam)
	require.NoError(t, err)

	obj.Advance(0.5)
	_, err = obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, 1, obj.Compositions(), "no speed, no change")

	obj.SetRotationSpeed(0, 2, 0)
	obj.Advance(0.5)
	assert.Equal(t, [3]float32{0, 1, 0}, obj.Rotation())
	_, err = obj.Compose(cam)
	require.NoError(t, err)
	assert.Equal(t, 2, obj.Compositions())
}

func TestVisibilityAndInstances(t *testing.T) {
	obj := NewGameObject(WithVisible(false), WithInstanceCount(12), WithLabel("Crate"))
	assert.False(t, obj.Visible())
	obj.SetVisible(true)
	assert.True(t, obj.Visible())
	assert.Equal(t, uint32(12), obj.InstanceCount())
	assert.Equal(t, "Crate", obj.Label())
}
