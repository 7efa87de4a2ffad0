package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-4

func TestNewCameraDefaults(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)

	assert.Equal(t, ProjectionPerspective, cam.Projection())
	assert.Equal(t, uint64(1), cam.Version())
	assert.Equal(t, [3]float32{0, 0, 5}, cam.Eye())

	f := 1 / math32.Tan(DefaultFov/2)
	proj := cam.ProjectionMatrix()
	assert.InDelta(t, f/DefaultAspect, proj[0], eps)
	assert.InDelta(t, f, proj[5], eps)
	assert.Equal(t, float32(-1), proj[11])
}

func TestViewMovesTargetDownNegativeZ(t *testing.T) {
	cam, err := NewCamera(WithEye(0, 0, 5))
	require.NoError(t, err)

	p := common.MulVec4(cam.ViewMatrix(), [4]float32{0, 0, 0, 1})
	assert.InDelta(t, 0, p[0], eps)
	assert.InDelta(t, 0, p[1], eps)
	assert.InDelta(t, -5, p[2], eps)
	assert.InDelta(t, 1, p[3], eps)
}

func TestPerspectiveDepthIsZeroToOne(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)
	require.NoError(t, cam.SetPerspective(math32.Pi/3, 1, 1, 100))

	proj := cam.ProjectionMatrix()
	near := common.MulVec4(proj, [4]float32{0, 0, -1, 1})
	far := common.MulVec4(proj, [4]float32{0, 0, -100, 1})
	assert.InDelta(t, 0, near[2]/near[3], eps)
	assert.InDelta(t, 1, far[2]/far[3], eps)
}

func TestViewProjectionIsProjectionTimesView(t *testing.T) {
	cam, err := NewCamera(WithEye(3, 4, 5), WithTarget(0, 1, 0))
	require.NoError(t, err)

	view, proj, version := cam.Snapshot()
	assert.Equal(t, cam.Version(), version)

	var want common.Mat4
	common.Mul4(want[:], proj[:], view[:])
	assert.Equal(t, want, cam.ViewProjectionMatrix())
}

func TestVersionTracksEveryChange(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)
	v := cam.Version()

	cam.SetView([3]float32{1, 1, 1}, [3]float32{}, [3]float32{0, 1, 0})
	assert.Equal(t, v+1, cam.Version())

	require.NoError(t, cam.SetPerspective(1, 2, 0.5, 50))
	assert.Equal(t, v+2, cam.Version())

	cam.SetAspect(2)
	assert.Equal(t, v+2, cam.Version(), "same aspect")

	cam.SetAspect(1.5)
	assert.Equal(t, v+3, cam.Version())
}

func TestInvalidProjectionIsRejected(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)
	v := cam.Version()
	before := cam.ProjectionMatrix()

	tests := []struct {
		name string
		set  func() error
	}{
		{"zero fov", func() error { return cam.SetPerspective(0, 1, 0.1, 10) }},
		{"zero aspect", func() error { return cam.SetPerspective(1, 0, 0.1, 10) }},
		{"far before near", func() error { return cam.SetPerspective(1, 1, 10, 1) }},
		{"flat box", func() error { return cam.SetOrthographic(1, 1, -1, 1, 0, 10) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.set())
		})
	}

	assert.Equal(t, v, cam.Version())
	assert.Equal(t, before, cam.ProjectionMatrix())
	assert.Equal(t, ProjectionPerspective, cam.Projection())

	_, err = NewCamera(WithNear(0))
	assert.Error(t, err)
}

func TestOrthographicAspectKeepsHeight(t *testing.T) {
	cam, err := NewCamera(WithOrthographic(-2, 2, -1, 1, 0.1, 100))
	require.NoError(t, err)
	assert.Equal(t, ProjectionOrthographic, cam.Projection())
	assert.InDelta(t, 2, cam.Aspect(), eps)

	cam.SetAspect(4)
	proj := cam.ProjectionMatrix()
	assert.InDelta(t, 2.0/8.0, proj[0], eps)
	assert.InDelta(t, 1, proj[5], eps)

	edge := common.MulVec4(proj, [4]float32{4, 1, -0.1, 1})
	assert.InDelta(t, 1, edge[0], eps)
	assert.InDelta(t, 1, edge[1], eps)
	assert.InDelta(t, 0, edge[2], eps)
}

func TestOrbitRigDrivesTheCamera(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)
	v := cam.Version()

	rig := NewOrbitRig(cam,
		WithOrbitTarget(1, 2, 3),
		WithRadius(10),
		WithElevationLimits(0, 1),
		WithElevation(0),
	)
	assert.Greater(t, cam.Version(), v)

	eye := cam.Eye()
	assert.InDelta(t, 1, eye[0], eps)
	assert.InDelta(t, 2, eye[1], eps)
	assert.InDelta(t, 13, eye[2], eps)
	assert.Equal(t, [3]float32{1, 2, 3}, cam.Target())

	rig.SetAzimuth(math32.Pi / 2)
	eye = cam.Eye()
	assert.InDelta(t, 11, eye[0], eps)
	assert.InDelta(t, 3, eye[2], eps)
}

func TestOrbitRigClamps(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)
	rig := NewOrbitRig(cam, WithRadius(100), WithRadiusLimits(50, 150), WithZoomSpeed(10))

	rig.Zoom(100)
	assert.Equal(t, float32(50), rig.Radius())
	rig.SetRadius(1000)
	assert.Equal(t, float32(150), rig.Radius())

	for range 200 {
		rig.OrbitUp()
	}
	assert.Equal(t, DefaultMaxElevation, rig.Elevation())
	rig.SetElevation(-1)
	assert.Equal(t, DefaultMinElevation, rig.Elevation())
}

func TestOrbitRigPan(t *testing.T) {
	cam, err := NewCamera()
	require.NoError(t, err)
	rig := NewOrbitRig(cam, WithElevationLimits(0, 1), WithElevation(0), WithPanSpeed(2))

	rig.PanRight(1)
	target := rig.Target()
	assert.InDelta(t, 2, target[0], eps)
	assert.InDelta(t, 0, target[2], eps)

	rig.PanUp(1)
	target = rig.Target()
	assert.InDelta(t, 2, target[1], eps)
	assert.Equal(t, target, cam.Target())

	pos := rig.Position()
	assert.InDelta(t, pos[0], cam.Eye()[0], eps)
}
