package camera

// OrbitRigOption is a functional option for configuring an OrbitRig.
type OrbitRigOption func(*orbitRig)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - OrbitRigOption: functional option to set the radius
func WithRadius(radius float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - OrbitRigOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - OrbitRigOption: functional option to set the elevation
func WithElevation(elevation float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.elevation = elevation
	}
}

// WithOrbitTarget sets the pivot point.
func WithOrbitTarget(x, y, z float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.target = [3]float32{x, y, z}
	}
}

// WithRadiusLimits sets the zoom clamp.
//
// Parameters:
//   - minRadius: closest allowed distance
//   - maxRadius: farthest allowed distance
//
// Returns:
//   - OrbitRigOption: functional option to set the radius limits
func WithRadiusLimits(minRadius, maxRadius float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.minRadius = minRadius
		r.maxRadius = maxRadius
	}
}

// WithElevationLimits sets the vertical clamp in radians.
func WithElevationLimits(minElevation, maxElevation float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.minElevation = minElevation
		r.maxElevation = maxElevation
	}
}

// WithOrbitSpeed sets the angle in radians applied per Orbit* call.
func WithOrbitSpeed(speed float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the distance moved per unit of Zoom delta.
func WithZoomSpeed(speed float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.zoomSpeed = speed
	}
}

// WithPanSpeed sets the distance moved per unit of Pan* delta.
func WithPanSpeed(speed float32) OrbitRigOption {
	return func(r *orbitRig) {
		r.panSpeed = speed
	}
}
