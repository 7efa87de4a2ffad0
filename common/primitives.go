package common

import "github.com/chewxy/math32"

// MeshData is CPU-side geometry ready for upload. A nil Indices slice means the
// mesh is drawn non-indexed, three vertices per triangle.
// Triangles wind counter-clockwise when viewed from outside.
type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

// Indexed reports whether the mesh carries an index list.
func (m MeshData) Indexed() bool {
	return len(m.Indices) > 0
}

// Unindexed expands an indexed mesh into a flat triangle list.
// A mesh that is already non-indexed is returned unchanged.
//
// Returns:
//   - MeshData: the expanded mesh with nil Indices
func (m MeshData) Unindexed() MeshData {
	if !m.Indexed() {
		return m
	}
	out := make([]Vertex, len(m.Indices))
	for i, idx := range m.Indices {
		out[i] = m.Vertices[idx]
	}
	return MeshData{Vertices: out}
}

// FlipUVY inverts the v texture coordinate of every vertex in place.
func (m MeshData) FlipUVY() {
	for i := range m.Vertices {
		m.Vertices[i].UV[1] = 1 - m.Vertices[i].UV[1]
	}
}

// Rect builds a width x height quad in the XY plane at depth z, facing +Z.
//
// Parameters:
//   - width, height: the quad extent
//   - z: the quad depth
//
// Returns:
//   - MeshData: four vertices and six indices
func Rect(width, height, z float32) MeshData {
	w, h := width/2, height/2
	n := [3]float32{0, 0, 1}
	return MeshData{
		Vertices: []Vertex{
			{Position: [3]float32{-w, -h, z}, UV: [2]float32{0, 1}, Normal: n},
			{Position: [3]float32{w, -h, z}, UV: [2]float32{1, 1}, Normal: n},
			{Position: [3]float32{w, h, z}, UV: [2]float32{1, 0}, Normal: n},
			{Position: [3]float32{-w, h, z}, UV: [2]float32{0, 0}, Normal: n},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// RegularPolygon builds a flat n-sided polygon fan of the given radius in the XY plane.
// The result is non-indexed, one triangle per side.
//
// Parameters:
//   - radius: the circumscribed radius
//   - sides: the number of sides (at least 3)
//   - z: the polygon depth
//
// Returns:
//   - MeshData: the triangle list
func RegularPolygon(radius float32, sides int, z float32) MeshData {
	if sides < 3 {
		sides = 3
	}
	n := [3]float32{0, 0, 1}
	verts := make([]Vertex, 0, sides*3)
	for i := 0; i < sides; i++ {
		s0, c0 := math32.Sincos(2 * math32.Pi * float32(i) / float32(sides))
		s1, c1 := math32.Sincos(2 * math32.Pi * float32(i+1) / float32(sides))
		verts = append(verts,
			Vertex{Position: [3]float32{c0 * radius, s0 * radius, z}, UV: [2]float32{(1 + c0) / 2, 1 - (1+s0)/2}, Normal: n},
			Vertex{Position: [3]float32{c1 * radius, s1 * radius, z}, UV: [2]float32{(1 + c1) / 2, 1 - (1+s1)/2}, Normal: n},
			Vertex{Position: [3]float32{0, 0, z}, UV: [2]float32{0.5, 0.5}, Normal: n},
		)
	}
	return MeshData{Vertices: verts}
}

// Torus2D builds a flat ring between innerRadius and outerRadius in the XY plane.
//
// Parameters:
//   - outerRadius, innerRadius: the ring radii
//   - sides: the number of segments around the ring (at least 3)
//   - z: the ring depth
//
// Returns:
//   - MeshData: the indexed ring
func Torus2D(outerRadius, innerRadius float32, sides int, z float32) MeshData {
	if sides < 3 {
		sides = 3
	}
	dr := innerRadius / outerRadius
	n := [3]float32{0, 0, 1}
	verts := make([]Vertex, 0, sides*2)
	for i := 0; i < sides; i++ {
		s, c := math32.Sincos(2 * math32.Pi * float32(i) / float32(sides))
		verts = append(verts,
			Vertex{Position: [3]float32{c * outerRadius, s * outerRadius, z}, UV: [2]float32{(1 + c) / 2, (1 + s) / 2}, Normal: n},
			Vertex{Position: [3]float32{c * innerRadius, s * innerRadius, z}, UV: [2]float32{(1 + dr*c) / 2, (1 + dr*s) / 2}, Normal: n},
		)
	}
	idx := make([]uint32, 0, sides*6)
	count := uint32(len(verts))
	for i := 0; i < sides; i++ {
		o0 := uint32(i * 2)
		i0 := o0 + 1
		o1 := (o0 + 2) % count
		i1 := (o0 + 3) % count
		idx = append(idx, o0, o1, i0, i0, o1, i1)
	}
	return MeshData{Vertices: verts, Indices: idx}
}

// cubeFaces lists each cube face as its outward normal plus the two in-plane axes
// (u to the right, v upward) used to place its corners.
var cubeFaces = [6]struct {
	normal, u, v [3]float32
}{
	{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},   // front
	{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [3]float32{0, 1, 0}}, // back
	{[3]float32{1, 0, 0}, [3]float32{0, 0, -1}, [3]float32{0, 1, 0}},  // right
	{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},  // left
	{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, -1}},  // top
	{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},  // bottom
}

// Cube builds an axis-aligned box centered at the origin with per-face normals and UVs.
//
// Parameters:
//   - width, height, depth: the box extent along x, y and z
//
// Returns:
//   - MeshData: 24 vertices and 36 indices
func Cube(width, height, depth float32) MeshData {
	half := [3]float32{width / 2, height / 2, depth / 2}
	verts := make([]Vertex, 0, 24)
	idx := make([]uint32, 0, 36)

	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	for _, f := range cubeFaces {
		base := uint32(len(verts))
		for i, c := range corners {
			var p [3]float32
			for a := 0; a < 3; a++ {
				p[a] = (f.normal[a] + f.u[a]*c[0] + f.v[a]*c[1]) * half[a]
			}
			verts = append(verts, Vertex{Position: p, UV: uvs[i], Normal: f.normal})
		}
		idx = append(idx, base, base+1, base+2, base+2, base+3, base)
	}
	return MeshData{Vertices: verts, Indices: idx}
}

// Cylinder builds a capped cylinder of the given radius and height centered at the origin.
//
// Parameters:
//   - radius: the cylinder radius
//   - height: the cylinder height along y
//   - sides: the number of segments around the axis (at least 3)
//
// Returns:
//   - MeshData: the indexed cylinder
func Cylinder(radius, height float32, sides int) MeshData {
	return frustumShell(radius, radius, height/2, -height/2, sides, true)
}

// Cone builds a cone with its base on the y=0 plane and its apex at y=height.
//
// Parameters:
//   - radius: the base radius
//   - height: the apex height
//   - sides: the number of segments around the axis (at least 3)
//
// Returns:
//   - MeshData: the indexed cone
func Cone(radius, height float32, sides int) MeshData {
	return frustumShell(0, radius, height, 0, sides, false)
}

// frustumShell builds a truncated cone between a top ring and a bottom ring,
// with a bottom cap and, when topCap is set, a top cap.
func frustumShell(topRadius, bottomRadius, topY, bottomY float32, sides int, topCap bool) MeshData {
	if sides < 3 {
		sides = 3
	}
	var m MeshData
	slope := (bottomRadius - topRadius) / (topY - bottomY)

	// side wall, one extra column so the seam gets its own uvs
	for i := 0; i <= sides; i++ {
		t := float32(i) / float32(sides)
		s, c := math32.Sincos(2 * math32.Pi * t)
		n := normalize([3]float32{c, slope, s})
		m.Vertices = append(m.Vertices,
			Vertex{Position: [3]float32{c * topRadius, topY, s * topRadius}, UV: [2]float32{t, 0}, Normal: n},
			Vertex{Position: [3]float32{c * bottomRadius, bottomY, s * bottomRadius}, UV: [2]float32{t, 1}, Normal: n},
		)
	}
	for i := 0; i < sides; i++ {
		t0 := uint32(i * 2)
		b0 := t0 + 1
		t1 := t0 + 2
		b1 := t0 + 3
		m.Indices = append(m.Indices, t0, t1, b0, b0, t1, b1)
	}

	m.cap(bottomRadius, bottomY, sides, false)
	if topCap {
		m.cap(topRadius, topY, sides, true)
	}
	return m
}

// cap appends a flat disc facing +y (up) or -y.
func (m *MeshData) cap(radius, y float32, sides int, up bool) {
	ny := float32(-1)
	if up {
		ny = 1
	}
	n := [3]float32{0, ny, 0}
	center := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, Vertex{Position: [3]float32{0, y, 0}, UV: [2]float32{0.5, 0.5}, Normal: n})
	for i := 0; i < sides; i++ {
		s, c := math32.Sincos(2 * math32.Pi * float32(i) / float32(sides))
		m.Vertices = append(m.Vertices, Vertex{Position: [3]float32{c * radius, y, s * radius}, UV: [2]float32{(1 + c) / 2, (1 - ny*s) / 2}, Normal: n})
	}
	for i := 0; i < sides; i++ {
		a := center + 1 + uint32(i)
		b := center + 1 + uint32((i+1)%sides)
		if up {
			m.Indices = append(m.Indices, center, b, a)
		} else {
			m.Indices = append(m.Indices, center, a, b)
		}
	}
}

// Sphere builds a UV sphere centered at the origin.
//
// Parameters:
//   - radius: the sphere radius
//   - sides: the number of segments around the y axis (at least 3)
//   - slices: the number of latitude bands from pole to pole (at least 2)
//
// Returns:
//   - MeshData: the indexed sphere
func Sphere(radius float32, sides, slices int) MeshData {
	return latitudeShell(radius, sides, slices, math32.Pi)
}

// Hemisphere builds the upper half of a UV sphere with a flat base on y=0.
//
// Parameters:
//   - radius: the hemisphere radius
//   - sides: the number of segments around the y axis (at least 3)
//   - slices: the number of latitude bands from the pole to the base (at least 1)
//
// Returns:
//   - MeshData: the indexed hemisphere
func Hemisphere(radius float32, sides, slices int) MeshData {
	m := latitudeShell(radius, sides, slices, math32.Pi/2)
	m.cap(radius, 0, max(sides, 3), false)
	return m
}

// latitudeShell sweeps rings of the sphere from the north pole down to polar angle maxPhi.
func latitudeShell(radius float32, sides, slices int, maxPhi float32) MeshData {
	if sides < 3 {
		sides = 3
	}
	if slices < 1 {
		slices = 1
	}
	var m MeshData
	for j := 0; j <= slices; j++ {
		phi := maxPhi * float32(j) / float32(slices)
		sp, cp := math32.Sincos(phi)
		for i := 0; i <= sides; i++ {
			t := float32(i) / float32(sides)
			st, ct := math32.Sincos(2 * math32.Pi * t)
			n := [3]float32{sp * ct, cp, sp * st}
			m.Vertices = append(m.Vertices, Vertex{
				Position: [3]float32{n[0] * radius, n[1] * radius, n[2] * radius},
				UV:       [2]float32{t, phi / math32.Pi},
				Normal:   n,
			})
		}
	}
	row := uint32(sides + 1)
	for j := 0; j < slices; j++ {
		for i := 0; i < sides; i++ {
			a := uint32(j)*row + uint32(i)
			b := a + 1
			c := a + row
			d := c + 1
			m.Indices = append(m.Indices, a, b, c, c, b, d)
		}
	}
	return m
}

func normalize(v [3]float32) [3]float32 {
	inv := invLength(v[0], v[1], v[2])
	return [3]float32{v[0] * inv, v[1] * inv, v[2] * inv}
}
