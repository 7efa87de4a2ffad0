package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// objBackend imports Wavefront .obj files and the .mtl libraries they reference. Each
// object, group or material change starts a new mesh. Polygons are triangulated as fans and
// texture coordinates are flipped to a top-left origin.
type objBackend struct{}

var _ loaderBackend = &objBackend{}

func newOBJBackend() loaderBackend {
	return &objBackend{}
}

func (b *objBackend) Load(path string) (*Imported, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	p := newOBJParser(filepath.Dir(path))
	if err := p.parse(f); err != nil {
		return nil, err
	}
	return p.result(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

func (b *objBackend) LoadReader(r io.Reader) (*Imported, error) {
	p := newOBJParser("")
	if err := p.parse(r); err != nil {
		return nil, err
	}
	return p.result("")
}

// objKey identifies a unique position/uv/normal combination. Absent references are -1.
type objKey struct {
	v, vt, vn int
}

type objPart struct {
	mesh       ImportedMesh
	seen       map[objKey]uint32
	hasNormals bool
}

type objParser struct {
	baseDir string

	positions [][3]float32
	uvs       [][2]float32
	normals   [][3]float32

	materials     []ImportedMaterial
	materialIndex map[string]int

	parts   []*objPart
	current *objPart
	object  string
	usemtl  int
}

func newOBJParser(baseDir string) *objParser {
	return &objParser{baseDir: baseDir, materialIndex: make(map[string]int), usemtl: -1}
}

func (p *objParser) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		if err := p.parseLine(scanner.Text()); err != nil {
			return fmt.Errorf("obj line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read obj: %w", err)
	}
	return nil
}

func (p *objParser) parseLine(text string) error {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "v":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, [3]float32{v[0], v[1], v[2]})
	case "vt":
		v, err := parseFloats(fields[1:], 1)
		if err != nil {
			return err
		}
		uv := [2]float32{v[0], 0}
		if len(v) > 1 {
			uv[1] = v[1]
		}
		p.uvs = append(p.uvs, uv)
	case "vn":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, [3]float32{v[0], v[1], v[2]})
	case "f":
		return p.face(fields[1:])
	case "o", "g":
		p.object = strings.Join(fields[1:], " ")
		p.current = nil
	case "usemtl":
		p.usemtl = p.lookupMaterial(strings.Join(fields[1:], " "))
		p.current = nil
	case "mtllib":
		for _, lib := range fields[1:] {
			if err := p.loadMTL(lib); err != nil {
				return err
			}
		}
	}
	return nil
}

// face appends a polygon as a fan of triangles around its first corner.
func (p *objParser) face(corners []string) error {
	if len(corners) < 3 {
		return fmt.Errorf("face needs at least 3 corners, got %d", len(corners))
	}
	part := p.part()

	indices := make([]uint32, len(corners))
	for i, c := range corners {
		key, err := p.resolve(c)
		if err != nil {
			return err
		}
		idx, ok := part.seen[key]
		if !ok {
			idx = uint32(len(part.mesh.Data.Vertices))
			part.seen[key] = idx
			part.mesh.Data.Vertices = append(part.mesh.Data.Vertices, p.vertex(key))
		}
		if key.vn < 0 {
			part.hasNormals = false
		}
		indices[i] = idx
	}

	for i := 1; i+1 < len(indices); i++ {
		part.mesh.Data.Indices = append(part.mesh.Data.Indices, indices[0], indices[i], indices[i+1])
	}
	return nil
}

// resolve parses a v, v/vt, v//vn or v/vt/vn corner into zero-based indices.
func (p *objParser) resolve(corner string) (objKey, error) {
	refs := strings.Split(corner, "/")
	if len(refs) > 3 {
		return objKey{}, fmt.Errorf("malformed face corner %q", corner)
	}
	key := objKey{v: -1, vt: -1, vn: -1}
	var err error
	if key.v, err = objIndex(refs[0], len(p.positions)); err != nil {
		return objKey{}, fmt.Errorf("corner %q position: %w", corner, err)
	}
	if len(refs) > 1 && refs[1] != "" {
		if key.vt, err = objIndex(refs[1], len(p.uvs)); err != nil {
			return objKey{}, fmt.Errorf("corner %q texcoord: %w", corner, err)
		}
	}
	if len(refs) > 2 && refs[2] != "" {
		if key.vn, err = objIndex(refs[2], len(p.normals)); err != nil {
			return objKey{}, fmt.Errorf("corner %q normal: %w", corner, err)
		}
	}
	return key, nil
}

// objIndex converts a one-based reference, or a negative reference counting back from the
// latest element, to a zero-based index.
func objIndex(ref string, count int) (int, error) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", ref)
	}
	idx := n - 1
	if n < 0 {
		idx = count + n
	}
	if n == 0 || idx < 0 || idx >= count {
		return 0, fmt.Errorf("index %d out of range for %d elements", n, count)
	}
	return idx, nil
}

func (p *objParser) vertex(key objKey) common.Vertex {
	v := common.Vertex{Position: p.positions[key.v]}
	if key.vt >= 0 {
		uv := p.uvs[key.vt]
		v.UV = [2]float32{uv[0], 1 - uv[1]}
	}
	if key.vn >= 0 {
		v.Normal = p.normals[key.vn]
	}
	return v
}

// part returns the mesh faces are currently appended to, starting one if the object, group or
// material changed since the last face.
func (p *objParser) part() *objPart {
	if p.current != nil {
		return p.current
	}
	name := common.Coalesce(p.object, fmt.Sprintf("mesh_%d", len(p.parts)))
	if p.usemtl >= 0 && p.object != "" {
		name = p.object + "_" + p.materials[p.usemtl].Name
	}
	p.current = &objPart{
		mesh:       ImportedMesh{Name: name, MaterialIndex: p.usemtl},
		seen:       make(map[objKey]uint32),
		hasNormals: true,
	}
	p.parts = append(p.parts, p.current)
	return p.current
}

// lookupMaterial returns the index of a named material, adding a default one for a name no
// library defined.
func (p *objParser) lookupMaterial(name string) int {
	if idx, ok := p.materialIndex[name]; ok {
		return idx
	}
	common.Logger().Warn("obj references an undefined material", "material", name)
	return p.addMaterial(ImportedMaterial{Name: name, BaseColor: [4]float32{1, 1, 1, 1}, Roughness: 1})
}

func (p *objParser) addMaterial(m ImportedMaterial) int {
	p.materials = append(p.materials, m)
	p.materialIndex[m.Name] = len(p.materials) - 1
	return len(p.materials) - 1
}

// loadMTL reads a material library next to the obj file. Libraries cannot be resolved for
// streams and are skipped with a warning.
func (p *objParser) loadMTL(lib string) error {
	if p.baseDir == "" {
		common.Logger().Warn("skipping material library of a streamed obj", "mtllib", lib)
		return nil
	}
	path := filepath.Join(p.baseDir, filepath.FromSlash(lib))
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("mtllib %q: %w", lib, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	var cur *ImportedMaterial
	flush := func() {
		if cur != nil {
			p.addMaterial(*cur)
		}
	}
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "newmtl" {
			flush()
			cur = &ImportedMaterial{Name: strings.Join(fields[1:], " "), BaseColor: [4]float32{1, 1, 1, 1}, Roughness: 1}
			continue
		}
		if cur == nil {
			continue
		}
		if err := parseMTLField(cur, fields, filepath.Dir(path)); err != nil {
			return fmt.Errorf("mtllib %q line %d: %w", lib, line, err)
		}
	}
	flush()
	return scanner.Err()
}

func parseMTLField(m *ImportedMaterial, fields []string, dir string) error {
	switch fields[0] {
	case "Kd":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		m.BaseColor[0], m.BaseColor[1], m.BaseColor[2] = v[0], v[1], v[2]
	case "d":
		v, err := parseFloats(fields[1:], 1)
		if err != nil {
			return err
		}
		m.BaseColor[3] = v[0]
	case "Tr":
		v, err := parseFloats(fields[1:], 1)
		if err != nil {
			return err
		}
		m.BaseColor[3] = 1 - v[0]
	case "Pm":
		v, err := parseFloats(fields[1:], 1)
		if err != nil {
			return err
		}
		m.Metallic = v[0]
	case "Pr":
		v, err := parseFloats(fields[1:], 1)
		if err != nil {
			return err
		}
		m.Roughness = v[0]
	case "map_Kd":
		// Options such as -s or -o precede the file name, which is always last.
		tex, err := common.LoadTexture(filepath.Join(dir, filepath.FromSlash(fields[len(fields)-1])))
		if err != nil {
			return err
		}
		m.Texture = &tex
	}
	return nil
}

func (p *objParser) result(fallback string) (*Imported, error) {
	out := &Imported{Name: fallback, Materials: p.materials}
	for _, part := range p.parts {
		if len(part.mesh.Data.Indices) == 0 {
			continue
		}
		if !part.hasNormals {
			generateNormals(part.mesh.Data)
		}
		out.Meshes = append(out.Meshes, part.mesh)
	}
	if len(out.Meshes) == 0 {
		return nil, fmt.Errorf("obj contains no faces")
	}
	if out.Name == "" {
		out.Name = out.Meshes[0].Name
	}
	return out, nil
}

// parseFloats parses at least n numbers.
func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(fields))
	}
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = float32(v)
	}
	return out, nil
}
