package shader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
)

// Names of the includes every pre-processor starts with.
const (
	IncludeVertex        = "vertex"
	IncludeSkinnedVertex = "skinned_vertex"
)

const vertexInputSource = `struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
    @location(2) normal: vec3<f32>,
}
`

const skinnedVertexInputSource = `struct SkinnedVertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
    @location(2) normal: vec3<f32>,
    @location(3) joints: vec4<u32>,
    @location(4) weights: vec4<f32>,
}
`

// registryEntry pairs a WGSL struct source with the type name it declares.
type registryEntry struct {
	Source string
	Type   string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	mu       *sync.Mutex
	registry map[string]registryEntry
}

// PreProcessor expands @oxy: directives in WGSL source. It owns a registry of named
// struct sources that include directives paste in and group directives refer to.
type PreProcessor interface {
	// Register adds or replaces a named struct source.
	//
	// Parameters:
	//   - name: the name used by include and group directives
	//   - typeName: the WGSL struct name the source declares
	//   - source: the WGSL struct declaration
	Register(name, typeName, source string)

	// RegisterLayout registers the WGSL struct generated from a uniform layout, so shaders
	// can include the exact struct a payload is encoded against.
	//
	// Parameters:
	//   - name: the name used by include and group directives
	//   - typeName: the WGSL struct name to generate
	//   - layout: the uniform layout to render
	RegisterLayout(name, typeName string, layout uniform.Layout)

	// Process expands every directive in source. Each name is included at most once;
	// later includes of the same name expand to nothing.
	//
	// Parameters:
	//   - source: the WGSL source containing directives
	//
	// Returns:
	//   - string: the expanded source
	//   - []Annotation: the group directives found, in source order
	//   - error: an error if a directive is malformed or names an unknown include
	Process(source string) (string, []Annotation, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the vertex and skinned_vertex includes registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		mu: &sync.Mutex{},
		registry: map[string]registryEntry{
			IncludeVertex:        {Source: vertexInputSource, Type: "VertexInput"},
			IncludeSkinnedVertex: {Source: skinnedVertexInputSource, Type: "SkinnedVertexInput"},
		},
	}
}

func (p *preProcessor) Register(name, typeName, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry[name] = registryEntry{Source: source, Type: typeName}
}

func (p *preProcessor) RegisterLayout(name, typeName string, layout uniform.Layout) {
	p.Register(name, typeName, layout.WGSL(typeName))
}

func (p *preProcessor) Process(source string) (string, []Annotation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[string]bool)
	var declarations []Annotation

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", nil, err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			entry, ok := p.registry[a.Args[0]]
			if !ok {
				return "", nil, fmt.Errorf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			if included[a.Args[0]] {
				continue
			}
			included[a.Args[0]] = true
			out = append(out, strings.TrimSuffix(entry.Source, "\n"))
		case AnnotationTypeBindingGroup:
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
				*a.Group, *a.Binding, addressSpaces[a.Args[0]], a.Args[1], p.resolveType(a.Args[2])))
			declarations = append(declarations, *a)
		}
	}
	return strings.Join(out, "\n"), declarations, nil
}

// resolveType maps a registered name, or array<name>, to its WGSL type. Anything else is
// taken as a literal WGSL type.
func (p *preProcessor) resolveType(arg string) string {
	if inner, ok := strings.CutPrefix(arg, "array<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		if entry, ok := p.registry[inner]; ok {
			return fmt.Sprintf("array<%s>", entry.Type)
		}
		return arg
	}
	if entry, ok := p.registry[arg]; ok {
		return entry.Type
	}
	return arg
}
