// annotations.go defines the @oxy: directives understood by the pre-processor.
// A directive is a single WGSL line comment, so unprocessed source still compiles.
//
//	//@oxy:include <name>
//	//@oxy:group <group> <binding> <address_space> <var_name> <type>
//
// include pastes the registered struct source for name. group emits a
// @group/@binding declaration whose type is either a registered name or a
// literal WGSL type, and records the declaration for later inspection.
package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies a directive within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of directive parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the source of a registered struct at the directive site.
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration.
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation is one parsed directive.
type Annotation struct {
	Type AnnotationType

	// Args holds the directive's arguments:
	//   - include: [0] = registered name
	//   - group:   [0] = address space, [1] = var name, [2] = type
	Args []string

	// Line is the 1-based source line of the directive.
	Line int

	// Group and Binding are set for group directives only.
	Group   *int
	Binding *int
}

// addressSpaces maps the address space argument of a group directive to its WGSL var<> spelling.
var addressSpaces = map[string]string{
	"uniform":            "var<uniform>",
	"storage_read":       "var<storage, read>",
	"storage_read_write": "var<storage, read_write>",
	"handle":             "var",
}

// parseAnnotation attempts to parse a single line of WGSL source as a directive.
// Lines without the prefix return nil and no error.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not a directive
//   - error: a descriptive error if the directive is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []string{args[1]},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires five arguments (group, binding, address space, var name, type)", lineNum)
		}
		group, err := strconv.Atoi(args[1])
		if err != nil || group < 0 {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation", lineNum, args[1])
		}
		binding, err := strconv.Atoi(args[2])
		if err != nil || binding < 0 {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation", lineNum, args[2])
		}
		if _, ok := addressSpaces[args[3]]; !ok {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []string{args[3], args[4], args[5]},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
