package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslVertexFormatMap maps WGSL input types to the vertex format that feeds them without conversion.
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"i32":       {wgpu.VertexFormatSint32, 4},
	"vec2i":     {wgpu.VertexFormatSint32x2, 8},
	"vec2<i32>": {wgpu.VertexFormatSint32x2, 8},
	"vec3i":     {wgpu.VertexFormatSint32x3, 12},
	"vec3<i32>": {wgpu.VertexFormatSint32x3, 12},
	"vec4i":     {wgpu.VertexFormatSint32x4, 16},
	"vec4<i32>": {wgpu.VertexFormatSint32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec2u":     {wgpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {wgpu.VertexFormatUint32x2, 8},
	"vec3u":     {wgpu.VertexFormatUint32x3, 12},
	"vec3<u32>": {wgpu.VertexFormatUint32x3, 12},
	"vec4u":     {wgpu.VertexFormatUint32x4, 16},
	"vec4<u32>": {wgpu.VertexFormatUint32x4, 16},
}

// wgslSampledTextureMap maps WGSL sampled texture base names to their view dimension and multisampled flag
var wgslSampledTextureMap = map[string]sampledTextureInfo{
	"texture_1d":                    {wgpu.TextureViewDimension1D, false},
	"texture_2d":                    {wgpu.TextureViewDimension2D, false},
	"texture_2d_array":              {wgpu.TextureViewDimension2DArray, false},
	"texture_3d":                    {wgpu.TextureViewDimension3D, false},
	"texture_cube":                  {wgpu.TextureViewDimensionCube, false},
	"texture_cube_array":            {wgpu.TextureViewDimensionCubeArray, false},
	"texture_multisampled_2d":       {wgpu.TextureViewDimension2D, true},
	"texture_depth_2d":              {wgpu.TextureViewDimension2D, false},
	"texture_depth_2d_array":        {wgpu.TextureViewDimension2DArray, false},
	"texture_depth_cube":            {wgpu.TextureViewDimensionCube, false},
	"texture_depth_cube_array":      {wgpu.TextureViewDimensionCubeArray, false},
	"texture_depth_multisampled_2d": {wgpu.TextureViewDimension2D, true},
}

// wgslStorageTextureDimMap maps WGSL storage texture base names to their view dimension
var wgslStorageTextureDimMap = map[string]wgpu.TextureViewDimension{
	"texture_storage_1d":       wgpu.TextureViewDimension1D,
	"texture_storage_2d":       wgpu.TextureViewDimension2D,
	"texture_storage_2d_array": wgpu.TextureViewDimension2DArray,
	"texture_storage_3d":       wgpu.TextureViewDimension3D,
}

// wgslSampleTypeMap maps WGSL scalar type parameters to their wgpu texture sample type
var wgslSampleTypeMap = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

// wgslStorageAccessMap maps WGSL access mode keywords to their wgpu storage texture access
var wgslStorageAccessMap = map[string]wgpu.StorageTextureAccess{
	"write":      wgpu.StorageTextureAccessWriteOnly,
	"read":       wgpu.StorageTextureAccessReadOnly,
	"read_write": wgpu.StorageTextureAccessReadWrite,
}

// wgslTexelFormatMap maps WGSL texel format strings to the formats valid for storage textures.
var wgslTexelFormatMap = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"rgba16uint":  wgpu.TextureFormatRGBA16Uint,
	"rgba16sint":  wgpu.TextureFormatRGBA16Sint,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32sint":     wgpu.TextureFormatR32Sint,
	"r32float":    wgpu.TextureFormatR32Float,
	"rg32uint":    wgpu.TextureFormatRG32Uint,
	"rg32sint":    wgpu.TextureFormatRG32Sint,
	"rg32float":   wgpu.TextureFormatRG32Float,
	"rgba32uint":  wgpu.TextureFormatRGBA32Uint,
	"rgba32sint":  wgpu.TextureFormatRGBA32Sint,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\(\s*(\d+)\s*\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\s*\w+\s*\)`)

	// fieldRegex matches a struct member or parameter: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(\w+)\s*:\s*(.+)`)

	// stageAttrRegex matches the stage attribute preceding an entry point.
	stageAttrRegex = regexp.MustCompile(`@(vertex|fragment|compute)\b`)

	// fnHeaderRegex matches the start of a function header up to its opening parenthesis.
	fnHeaderRegex = regexp.MustCompile(`\bfn\s+(\w+)\s*\(`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> camera: CameraUniform;
	bindGroupDeclRegex = regexp.MustCompile(`@group\(\s*(\d+)\s*\)\s*@binding\(\s*(\d+)\s*\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	// bindingGroupDeclRegex is bindGroupDeclRegex with the attributes in the other order.
	bindingGroupDeclRegex = regexp.MustCompile(`@binding\(\s*(\d+)\s*\)\s*@group\(\s*(\d+)\s*\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseFieldList(match[2]),
		})
	}
	return structs
}

// parseFieldList parses a comma separated member or parameter list.
func parseFieldList(body string) []parsedField {
	parts := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(parts))
	for _, part := range parts {
		if f, ok := parseField(part); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// parseField parses a single member or parameter, extracting @location and @builtin
// attributes along with the name and type.
func parseField(text string) (parsedField, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return parsedField{}, false
	}

	field := parsedField{location: -1}
	if builtinRegex.MatchString(text) {
		field.isBuiltin = true
	}
	if locMatch := locationRegex.FindStringSubmatch(text); locMatch != nil {
		if loc, err := strconv.Atoi(locMatch[1]); err == nil {
			field.location = loc
		}
	}

	// Attributes may carry colons only inside parentheses, so the name is searched for
	// after the last closing parenthesis of the attribute prefix.
	rest := text
	for strings.HasPrefix(rest, "@") {
		end := attributeEnd(rest)
		if end < 0 {
			return parsedField{}, false
		}
		rest = strings.TrimSpace(rest[end:])
	}

	fm := fieldRegex.FindStringSubmatch(rest)
	if fm == nil {
		return parsedField{}, false
	}
	field.name = fm[1]
	field.typeName = strings.TrimSpace(fm[2])
	return field, true
}

// attributeEnd returns the index just past the leading @attribute (with its argument list,
// if any) of s, or -1 when the parentheses are unbalanced.
func attributeEnd(s string) int {
	i := 1
	for i < len(s) && (isIdentByte(s[i])) {
		i++
	}
	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
		j++
	}
	if j >= len(s) || s[j] != '(' {
		return i
	}
	closeIdx := matchParen(s, j)
	if closeIdx < 0 {
		return -1
	}
	return closeIdx + 1
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// matchParen returns the index of the parenthesis closing the one at open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseEntryPoints extracts every @vertex, @fragment and @compute function header in source order.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedFunction: the entry point headers
func parseEntryPoints(source string) []parsedFunction {
	var fns []parsedFunction
	for _, loc := range stageAttrRegex.FindAllStringSubmatchIndex(source, -1) {
		var stage Stage
		switch source[loc[2]:loc[3]] {
		case "vertex":
			stage = StageVertex
		case "fragment":
			stage = StageFragment
		default:
			stage = StageCompute
		}

		rest := source[loc[1]:]
		m := fnHeaderRegex.FindStringSubmatchIndex(rest)
		if m == nil {
			continue
		}
		open := m[1] - 1
		closeIdx := matchParen(rest, open)
		if closeIdx < 0 {
			continue
		}
		fns = append(fns, parsedFunction{
			stage:  stage,
			name:   rest[m[2]:m[3]],
			params: parseFieldList(rest[open+1 : closeIdx]),
		})
	}
	return fns
}

// resolveInputs collects the @location inputs of a vertex entry point, looking through
// struct-typed parameters.
func resolveInputs(fn parsedFunction, structs []parsedStruct) []Location {
	byName := make(map[string]parsedStruct, len(structs))
	for _, ps := range structs {
		byName[ps.name] = ps
	}

	var locs []Location
	for _, p := range fn.params {
		if p.isBuiltin {
			continue
		}
		if p.location >= 0 {
			locs = append(locs, newLocation(p))
			continue
		}
		if ps, ok := byName[p.typeName]; ok {
			for _, f := range ps.fields {
				if !f.isBuiltin && f.location >= 0 {
					locs = append(locs, newLocation(f))
				}
			}
		}
	}
	sort.Slice(locs, func(i, j int) bool {
		return locs[i].Location < locs[j].Location
	})
	return locs
}

func newLocation(f parsedField) Location {
	return Location{
		Location: uint32(f.location),
		Name:     f.name,
		Type:     f.typeName,
		Format:   wgslVertexFormatMap[f.typeName].format,
	}
}

// parseBindings extracts all @group/@binding resource declarations, sorted by group then binding.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//   - structs: the struct blocks of the same source, used to size buffer bindings
//
// Returns:
//   - []Binding: the declarations
func parseBindings(source string, structs []parsedStruct) []Binding {
	structSizes := computeStructSizes(structs)

	var bindings []Binding
	add := func(group, binding, addressSpace, name, typeName string) {
		g, _ := strconv.Atoi(group)
		b, _ := strconv.Atoi(binding)
		addressSpace = strings.TrimSpace(addressSpace)
		typeName = strings.TrimSpace(typeName)

		entry, class := classifyResource(uint32(b), addressSpace, typeName)
		var size uint64
		if class == ResourceClassBuffer {
			if layout, ok := resolveTypeLayout(typeName, structSizes); ok {
				size = layout.size
				entry.Buffer.MinBindingSize = size
			}
		}
		bindings = append(bindings, Binding{
			Group:        g,
			Binding:      b,
			Name:         strings.TrimSpace(name),
			Type:         typeName,
			AddressSpace: addressSpace,
			Class:        class,
			Size:         size,
			Entry:        entry,
		})
	}

	for _, m := range bindGroupDeclRegex.FindAllStringSubmatch(source, -1) {
		add(m[1], m[2], m[3], m[4], m[5])
	}
	for _, m := range bindingGroupDeclRegex.FindAllStringSubmatch(source, -1) {
		add(m[2], m[1], m[3], m[4], m[5])
	}

	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Group != bindings[j].Group {
			return bindings[i].Group < bindings[j].Group
		}
		return bindings[i].Binding < bindings[j].Binding
	})
	return bindings
}
