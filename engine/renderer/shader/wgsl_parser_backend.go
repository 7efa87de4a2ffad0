package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslPrimitiveLayoutMap holds the size and alignment of the WGSL scalar, vector, matrix and
// atomic types, under both their spelled-out and shorthand names.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = buildPrimitiveLayoutMap()

func buildPrimitiveLayoutMap() map[string]wgslTypeLayout {
	m := map[string]wgslTypeLayout{
		"f32":         {4, 4},
		"i32":         {4, 4},
		"u32":         {4, 4},
		"f16":         {2, 2},
		"bool":        {4, 4},
		"atomic<u32>": {4, 4},
		"atomic<i32>": {4, 4},
	}
	scalars := map[string]string{"f32": "f", "i32": "i", "u32": "u"}
	for scalar, suffix := range scalars {
		for n, layout := range map[int]wgslTypeLayout{2: {8, 8}, 3: {12, 16}, 4: {16, 16}} {
			m[fmt.Sprintf("vec%d<%s>", n, scalar)] = layout
			m[fmt.Sprintf("vec%d%s", n, suffix)] = layout
		}
	}
	m["vec2<f16>"], m["vec2h"] = wgslTypeLayout{4, 4}, wgslTypeLayout{4, 4}
	m["vec4<f16>"], m["vec4h"] = wgslTypeLayout{8, 8}, wgslTypeLayout{8, 8}

	// matCxR<f32> is C columns of vecR<f32>.
	columnAlign := map[int]uint64{2: 8, 3: 16, 4: 16}
	for c := 2; c <= 4; c++ {
		for r := 2; r <= 4; r++ {
			layout := wgslTypeLayout{uint64(c) * columnAlign[r], columnAlign[r]}
			m[fmt.Sprintf("mat%dx%d<f32>", c, r)] = layout
			m[fmt.Sprintf("mat%dx%df", c, r)] = layout
		}
	}
	return m
}

// roundUpAlign rounds value up to the next multiple of alignment, a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type to its size and alignment using the primitive table
// and already-resolved structs. A runtime-sized array resolves to one element stride, the
// smallest useful binding.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "f32", "ObjectUniform", "array<vec4f, 4>"
//   - knownTypes: already-resolved struct layouts by name
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return wgslTypeLayout{}, false
	}
	inner = strings.TrimSuffix(inner, ">")
	parts := splitAtTopLevelCommas(inner)
	elem, ok := resolveTypeLayout(strings.TrimSpace(parts[0]), knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	if len(parts) < 2 {
		return wgslTypeLayout{stride, elem.align}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{count * stride, elem.align}, true
}

// computeStructLayout places each member at the next aligned offset and rounds the total up
// to the widest member alignment. Builtin members are skipped. A trailing runtime-sized
// array contributes one element.
//
// Parameters:
//   - ps: the parsed struct
//   - knownTypes: already-resolved struct layouts by name
//
// Returns:
//   - wgslTypeLayout: the computed layout
//   - bool: false if a member type is not yet known
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		offset = roundUpAlign(fieldLayout.align, offset) + fieldLayout.size
		maxAlign = max(maxAlign, fieldLayout.align)
	}

	return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// computeStructSizes resolves every struct layout, repeating until no struct that depends
// on another still-unresolved struct makes progress.
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := append([]parsedStruct(nil), structs...)

	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return resolved
}

// classifyResource derives the layout entry and resource class of a declaration from its
// address space and type. Address-spaced declarations are buffers; handle declarations are
// samplers or textures depending on the type.
//
// Parameters:
//   - binding: the binding index from @binding(N)
//   - addressSpace: the var<> qualifier (e.g. "uniform", "storage, read_write"), empty for handle types
//   - typeName: the WGSL type string (e.g. "ObjectUniform", "texture_2d<f32>", "sampler")
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the layout entry, without visibility
//   - ResourceClass: the entry's class
func classifyResource(binding uint32, addressSpace, typeName string) (wgpu.BindGroupLayoutEntry, ResourceClass) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding: binding,
	}

	if addressSpace != "" {
		switch {
		case addressSpace == "uniform":
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case strings.HasPrefix(addressSpace, "storage"):
			if strings.Contains(addressSpace, "read_write") {
				entry.Buffer.Type = wgpu.BufferBindingTypeStorage
			} else {
				entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
			}
		default:
			return entry, ResourceClassUndefined
		}
		return entry, ResourceClassBuffer
	}

	switch {
	case typeName == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		return entry, ResourceClassSampler
	case typeName == "sampler_comparison":
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
		return entry, ResourceClassSampler
	case strings.HasPrefix(typeName, "texture_storage_"):
		classifyStorageTexture(typeName, &entry)
		return entry, ResourceClassTexture
	case strings.HasPrefix(typeName, "texture_depth_"):
		classifyDepthTexture(typeName, &entry)
		return entry, ResourceClassTexture
	case strings.HasPrefix(typeName, "texture_"):
		classifySampledTexture(typeName, &entry)
		return entry, ResourceClassTexture
	}
	return entry, ResourceClassUndefined
}

// classifySampledTexture parses a sampled texture type (e.g. "texture_2d<f32>") and populates
// the texture layout fields on the entry
//
// Parameters:
//   - typeName: the full WGSL texture type string
//   - entry: the bind group layout entry to populate
func classifySampledTexture(typeName string, entry *wgpu.BindGroupLayoutEntry) {
	base, param := splitTypeParams(typeName)

	if info, ok := wgslSampledTextureMap[base]; ok {
		entry.Texture.ViewDimension = info.viewDimension
		entry.Texture.Multisampled = info.multisampled
	}
	if st, ok := wgslSampleTypeMap[param]; ok {
		entry.Texture.SampleType = st
	}
}

// classifyDepthTexture parses a depth texture type (e.g. "texture_depth_2d") and populates
// the texture layout fields on the entry
//
// Parameters:
//   - typeName: the full WGSL depth texture type string
//   - entry: the bind group layout entry to populate
func classifyDepthTexture(typeName string, entry *wgpu.BindGroupLayoutEntry) {
	entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
	if info, ok := wgslSampledTextureMap[typeName]; ok {
		entry.Texture.ViewDimension = info.viewDimension
		entry.Texture.Multisampled = info.multisampled
	}
}

// classifyStorageTexture parses a storage texture type (e.g. "texture_storage_2d<rgba8unorm, write>")
// and populates the storage texture layout fields on the entry
//
// Parameters:
//   - typeName: the full WGSL storage texture type string
//   - entry: the bind group layout entry to populate
func classifyStorageTexture(typeName string, entry *wgpu.BindGroupLayoutEntry) {
	base, params := splitTypeParams(typeName)

	if dim, ok := wgslStorageTextureDimMap[base]; ok {
		entry.StorageTexture.ViewDimension = dim
	}

	parts := strings.SplitN(params, ",", 2)
	if len(parts) >= 1 {
		formatStr := strings.TrimSpace(parts[0])
		if format, ok := wgslTexelFormatMap[formatStr]; ok {
			entry.StorageTexture.Format = format
		}
	}
	if len(parts) >= 2 {
		accessStr := strings.TrimSpace(parts[1])
		if access, ok := wgslStorageAccessMap[accessStr]; ok {
			entry.StorageTexture.Access = access
		}
	}
}

// splitTypeParams splits a WGSL parameterized type into its base name and parameter string.
// For "texture_2d<f32>" returns ("texture_2d", "f32").
// For "texture_depth_2d" (no params) returns ("texture_depth_2d", "").
//
// Parameters:
//   - typeName: the WGSL type string to split
//
// Returns:
//   - base: the type name before the first angle bracket
//   - params: the content between angle brackets, or empty if none
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	base = before
	params = strings.TrimSuffix(after, ">")
	params = strings.TrimSpace(params)
	return base, params
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
// Block comments may be nested per the WGSL specification.
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with all comments removed
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

// stripLineComments removes single-line // comments from WGSL source so they
// do not interfere with struct and field parsing
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with line comments removed
func stripLineComments(source string) string {
	var sb strings.Builder
	lines := strings.SplitSeq(source, "\n")
	for line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// stripBlockComments removes block comments (/* ... */) from WGSL source,
// handling nested block comments per the WGSL specification
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with block comments removed
func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	i := 0
	for i < len(source) {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i += 2
				continue
			}
			if source[i] == '*' && source[i+1] == '/' {
				if depth > 0 {
					depth--
				}
				i += 2
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets
// or parentheses, so array<T, 6> and @interpolate(flat, center) stay whole.
//
// Parameters:
//   - s: the string to split (typically the body of a WGSL struct)
//
// Returns:
//   - []string: substrings between top-level commas
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
