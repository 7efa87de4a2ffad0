package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.x")
	errInvalidGLBMagic    = errors.New("invalid GLB magic number")
	errInvalidGLBVersion  = errors.New("invalid GLB version: must be 2")
	errMissingJSONChunk   = errors.New("GLB file missing JSON chunk")
	errInvalidDataURI     = errors.New("invalid data URI")
	errBufferSizeMismatch = errors.New("buffer shorter than its declared byteLength")
	errOutOfBounds        = errors.New("accessor reads past the end of its buffer")
)

// gltfParser decodes a .gltf or .glb document, resolves its buffers and reads typed accessor data.
// baseDir resolves relative buffer and image URIs; it is empty for documents read from a stream,
// in which case only embedded data can be resolved.
type gltfParser struct {
	baseDir  string
	document *gltfDocument
	binChunk []byte
}

// parseGLTFFile reads and parses the file at path, detecting GLB by extension or magic.
func parseGLTFFile(path string) (*gltfParser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	p := &gltfParser{baseDir: filepath.Dir(path)}
	glb := strings.EqualFold(filepath.Ext(path), ".glb") || isGLB(data)
	if err := p.parse(data, glb); err != nil {
		return nil, err
	}
	return p, nil
}

// parseGLTFReader parses a document from r. baseDir may be empty.
func parseGLTFReader(r io.Reader, glb bool, baseDir string) (*gltfParser, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	p := &gltfParser{baseDir: baseDir}
	if err := p.parse(data, glb || isGLB(data)); err != nil {
		return nil, err
	}
	return p, nil
}

func isGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic
}

func (p *gltfParser) parse(data []byte, glb bool) error {
	if glb {
		var err error
		if data, err = p.splitGLB(data); err != nil {
			return err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return errInvalidGLTFVersion
	}
	if err := p.loadBuffers(&doc); err != nil {
		return fmt.Errorf("failed to load buffers: %w", err)
	}
	p.document = &doc
	return nil
}

// splitGLB validates the GLB container and returns its JSON chunk, keeping the BIN chunk.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
func (p *gltfParser) splitGLB(data []byte) ([]byte, error) {
	if len(data) < 12 {
		return nil, errors.New("GLB file too small")
	}
	r := bytes.NewReader(data)

	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read GLB header: %w", err)
	}
	if header.Magic != gltfGLBMagic {
		return nil, errInvalidGLBMagic
	}
	if header.Version != gltfGLBVersion {
		return nil, errInvalidGLBVersion
	}

	var jsonChunk []byte
	for {
		var chunk gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		body := make([]byte, chunk.ChunkLength)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("failed to read chunk data: %w", err)
		}
		switch chunk.ChunkType {
		case gltfGLBChunkJSON:
			jsonChunk = body
		case gltfGLBChunkBIN:
			p.binChunk = body
		}
	}
	if jsonChunk == nil {
		return nil, errMissingJSONChunk
	}
	return jsonChunk, nil
}

// loadBuffers fills every buffer's Data from its URI, or from the GLB BIN chunk for buffer 0.
func (p *gltfParser) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]
		switch {
		case buf.URI == "" && i == 0 && p.binChunk != nil:
			buf.Data = p.binChunk
		case buf.URI == "":
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		default:
			data, _, err := p.resolveURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		}
		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}
	return nil
}

// resolveURI returns the bytes behind a data: URI or a file path relative to the document,
// with the data URI's media type when there is one.
func (p *gltfParser) resolveURI(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}
	if p.baseDir == "" {
		return nil, "", fmt.Errorf("cannot resolve external URI %q without a base directory", uri)
	}
	data, err := os.ReadFile(filepath.Join(p.baseDir, filepath.FromSlash(uri)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %q: %w", uri, err)
	}
	return data, "", nil
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, string, error) {
	comma := strings.Index(uri, ",")
	if !strings.HasPrefix(uri, "data:") || comma < 0 {
		return nil, "", errInvalidDataURI
	}
	header, encoded := uri[5:comma], uri[comma+1:]
	if !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("%w: only base64 encoding is supported", errInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, strings.TrimSuffix(header, ";base64"), nil
}

// bufferView returns a copy of the bytes a buffer view covers.
func (p *gltfParser) bufferView(index int) ([]byte, error) {
	doc := p.document
	if index < 0 || index >= len(doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", index)
	}
	bv := &doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("bufferView %d: %w", index, errOutOfBounds)
	}
	return bytes.Clone(data[bv.ByteOffset:end]), nil
}

// elements returns one tightly packed byte slice per accessor element, honoring the view stride.
func (p *gltfParser) elements(index int) (*gltfAccessor, [][]byte, error) {
	doc := p.document
	if index < 0 || index >= len(doc.Accessors) {
		return nil, nil, fmt.Errorf("accessor index %d out of range", index)
	}
	acc := &doc.Accessors[index]
	if acc.Sparse != nil {
		return nil, nil, fmt.Errorf("accessor %d: sparse accessors are not supported", index)
	}
	if acc.BufferView == nil {
		return nil, nil, fmt.Errorf("accessor %d has no bufferView", index)
	}
	if *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) {
		return nil, nil, fmt.Errorf("accessor %d: bufferView index %d out of range", index, *acc.BufferView)
	}
	bv := &doc.BufferViews[*acc.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, nil, fmt.Errorf("accessor %d: buffer index %d out of range", index, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data

	size := gltfComponentSize(acc.ComponentType) * gltfComponentCount(acc.Type)
	if size == 0 {
		return nil, nil, fmt.Errorf("accessor %d: unsupported layout %s/%d", index, acc.Type, acc.ComponentType)
	}
	stride := size
	if bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}

	base := bv.ByteOffset + acc.ByteOffset
	out := make([][]byte, acc.Count)
	for i := range out {
		start := base + i*stride
		if start+size > len(data) || start+size > bv.ByteOffset+bv.ByteLength {
			return nil, nil, fmt.Errorf("accessor %d: %w", index, errOutOfBounds)
		}
		out[i] = data[start : start+size]
	}
	return acc, out, nil
}

// readFloats reads an accessor of n-component elements as float32. Normalized integer
// components are mapped to [0, 1] or [-1, 1].
func (p *gltfParser) readFloats(index, n int) ([][]float32, error) {
	acc, elems, err := p.elements(index)
	if err != nil {
		return nil, err
	}
	if gltfComponentCount(acc.Type) != n {
		return nil, fmt.Errorf("accessor %d: expected %d components, got %s", index, n, acc.Type)
	}
	if acc.ComponentType != gltfComponentTypeFloat && !acc.Normalized {
		return nil, fmt.Errorf("accessor %d: component type %d is neither float nor normalized", index, acc.ComponentType)
	}

	out := make([][]float32, len(elems))
	for i, e := range elems {
		v := make([]float32, n)
		for c := range v {
			v[c] = readComponent(e, c, acc.ComponentType)
		}
		out[i] = v
	}
	return out, nil
}

func readComponent(e []byte, c, componentType int) float32 {
	switch componentType {
	case gltfComponentTypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(e[c*4:]))
	case gltfComponentTypeUnsignedByte:
		return float32(e[c]) / 255
	case gltfComponentTypeByte:
		return max(float32(int8(e[c]))/127, -1)
	case gltfComponentTypeUnsignedShort:
		return float32(binary.LittleEndian.Uint16(e[c*2:])) / 65535
	case gltfComponentTypeShort:
		return max(float32(int16(binary.LittleEndian.Uint16(e[c*2:])))/32767, -1)
	default:
		return 0
	}
}

// readIndices reads a SCALAR accessor of unsigned byte, short or int indices.
func (p *gltfParser) readIndices(index int) ([]uint32, error) {
	acc, elems, err := p.elements(index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeScalar {
		return nil, fmt.Errorf("index accessor %d is not SCALAR: %s", index, acc.Type)
	}

	out := make([]uint32, len(elems))
	for i, e := range elems {
		switch acc.ComponentType {
		case gltfComponentTypeUnsignedByte:
			out[i] = uint32(e[0])
		case gltfComponentTypeUnsignedShort:
			out[i] = uint32(binary.LittleEndian.Uint16(e))
		case gltfComponentTypeUnsignedInt:
			out[i] = binary.LittleEndian.Uint32(e)
		default:
			return nil, fmt.Errorf("index accessor %d: unsupported component type %d", index, acc.ComponentType)
		}
	}
	return out, nil
}
