// Package loader imports model files into engine models and materials. Wavefront OBJ (with MTL
// libraries) and glTF 2.0 (.gltf and .glb) are supported; loaded assets are cached by path or
// name.
package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/game_object"
	"github.com/Carmen-Shannon/oxy-core/engine/model"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
)

// ErrUnsupportedFormat is returned for files whose format has no backend.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// Format identifies a model file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatOBJ
	FormatGLTF
	FormatGLB
)

func (f Format) String() string {
	switch f {
	case FormatOBJ:
		return "obj"
	case FormatGLTF:
		return "gltf"
	case FormatGLB:
		return "glb"
	default:
		return "unknown"
	}
}

// FormatFromPath picks the format from a file extension, case-insensitively.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		return FormatOBJ
	case ".gltf":
		return FormatGLTF
	case ".glb":
		return FormatGLB
	default:
		return FormatUnknown
	}
}

// Part is one drawable piece of an asset.
type Part struct {
	Name  string
	Model model.Model
	// Material is the part's material, or nil when the file gives it none or the loader has
	// no device to create materials on.
	Material material.Material
	// Source is the imported material data behind Material.
	Source *ImportedMaterial
}

// Asset is a loaded file: its parts and the materials they share.
type Asset struct {
	Name  string
	Parts []Part

	materials []material.Material
}

// Objects creates one game object per part, labelled with the part name and carrying its mesh
// and material. Further options apply after those.
//
// Parameters:
//   - options: options applied to every object, such as a pipeline or position
//
// Returns:
//   - []game_object.GameObject: the new objects in part order
func (a *Asset) Objects(options ...game_object.GameObjectBuilderOption) []game_object.GameObject {
	objects := make([]game_object.GameObject, len(a.Parts))
	for i, part := range a.Parts {
		opts := []game_object.GameObjectBuilderOption{
			game_object.WithLabel(part.Name),
			game_object.WithMesh(part.Model),
		}
		if part.Material != nil {
			opts = append(opts, game_object.WithMaterial(part.Material))
		}
		objects[i] = game_object.NewGameObject(append(opts, options...)...)
	}
	return objects
}

// Release frees the GPU resources of every part model and material.
func (a *Asset) Release() {
	for _, part := range a.Parts {
		part.Model.Release()
	}
	for _, m := range a.materials {
		m.Release()
	}
}

// Loader imports model files and caches the results. Thread-safe for concurrent access.
type Loader interface {
	// Load imports a file, picking the backend from its extension. A path that was loaded
	// before returns the cached asset.
	//
	// Parameters:
	//   - path: the model file
	//
	// Returns:
	//   - *Asset: the loaded asset
	//   - error: ErrUnsupportedFormat, or an error if the file cannot be read or is malformed
	Load(path string) (*Asset, error)

	// LoadReader imports a model from a stream and caches it under name. References to other
	// files (glTF buffers and images, OBJ material libraries) cannot be resolved from a stream.
	//
	// Parameters:
	//   - name: the cache key
	//   - r: the model data
	//   - format: the format of the data
	//
	// Returns:
	//   - *Asset: the loaded asset
	//   - error: ErrUnsupportedFormat, or an error if the data is malformed
	LoadReader(name string, r io.Reader, format Format) (*Asset, error)

	// Get returns a cached asset, or nil.
	Get(name string) *Asset

	// Assets returns a copy of the cache.
	Assets() map[string]*Asset

	// Release frees every cached asset and empties the cache.
	Release()
}

type loader struct {
	mu *sync.RWMutex

	dev     device.Device
	sampler *common.SamplerStagingData

	cache map[string]*Asset
}

var _ Loader = &loader{}

// NewLoader creates a Loader.
//
// Parameters:
//   - options: functional options such as WithDevice
//
// Returns:
//   - Loader: the new loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:    &sync.RWMutex{},
		cache: make(map[string]*Asset),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func backendFor(format Format) (loaderBackend, error) {
	switch format {
	case FormatOBJ:
		return newOBJBackend(), nil
	case FormatGLTF:
		return newGLTFBackend(false), nil
	case FormatGLB:
		return newGLTFBackend(true), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

func (l *loader) Load(path string) (*Asset, error) {
	key := filepath.Clean(path)
	if cached := l.Get(key); cached != nil {
		return cached, nil
	}

	backend, err := backendFor(FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	imported, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return l.store(key, imported)
}

func (l *loader) LoadReader(name string, r io.Reader, format Format) (*Asset, error) {
	if cached := l.Get(name); cached != nil {
		return cached, nil
	}

	backend, err := backendFor(format)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", name, err)
	}
	imported, err := backend.LoadReader(r)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", name, err)
	}
	if imported.Name == "" {
		imported.Name = name
	}
	return l.store(name, imported)
}

// store builds the asset and caches it. If another load of the same key finished first, that
// asset wins and this one is released.
func (l *loader) store(key string, imported *Imported) (*Asset, error) {
	asset, err := l.build(imported)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.cache[key]; ok {
		asset.Release()
		return existing, nil
	}
	l.cache[key] = asset

	common.Logger().Info("model loaded", "key", key, "parts", len(asset.Parts), "materials", len(imported.Materials))
	return asset, nil
}

// build turns imported data into models and, when the loader has a device, materials.
func (l *loader) build(imported *Imported) (_ *Asset, err error) {
	asset := &Asset{Name: imported.Name}
	defer func() {
		if err != nil {
			asset.Release()
		}
	}()

	if l.dev != nil {
		for i := range imported.Materials {
			m, err := l.material(&imported.Materials[i])
			if err != nil {
				return nil, err
			}
			asset.materials = append(asset.materials, m)
		}
	}

	for _, mesh := range imported.Meshes {
		mdl, err := model.NewModel(mesh.Data, model.WithName(mesh.Name))
		if err != nil {
			return nil, fmt.Errorf("mesh %q: %w", mesh.Name, err)
		}
		part := Part{Name: mesh.Name, Model: mdl}
		if mesh.MaterialIndex >= 0 && mesh.MaterialIndex < len(imported.Materials) {
			part.Source = &imported.Materials[mesh.MaterialIndex]
			if asset.materials != nil {
				part.Material = asset.materials[mesh.MaterialIndex]
			}
		}
		asset.Parts = append(asset.Parts, part)
	}
	return asset, nil
}

func (l *loader) material(src *ImportedMaterial) (material.Material, error) {
	opts := []material.MaterialBuilderOption{
		material.WithName(src.Name),
		material.WithBaseColor(src.BaseColor),
		material.WithMetallic(src.Metallic),
		material.WithRoughness(src.Roughness),
	}
	if src.Texture != nil {
		opts = append(opts, material.WithTexture(*src.Texture))
	}
	switch {
	case src.Sampler != nil:
		opts = append(opts, material.WithSampler(*src.Sampler))
	case l.sampler != nil:
		opts = append(opts, material.WithSampler(*l.sampler))
	}
	m, err := material.NewMaterial(l.dev, opts...)
	if err != nil {
		return nil, fmt.Errorf("material %q: %w", src.Name, err)
	}
	return m, nil
}

func (l *loader) Get(name string) *Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[name]
}

func (l *loader) Assets() map[string]*Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]*Asset, len(l.cache))
	for k, v := range l.cache {
		out[k] = v
	}
	return out
}

func (l *loader) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, asset := range l.cache {
		asset.Release()
	}
	l.cache = make(map[string]*Asset)
}
