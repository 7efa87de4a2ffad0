// Package scene turns a set of game objects and a camera into the draw items of one frame.
package scene

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/game_object"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/slot_table"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/uniform"
)

// Default bind group indices used by scene draw items.
const (
	DefaultTransformGroup uint32 = 0
	DefaultMaterialGroup  uint32 = 1
)

// ErrNoCamera is returned by Prepare when the scene has no camera.
var ErrNoCamera = errors.New("scene has no camera")

// Scene owns a set of game objects, a camera and the slot table holding each object's transform
// uniform. Every object gets its own group in the table, keyed by object ID, with the transform
// at binding 0. Thread-safe for concurrent access.
type Scene interface {
	// Name returns the name of the scene.
	Name() string

	// Active reports whether the engine renders this scene.
	Active() bool

	// SetActive sets whether the engine renders this scene.
	SetActive(active bool)

	// Camera returns the camera objects are composed against.
	Camera() camera.Camera

	// SetCamera replaces the camera. Every object recomposes on the next Prepare.
	SetCamera(cam camera.Camera)

	// Offscreen reports whether the scene's items go to the offscreen pass.
	Offscreen() bool

	// Table returns the slot table holding the transform uniforms.
	Table() slot_table.SlotTable

	// Add registers an object and declares its transform slot. Objects without an ID are
	// assigned one.
	//
	// Parameters:
	//   - obj: the object to add
	//
	// Returns:
	//   - uint64: the object's ID
	//   - error: an error if the ID is taken or the slot cannot be declared
	Add(obj game_object.GameObject) (uint64, error)

	// Get returns the object with the given ID, or nil.
	Get(id uint64) game_object.GameObject

	// Remove unregisters an object and frees its transform group.
	Remove(id uint64)

	// Count returns the number of registered objects.
	Count() int

	// Objects returns the registered objects ordered by ID.
	Objects() []game_object.GameObject

	// Update advances every object by dt seconds.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Update(dt float32)

	// Prepare composes every visible object on the worker pool, waits for all of them, writes
	// the changed transforms into the slot table and returns one draw item per drawn object in
	// ID order. Objects that fail to compose or upload are logged and left out.
	//
	// Returns:
	//   - []renderer.DrawItem: the frame's items
	//   - error: ErrNoCamera
	Prepare() ([]renderer.DrawItem, error)

	// Release frees the transform table.
	Release()
}

type entry struct {
	obj        game_object.GameObject
	composed   int
	written    bool
	payload    uniform.Payload
	composeErr error
}

type scene struct {
	mu *sync.RWMutex

	name      string
	active    bool
	offscreen bool

	cam      camera.Camera
	r        renderer.Renderer
	table    slot_table.SlotTable
	pipeline pipeline.Pipeline

	transformGroup uint32
	materialGroup  uint32

	objects map[uint64]*entry
	nextID  uint64
	pending []game_object.GameObject

	// composePool is a bounded set of goroutines reused across frames for Prepare.
	composePool    worker.DynamicWorkerPool
	composeWorkers int
}

var _ Scene = &scene{}

// NewScene creates a scene drawing through r.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera objects are composed against
//   - r: the renderer whose device the scene uploads to
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the new scene
//   - error: an error if cam or r is nil
func NewScene(name string, cam camera.Camera, r renderer.Renderer, options ...SceneBuilderOption) (Scene, error) {
	if cam == nil {
		return nil, fmt.Errorf("scene %q: %w", name, ErrNoCamera)
	}
	if r == nil {
		return nil, fmt.Errorf("scene %q: renderer is required", name)
	}

	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		active:         true,
		cam:            cam,
		r:              r,
		transformGroup: DefaultTransformGroup,
		materialGroup:  DefaultMaterialGroup,
		objects:        make(map[uint64]*entry),
		nextID:         1,
		composeWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}

	s.table = slot_table.NewSlotTable(r.Device(), slot_table.WithLabel(name+" Transforms"))
	s.composePool = worker.NewDynamicWorkerPool(s.composeWorkers, 256, 1*time.Second)

	for _, obj := range s.pending {
		if _, err := s.Add(obj); err != nil {
			s.table.Release()
			return nil, err
		}
	}
	s.pending = nil
	return s, nil
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Offscreen() bool {
	return s.offscreen
}

func (s *scene) Table() slot_table.SlotTable {
	return s.table
}

func (s *scene) Add(obj game_object.GameObject) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := obj.ID()
	if id == 0 {
		for s.objects[s.nextID] != nil {
			s.nextID++
		}
		id = s.nextID
		s.nextID++
		obj.SetID(id)
	} else if s.objects[id] != nil {
		return 0, fmt.Errorf("scene %q: object id %d already added", s.name, id)
	}

	zero, err := uniform.Zeroed(game_object.TransformLayout(obj.Composition()))
	if err != nil {
		return 0, fmt.Errorf("scene %q: %w", s.name, err)
	}
	if err := s.table.Declare(int(id), 0, slot_table.SlotKindUniformBuffer, slot_table.UniformResource(zero)); err != nil {
		return 0, fmt.Errorf("scene %q: object %d: %w", s.name, id, err)
	}

	s.objects[id] = &entry{obj: obj}
	common.Logger().Debug("object added", "scene", s.name, "object", obj.Label(), "id", id)
	return id, nil
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.objects[id]; e != nil {
		return e.obj
	}
	return nil
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return
	}
	delete(s.objects, id)
	s.table.Remove(int(id))
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) Objects() []game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]game_object.GameObject, 0, len(s.objects))
	for _, id := range s.sortedIDs() {
		out = append(out, s.objects[id].obj)
	}
	return out
}

func (s *scene) Update(dt float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.objects {
		e.obj.Advance(dt)
	}
}

func (s *scene) Prepare() ([]renderer.DrawItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam == nil {
		return nil, fmt.Errorf("scene %q: %w", s.name, ErrNoCamera)
	}

	ids := s.sortedIDs()
	visible := make([]*entry, 0, len(ids))
	visibleIDs := make([]uint64, 0, len(ids))
	for _, id := range ids {
		e := s.objects[id]
		if !e.obj.Visible() || e.obj.Model() == nil {
			continue
		}
		visible = append(visible, e)
		visibleIDs = append(visibleIDs, id)
	}

	// Compose runs in parallel. The WaitGroup is the barrier: no slot is written until every
	// object has finished.
	cam := s.cam
	var wg sync.WaitGroup
	for i, e := range visible {
		wg.Add(1)
		ec := e
		s.composePool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				ec.payload, ec.composeErr = ec.obj.Compose(cam)
				return nil, nil
			},
		})
	}
	wg.Wait()

	log := common.Logger()
	dev := s.r.Device()
	items := make([]renderer.DrawItem, 0, len(visible))
	for i, e := range visible {
		id := visibleIDs[i]
		obj := e.obj
		if e.composeErr != nil {
			log.Warn("object skipped", "scene", s.name, "object", obj.Label(), "id", id, "error", e.composeErr)
			continue
		}

		if n := obj.Compositions(); n != e.composed || !e.written {
			if err := s.table.Update(int(id), 0, slot_table.UniformResource(e.payload)); err != nil {
				log.Warn("object skipped", "scene", s.name, "object", obj.Label(), "id", id, "error", err)
				continue
			}
			e.composed = n
			e.written = true
		}

		mesh, err := obj.Model().Upload(dev)
		if err != nil {
			log.Warn("object skipped", "scene", s.name, "object", obj.Label(), "id", id, "error", err)
			continue
		}

		p := obj.Pipeline()
		if p == nil {
			p = s.pipeline
		}
		bindings := []renderer.GroupBinding{{Index: s.transformGroup, Table: s.table, Group: int(id)}}
		if mat := obj.Material(); mat != nil {
			bindings = append(bindings, mat.Binding(s.materialGroup))
		}

		items = append(items, renderer.DrawItem{
			Label:         obj.Label(),
			Pipeline:      p,
			Mesh:          mesh,
			InstanceCount: obj.InstanceCount(),
			Bindings:      bindings,
		})
	}
	return items, nil
}

func (s *scene) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Release()
}

func (s *scene) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
