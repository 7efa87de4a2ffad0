package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/gpu_error"
	"github.com/Carmen-Shannon/oxy-core/engine/scene"
	"github.com/Carmen-Shannon/oxy-core/engine/window"
)

// ErrEngineRunning is returned by Run when the engine is already running.
var ErrEngineRunning = errors.New("engine is already running")

// The render loop waits between consecutive skipped frames, doubling from minSurfaceBackoff up to
// maxSurfaceBackoff, so a minimized window does not spin. A drawn frame resets the wait.
const (
	minSurfaceBackoff = 5 * time.Millisecond
	maxSurfaceBackoff = 250 * time.Millisecond
)

// nextSurfaceBackoff returns the wait after another skipped frame.
func nextSurfaceBackoff(current time.Duration) time.Duration {
	if current < minSurfaceBackoff {
		return minSurfaceBackoff
	}
	return min(current*2, maxSurfaceBackoff)
}

// engine implements the Engine interface.
// Coordinates the tick, render and window threads.
type engine struct {
	mu *sync.RWMutex

	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    *sync.Once
	fatal       error

	window   window.Window
	renderer renderer.Renderer
	releases []func()

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenes map[int]scene.Scene

	renderFrameLimit time.Duration
}

// Engine runs a fixed-rate tick loop that advances scenes and a render loop that prepares every
// active scene, merges their items into one frame and submits it through the renderer.
type Engine interface {
	// Window returns the window the engine presents into, or nil when headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer frames are submitted through.
	Renderer() renderer.Renderer

	// Profiler returns the frame statistics profiler.
	Profiler() *profiler.Profiler

	// EnableProfiler enables frame statistics logging.
	EnableProfiler()

	// DisableProfiler disables frame statistics logging.
	DisableProfiler()

	// SetTickRate sets the tick rate in ticks per second. Takes effect immediately if running.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick after the scenes are updated.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key.
	// Scenes contribute their items in ascending key order.
	//
	// Parameters:
	//   - key: the z-index determining draw order (lower draws first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key.
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key, or nil.
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	Scenes() map[int]scene.Scene

	// Resize forwards a new framebuffer size to the renderer and the aspect ratio to every
	// scene's camera.
	//
	// Parameters:
	//   - width: framebuffer width in pixels
	//   - height: framebuffer height in pixels
	Resize(width, height int)

	// BuildFrame prepares every active scene in key order. Items of offscreen scenes go to the
	// offscreen pass and the rest to the main pass. A scene that fails to prepare is logged and
	// left out.
	//
	// Returns:
	//   - renderer.Frame: the merged frame
	BuildFrame() renderer.Frame

	// RenderOnce builds and submits one frame.
	//
	// Parameters:
	//   - ctx: cancels the frame before submission
	//
	// Returns:
	//   - renderer.FrameStats: counts for the frame
	//   - error: the renderer's error, see renderer.Renderer.RenderFrame
	RenderOnce(ctx context.Context) (renderer.FrameStats, error)

	// Run starts the tick and render loops and blocks until the window closes, ctx is done,
	// Quit is called or the device is lost. When a window is attached Run must be called from the
	// thread that created it.
	//
	// Parameters:
	//   - ctx: stops the engine when done
	//
	// Returns:
	//   - error: the device-lost error that stopped the engine, or nil
	Run(ctx context.Context) error

	// Running reports whether Run is in progress.
	Running() bool

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release frees the renderer, device and window the engine created itself.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates an engine that submits frames through r.
//
// Parameters:
//   - r: the renderer frames are submitted through
//   - options: functional options for engine configuration (profiling, tick rate, window, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if r is nil
func NewEngine(r renderer.Renderer, options ...EngineBuilderOption) (Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("engine: renderer is required")
	}
	e := &engine{
		mu:              &sync.RWMutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		quitOnce:        &sync.Once{},
		renderer:        r,
		scenes:          make(map[int]scene.Scene),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.Resize)
	}
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrEngineRunning
	}
	e.running = true
	e.fatal = nil
	e.quitChannel = make(chan struct{})
	e.quitOnce = &sync.Once{}
	quit := e.quitChannel
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			e.signalQuit()
		case <-quit:
		}
	}()

	e.wg.Add(2)
	go e.handleEngine(quit)
	go e.handleRender(ctx, quit)

	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-quit:
				if err := e.window.Close(); err != nil {
					common.Logger().Debug("window close", "error", err)
				}
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	} else {
		<-quit
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return e.fatal
}

// Quit signals all engine goroutines to stop.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.mu.RLock()
	once, quit := e.quitOnce, e.quitChannel
	e.mu.RUnlock()
	once.Do(func() {
		close(quit)
	})
}

// fail records the error that stops the engine and signals quit.
func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.fatal == nil {
		e.fatal = err
	}
	e.mu.Unlock()
	e.signalQuit()
}

func (e *engine) Release() {
	e.mu.Lock()
	releases := e.releases
	e.releases = nil
	e.mu.Unlock()
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// handleEngine runs the fixed-rate tick loop. Each tick updates every active scene, then fires
// the tick callback. Listens for tick rate changes via tickRateChannel.
func (e *engine) handleEngine(quit <-chan struct{}) {
	defer e.wg.Done()

	e.mu.RLock()
	rate := e.engineTickRate
	e.mu.RUnlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
		}
	}
}

func (e *engine) tick(dt float32) {
	for _, s := range e.activeScenes() {
		s.Update(dt)
	}
	e.mu.RLock()
	callback := e.tickCallback
	e.mu.RUnlock()
	if callback != nil {
		callback(dt)
	}
}

// handleRender runs the uncapped (or frame-limited) render loop. Surface loss skips a frame;
// device loss stops the engine. Recovers from panics and signals quit on recovery.
func (e *engine) handleRender(ctx context.Context, quit <-chan struct{}) {
	defer e.wg.Done()
	// wgpu calls for one device stay on one OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render goroutine recovered from panic", "panic", r)
			e.fail(fmt.Errorf("render goroutine panic: %v", r))
		}
	}()

	log := common.Logger()
	lastRender := time.Now()
	var backoff time.Duration
	for {
		select {
		case <-quit:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		stats, err := e.RenderOnce(ctx)
		e.mu.RLock()
		profiling, callback, limit := e.profilingEnabled, e.renderCallback, e.renderFrameLimit
		e.mu.RUnlock()

		switch {
		case err == nil:
			backoff = 0
			if profiling {
				e.profiler.Tick(stats)
			}
		case gpu_error.IsDeviceLost(err):
			log.Error("device lost, stopping engine", "error", err)
			e.fail(err)
			return
		case gpu_error.IsSurfaceLost(err):
			log.Debug("frame skipped", "error", err)
			backoff = nextSurfaceBackoff(backoff)
			if profiling {
				e.profiler.Drop()
			}
		case ctx.Err() != nil:
			return
		default:
			log.Warn("frame failed", "error", err)
		}

		if callback != nil {
			callback(dt)
		}

		wait := backoff
		if limit > 0 {
			wait = max(wait, limit-time.Since(now))
		}
		if wait > 0 {
			select {
			case <-quit:
				return
			case <-time.After(wait):
			}
		}
	}
}

func (e *engine) RenderOnce(ctx context.Context) (renderer.FrameStats, error) {
	return e.renderer.RenderFrame(ctx, e.BuildFrame())
}

func (e *engine) BuildFrame() renderer.Frame {
	var frame renderer.Frame
	for _, s := range e.activeScenes() {
		items, err := s.Prepare()
		if err != nil {
			common.Logger().Warn("scene skipped", "scene", s.Name(), "error", err)
			continue
		}
		if s.Offscreen() {
			frame.Offscreen = append(frame.Offscreen, items...)
		} else {
			frame.Main = append(frame.Main, items...)
		}
	}
	return frame
}

func (e *engine) Resize(width, height int) {
	e.renderer.Resize(width, height)
	if width <= 0 || height <= 0 {
		return
	}
	aspect := float32(width) / float32(height)
	for _, s := range e.Scenes() {
		if c := s.Camera(); c != nil {
			c.SetAspect(aspect)
		}
	}
}

// activeScenes returns the active scenes in ascending key order.
func (e *engine) activeScenes() []scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	active := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		if s := e.scenes[k]; s.Active() {
			active = append(active, s)
		}
	}
	return active
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	e.engineTickRate = newRate
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}

	// replace any pending update that the loop has not picked up yet
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderFrameLimit = frameDuration(fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

// frameDuration converts a rate to a period. Rates <= 0 yield 0.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
