// Package window wraps a GLFW window: it supplies the surface descriptor the GPU device presents
// into and forwards resize and input events to callbacks.
package window

import (
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides platform windowing and input event handling.
// All methods except the callback setters must be called from the thread that created it.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving the scroll delta (positive = up)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	SetKeyDownCallback(callback func(key common.Key))

	// SetKeyUpCallback sets the callback for key release events.
	SetKeyUpCallback(callback func(key common.Key))

	// SetDragCallback sets the callback for cursor movement while the middle mouse button is held.
	//
	// Parameters:
	//   - callback: function receiving the cursor delta in pixels since the last event
	SetDragCallback(callback func(dx, dy float32))

	// SurfaceDescriptor returns the descriptor the GPU device creates its surface from.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is open.
	IsRunning() bool

	// Close destroys the window.
	Close() error

	// ProcessMessages runs the event loop until the window closes.
	ProcessMessages()

	// Size returns the framebuffer size in pixels.
	Size() (width, height int)

	Title() string
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title string

	minWidth, minHeight int
	maxWidth, maxHeight int
	width, height       int
	resizable           bool

	internalWindow *glfwWindow

	onUpdate  func()
	onResize  func(width, height int)
	onScroll  func(delta float32)
	onKeyDown func(key common.Key)
	onKeyUp   func(key common.Key)
	onDrag    func(dx, dy float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine is locked to its OS thread, which
// must be the main thread on macOS.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if GLFW cannot be initialized or the window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-core",
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, fmt.Errorf("window size %dx%d must be positive", w.width, w.height)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	common.Logger().Info("window created", "title", w.title, "width", w.width, "height", w.height)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(key common.Key)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(key common.Key)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SetDragCallback(callback func(dx, dy float32)) {
	w.onDrag = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() (int, int) {
	return w.width, w.height
}

func (w *engineWindow) Title() string {
	return w.title
}
