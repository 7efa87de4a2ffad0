package engine

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/engine/config"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/window"
)

// NewFromConfig opens a window, creates the GPU device presenting into it, the renderer and the
// configured offscreen target, and returns an engine owning all of them. Release frees them.
// Must be called from the main thread.
//
// Parameters:
//   - cfg: a validated configuration, usually from config.Load
//   - options: further engine options applied after the config's own
//
// Returns:
//   - Engine: the engine
//   - error: error if any of the window, device, renderer or offscreen target cannot be created
func NewFromConfig(cfg *config.Config, options ...EngineBuilderOption) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if level, err := cfg.LogLevel(); err == nil {
		installLogger(level)
	}

	win, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
	)
	if err != nil {
		return nil, err
	}
	releases := []func(){func() { _ = win.Close() }}
	cleanup := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	devOpts := append(cfg.DeviceOptions(), device.WithSurfaceDescriptor(win.SurfaceDescriptor()))
	dev, err := device.NewWGPUDevice(devOpts...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create device: %w", err)
	}
	releases = append(releases, dev.Release)

	width, height := win.Size()
	r, err := renderer.NewRenderer(dev, width, height, cfg.RendererOptions()...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	releases = append(releases, r.Release)

	off, err := cfg.NewOffscreenTarget(dev)
	if err != nil {
		cleanup()
		return nil, err
	}
	if off != nil {
		r.SetOffscreenTarget(off)
		releases = append(releases, off.Release)
	}

	opts := []EngineBuilderOption{WithWindow(win)}
	for _, release := range releases {
		opts = append(opts, withRelease(release))
	}
	opts = append(opts, ConfigOptions(cfg)...)
	opts = append(opts, options...)
	return NewEngine(r, opts...)
}
