package engine

import (
	"log/slog"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/config"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/scene"
	"github.com/Carmen-Shannon/oxy-core/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables frame statistics logging.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow attaches the window the renderer presents into. Framebuffer resizes are forwarded to
// the renderer and scene cameras, and Run drives the window's message loop.
//
// Parameters:
//   - w: an open Window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithScene registers a scene at the given z-index key during engine construction.
//
// Parameters:
//   - key: the z-index determining draw order (lower draws first)
//   - s: the Scene to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameDuration(fps)
	}
}

// WithLogLevel installs a text handler on stderr at the given level as the package-wide logger.
//
// Parameters:
//   - level: the minimum level that is logged
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogLevel(level slog.Level) EngineBuilderOption {
	return func(_ *engine) {
		installLogger(level)
	}
}

func installLogger(level slog.Level) {
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// withRelease registers a function Release calls. Functions run in reverse registration order.
func withRelease(release func()) EngineBuilderOption {
	return func(e *engine) {
		e.releases = append(e.releases, release)
	}
}

// ConfigOptions translates the engine and log sections of cfg into engine options.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - []EngineBuilderOption: tick rate, frame limit, profiling and log level options
func ConfigOptions(cfg *config.Config) []EngineBuilderOption {
	opts := []EngineBuilderOption{
		WithTickRate(cfg.Engine.TickRate),
		WithRenderFrameLimit(cfg.Engine.FrameLimit),
		WithProfiling(cfg.Engine.Profiling),
	}
	if level, err := cfg.LogLevel(); err == nil {
		opts = append(opts, WithLogLevel(level))
	}
	return opts
}
