// Package config loads the engine's YAML configuration and translates it into the functional
// options the device, renderer and engine constructors take.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/cogentcore/webgpu/wgpu"
	"gopkg.in/yaml.v3"
)

// MaxConfigSize bounds the size of a config file read by Load.
const MaxConfigSize = 1 << 20

// Config is the root of an engine config file.
type Config struct {
	Window   WindowConfig   `yaml:"window"`
	Renderer RendererConfig `yaml:"renderer"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

// WindowConfig describes the platform window.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// RendererConfig describes the device and the surface and offscreen targets.
type RendererConfig struct {
	// ClearColor is RGBA in [0, 1]. Three components imply alpha 1.
	ClearColor           []float64       `yaml:"clear_color"`
	MSAA                 uint32          `yaml:"msaa"`
	PresentMode          string          `yaml:"present_mode"`
	ForceFallbackAdapter bool            `yaml:"force_fallback_adapter"`
	Offscreen            OffscreenConfig `yaml:"offscreen"`
}

// OffscreenConfig describes the optional offscreen target. A zero size disables it.
type OffscreenConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Format string `yaml:"format"`
}

// EngineConfig describes the update and render loops.
type EngineConfig struct {
	TickRate   float64 `yaml:"tick_rate"`
	FrameLimit float64 `yaml:"frame_limit"`
	Profiling  bool    `yaml:"profiling"`
}

// LogConfig sets the level of the text handler the engine installs.
type LogConfig struct {
	Level string `yaml:"level"`
}

var offscreenFormats = map[string]wgpu.TextureFormat{
	"rgba8unorm":      wgpu.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb": wgpu.TextureFormatRGBA8UnormSrgb,
	"bgra8unorm":      wgpu.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb": wgpu.TextureFormatBGRA8UnormSrgb,
	"rgba16float":     wgpu.TextureFormatRGBA16Float,
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - *Config: a valid configuration
func Default() *Config {
	cc := target.DefaultClearColor
	return &Config{
		Window: WindowConfig{
			Title:  "oxy-core",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			ClearColor:  []float64{cc.R, cc.G, cc.B, cc.A},
			MSAA:        uint32(device.MSAA4x),
			PresentMode: device.PresentModeVSync.String(),
		},
		Engine: EngineConfig{
			TickRate: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads and parses a config file.
//
// Parameters:
//   - path: path to a YAML config file
//
// Returns:
//   - *Config: the parsed configuration
//   - error: error if the file cannot be read, is too large, or fails validation
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.Size() > MaxConfigSize {
		return nil, fmt.Errorf("config %s is %d bytes, limit is %d", path, info.Size(), MaxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, so omitted keys keep their default values.
//
// Parameters:
//   - data: YAML document
//
// Returns:
//   - *Config: the parsed configuration
//   - error: error if the document is malformed or fails validation
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that the option translators depend on.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid config: window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if n := len(c.Renderer.ClearColor); n != 3 && n != 4 {
		return fmt.Errorf("invalid config: clear_color needs 3 or 4 components, got %d", n)
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid config: clear_color[%d] = %v is outside [0, 1]", i, v)
		}
	}
	if !device.MSAASampleCount(c.Renderer.MSAA).Valid() {
		return fmt.Errorf("invalid config: msaa %d must be 1, 4, 8 or 16", c.Renderer.MSAA)
	}
	if _, ok := device.ParsePresentMode(c.Renderer.PresentMode); !ok {
		return fmt.Errorf("invalid config: unknown present_mode %q", c.Renderer.PresentMode)
	}
	off := c.Renderer.Offscreen
	if off.Width < 0 || off.Height < 0 || (off.Width == 0) != (off.Height == 0) {
		return fmt.Errorf("invalid config: offscreen size %dx%d", off.Width, off.Height)
	}
	if off.Format != "" {
		if _, ok := offscreenFormats[strings.ToLower(off.Format)]; !ok {
			return fmt.Errorf("invalid config: unknown offscreen format %q", off.Format)
		}
	}
	if c.Engine.TickRate <= 0 {
		return fmt.Errorf("invalid config: tick_rate %v must be positive", c.Engine.TickRate)
	}
	if c.Engine.FrameLimit < 0 {
		return fmt.Errorf("invalid config: frame_limit %v must not be negative", c.Engine.FrameLimit)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LogLevel parses Log.Level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// ClearColor returns Renderer.ClearColor as a wgpu color.
func (c *Config) ClearColor() wgpu.Color {
	cc := c.Renderer.ClearColor
	color := wgpu.Color{A: 1}
	if len(cc) >= 3 {
		color.R, color.G, color.B = cc[0], cc[1], cc[2]
	}
	if len(cc) == 4 {
		color.A = cc[3]
	}
	return color
}

// PresentMode returns the parsed present mode, defaulting to vsync.
func (c *Config) PresentMode() device.PresentMode {
	mode, _ := device.ParsePresentMode(c.Renderer.PresentMode)
	return mode
}

// DeviceOptions translates the config into options for device.NewWGPUDevice.
//
// Returns:
//   - []device.DeviceBuilderOption: the present mode and adapter options
func (c *Config) DeviceOptions() []device.DeviceBuilderOption {
	return []device.DeviceBuilderOption{
		device.WithPresentMode(c.PresentMode()),
		device.WithForceFallbackAdapter(c.Renderer.ForceFallbackAdapter),
	}
}

// RendererOptions translates the config into options for renderer.NewRenderer.
//
// Returns:
//   - []renderer.RendererBuilderOption: the MSAA, clear color and present mode options
func (c *Config) RendererOptions() []renderer.RendererBuilderOption {
	return []renderer.RendererBuilderOption{
		renderer.WithMSAA(device.MSAASampleCount(c.Renderer.MSAA)),
		renderer.WithClearColor(c.ClearColor()),
		renderer.WithPresentMode(c.PresentMode()),
	}
}

// NewOffscreenTarget creates the configured offscreen target. It returns nil without error when
// the config has no offscreen size.
//
// Parameters:
//   - dev: the device textures are created on
//
// Returns:
//   - target.Target: the offscreen target, or nil
//   - error: error if the target cannot be created
func (c *Config) NewOffscreenTarget(dev device.Device) (target.Target, error) {
	off := c.Renderer.Offscreen
	if off.Width == 0 || off.Height == 0 {
		return nil, nil
	}
	opts := []target.TargetBuilderOption{
		target.WithSampleCount(device.MSAASampleCount(c.Renderer.MSAA)),
		target.WithClearColor(c.ClearColor()),
	}
	if format, ok := offscreenFormats[strings.ToLower(off.Format)]; ok {
		opts = append(opts, target.WithFormat(format))
	}
	t, err := target.NewOffscreen(dev, uint32(off.Width), uint32(off.Height), opts...)
	if err != nil {
		return nil, fmt.Errorf("create offscreen target: %w", err)
	}
	return t, nil
}
