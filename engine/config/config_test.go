package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/device/mock"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/target"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
window:
  title: Cubes
  width: 1920
  height: 1080
renderer:
  clear_color: [0.1, 0.2, 0.3]
  msaa: 1
  present_mode: uncapped
  force_fallback_adapter: true
  offscreen:
    width: 256
    height: 128
    format: RGBA8Unorm
engine:
  tick_rate: 120
  frame_limit: 144
  profiling: true
log:
  level: debug
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, target.DefaultClearColor, cfg.ClearColor())
	assert.Equal(t, device.PresentModeVSync, cfg.PresentMode())
	assert.Len(t, cfg.RendererOptions(), 3)
	assert.Len(t, cfg.DeviceOptions(), 2)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, WindowConfig{Title: "Cubes", Width: 1920, Height: 1080}, cfg.Window)
	assert.Equal(t, wgpu.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}, cfg.ClearColor())
	assert.Equal(t, uint32(1), cfg.Renderer.MSAA)
	assert.Equal(t, device.PresentModeUncapped, cfg.PresentMode())
	assert.True(t, cfg.Renderer.ForceFallbackAdapter)
	assert.Equal(t, 120.0, cfg.Engine.TickRate)
	assert.Equal(t, 144.0, cfg.Engine.FrameLimit)
	assert.True(t, cfg.Engine.Profiling)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseKeepsDefaultsForOmittedKeys(t *testing.T) {
	cfg, err := Parse([]byte("window:\n  title: Only Title\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, "Only Title", cfg.Window.Title)
	assert.Equal(t, def.Window.Width, cfg.Window.Width)
	assert.Equal(t, def.Renderer, cfg.Renderer)
	assert.Equal(t, def.Engine, cfg.Engine)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "window: [1, 2"},
		{"zero width", "window:\n  width: 0\n"},
		{"short clear color", "renderer:\n  clear_color: [1, 1]\n"},
		{"clear color out of range", "renderer:\n  clear_color: [2, 0, 0, 1]\n"},
		{"msaa", "renderer:\n  msaa: 3\n"},
		{"present mode", "renderer:\n  present_mode: mailbox\n"},
		{"half offscreen size", "renderer:\n  offscreen:\n    width: 64\n"},
		{"offscreen format", "renderer:\n  offscreen:\n    width: 64\n    height: 64\n    format: r8uint\n"},
		{"tick rate", "engine:\n  tick_rate: 0\n"},
		{"frame limit", "engine:\n  frame_limit: -1\n"},
		{"log level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Cubes", cfg.Window.Title)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("engine:\n  tick_rate: -5\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "bad.yaml")
}

func TestNewOffscreenTarget(t *testing.T) {
	dev := mock.NewDevice(wgpu.TextureFormatBGRA8Unorm)

	off, err := Default().NewOffscreenTarget(dev)
	require.NoError(t, err)
	assert.Nil(t, off)

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	off, err = cfg.NewOffscreenTarget(dev)
	require.NoError(t, err)
	require.NotNil(t, off)
	defer off.Release()

	w, h := off.Size()
	assert.Equal(t, uint32(256), w)
	assert.Equal(t, uint32(128), h)
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, off.Format())
	assert.Equal(t, uint32(1), off.SampleCount())
	assert.Equal(t, cfg.ClearColor(), off.ClearColor())
}
