package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiln.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, BackendSoftware, config.Renderer.Backend)
	assert.Equal(t, runtime.NumCPU(), config.Scene.RecordWorkers)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[app]
name = "demo"
log_level = "debug"
max_frames = 120

[renderer]
backend = "vulkan"
width = 640
height = 480
validation = true
capture_path = "captures/frame.png"
capture_frame = 60

[assets]
root = "testdata"
watch = true

[scene]
default = "cubes"
release_cpu_after_upload = true
draws_per_command_buffer = 16
record_workers = 2
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", config.App.Name)
	assert.Equal(t, "debug", config.App.LogLevel)
	assert.Equal(t, uint64(120), config.App.MaxFrames)
	assert.Equal(t, BackendVulkan, config.Renderer.Backend)
	assert.Equal(t, uint32(640), config.Renderer.Width)
	assert.True(t, config.Renderer.Validation)
	assert.Equal(t, "captures/frame.png", config.Renderer.CapturePath)
	assert.Equal(t, uint64(60), config.Renderer.CaptureFrame)
	assert.Equal(t, "testdata", config.Assets.Root)
	assert.True(t, config.Assets.Watch)
	assert.Equal(t, "cubes", config.Scene.Default)
	assert.True(t, config.Scene.ReleaseCPUAfterUpload)
	assert.Equal(t, 16, config.Scene.DrawsPerCommandBuffer)
	assert.Equal(t, 2, config.Scene.RecordWorkers)
}

func TestLoadConfigPartialFileKeepsOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
[scene]
default = "pit"
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "pit", config.Scene.Default)
	assert.Equal(t, BackendSoftware, config.Renderer.Backend)
	assert.Equal(t, uint32(1280), config.Renderer.Width)
}

func TestLoadConfigRejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, `[app`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown backend", mutate: func(c *Config) { c.Renderer.Backend = "metal" }},
		{name: "zero width", mutate: func(c *Config) { c.Renderer.Width = 0 }},
		{name: "zero height", mutate: func(c *Config) { c.Renderer.Height = 0 }},
		{name: "no default scene", mutate: func(c *Config) { c.Scene.Default = "" }},
		{name: "negative workers", mutate: func(c *Config) { c.Scene.RecordWorkers = -1 }},
		{name: "capture after last frame", mutate: func(c *Config) {
			c.Renderer.CapturePath = "out.bmp"
			c.Renderer.CaptureFrame = 10
			c.App.MaxFrames = 10
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}
