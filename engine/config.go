package engine

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/scene"
)

// BackendVulkan and BackendSoftware name the renderer backends the
// engine can construct.
const (
	BackendVulkan   = "vulkan"
	BackendSoftware = "software"
)

type AppConfig struct {
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// MaxFrames stops the run loop after this many frames; 0 runs
	// until interrupted.
	MaxFrames uint64 `toml:"max_frames"`
}

type RendererConfig struct {
	Backend    string `toml:"backend"`
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	Validation bool   `toml:"validation"`
	// CapturePath, when set, writes the colour target of frame
	// CaptureFrame to this file (.png or .bmp).
	CapturePath  string `toml:"capture_path"`
	CaptureFrame uint64 `toml:"capture_frame"`
}

type AssetsConfig struct {
	Root  string `toml:"root"`
	Watch bool   `toml:"watch"`
}

type SceneConfig struct {
	Default               string `toml:"default"`
	ReleaseCPUAfterUpload bool   `toml:"release_cpu_after_upload"`
	DrawsPerCommandBuffer int    `toml:"draws_per_command_buffer"`
	RecordWorkers         int    `toml:"record_workers"`
}

// Config is the engine configuration, read from a TOML file.
type Config struct {
	App      AppConfig      `toml:"app"`
	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
	Scene    SceneConfig    `toml:"scene"`
}

func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:     "Kiln",
			LogLevel: "info",
		},
		Renderer: RendererConfig{
			Backend: BackendSoftware,
			Width:   1280,
			Height:  720,
		},
		Assets: AssetsConfig{
			Root: "assets",
		},
		Scene: SceneConfig{
			Default:       "demo",
			RecordWorkers: runtime.NumCPU(),
		},
	}
}

// LoadConfig reads a TOML configuration, overlaying it onto the
// defaults. A missing file is not an error; the defaults stand.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		core.LogWarn("config file %s not found, using defaults", path)
		return config, config.Validate()
	}
	if err != nil {
		return config, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &config); err != nil {
		err = fmt.Errorf("parsing config %s: %w", path, err)
		core.LogError(err.Error())
		return config, err
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Renderer.Backend != BackendVulkan && c.Renderer.Backend != BackendSoftware {
		err := fmt.Errorf("unknown renderer backend %q (want %q or %q)", c.Renderer.Backend, BackendVulkan, BackendSoftware)
		core.LogError(err.Error())
		return err
	}
	if c.Renderer.Width == 0 || c.Renderer.Height == 0 {
		err := fmt.Errorf("renderer resolution %dx%d is not drawable", c.Renderer.Width, c.Renderer.Height)
		core.LogError(err.Error())
		return err
	}
	if c.Scene.Default == "" {
		err := fmt.Errorf("no default scene configured")
		core.LogError(err.Error())
		return err
	}
	if c.Scene.RecordWorkers < 0 {
		err := fmt.Errorf("record_workers must not be negative, got %d", c.Scene.RecordWorkers)
		core.LogError(err.Error())
		return err
	}
	if c.Renderer.CapturePath != "" && c.App.MaxFrames != 0 && c.Renderer.CaptureFrame >= c.App.MaxFrames {
		err := fmt.Errorf("capture_frame %d never runs with max_frames %d", c.Renderer.CaptureFrame, c.App.MaxFrames)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// sceneConfig translates the scene section into the scene manager's
// own configuration type.
func (c *Config) sceneConfig() scene.Config {
	return scene.Config{
		ReleaseCPUAfterUpload: c.Scene.ReleaseCPUAfterUpload,
		DrawsPerCommandBuffer: c.Scene.DrawsPerCommandBuffer,
		RecordWorkers:         c.Scene.RecordWorkers,
	}
}
