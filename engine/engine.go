// Package engine boots the renderer device, asset manager and scene
// manager from a single configuration and drives the frame loop:
// update, draw, optional frame capture, and scene hot reload when the
// description file changes on disk.
package engine

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joedavisdev/kiln/engine/assets"
	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
	"github.com/joedavisdev/kiln/engine/renderer/software"
	"github.com/joedavisdev/kiln/engine/renderer/vulkan"
	"github.com/joedavisdev/kiln/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	config       Config
	gameInstance *Game

	device       renderer.Device
	assetManager *assets.AssetManager
	sceneManager *scene.Manager

	clock      *core.Clock
	lastTime   float64
	frameIndex uint64
	isRunning  bool

	// reloads carries scene names from the watcher callback into the
	// frame loop, which is the only place managers are swapped.
	reloads chan string
	signals chan os.Signal
}

func New(config Config, game *Game) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if game == nil {
		game = &Game{}
	}

	assetManager, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       config,
		gameInstance: game,
		assetManager: assetManager,
		clock:        core.NewClock(),
		reloads:      make(chan string, 8),
		signals:      make(chan os.Signal, 1),
	}, nil
}

// Initialize brings up the subsystems in dependency order: events,
// assets, the renderer device (which needs the shader library), then
// the scene manager with the default scene loaded and baked.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	core.LoggerSetLevel(core.ParseLogLevel(e.config.App.LogLevel))

	if !core.EventInitialize() {
		core.LogWarn("event system was already initialized")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	root := e.config.Assets.Root
	if !filepath.IsAbs(root) {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		root = filepath.Join(wd, root)
	}
	if err := e.assetManager.Initialize(root, e.config.Assets.Watch); err != nil {
		return err
	}

	device, err := e.createDevice()
	if err != nil {
		return err
	}
	e.device = device

	e.sceneManager, err = scene.NewManager(e.device, e.assetManager, e.config.sceneConfig())
	if err != nil {
		return err
	}
	if err := e.sceneManager.Load(e.config.Scene.Default); err != nil {
		return err
	}
	if err := e.sceneManager.Bake(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_SCENE_FILE_CHANGED, e, e.onSceneFileChanged)
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized: backend=%s scene=%q", e.config.Renderer.Backend, e.config.Scene.Default)
	return nil
}

func (e *Engine) createDevice() (renderer.Device, error) {
	shaders, err := e.assetManager.LoadShaderLibrary()
	if err != nil {
		return nil, err
	}

	switch e.config.Renderer.Backend {
	case BackendVulkan:
		return vulkan.NewDevice(vulkan.Config{
			AppName:       e.config.App.Name,
			Width:         e.config.Renderer.Width,
			Height:        e.config.Renderer.Height,
			Validation:    e.config.Renderer.Validation,
			ShaderLibrary: shaders,
		})
	case BackendSoftware:
		return software.NewDevice(&software.Config{
			Width:         e.config.Renderer.Width,
			Height:        e.config.Renderer.Height,
			ShaderLibrary: shaders,
		})
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", e.config.Renderer.Backend)
	}
}

// SceneManager exposes the live scene to game hooks. The pointer
// changes after a hot reload, so hooks should re-query rather than
// cache it across frames.
func (e *Engine) SceneManager() *scene.Manager { return e.sceneManager }

// Device exposes the renderer device to game hooks.
func (e *Engine) Device() renderer.Device { return e.device }

func (e *Engine) onSceneFileChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	path, ok := data.Data.(string)
	if !ok {
		return false
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	select {
	case e.reloads <- name:
	default:
		core.LogWarn("reload queue full, dropping change notification for %q", name)
	}
	return false
}

func (e *Engine) onQuit(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogInfo("quit requested")
	e.isRunning = false
	return true
}

// reloadScene bakes the named scene on a fresh manager and swaps it
// in, releasing the old one. The old scene keeps rendering if the new
// one fails anywhere along the way.
func (e *Engine) reloadScene(name string) {
	if name != e.sceneManager.SceneName() {
		core.LogDebug("ignoring change to scene %q, current scene is %q", name, e.sceneManager.SceneName())
		return
	}

	core.LogInfo("hot reloading scene %q", name)
	replacement, err := scene.NewManager(e.device, e.assetManager, e.config.sceneConfig())
	if err != nil {
		core.LogError("hot reload aborted: %v", err)
		return
	}
	if err := replacement.Load(name); err != nil {
		core.LogError("hot reload aborted, keeping previous scene: %v", err)
		return
	}
	if err := replacement.Bake(); err != nil {
		core.LogError("hot reload aborted, keeping previous scene: %v", err)
		if err := replacement.Release(); err != nil {
			core.LogError("releasing failed replacement scene: %v", err)
		}
		return
	}

	old := e.sceneManager
	e.sceneManager = replacement
	if err := old.Release(); err != nil {
		core.LogError("releasing previous scene: %v", err)
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			core.LogError("game re-initialize after reload: %v", err)
		}
	}
}

// Run drives the frame loop until a quit signal, an update/draw
// failure, or the configured frame budget. One iteration is: consume
// pending reloads, game update, scene update, draw, optional capture.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning = true

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	signal.Notify(e.signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(e.signals)

	var targetFrameSeconds float64 = 1.0 / 60.0

	for e.isRunning {
		select {
		case <-e.signals:
			core.LogInfo("interrupt received, shutting down")
			e.isRunning = false
			continue
		case name := <-e.reloads:
			e.reloadScene(name)
		default:
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := currentTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(e, delta); err != nil {
				core.LogError("game update failed, shutting down: %v", err)
				e.isRunning = false
				return err
			}
		}
		if err := e.sceneManager.Update(); err != nil {
			core.LogError("scene update failed, shutting down: %v", err)
			e.isRunning = false
			return err
		}
		if err := e.sceneManager.Draw(); err != nil {
			core.LogError("scene draw failed, shutting down: %v", err)
			e.isRunning = false
			return err
		}

		if e.config.Renderer.CapturePath != "" && e.frameIndex == e.config.Renderer.CaptureFrame {
			if err := renderer.CaptureToFile(e.device, e.config.Renderer.CapturePath); err != nil {
				core.LogError("frame capture failed: %v", err)
			} else {
				core.LogInfo("frame %d captured to %s", e.frameIndex, e.config.Renderer.CapturePath)
				core.EventFire(core.EVENT_CODE_FRAME_CAPTURED, e, core.EventContext{Data: e.config.Renderer.CapturePath})
			}
		}

		e.clock.Update()
		frameElapsedTime := e.clock.Elapsed() - frameStartTime
		core.MetricsUpdate(frameElapsedTime)

		remainingSeconds := targetFrameSeconds - frameElapsedTime
		if remainingSeconds > 0 {
			time.Sleep(time.Duration(remainingSeconds * float64(time.Second)))
		}

		e.lastTime = currentTime
		e.frameIndex++
		if e.config.App.MaxFrames > 0 && e.frameIndex >= e.config.App.MaxFrames {
			fps, avg := core.MetricsFrame()
			core.LogInfo("frame budget reached after %d frames (%.1f fps, %.2fms avg)", e.frameIndex, fps, avg)
			e.isRunning = false
		}
	}

	return nil
}

// Shutdown tears the engine down in reverse initialization order.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	core.LogInfo("engine shutting down")

	core.EventUnregister(core.EVENT_CODE_SCENE_FILE_CHANGED, e)
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)

	if e.sceneManager != nil {
		if err := e.sceneManager.Release(); err != nil {
			core.LogError("releasing scene: %v", err)
		}
	}
	if e.device != nil {
		if err := e.device.Shutdown(); err != nil {
			core.LogError("shutting down device: %v", err)
		}
	}
	if e.assetManager != nil {
		if err := e.assetManager.Shutdown(); err != nil {
			core.LogError("shutting down asset manager: %v", err)
		}
	}
	if err := core.EventShutdown(); err != nil {
		return err
	}

	e.currentStage = EngineStageUninitialized
	return nil
}
