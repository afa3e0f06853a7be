package scene

import (
	"errors"
	"fmt"

	"github.com/joedavisdev/kiln/engine/assets"
	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/math"
	"github.com/joedavisdev/kiln/engine/parsers"
	"github.com/joedavisdev/kiln/engine/renderer"
)

// Config tunes manager behaviour that is independent of any one
// scene.
type Config struct {
	// ReleaseCPUAfterUpload drops mesh CPU copies once device buffers
	// exist.
	ReleaseCPUAfterUpload bool
	// DrawsPerCommandBuffer caps draws per command buffer; a pass
	// with more matched actors splits across several buffers. Values
	// < 1 keep each pass in a single buffer.
	DrawsPerCommandBuffer int
	// RecordWorkers sets the worker count for parallel command buffer
	// recording. Values < 1 record serially.
	RecordWorkers int
}

// Manager drives the staged lifecycle of one scene: Load resolves the
// description into registered entities, Bake compiles them into
// device objects, Update and Draw run the frame loop. One manager
// owns one scene; loading a different scene means building a fresh
// manager.
//
// A manager is not safe for concurrent use. Load, Bake, Update and
// Draw are sequential calls from one goroutine.
type Manager struct {
	device renderer.Device
	assets *assets.AssetManager
	config Config

	registry  *Registry
	pipelines []*Pipeline

	loaded Stage
	baked  Stage

	sceneName string
}

func NewManager(device renderer.Device, assetManager *assets.AssetManager, config Config) (*Manager, error) {
	if device == nil {
		err := fmt.Errorf("scene manager requires a device")
		core.LogError(err.Error())
		return nil, err
	}
	if assetManager == nil {
		err := fmt.Errorf("scene manager requires an asset manager")
		core.LogError(err.Error())
		return nil, err
	}
	return &Manager{
		device:   device,
		assets:   assetManager,
		config:   config,
		registry: NewRegistry(),
	}, nil
}

// SceneName returns the name of the loaded scene, empty before Load.
func (m *Manager) SceneName() string { return m.sceneName }

// LoadedStages returns the loaded-stage bitmask.
func (m *Manager) LoadedStages() Stage { return m.loaded }

// BakedStages returns the baked-stage bitmask.
func (m *Manager) BakedStages() Stage { return m.baked }

// Load reads the named scene description and populates the registry:
// effects first, then actors with their models, then render passes.
// Each phase sets its stage bit on success. Re-invoking Load before
// any bake discards previously loaded entities and starts over;
// re-invoking it after a bake is rejected, because baked pipelines
// and command buffers would silently reference the dead actor set.
func (m *Manager) Load(name string) error {
	if m.baked != 0 {
		err := &SequenceError{Op: "Load", Reason: "scene is already baked; release it and build a fresh manager to load another scene"}
		core.LogError(err.Error())
		return err
	}
	if m.loaded != 0 {
		core.LogInfo("reloading scene %q, discarding previously loaded entities", name)
		m.registry.Reset()
		m.pipelines = nil
		m.loaded = 0
	}

	data, err := m.assets.LoadSceneBytes(name)
	if err != nil {
		return fmt.Errorf("loading scene %q: %w", name, err)
	}
	parser := parsers.NewSceneParser()
	if err := parser.Parse(data); err != nil {
		return fmt.Errorf("parsing scene %q: %w", name, err)
	}

	if err := m.loadEffects(parser.Effects); err != nil {
		return err
	}
	if err := m.loadActors(parser.Actors); err != nil {
		return err
	}
	if err := m.loadRenderPasses(parser.RenderPasses); err != nil {
		return err
	}

	m.sceneName = name
	core.LogInfo("loaded scene %q: %d effects, %d models, %d actors, %d render passes",
		name, m.registry.EffectCount(), m.registry.ModelCount(), m.registry.ActorCount(), m.registry.RenderPassCount())
	return nil
}

func (m *Manager) loadEffects(records []parsers.ParsedEffect) error {
	for i := range records {
		record := &records[i]
		effect, err := m.registry.AddEffect(record.Name)
		if err != nil {
			return err
		}
		effect.UniformBlockNames = append([]string(nil), record.UniformBlockNames...)
		effect.VertShaderName = record.VertShaderName
		effect.FragShaderName = record.FragShaderName
	}
	m.loaded |= StageEffects
	return nil
}

// loadActors resolves each actor's effect reference and loads its
// model, sharing one Model entity between actors that name the same
// model. Sets both the actors and models stage bits.
func (m *Manager) loadActors(records []parsers.ParsedActor) error {
	for i := range records {
		record := &records[i]

		effect := m.registry.Effect(record.EffectName)
		if effect == nil {
			err := &ReferenceError{Kind: "effect", Name: record.EffectName, Referrer: fmt.Sprintf("actor %q", record.Name)}
			core.LogError(err.Error())
			return err
		}

		model := m.registry.Model(record.ModelName)
		if model == nil {
			meshes, err := m.assets.LoadModelMeshes(record.ModelName)
			if err != nil {
				refErr := &ReferenceError{Kind: "model", Name: record.ModelName, Referrer: fmt.Sprintf("actor %q", record.Name)}
				core.LogError("%s: %v", refErr.Error(), err)
				return refErr
			}
			model, err = m.registry.AddModel(record.ModelName)
			if err != nil {
				return err
			}
			model.meshes = make([]*Mesh, 0, len(meshes))
			for j := range meshes {
				model.meshes = append(model.meshes, NewMesh(meshes[j]))
			}
		}

		actor, err := m.registry.AddActor(record.Name)
		if err != nil {
			return err
		}
		actor.AttributeBlockNames = append([]string(nil), record.AttributeBlockNames...)
		actor.Body.Position = math.NewVec4(record.WorldPosition[0], record.WorldPosition[1], record.WorldPosition[2], record.WorldPosition[3])
		actor.Model = model
		actor.Effect = effect
	}
	m.loaded |= StageActors | StageModels
	return nil
}

func (m *Manager) loadRenderPasses(records []parsers.ParsedRenderPass) error {
	for i := range records {
		record := &records[i]

		target := renderer.TargetConfig{SampleCount: record.SampleCount}
		for _, name := range record.ColourFormats {
			format, err := renderer.ParsePixelFormat(name)
			if err != nil {
				refErr := &ReferenceError{Kind: "pixel format", Name: name, Referrer: fmt.Sprintf("render pass %q", record.Name)}
				core.LogError(refErr.Error())
				return refErr
			}
			target.ColourFormats = append(target.ColourFormats, format)
		}
		if record.DepthStencilFormat != "" {
			format, err := renderer.ParsePixelFormat(record.DepthStencilFormat)
			if err != nil || !format.IsDepthStencil() {
				refErr := &ReferenceError{Kind: "depth/stencil format", Name: record.DepthStencilFormat, Referrer: fmt.Sprintf("render pass %q", record.Name)}
				core.LogError(refErr.Error())
				return refErr
			}
			target.DepthStencilFormat = format
		}

		pass, err := m.registry.AddRenderPass(record.Name)
		if err != nil {
			return err
		}
		pass.ActorRegex = record.ActorRegex
		pass.Target = target
	}
	m.loaded |= StageRenderPasses
	return nil
}

// Bake compiles the loaded scene into device objects. Phases run in a
// fixed order, each setting its stage bit on full success: the
// pipeline set is constructed, effects compile their shaders,
// pipelines compile against their render pass targets, mesh data
// uploads, and finally command buffers are recorded. A phase failure
// stops the sequence; re-invoking Bake resumes with whatever is still
// missing.
func (m *Manager) Bake() error {
	needLoaded := StageEffects | StageActors | StageModels | StageRenderPasses
	if missing := missingStages(needLoaded, m.loaded); len(missing) > 0 {
		err := &SequenceError{Op: "Bake", Missing: missing}
		core.LogError(err.Error())
		return err
	}

	if err := m.buildPipelines(); err != nil {
		return err
	}
	if err := m.bakeEffects(); err != nil {
		return err
	}
	if err := m.bakePipelines(); err != nil {
		return err
	}
	if err := m.bakeMeshUploads(); err != nil {
		return err
	}
	if err := m.bakeCommandBuffers(); err != nil {
		return err
	}

	core.EventFire(core.EVENT_CODE_SCENE_BAKED, m, core.EventContext{Data: m.sceneName})
	return nil
}

// Update advances every actor's physics body once: position moves by
// velocity. Topology never changes here.
func (m *Manager) Update() error {
	if missing := missingStages(StagesAllBaked, m.baked); len(missing) > 0 {
		err := &SequenceError{Op: "Update", Missing: missing}
		core.LogError(err.Error())
		return err
	}

	m.registry.EachActor(func(actor *Actor) bool {
		actor.Body.Position = actor.Body.Position.Add(actor.Body.Velocity)
		return true
	})
	return nil
}

// Draw submits every render pass's command buffers to the device in
// pass iteration order. Nothing is recomputed; a pass that matched no
// actors contributes nothing.
func (m *Manager) Draw() error {
	if missing := missingStages(StagesAllBaked, m.baked); len(missing) > 0 {
		err := &SequenceError{Op: "Draw", Missing: missing}
		core.LogError(err.Error())
		return err
	}

	var buffers []*renderer.CommandBuffer
	m.registry.EachRenderPass(func(pass *RenderPass) bool {
		for _, cb := range pass.CommandBuffers {
			buffers = append(buffers, cb.GFXCommandBuffer)
		}
		return true
	})
	if len(buffers) == 0 {
		return nil
	}

	if err := m.device.Submit(buffers); err != nil {
		deviceErr := &DeviceError{Kind: "submission", Name: m.sceneName, Err: err}
		core.LogError(deviceErr.Error())
		return deviceErr
	}
	return nil
}

// GetActorPtrs returns pointers to every actor whose name matches the
// pattern, in registration order. The pointers stay valid until
// Release, so gameplay code may hold them across frames and mutate
// physics state directly.
func (m *Manager) GetActorPtrs(pattern string) ([]*Actor, error) {
	if m.loaded&StageActors == 0 {
		err := &SequenceError{Op: "GetActorPtrs", Missing: []string{stageNames[StageActors]}}
		core.LogError(err.Error())
		return nil, err
	}

	matched, err := MatchActorNames(pattern, m.registry.ActorNames())
	if err != nil {
		return nil, err
	}
	actors := make([]*Actor, 0, len(matched))
	for _, name := range matched {
		actors = append(actors, m.registry.Actor(name))
	}
	return actors, nil
}

// Release destroys every device object the manager baked, in reverse
// dependency order, and empties the registry. The manager returns to
// its initial state; errors are collected rather than stopping the
// teardown.
func (m *Manager) Release() error {
	var errs []error

	m.registry.EachRenderPass(func(pass *RenderPass) bool {
		for _, cb := range pass.CommandBuffers {
			if cb.GFXCommandBuffer == nil {
				continue
			}
			if err := m.device.DestroyCommandBuffer(cb.GFXCommandBuffer); err != nil {
				errs = append(errs, err)
			}
			cb.GFXCommandBuffer = nil
		}
		pass.CommandBuffers = nil
		pass.MatchedActors = nil
		return true
	})

	for _, pipeline := range m.pipelines {
		if pipeline.GFXPipeline == nil {
			continue
		}
		if err := m.device.DestroyPipeline(pipeline.GFXPipeline); err != nil {
			errs = append(errs, err)
		}
		pipeline.GFXPipeline = nil
	}
	m.pipelines = nil

	m.registry.EachEffect(func(effect *Effect) bool {
		if effect.GFXEffect == nil {
			return true
		}
		if err := m.device.DestroyEffect(effect.GFXEffect); err != nil {
			errs = append(errs, err)
		}
		effect.GFXEffect = nil
		return true
	})

	m.registry.EachModel(func(model *Model) bool {
		if err := model.ReleaseData(m.device); err != nil {
			errs = append(errs, err)
		}
		return true
	})

	m.registry.Reset()
	m.loaded = 0
	m.baked = 0
	m.sceneName = ""

	return errors.Join(errs...)
}
