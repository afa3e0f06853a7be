package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joedavisdev/kiln/engine/assets"
	"github.com/joedavisdev/kiln/engine/math"
	"github.com/joedavisdev/kiln/engine/renderer"
	"github.com/joedavisdev/kiln/engine/renderer/software"
)

const onePassScene = `{
	"effects": [
		{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}
	],
	"actors": [
		{"name": "hero", "effect_name": "flat", "model_name": "triangle", "world_position": [1, 2, 3, 1]},
		{"name": "sidekick", "effect_name": "flat", "model_name": "quad", "world_position": [4, 5, 6, 1]}
	],
	"render_passes": [
		{"name": "main", "actor_regex": ".*", "colour_formats": ["RGBA8Unorm"], "depth_stencil_formats": "Depth32Float"}
	]
}`

const twoPassScene = `{
	"effects": [
		{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"},
		{"name": "glow", "vert_shader_name": "glow.vert", "frag_shader_name": "glow.frag"}
	],
	"actors": [
		{"name": "hero", "effect_name": "flat", "model_name": "triangle"},
		{"name": "heroGlow", "effect_name": "glow", "model_name": "triangle"},
		{"name": "enemy", "effect_name": "flat", "model_name": "cube"}
	],
	"render_passes": [
		{"name": "opaque", "actor_regex": "hero|enemy", "colour_formats": ["RGBA8Unorm"], "depth_stencil_formats": "Depth32Float"},
		{"name": "glow", "actor_regex": "heroGlow", "colour_formats": ["RGBA16Float"]}
	]
}`

const danglingEffectScene = `{
	"effects": [
		{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}
	],
	"actors": [
		{"name": "hero", "effect_name": "chrome", "model_name": "triangle"}
	],
	"render_passes": [
		{"name": "main", "actor_regex": ".*", "colour_formats": ["RGBA8Unorm"]}
	]
}`

func testShaderLibrary() map[string][]byte {
	return map[string][]byte{
		"flat.vert": {0}, "flat.frag": {0},
		"glow.vert": {0}, "glow.frag": {0},
	}
}

func newTestAssets(t *testing.T, scenes map[string]string) *assets.AssetManager {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scenes"), 0o755))
	for name, body := range scenes {
		require.NoError(t, os.WriteFile(filepath.Join(root, "scenes", name+".json"), []byte(body), 0o644))
	}

	assetManager, err := assets.NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, assetManager.Initialize(root, false))
	t.Cleanup(func() { _ = assetManager.Shutdown() })
	return assetManager
}

// newTestManager builds a manager over the software device with the
// given scene registered under the name "test".
func newTestManager(t *testing.T, sceneJSON string, config Config) (*Manager, *software.Device) {
	t.Helper()
	device, err := software.NewDevice(&software.Config{ShaderLibrary: testShaderLibrary()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Shutdown() })

	manager, err := NewManager(device, newTestAssets(t, map[string]string{"test": sceneJSON}), config)
	require.NoError(t, err)
	return manager, device
}

func passDraws(t *testing.T, manager *Manager, passName string) []Draw {
	t.Helper()
	pass := manager.registry.RenderPass(passName)
	require.NotNil(t, pass)
	var draws []Draw
	for _, cb := range pass.CommandBuffers {
		draws = append(draws, cb.Draws...)
	}
	return draws
}

func TestManagerRequiresCollaborators(t *testing.T) {
	assetManager := newTestAssets(t, nil)
	device, err := software.NewDevice(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Shutdown() })

	_, err = NewManager(nil, assetManager, Config{})
	require.Error(t, err)
	_, err = NewManager(device, nil, Config{})
	require.Error(t, err)
}

func TestLoadPopulatesRegistry(t *testing.T) {
	manager, _ := newTestManager(t, onePassScene, Config{})

	require.NoError(t, manager.Load("test"))
	assert.Equal(t, "test", manager.SceneName())
	assert.Equal(t, StageEffects|StageActors|StageModels|StageRenderPasses, manager.LoadedStages())

	assert.Equal(t, 1, manager.registry.EffectCount())
	assert.Equal(t, 2, manager.registry.ActorCount())
	assert.Equal(t, 2, manager.registry.ModelCount())
	assert.Equal(t, 1, manager.registry.RenderPassCount())

	hero := manager.registry.Actor("hero")
	require.NotNil(t, hero)
	assert.Equal(t, math.NewVec4(1, 2, 3, 1), hero.Body.Position)
	assert.Same(t, manager.registry.Effect("flat"), hero.Effect)
	assert.Same(t, manager.registry.Model("triangle"), hero.Model)

	pass := manager.registry.RenderPass("main")
	require.NotNil(t, pass)
	assert.Equal(t, []renderer.PixelFormat{renderer.PixelFormatRGBA8Unorm}, pass.Target.ColourFormats)
	assert.Equal(t, renderer.PixelFormatDepth32Float, pass.Target.DepthStencilFormat)
	assert.Equal(t, uint32(1), pass.Target.SampleCount)
}

func TestLoadReportsDanglingEffectReference(t *testing.T) {
	manager, device := newTestManager(t, danglingEffectScene, Config{})

	err := manager.Load("test")
	require.Error(t, err)
	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "effect", refErr.Kind)
	assert.Equal(t, "chrome", refErr.Name)

	// The failed phase leaves the mask short, so a bake is rejected
	// before it can touch the device.
	err = manager.Bake()
	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, "Bake", seqErr.Op)
	assert.Contains(t, seqErr.Missing, "actors")
	assert.Zero(t, device.Stats().Pipelines)
}

func TestLoadReportsUnknownModel(t *testing.T) {
	scene := `{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [{"name": "hero", "effect_name": "flat", "model_name": "teapot"}],
		"render_passes": [{"name": "main", "actor_regex": ".*", "colour_formats": ["RGBA8Unorm"]}]
	}`
	manager, _ := newTestManager(t, scene, Config{})

	err := manager.Load("test")
	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "model", refErr.Kind)
	assert.Equal(t, "teapot", refErr.Name)
}

func TestLoadReportsUnknownPixelFormat(t *testing.T) {
	scene := `{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [{"name": "hero", "effect_name": "flat", "model_name": "triangle"}],
		"render_passes": [{"name": "main", "actor_regex": ".*", "colour_formats": ["NotAFormat"]}]
	}`
	manager, _ := newTestManager(t, scene, Config{})

	err := manager.Load("test")
	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "pixel format", refErr.Kind)
}

func TestBakeBeforeLoadIsRejected(t *testing.T) {
	manager, device := newTestManager(t, onePassScene, Config{})

	err := manager.Bake()
	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, "Bake", seqErr.Op)
	assert.Len(t, seqErr.Missing, 4)
	assert.Zero(t, device.Stats().Pipelines)
}

func TestBakeWithRenderPassesMissing(t *testing.T) {
	manager, device := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))

	// Knock out a single stage to pin the message on it.
	manager.loaded &^= StageRenderPasses

	err := manager.Bake()
	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, []string{"render passes"}, seqErr.Missing)
	assert.Zero(t, device.Stats().Pipelines)
}

func TestBakeSharedEffectProducesOnePipeline(t *testing.T) {
	manager, device := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	assert.Equal(t, StagesAllBaked, manager.BakedStages())
	assert.Len(t, manager.pipelines, 1, "two actors sharing an effect in one pass share one pipeline")
	assert.Equal(t, 1, device.Stats().Pipelines)

	draws := passDraws(t, manager, "main")
	require.Len(t, draws, 2, "each matched actor gets exactly one draw")
	assert.Equal(t, "hero", draws[0].Actor.Name)
	assert.Equal(t, "sidekick", draws[1].Actor.Name)
	assert.Same(t, draws[0].Pipeline, draws[1].Pipeline)
}

func TestBakeSingleActorPass(t *testing.T) {
	scene := `{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [{"name": "hero", "effect_name": "flat", "model_name": "triangle"}],
		"render_passes": [{"name": "main", "actor_regex": "hero", "colour_formats": ["RGBA8Unorm"]}]
	}`
	manager, device := newTestManager(t, scene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	assert.Equal(t, 1, device.Stats().Pipelines)
	assert.Len(t, passDraws(t, manager, "main"), 1)
}

func TestBakePipelinePerPassPerEffect(t *testing.T) {
	manager, device := newTestManager(t, twoPassScene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	// "flat" appears only in the opaque pass, "glow" only in the glow
	// pass; the pair (effect, pass) is the dedup key.
	assert.Len(t, manager.pipelines, 2)
	assert.Equal(t, 2, device.Stats().Pipelines)

	opaque := passDraws(t, manager, "opaque")
	require.Len(t, opaque, 2)
	assert.Equal(t, "hero", opaque[0].Actor.Name)
	assert.Equal(t, "enemy", opaque[1].Actor.Name)
	assert.Len(t, passDraws(t, manager, "glow"), 1)
}

func TestBakeIsDeterministicAcrossManagers(t *testing.T) {
	collect := func() []string {
		manager, _ := newTestManager(t, twoPassScene, Config{})
		require.NoError(t, manager.Load("test"))
		require.NoError(t, manager.Bake())
		var order []string
		manager.registry.EachRenderPass(func(pass *RenderPass) bool {
			for _, cb := range pass.CommandBuffers {
				for _, draw := range cb.Draws {
					order = append(order, pass.Name+"/"+draw.Actor.Name)
				}
			}
			return true
		})
		return order
	}

	first := collect()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, collect())
	}
}

func TestBakeSplitsCommandBuffers(t *testing.T) {
	actorRecords := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		actorRecords = append(actorRecords, fmt.Sprintf(`{"name": "actor.%d", "effect_name": "flat", "model_name": "triangle"}`, i))
	}
	scene := fmt.Sprintf(`{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [%s],
		"render_passes": [{"name": "main", "actor_regex": ".*", "colour_formats": ["RGBA8Unorm"]}]
	}`, strings.Join(actorRecords, ","))

	manager, device := newTestManager(t, scene, Config{DrawsPerCommandBuffer: 2})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	pass := manager.registry.RenderPass("main")
	require.Len(t, pass.CommandBuffers, 3, "five draws at two per buffer")
	assert.Len(t, pass.CommandBuffers[0].Draws, 2)
	assert.Len(t, pass.CommandBuffers[1].Draws, 2)
	assert.Len(t, pass.CommandBuffers[2].Draws, 1)
	assert.Equal(t, 3, device.Stats().CommandBuffers)

	// Splitting must not reorder.
	draws := passDraws(t, manager, "main")
	for i, draw := range draws {
		assert.Equal(t, fmt.Sprintf("actor.%d", i), draw.Actor.Name)
	}

	require.NoError(t, manager.Draw())
	stats := device.Stats()
	assert.Equal(t, 1, stats.Submissions)
	assert.Equal(t, 5, stats.SubmittedDraws)
}

func TestBakeExpandsMultiMeshModels(t *testing.T) {
	scene := `{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [{"name": "widget", "effect_name": "flat", "model_name": "gizmo"}],
		"render_passes": [{"name": "main", "actor_regex": ".*", "colour_formats": ["RGBA8Unorm"]}]
	}`
	manager, device := newTestManager(t, scene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	pass := manager.registry.RenderPass("main")
	require.Len(t, pass.CommandBuffers, 1)
	calls, err := device.RecordedDraws(pass.CommandBuffers[0].GFXCommandBuffer)
	require.NoError(t, err)
	assert.Len(t, calls, 2, "one draw call per mesh of the model")
}

func TestBakePassMatchingNothing(t *testing.T) {
	scene := `{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [{"name": "hero", "effect_name": "flat", "model_name": "triangle"}],
		"render_passes": [
			{"name": "main", "actor_regex": "hero", "colour_formats": ["RGBA8Unorm"]},
			{"name": "debug", "actor_regex": "gizmo\\..*", "colour_formats": ["RGBA8Unorm"]}
		]
	}`
	manager, device := newTestManager(t, scene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	debug := manager.registry.RenderPass("debug")
	assert.Empty(t, debug.MatchedActors)
	assert.Empty(t, debug.CommandBuffers)

	require.NoError(t, manager.Draw())
	assert.Equal(t, 1, device.Stats().Submissions)
}

func TestBakeRejectsInvalidActorPattern(t *testing.T) {
	scene := `{
		"effects": [{"name": "flat", "vert_shader_name": "flat.vert", "frag_shader_name": "flat.frag"}],
		"actors": [{"name": "hero", "effect_name": "flat", "model_name": "triangle"}],
		"render_passes": [{"name": "main", "actor_regex": "hero[", "colour_formats": ["RGBA8Unorm"]}]
	}`
	manager, device := newTestManager(t, scene, Config{})
	require.NoError(t, manager.Load("test"))

	err := manager.Bake()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main")
	assert.Zero(t, device.Stats().Pipelines)
}

func TestUpdateIntegratesVelocity(t *testing.T) {
	manager, _ := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	actors, err := manager.GetActorPtrs("hero")
	require.NoError(t, err)
	require.Len(t, actors, 1)
	actors[0].Body.Velocity = math.NewVec4(0.5, -1, 0, 0)

	require.NoError(t, manager.Update())
	assert.Equal(t, math.NewVec4(1.5, 1, 3, 1), actors[0].Body.Position)
	require.NoError(t, manager.Update())
	assert.Equal(t, math.NewVec4(2, 0, 3, 1), actors[0].Body.Position)
}

func TestUpdateAndDrawRequireBake(t *testing.T) {
	manager, device := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))

	var seqErr *SequenceError
	require.ErrorAs(t, manager.Update(), &seqErr)
	assert.Equal(t, "Update", seqErr.Op)

	require.ErrorAs(t, manager.Draw(), &seqErr)
	assert.Equal(t, "Draw", seqErr.Op)
	assert.Zero(t, device.Stats().Submissions)
}

func TestGetActorPtrs(t *testing.T) {
	manager, _ := newTestManager(t, twoPassScene, Config{})

	_, err := manager.GetActorPtrs(".*")
	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)

	require.NoError(t, manager.Load("test"))

	actors, err := manager.GetActorPtrs("hero.*")
	require.NoError(t, err)
	require.Len(t, actors, 2)
	assert.Equal(t, "hero", actors[0].Name)
	assert.Equal(t, "heroGlow", actors[1].Name)

	// The same query after a bake returns the same pointers.
	require.NoError(t, manager.Bake())
	again, err := manager.GetActorPtrs("hero.*")
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Same(t, actors[0], again[0])
	assert.Same(t, actors[1], again[1])

	_, err = manager.GetActorPtrs("hero[")
	require.Error(t, err)
}

func TestReloadBeforeBakeStartsOver(t *testing.T) {
	manager, _ := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Load("test"))

	assert.Equal(t, 2, manager.registry.ActorCount())
	assert.Equal(t, 1, manager.registry.EffectCount())
	require.NoError(t, manager.Bake())
}

func TestReloadAfterBakeIsRejected(t *testing.T) {
	manager, _ := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	err := manager.Load("test")
	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, "Load", seqErr.Op)
	assert.Contains(t, seqErr.Reason, "already baked")

	// The baked scene keeps working.
	require.NoError(t, manager.Update())
	require.NoError(t, manager.Draw())
}

// flakyDevice injects transient failures around an otherwise working
// device.
type flakyDevice struct {
	renderer.Device
	failPipelines int
	failEffects   map[string]bool
}

func (d *flakyDevice) CreateEffect(vertexShader, fragmentShader string) (*renderer.Effect, error) {
	if d.failEffects[vertexShader] {
		return nil, errors.New("injected effect failure")
	}
	return d.Device.CreateEffect(vertexShader, fragmentShader)
}

func (d *flakyDevice) CreatePipeline(effect *renderer.Effect, target *renderer.TargetConfig) (*renderer.PipelineState, error) {
	if d.failPipelines > 0 {
		d.failPipelines--
		return nil, errors.New("injected pipeline failure")
	}
	return d.Device.CreatePipeline(effect, target)
}

func TestBakeIsolatesEffectFailures(t *testing.T) {
	device, err := software.NewDevice(&software.Config{ShaderLibrary: testShaderLibrary()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Shutdown() })
	flaky := &flakyDevice{Device: device, failEffects: map[string]bool{"glow.vert": true}}

	manager, err := NewManager(flaky, newTestAssets(t, map[string]string{"test": twoPassScene}), Config{})
	require.NoError(t, err)
	require.NoError(t, manager.Load("test"))

	bakeErr := manager.Bake()
	require.Error(t, bakeErr)
	var devErr *DeviceError
	require.ErrorAs(t, bakeErr, &devErr)
	assert.Equal(t, "effect", devErr.Kind)
	assert.Equal(t, "glow", devErr.Name)

	// The healthy effect still compiled; the stage bit stayed clear.
	assert.Equal(t, 1, device.Stats().Effects)
	assert.Zero(t, manager.BakedStages()&StageEffects)
	assert.Zero(t, device.Stats().Pipelines, "pipeline phase must not run after a failed effect phase")

	// Clearing the fault and re-invoking Bake picks up where it
	// stopped without recompiling the healthy effect.
	flaky.failEffects = nil
	require.NoError(t, manager.Bake())
	assert.Equal(t, StagesAllBaked, manager.BakedStages())
	assert.Equal(t, 2, device.Stats().Effects)
}

func TestBakeResumesAfterPipelineFailure(t *testing.T) {
	device, err := software.NewDevice(&software.Config{ShaderLibrary: testShaderLibrary()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Shutdown() })
	flaky := &flakyDevice{Device: device, failPipelines: 1}

	manager, err := NewManager(flaky, newTestAssets(t, map[string]string{"test": twoPassScene}), Config{})
	require.NoError(t, err)
	require.NoError(t, manager.Load("test"))

	bakeErr := manager.Bake()
	require.Error(t, bakeErr)
	var devErr *DeviceError
	require.ErrorAs(t, bakeErr, &devErr)
	assert.Equal(t, "pipeline", devErr.Kind)

	// One pipeline failed, the other compiled and survives the retry.
	assert.Equal(t, 1, device.Stats().Pipelines)
	assert.Equal(t, StageEffects, manager.BakedStages())

	require.NoError(t, manager.Bake())
	assert.Equal(t, StagesAllBaked, manager.BakedStages())
	assert.Equal(t, 2, device.Stats().Pipelines)
	require.NoError(t, manager.Draw())
}

func TestBakeRecordsPassesInParallel(t *testing.T) {
	manager, device := newTestManager(t, twoPassScene, Config{RecordWorkers: 4})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	assert.Equal(t, 2, device.Stats().CommandBuffers)
	assert.Len(t, passDraws(t, manager, "opaque"), 2)
	assert.Len(t, passDraws(t, manager, "glow"), 1)
	require.NoError(t, manager.Draw())
	assert.Equal(t, 3, device.Stats().SubmittedDraws)
}

func TestBakeReleasesCPUDataWhenConfigured(t *testing.T) {
	manager, _ := newTestManager(t, onePassScene, Config{ReleaseCPUAfterUpload: true})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())

	manager.registry.EachModel(func(model *Model) bool {
		for _, mesh := range model.Meshes() {
			assert.Equal(t, MeshStateGpuOnly, mesh.State())
		}
		return true
	})
}

func TestReleaseReturnsManagerToInitialState(t *testing.T) {
	manager, device := newTestManager(t, onePassScene, Config{})
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())
	require.NoError(t, manager.Draw())

	require.NoError(t, manager.Release())
	stats := device.Stats()
	assert.Zero(t, stats.Effects)
	assert.Zero(t, stats.Buffers)
	assert.Zero(t, stats.Pipelines)
	assert.Zero(t, stats.CommandBuffers)
	assert.Zero(t, manager.LoadedStages())
	assert.Zero(t, manager.BakedStages())
	assert.Zero(t, manager.registry.ActorCount())

	// A released manager can host a fresh load and bake.
	require.NoError(t, manager.Load("test"))
	require.NoError(t, manager.Bake())
	require.NoError(t, manager.Draw())
}
