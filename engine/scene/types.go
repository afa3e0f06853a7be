// Package scene owns the staged load→bake→render lifecycle: it turns
// parsed scene descriptions into typed entities, resolves their
// cross-references, compiles them into device pipelines and command
// buffers, and drives per-frame update and submission.
package scene

import (
	"github.com/joedavisdev/kiln/engine/math"
	"github.com/joedavisdev/kiln/engine/renderer"
)

// Stage is one bit of the lifecycle bitmasks. The manager keeps two
// masks: which stages have loaded and which have baked. A stage bit,
// once set, is never cleared short of Release.
type Stage uint8

const (
	StageEffects        Stage = 1 << 0
	StageActors         Stage = 1 << 1
	StageModels         Stage = 1 << 2
	StageRenderPasses   Stage = 1 << 3
	StagePipelines      Stage = 1 << 4
	StageCommandBuffers Stage = 1 << 5

	// StagesAllLoaded gates Bake: everything parsed and resolved, plus
	// the pipeline set constructed during Bake's first step.
	StagesAllLoaded = StageEffects | StageActors | StageModels | StageRenderPasses | StagePipelines
	// StagesAllBaked gates Update/Draw.
	StagesAllBaked = StageEffects | StagePipelines | StageCommandBuffers
)

var stageNames = map[Stage]string{
	StageEffects:        "effects",
	StageActors:         "actors",
	StageModels:         "models",
	StageRenderPasses:   "render passes",
	StagePipelines:      "pipelines",
	StageCommandBuffers: "command buffers",
}

// Names lists the set bits in declaration order.
func (s Stage) Names() []string {
	var names []string
	for bit := StageEffects; bit <= StageCommandBuffers; bit <<= 1 {
		if s&bit != 0 {
			names = append(names, stageNames[bit])
		}
	}
	return names
}

// missingStages names the bits of need that have lacks.
func missingStages(need, have Stage) []string {
	return (need &^ have).Names()
}

// Effect is a named shader pair. GFXEffect is nil until BakeEffects
// compiles it; afterwards the effect is immutable.
type Effect struct {
	Name              string
	UniformBlockNames []string
	VertShaderName    string
	FragShaderName    string

	GFXEffect *renderer.Effect
}

// PhysicsBody is the minimal body the scene carries: a world position
// integrated by velocity once per Update. Gameplay code mutates both
// through actor pointers.
type PhysicsBody struct {
	Position math.Vec4
	Velocity math.Vec4
}

// Actor pairs a physics body with non-owning references to the model
// and effect it was declared with. The registry owns the pointees.
type Actor struct {
	Name                string
	AttributeBlockNames []string
	Body                PhysicsBody

	Model  *Model
	Effect *Effect
}

// Pipeline is one distinct (Effect, RenderPass) pairing required by
// at least one matched actor. GFXPipeline is nil until BakePipelines.
type Pipeline struct {
	Effect     *Effect
	RenderPass *RenderPass

	GFXPipeline *renderer.PipelineState
}

// Draw is one actor drawn with one pipeline.
type Draw struct {
	Actor    *Actor
	Pipeline *Pipeline
}

// CommandBuffer is an ordered slice of draws plus the device command
// buffer they are recorded into. Append order is recording order.
type CommandBuffer struct {
	Draws []Draw

	GFXCommandBuffer *renderer.CommandBuffer
}

// RenderPass selects actors by a pattern over their names and draws
// them into a target configuration. MatchedActors and CommandBuffers
// are derived state, recomputed by Bake.
type RenderPass struct {
	Name       string
	ActorRegex string
	Target     renderer.TargetConfig

	MatchedActors  []*Actor
	CommandBuffers []*CommandBuffer
}
