package testbed

import (
	stdmath "math"

	"github.com/joedavisdev/kiln/engine"
	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/math"
	"github.com/joedavisdev/kiln/engine/scene"
)

// DemoGame pushes the baked scene around: it grabs actor pointers
// once per scene and steers them every frame through their physics
// bodies.
type DemoGame struct {
	*engine.Game
}

type gameState struct {
	orbiters []*scene.Actor
	drifters []*scene.Actor
	elapsed  float64
}

func NewDemoGame() *DemoGame {
	dg := &DemoGame{
		Game: &engine.Game{
			State: &gameState{},
		},
	}
	dg.FnInitialize = dg.Initialize
	dg.FnUpdate = dg.Update
	return dg
}

// Initialize re-acquires actor pointers; it runs after the initial
// bake and after every hot reload.
func (dg *DemoGame) Initialize(e *engine.Engine) error {
	state := dg.State.(*gameState)
	state.orbiters = nil
	state.drifters = nil
	state.elapsed = 0

	orbiters, err := e.SceneManager().GetActorPtrs(`orbit\..*`)
	if err != nil {
		return err
	}
	state.orbiters = orbiters

	drifters, err := e.SceneManager().GetActorPtrs(`drift\..*`)
	if err != nil {
		return err
	}
	state.drifters = drifters
	for _, actor := range state.drifters {
		actor.Body.Velocity = math.NewVec4(
			math.RandomInRange(-0.02, 0.02),
			math.RandomInRange(-0.02, 0.02),
			0, 0)
	}

	core.LogInfo("demo steering %d orbiters and %d drifters", len(state.orbiters), len(state.drifters))
	return nil
}

// Update steers the orbiters along a circle by feeding the next
// frame's velocity into their bodies; the scene update integrates it.
func (dg *DemoGame) Update(e *engine.Engine, deltaTime float64) error {
	state := dg.State.(*gameState)
	state.elapsed += deltaTime

	for i, actor := range state.orbiters {
		phase := state.elapsed + float64(i)*stdmath.Pi/2
		actor.Body.Velocity = math.NewVec4(
			float32(stdmath.Cos(phase))*0.05,
			float32(stdmath.Sin(phase))*0.05,
			0, 0)
	}

	// Drifters bounce back when they stray too far from the origin.
	for _, actor := range state.drifters {
		if actor.Body.Position.X > 2 || actor.Body.Position.X < -2 {
			actor.Body.Velocity.X = -actor.Body.Velocity.X
		}
		if actor.Body.Position.Y > 2 || actor.Body.Position.Y < -2 {
			actor.Body.Velocity.Y = -actor.Body.Velocity.Y
		}
	}
	return nil
}
