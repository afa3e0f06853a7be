package engine

// Game carries the application hooks the engine drives. Hooks may be
// nil; the engine skips them.
type Game struct {
	// State is application-owned and opaque to the engine.
	State interface{}
	// FnInitialize runs once the default scene is baked, and again
	// after every hot reload, since actor pointers from the previous
	// scene are dead by then.
	FnInitialize Initialize
	// FnUpdate runs once per frame before the scene updates.
	FnUpdate Update
}

type Initialize func(engine *Engine) error
type Update func(engine *Engine, deltaTime float64) error
