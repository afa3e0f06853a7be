package scene

import (
	"fmt"

	"github.com/joedavisdev/kiln/engine/containers"
	"github.com/joedavisdev/kiln/engine/core"
)

// table stores one entity kind. Entities live in an arena so their
// addresses survive later insertions; byName resolves references and
// the arena's allocation order doubles as iteration order.
type table[T any] struct {
	arena  *containers.Arena[T]
	byName map[string]*T
}

func newTable[T any]() table[T] {
	return table[T]{
		arena:  containers.NewArena[T](containers.DefaultArenaChunkSize),
		byName: make(map[string]*T),
	}
}

func (t *table[T]) add(name string) (*T, bool) {
	if _, exists := t.byName[name]; exists {
		return nil, false
	}
	_, item := t.arena.Alloc()
	t.byName[name] = item
	return item, true
}

func (t *table[T]) get(name string) *T {
	return t.byName[name]
}

func (t *table[T]) each(fn func(*T) bool) {
	t.arena.Range(func(_ int, v *T) bool { return fn(v) })
}

func (t *table[T]) len() int {
	return t.arena.Len()
}

func (t *table[T]) reset() {
	t.arena.Reset()
	t.byName = make(map[string]*T)
}

// Registry holds every entity of the current scene keyed by name. A
// name maps to exactly one entity of its kind, and pointers handed
// out stay valid until Reset.
type Registry struct {
	effects      table[Effect]
	models       table[Model]
	actors       table[Actor]
	renderPasses table[RenderPass]
}

func NewRegistry() *Registry {
	return &Registry{
		effects:      newTable[Effect](),
		models:       newTable[Model](),
		actors:       newTable[Actor](),
		renderPasses: newTable[RenderPass](),
	}
}

func (r *Registry) AddEffect(name string) (*Effect, error) {
	effect, ok := r.effects.add(name)
	if !ok {
		err := fmt.Errorf("effect %q is already registered", name)
		core.LogError(err.Error())
		return nil, err
	}
	effect.Name = name
	return effect, nil
}

func (r *Registry) AddModel(name string) (*Model, error) {
	model, ok := r.models.add(name)
	if !ok {
		err := fmt.Errorf("model %q is already registered", name)
		core.LogError(err.Error())
		return nil, err
	}
	model.Name = name
	return model, nil
}

func (r *Registry) AddActor(name string) (*Actor, error) {
	actor, ok := r.actors.add(name)
	if !ok {
		err := fmt.Errorf("actor %q is already registered", name)
		core.LogError(err.Error())
		return nil, err
	}
	actor.Name = name
	return actor, nil
}

func (r *Registry) AddRenderPass(name string) (*RenderPass, error) {
	pass, ok := r.renderPasses.add(name)
	if !ok {
		err := fmt.Errorf("render pass %q is already registered", name)
		core.LogError(err.Error())
		return nil, err
	}
	pass.Name = name
	return pass, nil
}

func (r *Registry) Effect(name string) *Effect         { return r.effects.get(name) }
func (r *Registry) Model(name string) *Model           { return r.models.get(name) }
func (r *Registry) Actor(name string) *Actor           { return r.actors.get(name) }
func (r *Registry) RenderPass(name string) *RenderPass { return r.renderPasses.get(name) }

func (r *Registry) EffectCount() int     { return r.effects.len() }
func (r *Registry) ModelCount() int      { return r.models.len() }
func (r *Registry) ActorCount() int      { return r.actors.len() }
func (r *Registry) RenderPassCount() int { return r.renderPasses.len() }

// EachEffect visits effects in registration order until fn returns
// false. The other Each* methods follow the same contract.
func (r *Registry) EachEffect(fn func(*Effect) bool)         { r.effects.each(fn) }
func (r *Registry) EachModel(fn func(*Model) bool)           { r.models.each(fn) }
func (r *Registry) EachActor(fn func(*Actor) bool)           { r.actors.each(fn) }
func (r *Registry) EachRenderPass(fn func(*RenderPass) bool) { r.renderPasses.each(fn) }

// ActorNames returns every actor name in registration order.
func (r *Registry) ActorNames() []string {
	names := make([]string, 0, r.actors.len())
	r.actors.each(func(a *Actor) bool {
		names = append(names, a.Name)
		return true
	})
	return names
}

// Reset drops every entity. Pointers obtained from the registry are
// invalid afterwards.
func (r *Registry) Reset() {
	r.effects.reset()
	r.models.reset()
	r.actors.reset()
	r.renderPasses.reset()
}
