package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
)

// splitDraws distributes draws over command buffers of at most
// perBuffer entries, preserving order. A perBuffer < 1 keeps the
// whole pass in a single buffer.
func splitDraws(draws []Draw, perBuffer int) []*CommandBuffer {
	if len(draws) == 0 {
		return nil
	}
	if perBuffer < 1 {
		perBuffer = len(draws)
	}

	buffers := make([]*CommandBuffer, 0, (len(draws)+perBuffer-1)/perBuffer)
	for start := 0; start < len(draws); start += perBuffer {
		end := start + perBuffer
		if end > len(draws) {
			end = len(draws)
		}
		buffers = append(buffers, &CommandBuffer{Draws: draws[start:end]})
	}
	return buffers
}

// buildPassCommandBuffers assembles the pass's draw list in matched
// actor order and splits it into command buffers. Device handles from
// a previous attempt are carried over by position so a retried bake
// re-records instead of leaking them.
func (m *Manager) buildPassCommandBuffers(pass *RenderPass) error {
	draws := make([]Draw, 0, len(pass.MatchedActors))
	for _, actor := range pass.MatchedActors {
		pipeline := m.findPipeline(actor.Effect, pass)
		if pipeline == nil {
			err := &InvariantError{Message: fmt.Sprintf(
				"no pipeline for effect %q in render pass %q; pipeline construction is exhaustive over matched actors",
				actor.Effect.Name, pass.Name)}
			core.LogError(err.Error())
			return err
		}
		draws = append(draws, Draw{Actor: actor, Pipeline: pipeline})
	}

	buffers := splitDraws(draws, m.config.DrawsPerCommandBuffer)
	for i, cb := range buffers {
		if i < len(pass.CommandBuffers) {
			cb.GFXCommandBuffer = pass.CommandBuffers[i].GFXCommandBuffer
		}
	}
	for i := len(buffers); i < len(pass.CommandBuffers); i++ {
		if old := pass.CommandBuffers[i].GFXCommandBuffer; old != nil {
			if err := m.device.DestroyCommandBuffer(old); err != nil {
				core.LogWarn("destroying surplus command buffer for pass %q: %v", pass.Name, err)
			}
		}
	}
	pass.CommandBuffers = buffers
	return nil
}

// recordPass records every command buffer of the pass against its
// target. Each draw expands to one draw call per mesh of the actor's
// model.
func (m *Manager) recordPass(pass *RenderPass) error {
	for i, cb := range pass.CommandBuffers {
		if cb.GFXCommandBuffer == nil {
			gfx, err := m.device.CreateCommandBuffer()
			if err != nil {
				deviceErr := &DeviceError{Kind: "command buffer", Name: fmt.Sprintf("%s[%d]", pass.Name, i), Err: err}
				core.LogError(deviceErr.Error())
				return deviceErr
			}
			cb.GFXCommandBuffer = gfx
		}

		calls := make([]renderer.DrawCall, 0, len(cb.Draws))
		for _, draw := range cb.Draws {
			for _, mesh := range draw.Actor.Model.Meshes() {
				calls = append(calls, renderer.DrawCall{
					Pipeline:      draw.Pipeline.GFXPipeline,
					Vertex:        mesh.VertexBuffer(),
					Index:         mesh.IndexBuffer(),
					VertexCount:   mesh.VertexCount(),
					IndexCount:    mesh.IndexCount(),
					IndexSize:     mesh.IndexSize(),
					InstanceCount: 1,
				})
			}
		}

		if err := m.device.RecordCommandBuffer(cb.GFXCommandBuffer, &pass.Target, calls); err != nil {
			deviceErr := &DeviceError{Kind: "command buffer", Name: fmt.Sprintf("%s[%d]", pass.Name, i), Err: err}
			core.LogError(deviceErr.Error())
			return deviceErr
		}
	}
	return nil
}

// bakeCommandBuffers builds and records every pass's command buffers.
// Draw lists are assembled serially; recording fans out across a
// worker pool when configured, which is safe because each task
// touches only its own pass and the pipeline set is read-only by this
// point.
func (m *Manager) bakeCommandBuffers() error {
	if m.baked&StageCommandBuffers != 0 {
		return nil
	}

	var passes []*RenderPass
	var buildErr error
	m.registry.EachRenderPass(func(pass *RenderPass) bool {
		if err := m.buildPassCommandBuffers(pass); err != nil {
			buildErr = err
			return false
		}
		passes = append(passes, pass)
		return true
	})
	if buildErr != nil {
		return buildErr
	}

	var errs []error
	if m.config.RecordWorkers > 0 && len(passes) > 1 {
		jobs, err := core.NewJobSystem(m.config.RecordWorkers, len(passes))
		if err != nil {
			return err
		}
		var mu sync.Mutex
		for _, pass := range passes {
			pass := pass
			jobs.Submit(core.JobTask{
				Name: "record pass " + pass.Name,
				Work: func() error { return m.recordPass(pass) },
				OnFailure: func(err error) {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				},
			})
		}
		jobs.WaitIdle()
		if err := jobs.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	} else {
		for _, pass := range passes {
			if err := m.recordPass(pass); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.baked |= StageCommandBuffers
	core.LogDebug("recorded command buffers for %d render passes", len(passes))
	return nil
}
