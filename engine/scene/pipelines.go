package scene

import (
	"errors"
	"fmt"

	"github.com/joedavisdev/kiln/engine/core"
)

// findPipeline locates the pipeline built for exactly this effect and
// render pass. Matching is by identity, not value, so two passes with
// equal target configurations still get their own pipelines.
func (m *Manager) findPipeline(effect *Effect, pass *RenderPass) *Pipeline {
	for _, pipeline := range m.pipelines {
		if pipeline.Effect == effect && pipeline.RenderPass == pass {
			return pipeline
		}
	}
	return nil
}

// buildPipeline returns the pipeline for the pair, creating it on
// first sight. At most one pipeline ever exists per (effect, render
// pass) pair.
func (m *Manager) buildPipeline(effect *Effect, pass *RenderPass) *Pipeline {
	if pipeline := m.findPipeline(effect, pass); pipeline != nil {
		return pipeline
	}
	pipeline := &Pipeline{Effect: effect, RenderPass: pass}
	m.pipelines = append(m.pipelines, pipeline)
	return pipeline
}

// buildPipelines resolves each render pass's actor membership and
// collects the deduplicated pipeline set those matches require. Runs
// on the CPU only; device compilation happens in bakePipelines.
// Matched actor lists are derived state and are recomputed from
// scratch here.
func (m *Manager) buildPipelines() error {
	if m.loaded&StagePipelines != 0 {
		return nil
	}

	actorNames := m.registry.ActorNames()
	var failed error
	m.registry.EachRenderPass(func(pass *RenderPass) bool {
		matched, err := MatchActorNames(pass.ActorRegex, actorNames)
		if err != nil {
			failed = fmt.Errorf("render pass %q: %w", pass.Name, err)
			core.LogError(failed.Error())
			return false
		}

		pass.MatchedActors = pass.MatchedActors[:0]
		for _, name := range matched {
			actor := m.registry.Actor(name)
			pass.MatchedActors = append(pass.MatchedActors, actor)
			m.buildPipeline(actor.Effect, pass)
		}
		if len(pass.MatchedActors) == 0 {
			core.LogWarn("render pass %q matched no actors", pass.Name)
		}
		return true
	})
	if failed != nil {
		return failed
	}

	m.loaded |= StagePipelines
	return nil
}

// bakeEffects compiles every effect's shader pair on the device.
// Failures are collected per effect so one broken shader does not
// hide the rest; the stage bit is set only when every effect
// compiled.
func (m *Manager) bakeEffects() error {
	if m.baked&StageEffects != 0 {
		return nil
	}

	var errs []error
	m.registry.EachEffect(func(effect *Effect) bool {
		if effect.GFXEffect != nil {
			return true
		}
		gfx, err := m.device.CreateEffect(effect.VertShaderName, effect.FragShaderName)
		if err != nil {
			deviceErr := &DeviceError{Kind: "effect", Name: effect.Name, Err: err}
			core.LogError(deviceErr.Error())
			errs = append(errs, deviceErr)
			return true
		}
		effect.GFXEffect = gfx
		return true
	})
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.baked |= StageEffects
	core.LogDebug("baked %d effects", m.registry.EffectCount())
	return nil
}

// bakePipelines compiles the pipeline set collected by
// buildPipelines. Compilation failures are isolated per pipeline and
// aggregated; the stage bit is set only when every pipeline compiled.
func (m *Manager) bakePipelines() error {
	if m.baked&StagePipelines != 0 {
		return nil
	}

	var errs []error
	for _, pipeline := range m.pipelines {
		if pipeline.GFXPipeline != nil {
			continue
		}
		gfx, err := m.device.CreatePipeline(pipeline.Effect.GFXEffect, &pipeline.RenderPass.Target)
		if err != nil {
			name := fmt.Sprintf("%s/%s", pipeline.Effect.Name, pipeline.RenderPass.Name)
			deviceErr := &DeviceError{Kind: "pipeline", Name: name, Err: err}
			core.LogError(deviceErr.Error())
			errs = append(errs, deviceErr)
			continue
		}
		pipeline.GFXPipeline = gfx
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.baked |= StagePipelines
	core.LogDebug("baked %d pipelines", len(m.pipelines))
	return nil
}

// bakeMeshUploads pushes every model's geometry into device buffers.
// Meshes track their own residency, so a retried bake only uploads
// what is still CPU-only. When the manager is configured to drop CPU
// copies, each model releases its local data once resident.
func (m *Manager) bakeMeshUploads() error {
	var errs []error
	m.registry.EachModel(func(model *Model) bool {
		if err := model.UploadGFX(m.device); err != nil {
			errs = append(errs, err)
			return true
		}
		if m.config.ReleaseCPUAfterUpload {
			if err := model.ReleaseLocalData(); err != nil {
				errs = append(errs, err)
			}
		}
		return true
	})
	return errors.Join(errs...)
}
