// Package parsers extracts flat records from textual scene
// descriptions. It performs structural validation only; resolving
// names to entities is the scene manager's job.
package parsers

import (
	"encoding/json"
	"fmt"

	"github.com/joedavisdev/kiln/engine/core"
)

// ParsedEffect is one entry of the "effects" node.
type ParsedEffect struct {
	Name              string   `json:"name"`
	UniformBlockNames []string `json:"uniform_block_names"`
	VertShaderName    string   `json:"vert_shader_name"`
	FragShaderName    string   `json:"frag_shader_name"`
}

// ParsedActor is one entry of the "actors" node. WorldPosition is a
// 4-component position; descriptions that give fewer components leave
// the remainder zero.
type ParsedActor struct {
	Name                string     `json:"name"`
	AttributeBlockNames []string   `json:"attribute_block_names"`
	EffectName          string     `json:"effect_name"`
	ModelName           string     `json:"model_name"`
	WorldPosition       [4]float32 `json:"world_position"`
}

// ParsedRenderPass is one entry of the "render_passes" node. The
// depth/stencil key keeps its historical plural spelling even though
// it holds a single format name. SampleCount is optional and defaults
// to 1.
type ParsedRenderPass struct {
	Name               string   `json:"name"`
	ActorRegex         string   `json:"actor_regex"`
	ColourFormats      []string `json:"colour_formats"`
	DepthStencilFormat string   `json:"depth_stencil_formats"`
	SampleCount        uint32   `json:"sample_count"`
}

type sceneDocument struct {
	Effects      []ParsedEffect     `json:"effects"`
	Actors       []ParsedActor      `json:"actors"`
	RenderPasses []ParsedRenderPass `json:"render_passes"`
}

// SceneParser holds the flat records of the most recent Parse call.
type SceneParser struct {
	Effects      []ParsedEffect
	Actors       []ParsedActor
	RenderPasses []ParsedRenderPass
}

func NewSceneParser() *SceneParser {
	return &SceneParser{}
}

// Parse decodes a scene description and replaces the parser's
// records. On any error the previous records are left untouched.
func (p *SceneParser) Parse(data []byte) error {
	var document sceneDocument
	if err := json.Unmarshal(data, &document); err != nil {
		err = fmt.Errorf("scene description is not valid JSON: %w", err)
		core.LogError(err.Error())
		return err
	}

	if err := processEffects(document.Effects); err != nil {
		return err
	}
	if err := processActors(document.Actors); err != nil {
		return err
	}
	if err := processRenderPasses(document.RenderPasses); err != nil {
		return err
	}

	p.Effects = document.Effects
	p.Actors = document.Actors
	p.RenderPasses = document.RenderPasses
	return nil
}

func processEffects(effects []ParsedEffect) error {
	seen := make(map[string]bool, len(effects))
	for i, effect := range effects {
		if effect.Name == "" {
			return parseError("effect", i, "missing name")
		}
		if seen[effect.Name] {
			return parseError("effect", i, fmt.Sprintf("duplicate name %q", effect.Name))
		}
		seen[effect.Name] = true

		if effect.VertShaderName == "" {
			return parseError("effect", i, fmt.Sprintf("%q has no vert_shader_name", effect.Name))
		}
		if effect.FragShaderName == "" {
			return parseError("effect", i, fmt.Sprintf("%q has no frag_shader_name", effect.Name))
		}
	}
	return nil
}

func processActors(actors []ParsedActor) error {
	seen := make(map[string]bool, len(actors))
	for i, actor := range actors {
		if actor.Name == "" {
			return parseError("actor", i, "missing name")
		}
		if seen[actor.Name] {
			return parseError("actor", i, fmt.Sprintf("duplicate name %q", actor.Name))
		}
		seen[actor.Name] = true

		if actor.EffectName == "" {
			return parseError("actor", i, fmt.Sprintf("%q has no effect_name", actor.Name))
		}
		if actor.ModelName == "" {
			return parseError("actor", i, fmt.Sprintf("%q has no model_name", actor.Name))
		}
	}
	return nil
}

func processRenderPasses(passes []ParsedRenderPass) error {
	seen := make(map[string]bool, len(passes))
	for i := range passes {
		pass := &passes[i]
		if pass.Name == "" {
			return parseError("render pass", i, "missing name")
		}
		if seen[pass.Name] {
			return parseError("render pass", i, fmt.Sprintf("duplicate name %q", pass.Name))
		}
		seen[pass.Name] = true

		if len(pass.ColourFormats) == 0 {
			return parseError("render pass", i, fmt.Sprintf("%q has no colour_formats", pass.Name))
		}
		for _, format := range pass.ColourFormats {
			if format == "" {
				return parseError("render pass", i, fmt.Sprintf("%q has an empty colour format entry", pass.Name))
			}
		}

		switch pass.SampleCount {
		case 0:
			pass.SampleCount = 1
		case 1, 2, 4, 8:
		default:
			return parseError("render pass", i, fmt.Sprintf("%q has unsupported sample_count %d", pass.Name, pass.SampleCount))
		}
	}
	return nil
}

func parseError(kind string, index int, message string) error {
	err := fmt.Errorf("scene %s %d: %s", kind, index, message)
	core.LogError(err.Error())
	return err
}
