package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completeScene = `{
	"effects": [
		{
			"name": "flat",
			"uniform_block_names": ["globals"],
			"vert_shader_name": "flat.vert",
			"frag_shader_name": "flat.frag"
		},
		{
			"name": "glow",
			"vert_shader_name": "glow.vert",
			"frag_shader_name": "glow.frag"
		}
	],
	"actors": [
		{
			"name": "crate_0",
			"attribute_block_names": ["instance"],
			"effect_name": "flat",
			"model_name": "cube",
			"world_position": [1.0, 2.0, 3.0, 1.0]
		},
		{
			"name": "beacon",
			"effect_name": "glow",
			"model_name": "quad"
		}
	],
	"render_passes": [
		{
			"name": "forward",
			"actor_regex": ".*",
			"colour_formats": ["RGBA8Unorm"],
			"depth_stencil_formats": "Depth32Float",
			"sample_count": 4
		}
	]
}`

func TestParseCompleteScene(t *testing.T) {
	parser := NewSceneParser()
	require.NoError(t, parser.Parse([]byte(completeScene)))

	require.Len(t, parser.Effects, 2)
	assert.Equal(t, "flat", parser.Effects[0].Name)
	assert.Equal(t, []string{"globals"}, parser.Effects[0].UniformBlockNames)
	assert.Equal(t, "flat.vert", parser.Effects[0].VertShaderName)
	assert.Equal(t, "flat.frag", parser.Effects[0].FragShaderName)
	assert.Empty(t, parser.Effects[1].UniformBlockNames)

	require.Len(t, parser.Actors, 2)
	assert.Equal(t, "crate_0", parser.Actors[0].Name)
	assert.Equal(t, "flat", parser.Actors[0].EffectName)
	assert.Equal(t, "cube", parser.Actors[0].ModelName)
	assert.Equal(t, [4]float32{1, 2, 3, 1}, parser.Actors[0].WorldPosition)
	assert.Equal(t, [4]float32{}, parser.Actors[1].WorldPosition)

	require.Len(t, parser.RenderPasses, 1)
	assert.Equal(t, "forward", parser.RenderPasses[0].Name)
	assert.Equal(t, ".*", parser.RenderPasses[0].ActorRegex)
	assert.Equal(t, []string{"RGBA8Unorm"}, parser.RenderPasses[0].ColourFormats)
	assert.Equal(t, "Depth32Float", parser.RenderPasses[0].DepthStencilFormat)
	assert.Equal(t, uint32(4), parser.RenderPasses[0].SampleCount)
}

func TestParseStructuralValidation(t *testing.T) {
	cases := []struct {
		name    string
		scene   string
		wantErr string
	}{
		{
			name:    "not json",
			scene:   `{"effects": [`,
			wantErr: "not valid JSON",
		},
		{
			name:    "effect missing name",
			scene:   `{"effects": [{"vert_shader_name": "a", "frag_shader_name": "b"}]}`,
			wantErr: "missing name",
		},
		{
			name:    "effect missing vertex shader",
			scene:   `{"effects": [{"name": "flat", "frag_shader_name": "b"}]}`,
			wantErr: "no vert_shader_name",
		},
		{
			name: "duplicate effect name",
			scene: `{"effects": [
				{"name": "flat", "vert_shader_name": "a", "frag_shader_name": "b"},
				{"name": "flat", "vert_shader_name": "c", "frag_shader_name": "d"}
			]}`,
			wantErr: `duplicate name "flat"`,
		},
		{
			name:    "actor missing effect",
			scene:   `{"actors": [{"name": "crate", "model_name": "cube"}]}`,
			wantErr: "no effect_name",
		},
		{
			name:    "actor missing model",
			scene:   `{"actors": [{"name": "crate", "effect_name": "flat"}]}`,
			wantErr: "no model_name",
		},
		{
			name:    "render pass without colour formats",
			scene:   `{"render_passes": [{"name": "forward", "actor_regex": ".*"}]}`,
			wantErr: "no colour_formats",
		},
		{
			name:    "render pass with bad sample count",
			scene:   `{"render_passes": [{"name": "forward", "colour_formats": ["RGBA8Unorm"], "sample_count": 3}]}`,
			wantErr: "unsupported sample_count 3",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewSceneParser().Parse([]byte(tc.scene))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseKeepsRecordsOnFailure(t *testing.T) {
	parser := NewSceneParser()
	require.NoError(t, parser.Parse([]byte(completeScene)))

	err := parser.Parse([]byte(`{"effects": [{"name": ""}]}`))
	require.Error(t, err)

	// The failed parse must not clobber the previous records.
	assert.Len(t, parser.Effects, 2)
	assert.Len(t, parser.Actors, 2)
	assert.Len(t, parser.RenderPasses, 1)
}

func TestParseDefaultsSampleCount(t *testing.T) {
	parser := NewSceneParser()
	scene := `{"render_passes": [{"name": "forward", "actor_regex": "", "colour_formats": ["RGBA8Unorm"]}]}`
	require.NoError(t, parser.Parse([]byte(scene)))

	require.Len(t, parser.RenderPasses, 1)
	assert.Equal(t, uint32(1), parser.RenderPasses[0].SampleCount)
	assert.Empty(t, parser.RenderPasses[0].DepthStencilFormat)
}
