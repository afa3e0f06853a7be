package scene

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.AddEffect("flat")
	require.NoError(t, err)
	_, err = registry.AddEffect("flat")
	require.Error(t, err)

	_, err = registry.AddActor("hero")
	require.NoError(t, err)
	_, err = registry.AddActor("hero")
	require.Error(t, err)

	// Kinds have independent namespaces.
	_, err = registry.AddModel("hero")
	require.NoError(t, err)
	_, err = registry.AddRenderPass("hero")
	require.NoError(t, err)
}

func TestRegistryIterationFollowsRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	for i := 0; i < 10; i++ {
		_, err := registry.AddActor(fmt.Sprintf("actor.%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 10, registry.ActorCount())
	names := registry.ActorNames()
	require.Len(t, names, 10)
	for i, name := range names {
		assert.Equal(t, fmt.Sprintf("actor.%d", i), name)
	}
}

func TestRegistryPointersStableAcrossGrowth(t *testing.T) {
	registry := NewRegistry()

	first, err := registry.AddActor("first")
	require.NoError(t, err)
	first.Body.Velocity.X = 42

	// Grow well past several arena chunks.
	for i := 0; i < 500; i++ {
		_, err := registry.AddActor(fmt.Sprintf("filler.%d", i))
		require.NoError(t, err)
	}

	again := registry.Actor("first")
	assert.Same(t, first, again)
	assert.Equal(t, float32(42), again.Body.Velocity.X)
}

func TestRegistryReset(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.AddEffect("flat")
	require.NoError(t, err)
	_, err = registry.AddModel("cube")
	require.NoError(t, err)

	registry.Reset()
	assert.Zero(t, registry.EffectCount())
	assert.Zero(t, registry.ModelCount())
	assert.Nil(t, registry.Effect("flat"))

	// Names are reusable after a reset.
	_, err = registry.AddEffect("flat")
	require.NoError(t, err)
}
