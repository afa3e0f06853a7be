package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchActorNames(t *testing.T) {
	names := []string{"hero", "heroLight", "enemy.0", "enemy.1", "Boss"}

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{name: "literal matches whole name only", pattern: "hero", want: []string{"hero"}},
		{name: "wildcard prefix", pattern: "hero.*", want: []string{"hero", "heroLight"}},
		{name: "escaped dot", pattern: `enemy\.[01]`, want: []string{"enemy.0", "enemy.1"}},
		{name: "alternation keeps input order", pattern: "enemy\\.1|hero", want: []string{"hero", "enemy.1"}},
		{name: "case sensitive", pattern: "boss", want: nil},
		{name: "match everything", pattern: ".*", want: []string{"hero", "heroLight", "enemy.0", "enemy.1", "Boss"}},
		{name: "empty pattern matches nothing", pattern: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchActorNames(tt.pattern, names)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchActorNamesInvalidPattern(t *testing.T) {
	_, err := MatchActorNames("hero[", []string{"hero"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid actor pattern")
}

func TestMatchActorNamesNoAnchoringLeak(t *testing.T) {
	// A pattern with its own alternation must not let anchoring
	// distribute over one branch only.
	got, err := MatchActorNames("a|bb", []string{"a", "ab", "bb", "bba"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bb"}, got)
}
