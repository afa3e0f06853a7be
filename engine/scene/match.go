package scene

import (
	"fmt"
	"regexp"
)

// MatchActorNames returns the names matching pattern, preserving
// input order. The pattern is anchored to the whole name: "crate"
// matches the actor "crate" and not "crate_0". Matching is
// case-sensitive RE2; an empty pattern matches nothing. No manager
// state is read or written.
func MatchActorNames(pattern string, names []string) ([]string, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid actor pattern %q: %w", pattern, err)
	}

	var matched []string
	for _, name := range names {
		if re.MatchString(name) {
			matched = append(matched, name)
		}
	}
	return matched, nil
}
