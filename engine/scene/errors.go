package scene

import (
	"fmt"
	"strings"
)

// ReferenceError reports a name that does not resolve to a declared
// entity. Referrer, when present, is a pre-formatted description of
// who held the dangling name.
type ReferenceError struct {
	Kind     string
	Name     string
	Referrer string
}

func (e *ReferenceError) Error() string {
	if e.Referrer != "" {
		return fmt.Sprintf("%s references undeclared %s %q", e.Referrer, e.Kind, e.Name)
	}
	return fmt.Sprintf("undeclared %s %q", e.Kind, e.Name)
}

// SequenceError reports an operation invoked out of lifecycle order.
// Either Missing names the stages that must complete first, or Reason
// describes a violation that no amount of staging can repair.
type SequenceError struct {
	Op      string
	Missing []string
	Reason  string
}

func (e *SequenceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s requires completed stages [%s]", e.Op, strings.Join(e.Missing, ", "))
}

// DeviceError wraps a graphics device failure with the scene object
// that triggered it.
type DeviceError struct {
	Kind string
	Name string
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device failure on %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// InvariantError reports internal state that the staged lifecycle
// should have made impossible. It always indicates a bug, never bad
// input.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.Message)
}
