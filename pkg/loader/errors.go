package loader

import (
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// Load steps, in execution order.
const (
	StepReset         = "reset"
	StepNodes         = "nodes"
	StepRelationships = "relationships"
	StepRelabel       = "relabel"
)

// LoadError reports the store failure that aborted a load.
type LoadError struct {
	Step  string     // Load step that failed
	Kind  graph.Kind // Kind of the node (or relationship source) being written
	Key   string     // Key of that node; empty for reset
	Label string     // Relationship label, for the relationships step
	Cause error      // Underlying store error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	switch {
	case e.Key == "":
		return fmt.Sprintf("load %s: %v", e.Step, e.Cause)
	case e.Label != "":
		return fmt.Sprintf("load %s %s:%s -[%s]->: %v", e.Step, e.Kind, e.Key, e.Label, e.Cause)
	default:
		return fmt.Sprintf("load %s %s:%s: %v", e.Step, e.Kind, e.Key, e.Cause)
	}
}

// Unwrap returns the underlying cause for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *LoadError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}
