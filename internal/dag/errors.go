package dag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is the kind of every error reporting a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// CycleError names one cycle found in the graph. Path starts and ends with
// the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycle.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }
