package codegen

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when a differential update does not have
	// the shape of the variable it drives.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnresolvedOrder is returned when the algebraic equations depend on
	// each other in a cycle.
	ErrUnresolvedOrder = errors.New("algebraic equations cannot be ordered")
)

// Pipeline stages reported by CompileError.
const (
	StagePrune     = "prune"
	StagePack      = "pack"
	StageOrder     = "order"
	StageTranslate = "translate"
	StageEmit      = "emit"
)

// CompileError reports the stage and the equation a compile failed at.
type CompileError struct {
	Stage string
	// Name is the variable being processed, if any.
	Name string
	Err  error
}

func (e *CompileError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Name, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
