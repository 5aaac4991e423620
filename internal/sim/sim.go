// Package sim integrates compiled vector fields with fixed-step solvers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidStep is returned for a non-positive or non-finite step size.
var ErrInvalidStep = errors.New("step size must be positive and finite")

// Field is a vector field dy = f(t, y, args...). *codegen.Func implements it.
type Field interface {
	Call(t float64, y []float64, args ...[]float64) ([]float64, error)
}

// FieldFunc adapts a plain function to Field.
type FieldFunc func(t float64, y []float64, args ...[]float64) ([]float64, error)

// Call calls f.
func (f FieldFunc) Call(t float64, y []float64, args ...[]float64) ([]float64, error) {
	return f(t, y, args...)
}

// Observer receives the state after every step, and once before the first.
// y must not be retained. A non-nil error stops the integration.
type Observer func(step int, t float64, y []float64) error

// Method selects the integration scheme.
type Method string

const (
	// Euler is the explicit first-order method.
	Euler Method = "euler"
	// RK4 is the classic fourth-order Runge-Kutta method.
	RK4 Method = "rk4"
)

// ParseMethod maps a solver name to a Method. An empty name is Euler.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "", Euler:
		return Euler, nil
	case RK4:
		return RK4, nil
	default:
		return "", fmt.Errorf("unknown solver %q", s)
	}
}

// Options configures Integrate.
type Options struct {
	Method  Method
	Step    float64
	Steps   int
	Observe Observer
}

// StepsFor returns the number of steps of size dt needed to cover duration.
func StepsFor(duration, dt float64) int {
	if dt <= 0 || duration <= 0 {
		return 0
	}
	return int(math.Round(duration / dt))
}

// Integrate advances y0 by opts.Steps steps starting at t = 0 and returns the
// final state. y0 is not modified. The context is checked between steps.
func Integrate(ctx context.Context, f Field, y0 []float64, args [][]float64, opts Options) ([]float64, error) {
	logger := ctxlog.FromContext(ctx)
	dt := opts.Step
	if dt <= 0 || math.IsInf(dt, 0) || math.IsNaN(dt) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, dt)
	}
	if opts.Steps < 0 {
		return nil, fmt.Errorf("negative step count %d", opts.Steps)
	}
	method := opts.Method
	if method == "" {
		method = Euler
	}
	var advance stepper
	switch method {
	case Euler:
		advance = eulerStep
	case RK4:
		advance = newRK4(len(y0)).step
	default:
		return nil, fmt.Errorf("unknown solver %q", method)
	}

	logger.Debug("Integration started.", "method", method, "dt", dt, "steps", opts.Steps, "state_size", len(y0))
	y := slices.Clone(y0)
	if err := observe(opts.Observe, 0, 0, y); err != nil {
		return nil, err
	}
	for i := 1; i <= opts.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := float64(i-1) * dt
		if err := advance(f, t, y, dt, args); err != nil {
			return nil, fmt.Errorf("step %d at t=%g: %w", i, t, err)
		}
		if err := observe(opts.Observe, i, float64(i)*dt, y); err != nil {
			return nil, err
		}
	}
	logger.Debug("Integration finished.", "t", float64(opts.Steps)*dt)
	return y, nil
}

// EulerSteps runs steps forward Euler steps of size dt.
func EulerSteps(ctx context.Context, f Field, y0 []float64, args [][]float64, dt float64, steps int, obs Observer) ([]float64, error) {
	return Integrate(ctx, f, y0, args, Options{Method: Euler, Step: dt, Steps: steps, Observe: obs})
}

func observe(obs Observer, step int, t float64, y []float64) error {
	if obs == nil {
		return nil
	}
	return obs(step, t, y)
}

// stepper advances y in place by one step.
type stepper func(f Field, t float64, y []float64, dt float64, args [][]float64) error

func eulerStep(f Field, t float64, y []float64, dt float64, args [][]float64) error {
	k, err := call(f, t, y, args)
	if err != nil {
		return err
	}
	floats.AddScaled(y, dt, k)
	return nil
}

type rk4 struct {
	tmp []float64
}

func newRK4(n int) *rk4 { return &rk4{tmp: make([]float64, n)} }

func (r *rk4) step(f Field, t float64, y []float64, dt float64, args [][]float64) error {
	k1, err := call(f, t, y, args)
	if err != nil {
		return err
	}
	floats.AddScaledTo(r.tmp, y, dt/2, k1)
	k2, err := call(f, t+dt/2, r.tmp, args)
	if err != nil {
		return err
	}
	floats.AddScaledTo(r.tmp, y, dt/2, k2)
	k3, err := call(f, t+dt/2, r.tmp, args)
	if err != nil {
		return err
	}
	floats.AddScaledTo(r.tmp, y, dt, k3)
	k4, err := call(f, t+dt, r.tmp, args)
	if err != nil {
		return err
	}
	floats.AddScaled(y, dt/6, k1)
	floats.AddScaled(y, dt/3, k2)
	floats.AddScaled(y, dt/3, k3)
	floats.AddScaled(y, dt/6, k4)
	return nil
}

func call(f Field, t float64, y []float64, args [][]float64) ([]float64, error) {
	dy, err := f.Call(t, y, args...)
	if err != nil {
		return nil, err
	}
	if len(dy) != len(y) {
		return nil, fmt.Errorf("vector field returned %d values for a state of %d", len(dy), len(y))
	}
	return dy, nil
}
