package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/specialistvlad/circuitgo/internal/codegen"
	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"github.com/specialistvlad/circuitgo/internal/sim"
)

// Sweep integrates the model once per value of param and writes one CSV row
// per value holding the final state. param is an argument of the compiled
// field or a declared constant or input. Runs execute concurrently on the
// configured workers.
func (a *App) Sweep(ctx context.Context, param string, values []float64) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	settings := a.config.Settings.Simulate

	if len(values) == 0 {
		return fmt.Errorf("sweep over %s: no values", param)
	}
	method, err := sim.ParseMethod(settings.Solver)
	if err != nil {
		return err
	}
	art, err := a.Build(ctx)
	if err != nil {
		return err
	}

	argSets, err := a.sweepArgs(ctx, art, param, values)
	if err != nil {
		return err
	}

	steps := sim.StepsFor(settings.Duration, settings.Step)
	a.logger.Info("Sweep started.", "param", param, "runs", len(values), "workers", settings.Workers, "steps", steps)
	finals, err := sim.Sweep(ctx, art.Func, art.Program.Initial, argSets, sim.Options{
		Method: method,
		Step:   settings.Step,
		Steps:  steps,
	}, settings.Workers)
	if err != nil {
		return fmt.Errorf("sweep over %s failed: %w", param, err)
	}

	out, closeOut, err := a.output()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); err == nil {
			err = cerr
		}
	}()
	w := newTrajectoryWriter(out, art.Program, param)
	if err := w.header(); err != nil {
		return err
	}
	for i, v := range values {
		if err := w.row(v, finals[i]); err != nil {
			return err
		}
	}
	if err := w.flush(); err != nil {
		return err
	}
	a.logger.Info("Sweep finished.", "rows", w.rows)
	return nil
}

// sweepArgs returns one argument list per value. An argument of the compiled
// field is overwritten directly. A declared variable that folding merged
// into a larger constant is set in the model, which is then compiled again.
func (a *App) sweepArgs(ctx context.Context, art *Artifact, param string, values []float64) ([][][]float64, error) {
	argSets := make([][][]float64, len(values))

	if idx := slices.IndexFunc(art.Program.Args, func(arg codegen.Arg) bool { return arg.Name == param }); idx >= 0 {
		for i, v := range values {
			args := slices.Clone(art.Args)
			fill := make([]float64, len(args[idx]))
			for j := range fill {
				fill[j] = v
			}
			args[idx] = fill
			argSets[i] = args
		}
		return argSets, nil
	}

	names := argNames(art.Program.Args)
	decl, ok := a.model.Variable(param)
	if !ok || !decl.Kind.IsFree() {
		return nil, fmt.Errorf("sweep over %s: not a constant or input of the model (arguments: %v)", param, names)
	}
	a.logger.Debug("Swept variable was folded, compiling once per value.", "param", param, "args", names)
	for i, v := range values {
		m, err := a.model.WithValue(param, v)
		if err != nil {
			return nil, err
		}
		run, err := a.build(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("sweep over %s=%g: %w", param, v, err)
		}
		if !slices.Equal(argNames(run.Program.Args), names) {
			return nil, fmt.Errorf("sweep over %s=%g: compiled arguments changed to %v", param, v, argNames(run.Program.Args))
		}
		argSets[i] = run.Args
	}
	return argSets, nil
}

func argNames(args []codegen.Arg) []string {
	names := make([]string, len(args))
	for i, arg := range args {
		names[i] = arg.Name
	}
	return names
}
