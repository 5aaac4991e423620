package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/specialistvlad/circuitgo/internal/codegen"
	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"github.com/specialistvlad/circuitgo/internal/sim"
)

// Simulate integrates the model from its initial state and writes the
// trajectory as CSV, one column per state element.
func (a *App) Simulate(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	settings := a.config.Settings.Simulate

	method, err := sim.ParseMethod(settings.Solver)
	if err != nil {
		return err
	}
	art, err := a.Build(ctx)
	if err != nil {
		return err
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

	steps := sim.StepsFor(settings.Duration, settings.Step)
	w := newTrajectoryWriter(out, art.Program, "t")
	if err := w.header(); err != nil {
		return err
	}
	obs := func(step int, t float64, y []float64) error {
		if step%settings.Every != 0 && step != steps {
			return nil
		}
		return w.row(t, y)
	}

	a.logger.Info("Simulation started.", "solver", method, "dt", settings.Step, "steps", steps)
	if _, err := sim.Integrate(ctx, art.Func, art.Program.Initial, art.Args, sim.Options{
		Method:  method,
		Step:    settings.Step,
		Steps:   steps,
		Observe: obs,
	}); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	if err := w.flush(); err != nil {
		return err
	}
	a.logger.Info("Simulation finished.", "rows", w.rows)
	return nil
}

// output opens the configured output file, or returns the app's writer.
func (a *App) output() (io.Writer, func() error, error) {
	if a.config.OutPath == "" {
		return a.outW, func() error { return nil }, nil
	}
	f, err := os.Create(a.config.OutPath)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output: %w", err)
	}
	return f, f.Close, nil
}

type trajectoryWriter struct {
	csv     *csv.Writer
	columns []string
	rec     []string
	rows    int
}

// newTrajectoryWriter writes one column named first followed by one column
// per state element.
func newTrajectoryWriter(w io.Writer, p *codegen.Program, first string) *trajectoryWriter {
	columns := []string{first}
	for _, s := range p.Layout {
		if s.End-s.Start == 1 {
			columns = append(columns, s.Name)
			continue
		}
		for i := 0; i < s.End-s.Start; i++ {
			columns = append(columns, fmt.Sprintf("%s[%d]", s.Name, i))
		}
	}
	return &trajectoryWriter{csv: csv.NewWriter(w), columns: columns, rec: make([]string, len(columns))}
}

func (w *trajectoryWriter) header() error {
	return w.csv.Write(w.columns)
}

func (w *trajectoryWriter) row(x float64, y []float64) error {
	w.rec[0] = strconv.FormatFloat(x, 'g', -1, 64)
	for i, v := range y {
		w.rec[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	w.rows++
	return w.csv.Write(w.rec)
}

func (w *trajectoryWriter) flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("writing trajectory: %w", err)
	}
	return nil
}
