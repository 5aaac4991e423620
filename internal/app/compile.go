package app

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/circuitgo/internal/codegen"
)

// Compile writes the model's vector field as Go source. With an output path
// the source goes to the file and the state layout is printed instead.
func (a *App) Compile(ctx context.Context) error {
	art, err := a.Build(ctx)
	if err != nil {
		return err
	}
	p := art.Program
	src, err := p.Source(a.backend, a.config.Settings.Compile.Package)
	if err != nil {
		return err
	}

	if a.config.OutPath == "" {
		if _, err := a.outW.Write(src); err != nil {
			return fmt.Errorf("writing source: %w", err)
		}
	} else {
		if err := os.WriteFile(a.config.OutPath, src, 0o644); err != nil {
			return fmt.Errorf("writing source: %w", err)
		}
		if err := printLayout(a, p); err != nil {
			return err
		}
	}

	a.logger.Info("Vector field generated.",
		"func", p.Name,
		"state_size", p.StateSize,
		"args", len(p.Args),
		"out", a.config.OutPath,
	)
	return nil
}

func printLayout(a *App, p *codegen.Program) error {
	for _, s := range p.Layout {
		if _, err := fmt.Fprintf(a.outW, "state\t%s\ty[%d:%d]\t%v\n", s.Name, s.Start, s.End, s.Shape); err != nil {
			return err
		}
	}
	for i, arg := range p.Args {
		if _, err := fmt.Fprintf(a.outW, "arg\t%s\t#%d\t%v\t%s\n", arg.Name, i, arg.Shape, arg.Kind); err != nil {
			return err
		}
	}
	return nil
}
