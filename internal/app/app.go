package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/circuitgo/internal/backend"
	"github.com/specialistvlad/circuitgo/internal/circuit"
	"github.com/specialistvlad/circuitgo/internal/codegen"
	"github.com/specialistvlad/circuitgo/internal/ctxlog"
)

// ModelLoader reads a model from files or directories.
type ModelLoader interface {
	Load(ctx context.Context, paths ...string) (*circuit.Model, error)
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	model   *circuit.Model
	backend backend.Backend
}

// NewApp is the constructor for the main application. Results are written
// to outW and logs to logW. The model is loaded once, here.
func NewApp(outW, logW io.Writer, cfg *Config, loader ModelLoader) (*App, error) {
	logger := newLogger(cfg.Settings.Logging, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	b, err := backend.Get(cfg.Settings.Compile.Backend)
	if err != nil {
		return nil, err
	}
	logger.Debug("Backend selected.", "backend", b.Name())

	m, err := loader.Load(ctx, cfg.ModelPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	logger.Debug("Model loaded.", "variables", len(m.Variables), "equations", len(m.Equations))

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		model:   m,
		backend: b,
	}, nil
}

// Model returns the loaded model.
func (a *App) Model() *circuit.Model { return a.model }

// Artifact is a model compiled into a callable vector field.
type Artifact struct {
	Program *codegen.Program
	Func    *codegen.Func
	// Args holds the default argument values in program order.
	Args [][]float64
}

// Build compiles a fresh graph of the model. The model itself is never
// modified, so Build may be called repeatedly.
func (a *App) Build(ctx context.Context) (*Artifact, error) {
	return a.build(ctxlog.WithLogger(ctx, a.logger), a.model)
}

func (a *App) build(ctx context.Context, m *circuit.Model) (*Artifact, error) {
	g, err := circuit.Build(ctx, m, a.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to build compute graph: %w", err)
	}
	p, err := codegen.Generate(ctx, g, codegen.Options{FuncName: a.config.Settings.Compile.FuncName})
	if err != nil {
		return nil, err
	}
	f, err := p.Compile(a.backend)
	if err != nil {
		return nil, err
	}
	args, err := p.DefaultArgs(g)
	if err != nil {
		return nil, err
	}
	return &Artifact{Program: p, Func: f, Args: args}, nil
}
