package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/specialistvlad/circuitgo/internal/app"
	"github.com/specialistvlad/circuitgo/internal/circuit"
	"github.com/specialistvlad/circuitgo/internal/config"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error(), Err: err}
}

// Execute runs the command line args. Results go to outW, logs and usage
// text to errW.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return &ExitError{Code: 1, Message: err.Error(), Err: err}
	}
	return err
}

// NewRootCommand builds the circuitgo command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "circuitgo",
		Short: "Compile neural population models into vector fields",
		Long: `circuitgo reads population models written in HCL, compiles their
equations into a single vector field and either emits the field as Go
source or integrates it with a fixed-step solver.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file.")
	flags.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.String("log-format", "", "Log output format. Options: 'text' or 'json'.")
	flags.StringP("out", "o", "", "Write the result to this file instead of stdout.")

	root.AddCommand(newCompileCmd(outW, errW), newSimulateCmd(outW, errW), newSweepCmd(outW, errW))
	return root
}

func newCompileCmd(outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile MODEL_PATH...",
		Short: "Generate Go source for a model's vector field",
		Args:  requireModel,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args, outW, errW)
			if err != nil {
				return err
			}
			return a.Compile(cmd.Context())
		},
	}
	cmd.Flags().String("func-name", "", "Name of the generated function.")
	cmd.Flags().String("package", "", "Package clause of the generated file.")
	cmd.Flags().String("backend", "", "Numeric backend.")
	return cmd
}

func newSimulateCmd(outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate MODEL_PATH...",
		Short: "Integrate a model and print its trajectory as CSV",
		Args:  requireModel,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args, outW, errW)
			if err != nil {
				return err
			}
			return a.Simulate(cmd.Context())
		},
	}
	cmd.Flags().Float64("dt", 0, "Integration step size.")
	cmd.Flags().Float64("duration", 0, "Simulated time span.")
	cmd.Flags().String("solver", "", "Integration method. Options: 'euler' or 'rk4'.")
	cmd.Flags().Int("every", 0, "Print one row every N steps.")
	cmd.Flags().String("backend", "", "Numeric backend.")
	return cmd
}

func newSweepCmd(outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep MODEL_PATH...",
		Short: "Integrate a model once per parameter value and print the final states as CSV",
		Args:  requireModel,
		RunE: func(cmd *cobra.Command, args []string) error {
			param, _ := cmd.Flags().GetString("param")
			values, _ := cmd.Flags().GetFloat64Slice("values")
			if param == "" || len(values) == 0 {
				return usageError(fmt.Errorf("sweep: --param and --values are required"))
			}
			a, err := newApp(cmd, args, outW, errW)
			if err != nil {
				return err
			}
			return a.Sweep(cmd.Context(), param, values)
		},
	}
	cmd.Flags().String("param", "", "Constant or input to vary.")
	cmd.Flags().Float64Slice("values", nil, "Comma separated parameter values.")
	cmd.Flags().Int("workers", 0, "Number of concurrent runs.")
	cmd.Flags().Float64("dt", 0, "Integration step size.")
	cmd.Flags().Float64("duration", 0, "Simulated time span.")
	cmd.Flags().String("solver", "", "Integration method. Options: 'euler' or 'rk4'.")
	cmd.Flags().String("backend", "", "Numeric backend.")
	return cmd
}

func requireModel(cmd *cobra.Command, args []string) error {
	if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
		return usageError(fmt.Errorf("%s: missing MODEL_PATH: %w", cmd.Name(), err))
	}
	return nil
}

// newApp merges the config file, the environment and the flags, in that
// order, and creates the app.
func newApp(cmd *cobra.Command, paths []string, outW, errW io.Writer) (*app.App, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	settings, err := config.Load(cfgPath)
	if err != nil {
		return nil, usageError(err)
	}
	if err := applyFlags(cmd, settings); err != nil {
		return nil, usageError(err)
	}
	out, _ := cmd.Flags().GetString("out")

	cfg, err := app.NewConfig(app.Config{ModelPaths: paths, OutPath: out, Settings: settings})
	if err != nil {
		return nil, usageError(err)
	}
	a, err := app.NewApp(outW, errW, cfg, circuit.NewLoader())
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, nil
}

// applyFlags copies every flag the user set onto settings.
func applyFlags(cmd *cobra.Command, s *config.Config) error {
	strs := map[string]*string{
		"log-level":  &s.Logging.Level,
		"log-format": &s.Logging.Format,
		"func-name":  &s.Compile.FuncName,
		"package":    &s.Compile.Package,
		"backend":    &s.Compile.Backend,
		"solver":     &s.Simulate.Solver,
	}
	floats := map[string]*float64{
		"dt":       &s.Simulate.Step,
		"duration": &s.Simulate.Duration,
	}
	flags := cmd.Flags()
	for name, dst := range strs {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	for name, dst := range floats {
		if f := flags.Lookup(name); f != nil && f.Changed {
			v, err := flags.GetFloat64(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	ints := map[string]*int{
		"every":   &s.Simulate.Every,
		"workers": &s.Simulate.Workers,
	}
	for name, dst := range ints {
		if f := flags.Lookup(name); f != nil && f.Changed {
			v, err := flags.GetInt(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	return nil
}
