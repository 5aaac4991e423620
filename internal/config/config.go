package config

import (
	"errors"
	"fmt"
	"go/token"
	"math"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config contains all circuitgo settings.
type Config struct {
	// Compile controls generation of the vector field.
	Compile CompileConfig `yaml:"compile"`

	// Simulate holds the defaults of the simulate command.
	Simulate SimulateConfig `yaml:"simulate"`

	// Logging configures the application logger.
	Logging LoggingConfig `yaml:"logging"`
}

// CompileConfig configures code generation.
type CompileConfig struct {
	// FuncName names the generated function.
	FuncName string `yaml:"func_name"`

	// Backend selects the numeric backend, e.g. "native".
	Backend string `yaml:"backend"`

	// Package is the package clause of generated source files.
	Package string `yaml:"package"`
}

// SimulateConfig configures fixed-step integration.
type SimulateConfig struct {
	// Step is the integration step size in model time units.
	Step float64 `yaml:"step"`

	// Duration is the simulated time span.
	Duration float64 `yaml:"duration"`

	// Solver is "euler" or "rk4".
	Solver string `yaml:"solver"`

	// Every prints one row per Every steps.
	Every int `yaml:"every"`

	// Workers bounds the number of concurrent runs of a sweep.
	Workers int `yaml:"workers"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
	validSolvers = []string{"euler", "rk4"}
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Compile: CompileConfig{
			FuncName: "VectorField",
			Backend:  "native",
			Package:  "model",
		},
		Simulate: SimulateConfig{
			Step:     1e-3,
			Duration: 1,
			Solver:   "euler",
			Every:    1,
			Workers:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is not empty) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file. Settings the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if !token.IsIdentifier(c.Compile.FuncName) {
		errs = append(errs, fmt.Errorf("func_name %q is not a Go identifier", c.Compile.FuncName))
	}
	if !token.IsIdentifier(c.Compile.Package) {
		errs = append(errs, fmt.Errorf("package %q is not a Go identifier", c.Compile.Package))
	}
	if c.Compile.Backend == "" {
		errs = append(errs, errors.New("backend must not be empty"))
	}
	if !(c.Simulate.Step > 0) || math.IsInf(c.Simulate.Step, 0) {
		errs = append(errs, fmt.Errorf("step must be positive, got %v", c.Simulate.Step))
	}
	if c.Simulate.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must be non-negative, got %v", c.Simulate.Duration))
	}
	if !slices.Contains(validSolvers, c.Simulate.Solver) {
		errs = append(errs, fmt.Errorf("invalid solver: %s (valid: %v)", c.Simulate.Solver, validSolvers))
	}
	if c.Simulate.Every < 1 {
		errs = append(errs, fmt.Errorf("every must be at least 1, got %d", c.Simulate.Every))
	}
	if c.Simulate.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Simulate.Workers))
	}
	if !slices.Contains(validLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, validLevels))
	}
	if !slices.Contains(validFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, validFormats))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CIRCUITGO_BACKEND"); v != "" {
		cfg.Compile.Backend = v
	}
	if v := os.Getenv("CIRCUITGO_SOLVER"); v != "" {
		cfg.Simulate.Solver = v
	}
	if v := os.Getenv("CIRCUITGO_STEP"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CIRCUITGO_STEP: %w", err)
		}
		cfg.Simulate.Step = f
	}
	if v := os.Getenv("CIRCUITGO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CIRCUITGO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}
