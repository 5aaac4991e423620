package app

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ModelPaths []string // hcl files or directories
	OutPath    string   // empty writes to the app's output writer

	Settings *config.Config
}

// NewConfig validates cfg. Missing settings are replaced by the defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ModelPaths) == 0 {
		return nil, errors.New("ModelPaths is a required configuration field and cannot be empty")
	}
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
