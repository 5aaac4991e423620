// Package config holds the user settings of circuitgo: code generation
// options, simulation defaults and logging. Settings come from defaults, an
// optional YAML file and CIRCUITGO_* environment variables, in that order.
package config
