package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/circuitgo/internal/circuit"
	"github.com/specialistvlad/circuitgo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decayModel = `
variable "k" {
  kind  = "constant"
  value = 2
}
variable "x" {
  kind  = "state_var"
  value = [1, 4]
}
equation "x" {
  rhs          = "-(k * x)"
  differential = true
}
`

func TestNewConfig(t *testing.T) {
	t.Run("paths are required", func(t *testing.T) {
		_, err := NewConfig(Config{})
		assert.ErrorContains(t, err, "ModelPaths")
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewConfig(Config{ModelPaths: []string{"m.hcl"}})
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg.Settings)
	})

	t.Run("invalid settings", func(t *testing.T) {
		settings := config.Default()
		settings.Simulate.Step = -1
		_, err := NewConfig(Config{ModelPaths: []string{"m.hcl"}, Settings: settings})
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger(config.LoggingConfig{Level: "bogus"}, &buf).Info("fallback")
	assert.Contains(t, buf.String(), "msg=fallback")
}

func TestNewApp(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		settings := config.Default()
		settings.Compile.Backend = "cuda"
		cfg, err := NewConfig(Config{ModelPaths: []string{WriteModel(t, decayModel)}, Settings: settings})
		require.NoError(t, err)
		_, err = NewApp(&SafeBuffer{}, &SafeBuffer{}, cfg, circuit.NewLoader())
		assert.ErrorContains(t, err, `unknown backend "cuda"`)
	})

	t.Run("no model files", func(t *testing.T) {
		cfg, err := NewConfig(Config{ModelPaths: []string{t.TempDir()}})
		require.NoError(t, err)
		_, err = NewApp(&SafeBuffer{}, &SafeBuffer{}, cfg, circuit.NewLoader())
		assert.ErrorIs(t, err, circuit.ErrNoModelFiles)
	})
}

func TestCompile(t *testing.T) {
	dir := WriteModel(t, decayModel)

	t.Run("source to output", func(t *testing.T) {
		a, out, logs := SetupAppTest(t, dir, "", func(c *config.Config) { c.Compile.FuncName = "Decay" })
		require.NoError(t, a.Compile(context.Background()))

		assert.Contains(t, out.String(), "package model")
		assert.Contains(t, out.String(), "func Decay(t float64, y []float64, k []float64) []float64 {")
		assert.Contains(t, logs.String(), "Vector field generated.")
		assert.Contains(t, logs.String(), "Pruned graph")
	})

	t.Run("source to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "decay.go")
		a, out, _ := SetupAppTest(t, dir, path, nil)
		require.NoError(t, a.Compile(context.Background()))

		src, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(src), "// Code generated by circuitgo. DO NOT EDIT.")
		assert.Equal(t, "state\tx\ty[0:2]\t[2]\narg\tk\t#0\t[]\tconstant\n", out.String())
	})

	t.Run("repeatable", func(t *testing.T) {
		a, _, _ := SetupAppTest(t, dir, "", nil)
		first, err := a.Build(context.Background())
		require.NoError(t, err)
		second, err := a.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first.Program.Initial, second.Program.Initial)
		assert.Len(t, a.Model().Equations, 1)
	})
}

func TestSimulate(t *testing.T) {
	dir := WriteModel(t, decayModel)

	t.Run("csv trajectory", func(t *testing.T) {
		a, out, _ := SetupAppTest(t, dir, "", func(c *config.Config) {
			c.Simulate.Step = 0.25
			c.Simulate.Duration = 1
			c.Simulate.Every = 2
		})
		require.NoError(t, a.Simulate(context.Background()))

		rows, err := csv.NewReader(strings.NewReader(out.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"t", "x[0]", "x[1]"}, rows[0])
		assert.Equal(t, []string{"0", "1", "4"}, rows[1])
		assert.Equal(t, []string{"0.5", "0.25", "1"}, rows[2])
		assert.Equal(t, []string{"1", "0.0625", "0.25"}, rows[3])
	})

	t.Run("to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		a, out, _ := SetupAppTest(t, dir, path, func(c *config.Config) {
			c.Simulate.Step = 0.5
			c.Simulate.Duration = 1
		})
		require.NoError(t, a.Simulate(context.Background()))
		assert.Empty(t, out.String())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 4, strings.Count(string(data), "\n"))
	})

	t.Run("canceled", func(t *testing.T) {
		a, _, _ := SetupAppTest(t, dir, "", nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, a.Simulate(ctx), context.Canceled)
	})
}

func TestSweep(t *testing.T) {
	dir := WriteModel(t, decayModel)
	quarterSteps := func(c *config.Config) {
		c.Simulate.Step = 0.25
		c.Simulate.Duration = 1
		c.Simulate.Workers = 2
	}

	t.Run("final states per value", func(t *testing.T) {
		a, out, logs := SetupAppTest(t, dir, "", quarterSteps)
		require.NoError(t, a.Sweep(context.Background(), "k", []float64{1, 2}))
		assert.Equal(t, "k,x[0],x[1]\n1,0.31640625,1.265625\n2,0.0625,0.25\n", out.String())
		assert.Contains(t, logs.String(), "Sweep finished.")
	})

	t.Run("unknown parameter", func(t *testing.T) {
		a, _, _ := SetupAppTest(t, dir, "", quarterSteps)
		err := a.Sweep(context.Background(), "tau", []float64{1})
		assert.ErrorContains(t, err, "arguments: [k]")
	})

	t.Run("state is not a parameter", func(t *testing.T) {
		a, _, _ := SetupAppTest(t, dir, "", quarterSteps)
		err := a.Sweep(context.Background(), "x", []float64{1})
		assert.ErrorContains(t, err, "not a constant or input")
	})

	t.Run("folded constant", func(t *testing.T) {
		folded := WriteModel(t, `
variable "k" {
  kind  = "constant"
  value = 1
}
variable "x" {
  kind  = "state_var"
  value = 0
}
equation "x" {
  rhs          = "k * 2 - x"
  differential = true
}
`)
		a, out, _ := SetupAppTest(t, folded, "", func(c *config.Config) {
			c.Simulate.Step = 0.5
			c.Simulate.Duration = 1
		})
		art, err := a.Build(context.Background())
		require.NoError(t, err)
		require.Len(t, art.Program.Args, 1)
		assert.NotEqual(t, "k", art.Program.Args[0].Name, "k is folded into the product")

		require.NoError(t, a.Sweep(context.Background(), "k", []float64{1, 2}))
		assert.Equal(t, "k,x\n1,1.5\n2,3\n", out.String())

		k, ok := a.Model().Variable("k")
		require.True(t, ok)
		assert.Equal(t, 1.0, k.Value.Item(), "the loaded model is left untouched")
	})

	t.Run("no values", func(t *testing.T) {
		a, _, _ := SetupAppTest(t, dir, "", quarterSteps)
		assert.ErrorContains(t, a.Sweep(context.Background(), "k", nil), "no values")
	})
}
