package circuit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/fsutil"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ErrNoModelFiles is returned when none of the given paths holds a model file.
var ErrNoModelFiles = errors.New("no model files found")

// Loader reads model files. Files loaded by the same Loader are merged into
// one model.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new model loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// fileRoot is the schema of a model file.
type fileRoot struct {
	Variables []*variableBlock `hcl:"variable,block"`
	Equations []*equationBlock `hcl:"equation,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type variableBlock struct {
	Name  string         `hcl:"name,label"`
	Kind  string         `hcl:"kind,optional"`
	Value hcl.Expression `hcl:"value,optional"`
	Shape []int          `hcl:"shape,optional"`
	DType string         `hcl:"dtype,optional"`
}

type equationBlock struct {
	Var          string         `hcl:"var,label"`
	RHS          hcl.Expression `hcl:"rhs"`
	Differential bool           `hcl:"differential,optional"`
}

// Load reads every .hcl file under paths. Directories are walked
// recursively; missing paths are skipped.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Model loader started.", "path_count", len(paths))

	files, err := findModelFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %v", ErrNoModelFiles, paths)
	}
	logger.Debug("Discovered model files.", "count", len(files))

	m := &Model{}
	for _, file := range files {
		f, diags := l.parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse model file %s: %w", file, diags)
		}
		if err := l.decode(ctx, file, f, m); err != nil {
			return nil, err
		}
	}
	logger.Debug("Model loading complete.", "variables", len(m.Variables), "equations", len(m.Equations))
	return m, nil
}

// Parse reads a single model from src. filename is only used in
// diagnostics.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*Model, error) {
	f, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse model file %s: %w", filename, diags)
	}
	m := &Model{}
	if err := l.decode(ctx, filename, f, m); err != nil {
		return nil, err
	}
	return m, nil
}

// decode merges the blocks of f into m.
func (l *Loader) decode(ctx context.Context, filename string, f *hcl.File, m *Model) error {
	ctx = ctxlog.With(ctx, "file", filename)
	logger := ctxlog.FromContext(ctx)

	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode model file %s: %w", filename, diags)
	}

	for _, b := range root.Variables {
		if _, dup := m.Variable(b.Name); dup {
			return fmt.Errorf("%s: variable %q is declared more than once", filename, b.Name)
		}
		v, err := translateVariable(b)
		if err != nil {
			return fmt.Errorf("%s: variable %q: %w", filename, b.Name, err)
		}
		logger.Debug("Declared variable.", "name", v.Name, "kind", v.Kind, "shape", v.Value.Shape())
		m.Variables = append(m.Variables, v)
	}

	for _, b := range root.Equations {
		if slices.ContainsFunc(m.Equations, func(eq *Equation) bool { return eq.Var == b.Var }) {
			return fmt.Errorf("%s: variable %q has more than one equation", filename, b.Var)
		}
		rhs, err := translateRHS(b.RHS)
		if err != nil {
			return fmt.Errorf("%s: equation for %q: %w", filename, b.Var, err)
		}
		logger.Debug("Declared equation.", "var", b.Var, "rhs", rhs.String(), "differential", b.Differential)
		m.Equations = append(m.Equations, &Equation{Var: b.Var, RHS: rhs, Differential: b.Differential})
	}
	return nil
}

func translateVariable(b *variableBlock) (*Variable, error) {
	v := &Variable{Name: b.Name, Kind: node.ParseKind(b.Kind), DType: tensor.Float64}
	if b.DType != "" {
		dt, err := tensor.ParseDType(b.DType)
		if err != nil {
			return nil, err
		}
		v.DType = dt
	}
	if len(b.Shape) > 0 {
		for _, d := range b.Shape {
			if d <= 0 {
				return nil, fmt.Errorf("shape %v has a non-positive dimension", b.Shape)
			}
		}
		v.Shape = b.Shape
	}
	if isExprDefined(b.Value) {
		val, diags := b.Value.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("value must be a literal: %w", diags)
		}
		arr, err := toArray(val)
		if err != nil {
			return nil, err
		}
		v.Value = arr
	}
	return v, nil
}

// translateRHS accepts both rhs = "a * b" and rhs = a * b.
func translateRHS(e hcl.Expression) (expr.Expr, error) {
	if val, diags := e.Value(nil); !diags.HasErrors() && val.IsKnown() && !val.IsNull() && val.Type() == cty.String {
		return expr.Parse(val.AsString())
	}
	syn, ok := e.(hclsyntax.Expression)
	if !ok {
		return nil, fmt.Errorf("rhs at %s must be native HCL syntax", e.Range())
	}
	return expr.FromSyntax(syn)
}

// isExprDefined reports whether an optional attribute was written in the
// file. Omitted attributes decode to a zero-width placeholder expression.
func isExprDefined(e hcl.Expression) bool {
	if e == nil {
		return false
	}
	r := e.Range()
	return r.End.Byte > r.Start.Byte
}

// toArray converts a number or a (nested) list of numbers.
func toArray(val cty.Value) (tensor.Array, error) {
	if val.IsNull() {
		return tensor.Array{}, nil
	}
	if !val.IsWhollyKnown() {
		return tensor.Array{}, fmt.Errorf("value must be known")
	}
	ty := val.Type()
	if ty.IsListType() || ty.IsTupleType() {
		shape, data, err := flatten(val)
		if err != nil {
			return tensor.Array{}, err
		}
		return tensor.New(shape, data)
	}
	f, err := toFloat(val)
	if err != nil {
		return tensor.Array{}, err
	}
	return tensor.Scalar(f), nil
}

func flatten(val cty.Value) ([]int, []float64, error) {
	elems := val.AsValueSlice()
	if len(elems) == 0 {
		return nil, nil, fmt.Errorf("value must not be an empty list")
	}
	var inner []int
	var data []float64
	for i, el := range elems {
		var shape []int
		if ty := el.Type(); ty.IsListType() || ty.IsTupleType() {
			s, d, err := flatten(el)
			if err != nil {
				return nil, nil, err
			}
			shape = s
			data = append(data, d...)
		} else {
			f, err := toFloat(el)
			if err != nil {
				return nil, nil, fmt.Errorf("element %d: %w", i, err)
			}
			data = append(data, f)
		}
		if i == 0 {
			inner = shape
		} else if !slices.Equal(inner, shape) {
			return nil, nil, fmt.Errorf("value is a ragged list")
		}
	}
	return append([]int{len(elems)}, inner...), data, nil
}

func toFloat(val cty.Value) (float64, error) {
	n, err := convert.Convert(val, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("value of type %s is not a number", val.Type().FriendlyName())
	}
	var f float64
	if err := gocty.FromCtyValue(n, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// findModelFiles walks all given paths and returns a flat, deduplicated list
// of .hcl files.
func findModelFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			files = append(files, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if strings.EqualFold(filepath.Ext(path), ".hcl") {
				add(path)
			}
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return files, nil
}
