package codegen

import (
	"fmt"
	"go/format"
	"go/token"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/specialistvlad/circuitgo/internal/backend"
	"github.com/specialistvlad/circuitgo/internal/expr"
)

// Source renders p as a Go source file in package pkg. Every operator and
// function is emitted as the routine b names for it, and b's imports are
// added when any routine is used. Locals that no derivative depends on are
// left out.
func (p *Program) Source(b backend.Backend, pkg string) ([]byte, error) {
	if !token.IsIdentifier(pkg) {
		return nil, &CompileError{Stage: StageEmit, Err: fmt.Errorf("package name %q is not an identifier", pkg)}
	}
	w := &writer{b: b, names: newNamer()}

	params := []string{"t float64", "y []float64"}
	for _, a := range p.Args {
		params = append(params, w.names.ident(a.Name)+" []float64")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "\tdy := make([]float64, %d)\n", p.StateSize)
	live := liveLocals(p.Statements)
	for _, st := range p.Statements {
		switch st.Kind {
		case Load:
			if live[st.Target] {
				fmt.Fprintf(&body, "\t%s := y[%d:%d]\n", w.names.ident(st.Target), st.Index.Start, st.Index.End)
			}
		case Assign:
			if !live[st.Target] {
				continue
			}
			src, err := w.expr(st.Expr)
			if err != nil {
				return nil, &CompileError{Stage: StageEmit, Name: st.Target, Err: err}
			}
			fmt.Fprintf(&body, "\t%s := %s\n", w.names.ident(st.Target), src)
		case Store:
			src, err := w.expr(st.Expr)
			if err != nil {
				return nil, &CompileError{Stage: StageEmit, Name: st.Target, Err: err}
			}
			fmt.Fprintf(&body, "\tcopy(dy[%d:%d], %s)\n", st.Index.Start, st.Index.End, src)
		}
	}
	body.WriteString("\treturn dy\n")

	var out strings.Builder
	out.WriteString("// Code generated by circuitgo. DO NOT EDIT.\n\n")
	fmt.Fprintf(&out, "package %s\n\n", pkg)
	var imports []string
	if w.routines {
		imports = append(imports, b.Imports()...)
	}
	if w.math {
		imports = append(imports, "math")
	}
	slices.Sort(imports)
	imports = slices.Compact(imports)
	if len(imports) > 0 {
		out.WriteString("import (\n")
		for _, imp := range imports {
			fmt.Fprintf(&out, "\t%q\n", imp)
		}
		out.WriteString(")\n\n")
	}
	fmt.Fprintf(&out, "// %s returns the time derivative of the state vector y.\n//\n// State layout:\n//\n", p.Name)
	for _, s := range p.Layout {
		fmt.Fprintf(&out, "//\t%s\ty[%d:%d]\n", s.Name, s.Start, s.End)
	}
	fmt.Fprintf(&out, "func %s(%s) []float64 {\n%s}\n", p.Name, strings.Join(params, ", "), body.String())

	src, err := format.Source([]byte(out.String()))
	if err != nil {
		return nil, &CompileError{Stage: StageEmit, Name: p.Name, Err: err}
	}
	return src, nil
}

// liveLocals walks the statements backwards and keeps every local a store
// depends on.
func liveLocals(stmts []Stmt) map[string]bool {
	live := make(map[string]bool)
	mark := func(e expr.Expr) {
		for _, s := range expr.Symbols(e) {
			live[s] = true
		}
	}
	for i := len(stmts) - 1; i >= 0; i-- {
		st := stmts[i]
		switch {
		case st.Kind == Store:
			mark(st.Expr)
		case st.Kind == Assign && live[st.Target]:
			mark(st.Expr)
		}
	}
	return live
}

type writer struct {
	b        backend.Backend
	names    *namer
	routines bool
	math     bool
}

// literal spells v as a Go expression. Non-finite values have no literal
// form and go through package math.
func (w *writer) literal(v float64) string {
	switch {
	case math.IsNaN(v):
		w.math = true
		return "math.NaN()"
	case math.IsInf(v, 1):
		w.math = true
		return "math.Inf(1)"
	case math.IsInf(v, -1):
		w.math = true
		return "math.Inf(-1)"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (w *writer) expr(e expr.Expr) (string, error) {
	switch e := e.(type) {
	case *expr.Const:
		return "[]float64{" + w.literal(e.Value) + "}", nil
	case *expr.Symbol:
		return w.names.ident(e.Name), nil
	case *expr.Apply:
		f, ok := w.b.Lookup(e.Op)
		if !ok || f.Routine == "" {
			return "", fmt.Errorf("backend %s has no routine for %q", w.b.Name(), e.Op)
		}
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			s, err := w.expr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		w.routines = true
		return f.Routine + "(" + strings.Join(args, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression %T", e)
	}
}

// namer maps graph names onto distinct Go identifiers that cannot shadow the
// function's own parameters or the builtins it calls.
type namer struct {
	idents map[string]string
	taken  map[string]bool
}

func newNamer() *namer {
	n := &namer{idents: make(map[string]string), taken: make(map[string]bool)}
	for _, reserved := range []string{"t", "y", "dy", "rt", "math", "copy", "make", "float64"} {
		n.taken[reserved] = true
	}
	return n
}

func (n *namer) ident(name string) string {
	if id, ok := n.idents[name]; ok {
		return id
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z':
			b.WriteRune(r)
		case '0' <= r && r <= '9':
			if i == 0 {
				b.WriteString("v_")
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	id := b.String()
	for id == "" || token.IsKeyword(id) || n.taken[id] {
		id += "_"
	}
	n.idents[name] = id
	n.taken[id] = true
	return id
}
