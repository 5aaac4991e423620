package expr

import (
	"sort"
)

// Walk visits e and its descendants depth-first, parents before children.
// Returning false from fn skips the children of the visited node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	if a, ok := e.(*Apply); ok {
		for _, arg := range a.Args {
			Walk(arg, fn)
		}
	}
}

// Substitute replaces every symbol named in repl by its replacement. The
// replacements themselves are not rewritten again, so a replacement may
// safely mention the symbol it replaces.
func Substitute(e Expr, repl map[string]Expr) Expr {
	if len(repl) == 0 {
		return e
	}
	switch e := e.(type) {
	case *Symbol:
		if r, ok := repl[e.Name]; ok {
			return r
		}
		return e
	case *Apply:
		args, changed := rewriteArgs(e.Args, func(arg Expr) Expr { return Substitute(arg, repl) })
		if !changed {
			return e
		}
		return &Apply{Op: e.Op, Args: args}
	}
	return e
}

// Rename replaces function names according to names. Operators and symbols
// are left untouched.
func Rename(e Expr, names map[string]string) Expr {
	if len(names) == 0 {
		return e
	}
	a, ok := e.(*Apply)
	if !ok {
		return e
	}
	args, changed := rewriteArgs(a.Args, func(arg Expr) Expr { return Rename(arg, names) })
	op := a.Op
	if to, ok := names[op]; ok && to != op {
		op = to
		changed = true
	}
	if !changed {
		return a
	}
	return &Apply{Op: op, Args: args}
}

func rewriteArgs(args []Expr, f func(Expr) Expr) ([]Expr, bool) {
	var out []Expr
	for i, arg := range args {
		r := f(arg)
		if r != arg && out == nil {
			out = make([]Expr, len(args))
			copy(out, args[:i])
		}
		if out != nil {
			out[i] = r
		}
	}
	if out == nil {
		return args, false
	}
	return out, true
}

// Symbols lists the distinct symbol names in e in order of first appearance.
func Symbols(e Expr) []string {
	var names []string
	seen := make(map[string]struct{})
	Walk(e, func(n Expr) bool {
		if s, ok := n.(*Symbol); ok {
			if _, dup := seen[s.Name]; !dup {
				seen[s.Name] = struct{}{}
				names = append(names, s.Name)
			}
		}
		return true
	})
	return names
}

// Functions lists the distinct named functions called in e, sorted.
// Infix and structural operators are not included.
func Functions(e Expr) []string {
	set := make(map[string]struct{})
	Walk(e, func(n Expr) bool {
		if a, ok := n.(*Apply); ok && !isOperator(a.Op) {
			set[a.Op] = struct{}{}
		}
		return true
	})
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isOperator(op string) bool {
	for _, o := range Operators() {
		if o == op {
			return true
		}
	}
	return false
}

// IsConstant reports whether e contains no symbols.
func IsConstant(e Expr) bool {
	return len(Symbols(e)) == 0
}
