// Package backend defines the numeric strategy a compute graph is built
// against.
//
// A Backend is chosen once, when the graph is created, and never changes
// afterwards. It resolves every operator and function name appearing in
// expressions to a numeric implementation for interpretation and to a routine
// name for emitted source.
package backend

import (
	"fmt"
	"sort"

	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// Variadic marks a Func that accepts any number of arguments.
const Variadic = -1

// Func is one operator or function known to a backend.
type Func struct {
	Name string
	// Arity is the required number of arguments, or Variadic.
	Arity int
	// Eval computes the function over already evaluated arguments.
	Eval func(args []tensor.Array) (tensor.Array, error)
	// Routine is the identifier emitted in generated source, e.g. "rt.Exp".
	Routine string
}

// Backend is the strategy object shared by a graph and its compiler.
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string
	// Lookup resolves a canonical function or operator name.
	Lookup(name string) (Func, bool)
	// Call evaluates a function by name. It satisfies expr.Funcs.
	Call(name string, args []tensor.Array) (tensor.Array, error)
	// Renames maps alternative function spellings onto canonical names. It is
	// applied to translated expressions after structural substitution.
	Renames() map[string]string
	// Imports lists the packages emitted source needs.
	Imports() []string
}

var registry = map[string]func() Backend{
	"native": func() Backend { return NewNative() },
}

// Get returns a fresh backend by name. An empty name or "default" selects the
// native backend.
func Get(name string) (Backend, error) {
	if name == "" || name == "default" {
		name = "native"
	}
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %v)", name, Names())
	}
	return factory(), nil
}

// Names lists the registered backends, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// call is the shared implementation of Backend.Call.
func call(b Backend, name string, args []tensor.Array) (tensor.Array, error) {
	f, ok := b.Lookup(name)
	if !ok {
		return tensor.Array{}, fmt.Errorf("backend %s has no function %q", b.Name(), name)
	}
	if f.Arity != Variadic && f.Arity != len(args) {
		return tensor.Array{}, fmt.Errorf("%s expects %d arguments, got %d", name, f.Arity, len(args))
	}
	return f.Eval(args)
}
