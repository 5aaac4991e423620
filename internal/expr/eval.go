package expr

import (
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// Funcs resolves operators and named functions to numeric implementations.
// Backends implement it.
type Funcs interface {
	Call(name string, args []tensor.Array) (tensor.Array, error)
}

// Eval computes e with symbols bound by env.
func Eval(e Expr, env map[string]tensor.Array, funcs Funcs) (tensor.Array, error) {
	switch e := e.(type) {
	case *Const:
		return tensor.Scalar(e.Value), nil
	case *Symbol:
		v, ok := env[e.Name]
		if !ok {
			return tensor.Array{}, fmt.Errorf("unbound symbol %q", e.Name)
		}
		return v, nil
	case *Apply:
		args := make([]tensor.Array, len(e.Args))
		for i, arg := range e.Args {
			v, err := Eval(arg, env, funcs)
			if err != nil {
				return tensor.Array{}, err
			}
			args[i] = v
		}
		out, err := funcs.Call(e.Op, args)
		if err != nil {
			return tensor.Array{}, fmt.Errorf("evaluating %s: %w", e.Op, err)
		}
		return out, nil
	}
	return tensor.Array{}, fmt.Errorf("unknown expression node %T", e)
}
