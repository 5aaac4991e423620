// Package expr is the symbolic layer of the compute graph.
//
// An expression is a tree built from three variants:
//
//   - *Const: a numeric literal.
//   - *Symbol: a named leaf. Inside an operation node it names one of the
//     node's inputs; after translation it names a free argument or a state
//     variable.
//   - *Apply: an n-ary operation. Op is either one of the infix operators
//     listed in Operators or the name of a backend function.
//
// Trees are immutable once built. Substitute and Rename return rewritten
// copies and share untouched subtrees with the input.
package expr

import (
	"strconv"
	"strings"
)

// Expr is a node of an expression tree.
type Expr interface {
	String() string
	isExpr()
}

// Const is a numeric literal.
type Const struct {
	Value float64
}

// Symbol is a named leaf.
type Symbol struct {
	Name string
}

// Apply is an operator or function applied to ordered arguments.
type Apply struct {
	Op   string
	Args []Expr
}

func (*Const) isExpr()  {}
func (*Symbol) isExpr() {}
func (*Apply) isExpr()  {}

// Num returns a literal.
func Num(v float64) *Const { return &Const{Value: v} }

// Sym returns a symbol leaf.
func Sym(name string) *Symbol { return &Symbol{Name: name} }

// Call returns an application of op to args.
func Call(op string, args ...Expr) *Apply { return &Apply{Op: op, Args: args} }

// Operator names used by Apply. Anything else in Apply.Op is a function name.
const (
	OpAdd   = "+"
	OpSub   = "-"
	OpMul   = "*"
	OpDiv   = "/"
	OpMod   = "%"
	OpNeg   = "neg"
	OpNot   = "!"
	OpGt    = ">"
	OpGe    = ">="
	OpLt    = "<"
	OpLe    = "<="
	OpEq    = "=="
	OpNe    = "!="
	OpAnd   = "&&"
	OpOr    = "||"
	OpWhere = "where"
	OpIndex = "index"
)

// precedence of infix operators; higher binds tighter.
var precedence = map[string]int{
	OpOr:  1,
	OpAnd: 2,
	OpEq:  3, OpNe: 3,
	OpGt: 4, OpGe: 4, OpLt: 4, OpLe: 4,
	OpAdd: 5, OpSub: 5,
	OpMul: 6, OpDiv: 6, OpMod: 6,
}

const unaryPrecedence = 7

// IsInfix reports whether op renders as a binary infix operator.
func IsInfix(op string) bool {
	_, ok := precedence[op]
	return ok
}

// Operators lists every structural operator name, for backends that need to
// provide an implementation for each of them.
func Operators() []string {
	return []string{
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpNeg, OpNot,
		OpGt, OpGe, OpLt, OpLe, OpEq, OpNe, OpAnd, OpOr,
		OpWhere, OpIndex,
	}
}

func (c *Const) String() string {
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func (s *Symbol) String() string { return s.Name }

func (a *Apply) String() string {
	var b strings.Builder
	write(&b, a, 0)
	return b.String()
}

// write renders e into b, parenthesizing when e binds looser than its parent.
func write(b *strings.Builder, e Expr, parent int) {
	switch e := e.(type) {
	case *Const:
		s := e.String()
		if e.Value < 0 && parent > 0 {
			s = "(" + s + ")"
		}
		b.WriteString(s)
	case *Symbol:
		b.WriteString(e.Name)
	case *Apply:
		switch {
		case IsInfix(e.Op) && len(e.Args) == 2:
			p := precedence[e.Op]
			if p < parent {
				b.WriteByte('(')
			}
			write(b, e.Args[0], p)
			b.WriteString(" " + e.Op + " ")
			// Right operands of equal precedence need parentheses: a - (b - c).
			write(b, e.Args[1], p+1)
			if p < parent {
				b.WriteByte(')')
			}
		case (e.Op == OpNeg || e.Op == OpNot) && len(e.Args) == 1:
			if parent >= unaryPrecedence {
				b.WriteByte('(')
			}
			if e.Op == OpNeg {
				b.WriteByte('-')
			} else {
				b.WriteByte('!')
			}
			write(b, e.Args[0], unaryPrecedence)
			if parent >= unaryPrecedence {
				b.WriteByte(')')
			}
		case e.Op == OpIndex && len(e.Args) == 2:
			write(b, e.Args[0], unaryPrecedence+1)
			b.WriteByte('[')
			write(b, e.Args[1], 0)
			b.WriteByte(']')
		default:
			b.WriteString(e.Op)
			b.WriteByte('(')
			for i, arg := range e.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				write(b, arg, 0)
			}
			b.WriteByte(')')
		}
	}
}
