// Package specs derives the per-function analysis inputs from parsed
// preconditions: total input ranges, optional initial errors, and the
// additional constraints that go verbatim to the SMT backend.
package specs

import (
	"fmt"

	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// FunctionSpec is the processed precondition of one function.
type FunctionSpec struct {
	// InputRanges is total over the function's parameters.
	InputRanges map[*frontend.Identifier]interval.Interval
	// InputErrors holds the explicitly declared initial errors (x +/- e);
	// the driver fills in defaults for the rest.
	InputErrors map[*frontend.Identifier]*rational.Rational
	// Additional holds the constraints that are not plain variable bounds.
	// Only the SMT range method consumes them.
	Additional []frontend.Constraint
	// Tolerance is the post-condition bound, when declared.
	Tolerance *rational.Rational
}

// Process interprets fn's precondition. Every parameter must end up with a
// bounded range; partial or missing bounds are a specification error.
func Process(fn *frontend.Function) (*FunctionSpec, error) {
	spec := &FunctionSpec{
		InputRanges: make(map[*frontend.Identifier]interval.Interval),
		InputErrors: make(map[*frontend.Identifier]*rational.Rational),
	}
	if fn.Post != nil {
		spec.Tolerance = fn.Post.Eps
	}

	los := make(map[*frontend.Identifier]*rational.Rational)
	his := make(map[*frontend.Identifier]*rational.Rational)

	for _, c := range fn.Pre {
		switch c := c.(type) {
		case *frontend.InRange:
			setBound(los, c.Ident, c.Lo, false)
			setBound(his, c.Ident, c.Hi, true)

		case *frontend.ErrBound:
			spec.InputErrors[c.Ident] = c.Err

		case *frontend.Cmp:
			if !absorbBound(c, los, his) {
				spec.Additional = append(spec.Additional, c)
			}

		default:
			return nil, rounderr.NewSpecError(fmt.Sprintf("unsupported constraint %s", c))
		}
	}

	for _, param := range fn.Params {
		lo, okLo := los[param]
		hi, okHi := his[param]
		if !okLo || !okHi {
			return nil, rounderr.NewSpecError(
				fmt.Sprintf("function %s: parameter %s has no bounded range", fn.Name, param))
		}
		iv, err := interval.New(lo, hi)
		if err != nil {
			return nil, rounderr.NewSpecError(
				fmt.Sprintf("function %s: parameter %s: %v", fn.Name, param, err))
		}
		spec.InputRanges[param] = iv
	}
	return spec, nil
}

// absorbBound recognizes the variable-bound shapes lo <= x, x <= hi and
// their strict and flipped variants, folding them into the bound maps.
// Anything else (a polynomial constraint, a relation between two
// variables) is left for the SMT backend.
func absorbBound(c *frontend.Cmp, los, his map[*frontend.Identifier]*rational.Rational) bool {
	lv, lConst := constValue(c.L)
	rv, rConst := constValue(c.R)
	lVar, lIsVar := c.L.(*frontend.Var)
	rVar, rIsVar := c.R.(*frontend.Var)

	switch c.Op {
	case frontend.OpLe, frontend.OpLt:
		if lConst && rIsVar { // lo <= x
			setBound(los, rVar.Ident, lv, false)
			return true
		}
		if lIsVar && rConst { // x <= hi
			setBound(his, lVar.Ident, rv, true)
			return true
		}
	case frontend.OpGe, frontend.OpGt:
		if lConst && rIsVar { // hi >= x
			setBound(his, rVar.Ident, lv, true)
			return true
		}
		if lIsVar && rConst { // x >= lo
			setBound(los, lVar.Ident, rv, false)
			return true
		}
	case frontend.OpEq:
		if lIsVar && rConst {
			setBound(los, lVar.Ident, rv, false)
			setBound(his, lVar.Ident, rv, true)
			return true
		}
		if lConst && rIsVar {
			setBound(los, rVar.Ident, lv, false)
			setBound(his, rVar.Ident, lv, true)
			return true
		}
	}
	return false
}

// setBound intersects the new bound with any previous one: repeated bounds
// tighten, never widen.
func setBound(bounds map[*frontend.Identifier]*rational.Rational, id *frontend.Identifier, v *rational.Rational, upper bool) {
	prev, ok := bounds[id]
	if !ok {
		bounds[id] = v
		return
	}
	if upper {
		bounds[id] = rational.Min(prev, v)
	} else {
		bounds[id] = rational.Max(prev, v)
	}
}

// constValue evaluates a constant sub-expression: literals, negations of
// constants, and +, -, *, / of constants. Anything containing a variable is
// not constant; a bound like "1/3 <= x" arrives as a Binary division of two
// literals and is folded.
func constValue(e frontend.Expr) (*rational.Rational, bool) {
	switch e := e.(type) {
	case *frontend.Num:
		return e.Val, true
	case *frontend.Unary:
		if e.Op == frontend.OpNeg {
			if v, ok := constValue(e.X); ok {
				return v.Neg(), true
			}
		}
	case *frontend.Binary:
		l, okL := constValue(e.L)
		r, okR := constValue(e.R)
		if !okL || !okR {
			return nil, false
		}
		switch e.Op {
		case frontend.OpAdd:
			return l.Add(r), true
		case frontend.OpSub:
			return l.Sub(r), true
		case frontend.OpMul:
			return l.Mul(r), true
		case frontend.OpDiv:
			q, err := l.Div(r)
			if err != nil {
				return nil, false
			}
			return q, true
		}
	}
	return nil, false
}
