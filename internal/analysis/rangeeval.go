package analysis

import (
	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/rounderr"
)

// EvalRange evaluates e compositionally over the domain of ops, returning
// the result and the range of every sub-expression keyed by node identity.
// Evaluation order is left operand before right, post-order at each node,
// so fresh noise symbols are allocated deterministically.
//
// The call allocates everything it returns and touches no shared state; it
// is safe to run on many goroutines and to abandon on cancellation.
func EvalRange[T any](ops Ops[T], e frontend.Expr, env map[*frontend.Identifier]T) (T, map[frontend.NodeID]T, error) {
	ev := &rangeEvaluator[T]{ops: ops, interm: make(map[frontend.NodeID]T)}
	v, err := ev.eval(e, env)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return v, ev.interm, nil
}

type rangeEvaluator[T any] struct {
	ops    Ops[T]
	interm map[frontend.NodeID]T
}

func (ev *rangeEvaluator[T]) eval(e frontend.Expr, env map[*frontend.Identifier]T) (T, error) {
	var zero T
	var v T

	switch e := e.(type) {
	case *frontend.Num:
		v = ev.ops.FromRational(e.Val)

	case *frontend.Var:
		bound, ok := env[e.Ident]
		if !ok {
			return zero, errAt(rounderr.NewUnboundVariable(e.Ident.Name()), e)
		}
		v = bound

	case *frontend.Unary:
		x, err := ev.eval(e.X, env)
		if err != nil {
			return zero, err
		}
		switch e.Op {
		case frontend.OpNeg:
			v = ev.ops.Neg(x)
		case frontend.OpSqrt:
			v, err = ev.ops.Sqrt(x)
			if err != nil {
				return zero, errAt(err, e)
			}
		default:
			return zero, errAt(rounderr.NewUnsupportedOperator(e.Op.String()), e)
		}

	case *frontend.Binary:
		l, err := ev.eval(e.L, env)
		if err != nil {
			return zero, err
		}
		r, err := ev.eval(e.R, env)
		if err != nil {
			return zero, err
		}
		switch e.Op {
		case frontend.OpAdd:
			v = ev.ops.Add(l, r)
		case frontend.OpSub:
			v = ev.ops.Sub(l, r)
		case frontend.OpMul:
			v = ev.ops.Mul(l, r)
		case frontend.OpDiv:
			v, err = ev.ops.Div(l, r)
			if err != nil {
				return zero, errAt(err, e)
			}
		default:
			return zero, errAt(rounderr.NewUnsupportedOperator(e.Op.String()), e)
		}

	case *frontend.Pow:
		base, err := ev.eval(e.Base, env)
		if err != nil {
			return zero, err
		}
		v, err = ev.ops.Pow(base, e.Exp)
		if err != nil {
			return zero, errAt(err, e)
		}

	case *frontend.Let:
		// The binding is lexically scoped: the bound value extends the
		// environment for the body only, never substituting into siblings.
		val, err := ev.eval(e.Value, env)
		if err != nil {
			return zero, err
		}
		inner := make(map[*frontend.Identifier]T, len(env)+1)
		for k, bound := range env {
			inner[k] = bound
		}
		inner[e.Ident] = val
		v, err = ev.eval(e.Body, inner)
		if err != nil {
			return zero, err
		}

	default:
		return zero, errAt(rounderr.NewUnsupportedOperator("unknown expression"), e)
	}

	ev.interm[e.ID()] = v
	return v, nil
}
