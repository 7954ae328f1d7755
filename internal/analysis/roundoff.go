package analysis

import (
	"fmt"

	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/internal/specs"
	"martianoff/roundel/interval"
	"martianoff/roundel/precision"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// RoundoffParams configures one roundoff evaluation.
type RoundoffParams struct {
	// Ranges holds every sub-expression's real range, from EvalRange,
	// collapsed to intervals.
	Ranges map[frontend.NodeID]interval.Interval
	// Precisions assigns a precision to every identifier.
	Precisions *specs.PrecisionMap
	// ConstantsPrecision is the precision literals are stored in.
	ConstantsPrecision precision.Precision
	// TrackRoundoff enables the per-operation new-roundoff terms. When
	// false only the propagation of incoming errors is accounted.
	TrackRoundoff bool
}

// EvalRoundoff computes, for e and every sub-expression, a bound on the
// difference between the real value and the finite-precision value, in the
// error domain of ops. Each call allocates its own state; no caches
// survive between calls, so collaborators may invoke it concurrently and
// millions of times.
func EvalRoundoff[E any](ops Ops[E], e frontend.Expr, inputErrors map[*frontend.Identifier]E, params *RoundoffParams) (E, map[frontend.NodeID]E, error) {
	ev := &roundoffEvaluator[E]{
		ops:    ops,
		params: params,
		interm: make(map[frontend.NodeID]E),
	}
	env := make(map[*frontend.Identifier]errEntry[E], len(inputErrors))
	for id, errVal := range inputErrors {
		env[id] = errEntry[E]{err: errVal, prec: params.Precisions.For(id)}
	}
	v, _, err := ev.eval(e, env)
	if err != nil {
		var zero E
		return zero, nil, err
	}
	return v, ev.interm, nil
}

// errEntry carries a variable's accumulated error and the precision it is
// stored in.
type errEntry[E any] struct {
	err  E
	prec precision.Precision
}

type roundoffEvaluator[E any] struct {
	ops    Ops[E]
	params *RoundoffParams
	interm map[frontend.NodeID]E
}

func (ev *roundoffEvaluator[E]) eval(e frontend.Expr, env map[*frontend.Identifier]errEntry[E]) (E, precision.Precision, error) {
	var zero E
	var v E
	var prec precision.Precision

	switch e := e.(type) {
	case *frontend.Num:
		prec = ev.params.ConstantsPrecision
		if !ev.params.TrackRoundoff || prec.Representable(e.Val) {
			v = ev.ops.Zero()
		} else {
			// The literal's rounding error enters once, here.
			v = ev.ops.PlusMinus(prec.AbsRoundoff(interval.Point(e.Val)))
		}

	case *frontend.Var:
		entry, ok := env[e.Ident]
		if !ok {
			return zero, prec, errAt(rounderr.NewUnboundVariable(e.Ident.Name()), e)
		}
		v, prec = entry.err, entry.prec

	case *frontend.Unary:
		ex, px, err := ev.eval(e.X, env)
		if err != nil {
			return zero, prec, err
		}
		prec = px
		switch e.Op {
		case frontend.OpNeg:
			// Negation is exact in every supported format.
			v = ev.ops.Neg(ex)
		case frontend.OpSqrt:
			v, err = ev.propagateSqrt(e, ex)
			if err != nil {
				return zero, prec, errAt(err, e)
			}
			v = ev.addRoundoff(v, e, prec)
		default:
			return zero, prec, errAt(rounderr.NewUnsupportedOperator(e.Op.String()), e)
		}

	case *frontend.Binary:
		el, pl, err := ev.eval(e.L, env)
		if err != nil {
			return zero, prec, err
		}
		er, pr, err := ev.eval(e.R, env)
		if err != nil {
			return zero, prec, err
		}
		prec = higher(pl, pr)
		switch e.Op {
		case frontend.OpAdd:
			v = ev.ops.Add(el, er)
		case frontend.OpSub:
			v = ev.ops.Sub(el, er)
		case frontend.OpMul:
			v = ev.propagateMul(ev.rangeOf(e.L), el, ev.rangeOf(e.R), er)
		case frontend.OpDiv:
			v, err = ev.propagateDiv(e, el, er)
			if err != nil {
				return zero, prec, errAt(err, e)
			}
		default:
			return zero, prec, errAt(rounderr.NewUnsupportedOperator(e.Op.String()), e)
		}
		v = ev.addRoundoff(v, e, prec)

	case *frontend.Pow:
		eb, pb, err := ev.eval(e.Base, env)
		if err != nil {
			return zero, prec, err
		}
		prec = pb
		v = ev.propagatePow(e, eb, prec)

	case *frontend.Let:
		ev2, pv, err := ev.eval(e.Value, env)
		if err != nil {
			return zero, prec, err
		}
		declared := ev.params.Precisions.For(e.Ident)
		// The defining expression's roundoff is already counted on its own
		// node; the binding adds only a narrowing cast, and only once.
		if declared.Cmp(pv) < 0 {
			castRange := ev.widen(ev.rangeOf(e.Value), ev2)
			cast := declared.AbsRoundoff(castRange)
			ev2 = ev.ops.Add(ev2, ev.ops.PlusMinus(cast))
		}
		inner := make(map[*frontend.Identifier]errEntry[E], len(env)+1)
		for k, entry := range env {
			inner[k] = entry
		}
		inner[e.Ident] = errEntry[E]{err: ev2, prec: declared}
		v, prec, err = ev.eval(e.Body, inner)
		if err != nil {
			return zero, prec, err
		}

	default:
		return zero, prec, errAt(rounderr.NewUnsupportedOperator("unknown expression"), e)
	}

	ev.interm[e.ID()] = v
	return v, prec, nil
}

// rangeOf looks up a sub-expression's real range. A miss is a programming
// error in the driver, not a property of the analyzed function.
func (ev *roundoffEvaluator[E]) rangeOf(e frontend.Expr) interval.Interval {
	iv, ok := ev.params.Ranges[e.ID()]
	if !ok {
		panic(fmt.Sprintf("no range recorded for node %d (%s)", e.ID(), e))
	}
	return iv
}

// widen grows iv symmetrically by the magnitude of err: the enclosure of
// the finite-precision values of a quantity whose real values lie in iv.
func (ev *roundoffEvaluator[E]) widen(iv interval.Interval, err E) interval.Interval {
	m := ev.ops.ToInterval(err).MaxAbs()
	if m.IsZero() {
		return iv
	}
	return iv.Add(interval.PlusMinus(m))
}

// addRoundoff adds the operation's own roundoff on top of the propagated
// error: the precision's absolute roundoff over the output range widened
// by the incoming error. For the affine error domain PlusMinus mints a
// fresh noise symbol, keeping the new roundoff uncorrelated.
func (ev *roundoffEvaluator[E]) addRoundoff(prop E, e frontend.Expr, p precision.Precision) E {
	if !ev.params.TrackRoundoff {
		return prop
	}
	rho := p.AbsRoundoff(ev.widen(ev.rangeOf(e), prop))
	return ev.ops.Add(prop, ev.ops.PlusMinus(rho))
}

// roundoffOn is addRoundoff against an explicitly supplied output range,
// for the intermediate steps of iterated multiplication.
func (ev *roundoffEvaluator[E]) roundoffOn(prop E, out interval.Interval, p precision.Precision) E {
	if !ev.params.TrackRoundoff {
		return prop
	}
	rho := p.AbsRoundoff(ev.widen(out, prop))
	return ev.ops.Add(prop, ev.ops.PlusMinus(rho))
}

// propagateMul applies the first-order product rule
// range(l)*e_r + range(r)*e_l + e_l*e_r.
func (ev *roundoffEvaluator[E]) propagateMul(rl interval.Interval, el E, rr interval.Interval, er E) E {
	lin := ev.ops.Add(
		ev.ops.Mul(ev.ops.FromInterval(rl), er),
		ev.ops.Mul(ev.ops.FromInterval(rr), el),
	)
	return ev.ops.Add(lin, ev.ops.Mul(el, er))
}

// propagateDiv bounds the error of l / r by composing the error of 1/r
// with the product rule. With m the smallest magnitude of range(r) and mw
// the smallest magnitude of range(r) widened by e_r,
// |1/y - 1/y'| <= e_r / (m * mw).
func (ev *roundoffEvaluator[E]) propagateDiv(e *frontend.Binary, el, er E) (E, error) {
	var zero E
	rr := ev.rangeOf(e.R)
	widened := ev.widen(rr, er)
	if widened.ContainsZero() {
		return zero, rounderr.NewDivisionByZero(
			fmt.Sprintf("divisor range %v with accumulated error reaches zero", rr))
	}
	m := rr.MinAbs()
	mw := widened.MinAbs()
	scale, err := rational.One().Div(m.Mul(mw))
	if err != nil {
		return zero, rounderr.NewDivisionByZero("divisor range reaches zero")
	}
	errInv := ev.ops.Mul(ev.ops.FromRational(scale), er)
	invRange, err := rr.Inv()
	if err != nil {
		return zero, err
	}
	return ev.propagateMul(ev.rangeOf(e.L), el, invRange, errInv), nil
}

// propagateSqrt bounds the error of sqrt(x) by e_x / (2*sqrt(range(x))),
// with the range widened by the incoming error so the enclosure also
// covers the finite-precision argument. The widened range must stay
// strictly positive.
func (ev *roundoffEvaluator[E]) propagateSqrt(e *frontend.Unary, ex E) (E, error) {
	var zero E
	rx := ev.rangeOf(e.X)
	widened := ev.widen(rx, ex)
	if widened.Lo.Sign() <= 0 {
		return zero, rounderr.NewNegativeSqrt(
			fmt.Sprintf("sqrt argument range %v with accumulated error reaches zero", rx))
	}
	sq, err := widened.Sqrt()
	if err != nil {
		return zero, err
	}
	factor, err := sq.MulRational(rational.Two()).Inv()
	if err != nil {
		return zero, err
	}
	return ev.ops.Mul(ev.ops.FromInterval(factor), ex), nil
}

// propagatePow unrolls x^n into n-1 multiplications, each propagating and,
// when enabled, adding its own roundoff against the running power's range.
func (ev *roundoffEvaluator[E]) propagatePow(e *frontend.Pow, eb E, p precision.Precision) E {
	if e.Exp == 0 {
		// x^0 is the exact constant 1.
		return ev.ops.Zero()
	}
	rb := ev.rangeOf(e.Base)
	acc := eb
	accRange := rb
	for i := 1; i < e.Exp; i++ {
		acc = ev.propagateMul(accRange, acc, rb, eb)
		accRange = accRange.Mul(rb)
		acc = ev.roundoffOn(acc, accRange, p)
	}
	return acc
}

// higher returns the tighter of two precisions.
func higher(p, q precision.Precision) precision.Precision {
	if p.Cmp(q) >= 0 {
		return p
	}
	return q
}
