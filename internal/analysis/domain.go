// Package analysis contains the dataflow core: the range and roundoff
// evaluators, the abstract-domain capability sets they are parameterized
// by, and the per-function driver.
package analysis

import (
	"errors"

	"martianoff/roundel/affine"
	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// Ops is the capability set an abstract domain supplies to the evaluators.
// Implementations are small stateless values (or per-call values for the
// SMT domain). The generic evaluators hold them as an Ops[T] interface
// value, so every per-node operation is an interface method call.
type Ops[T any] interface {
	FromRational(*rational.Rational) T
	// FromInterval lifts an interval into the domain. The affine
	// implementation mints a fresh noise symbol per call.
	FromInterval(interval.Interval) T
	// PlusMinus lifts the symmetric interval [-|r|, +|r|].
	PlusMinus(*rational.Rational) T
	Zero() T
	Add(x, y T) T
	Sub(x, y T) T
	Neg(x T) T
	Mul(x, y T) T
	Div(x, y T) (T, error)
	Sqrt(x T) (T, error)
	Pow(x T, n int) (T, error)
	ToInterval(x T) interval.Interval
}

// IntervalOps implements Ops over plain intervals.
type IntervalOps struct{}

func (IntervalOps) FromRational(r *rational.Rational) interval.Interval {
	return interval.Point(r)
}

func (IntervalOps) FromInterval(iv interval.Interval) interval.Interval { return iv }

func (IntervalOps) PlusMinus(r *rational.Rational) interval.Interval {
	return interval.PlusMinus(r)
}

func (IntervalOps) Zero() interval.Interval { return interval.Zero() }

func (IntervalOps) Add(x, y interval.Interval) interval.Interval { return x.Add(y) }
func (IntervalOps) Sub(x, y interval.Interval) interval.Interval { return x.Sub(y) }
func (IntervalOps) Neg(x interval.Interval) interval.Interval    { return x.Neg() }
func (IntervalOps) Mul(x, y interval.Interval) interval.Interval { return x.Mul(y) }

func (IntervalOps) Div(x, y interval.Interval) (interval.Interval, error) {
	return x.Div(y)
}

func (IntervalOps) Sqrt(x interval.Interval) (interval.Interval, error) {
	return x.Sqrt()
}

func (IntervalOps) Pow(x interval.Interval, n int) (interval.Interval, error) {
	return x.PowInt(n), nil
}

func (IntervalOps) ToInterval(x interval.Interval) interval.Interval { return x }

// AffineOps implements Ops over affine forms.
type AffineOps struct{}

func (AffineOps) FromRational(r *rational.Rational) *affine.Form {
	return affine.FromRational(r)
}

func (AffineOps) FromInterval(iv interval.Interval) *affine.Form {
	return affine.FromInterval(iv)
}

func (AffineOps) PlusMinus(r *rational.Rational) *affine.Form {
	return affine.PlusMinus(r)
}

func (AffineOps) Zero() *affine.Form { return affine.Zero() }

func (AffineOps) Add(x, y *affine.Form) *affine.Form { return x.Add(y) }
func (AffineOps) Sub(x, y *affine.Form) *affine.Form { return x.Sub(y) }
func (AffineOps) Neg(x *affine.Form) *affine.Form    { return x.Neg() }
func (AffineOps) Mul(x, y *affine.Form) *affine.Form { return x.Mul(y) }

func (AffineOps) Div(x, y *affine.Form) (*affine.Form, error) {
	return x.Div(y)
}

func (AffineOps) Sqrt(x *affine.Form) (*affine.Form, error) {
	return x.Sqrt()
}

func (AffineOps) Pow(x *affine.Form, n int) (*affine.Form, error) {
	return x.PowInt(n), nil
}

func (AffineOps) ToInterval(x *affine.Form) interval.Interval {
	return x.ToInterval()
}

// errAt annotates err with e's source position when it is an EvalError
// that does not carry one yet.
func errAt(err error, e frontend.Expr) error {
	var ee *rounderr.EvalError
	if errors.As(err, &ee) && ee.Line == 0 {
		ee.Line = e.Pos().Line
		ee.Column = e.Pos().Column
	}
	return err
}
