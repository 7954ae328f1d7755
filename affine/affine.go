// Package affine implements affine-arithmetic forms x0 + sum(xi * eps_i)
// with eps_i in [-1, 1]. Noise symbols are identified by globally unique
// indices; two forms sharing an index are correlated, which is what lets
// expressions like x - x collapse to zero where plain intervals cannot.
package affine

import (
	"fmt"
	"strings"
	"sync/atomic"

	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
)

// noiseCounter mints globally unique noise-symbol indices. Monotonic and
// atomic: evaluators may run on many goroutines at once.
var noiseCounter atomic.Uint64

// FreshIndex returns a noise-symbol index never handed out before.
func FreshIndex() uint64 {
	return noiseCounter.Add(1)
}

// Term is one noise term xi * eps_i.
type Term struct {
	Index uint64
	Coeff *rational.Rational
}

// Form is an affine form. Terms are ordered by strictly increasing index
// and never carry zero coefficients. Treat instances as immutable.
type Form struct {
	x0    *rational.Rational
	terms []Term
}

// FromRational creates the exact form r with no noise terms.
func FromRational(r *rational.Rational) *Form {
	return &Form{x0: r}
}

// Zero returns the form 0.
func Zero() *Form {
	return FromRational(rational.Zero())
}

// FromInterval creates a form covering iv: its midpoint plus one fresh
// noise symbol scaled by the radius. A degenerate interval yields no term.
func FromInterval(iv interval.Interval) *Form {
	mid := iv.Lo.Add(iv.Hi).Mul(halfRat)
	rad := iv.Hi.Sub(iv.Lo).Mul(halfRat)
	if rad.IsZero() {
		return &Form{x0: mid}
	}
	return &Form{
		x0:    mid,
		terms: []Term{{Index: FreshIndex(), Coeff: rad}},
	}
}

// PlusMinus creates the form 0 +/- |r| as a single fresh noise term.
func PlusMinus(r *rational.Rational) *Form {
	a := r.Abs()
	if a.IsZero() {
		return Zero()
	}
	return &Form{
		x0:    rational.Zero(),
		terms: []Term{{Index: FreshIndex(), Coeff: a}},
	}
}

// Central returns x0.
func (x *Form) Central() *rational.Rational { return x.x0 }

// Terms returns the noise terms. The slice must not be mutated.
func (x *Form) Terms() []Term { return x.terms }

// Radius returns the sum of the coefficient magnitudes.
func (x *Form) Radius() *rational.Rational {
	r := rational.Zero()
	for _, t := range x.terms {
		r = r.Add(t.Coeff.Abs())
	}
	return r
}

// ToInterval returns [x0 - radius, x0 + radius].
func (x *Form) ToInterval() interval.Interval {
	r := x.Radius()
	return interval.Interval{Lo: x.x0.Sub(r), Hi: x.x0.Add(r)}
}

// MaxAbs returns the largest magnitude the form can take.
func (x *Form) MaxAbs() *rational.Rational {
	return x.ToInterval().MaxAbs()
}

// IsExact reports whether the form carries no noise terms.
func (x *Form) IsExact() bool {
	return len(x.terms) == 0
}

// Add returns x + y, merging correlated terms.
func (x *Form) Add(y *Form) *Form {
	return x.combine(y, func(a, b *rational.Rational) *rational.Rational { return a.Add(b) })
}

// Sub returns x - y. Shared noise symbols cancel exactly.
func (x *Form) Sub(y *Form) *Form {
	return x.combine(y, func(a, b *rational.Rational) *rational.Rational { return a.Sub(b) })
}

// combine merges the term lists of x and y with op applied coefficient-wise.
func (x *Form) combine(y *Form, op func(a, b *rational.Rational) *rational.Rational) *Form {
	res := &Form{x0: op(x.x0, y.x0)}
	res.terms = make([]Term, 0, len(x.terms)+len(y.terms))
	zero := rational.Zero()
	i, j := 0, 0
	for i < len(x.terms) && j < len(y.terms) {
		tx, ty := x.terms[i], y.terms[j]
		switch {
		case tx.Index < ty.Index:
			res.appendTerm(tx.Index, op(tx.Coeff, zero))
			i++
		case tx.Index > ty.Index:
			res.appendTerm(ty.Index, op(zero, ty.Coeff))
			j++
		default:
			res.appendTerm(tx.Index, op(tx.Coeff, ty.Coeff))
			i++
			j++
		}
	}
	for ; i < len(x.terms); i++ {
		res.appendTerm(x.terms[i].Index, op(x.terms[i].Coeff, zero))
	}
	for ; j < len(y.terms); j++ {
		res.appendTerm(y.terms[j].Index, op(zero, y.terms[j].Coeff))
	}
	return res
}

func (x *Form) appendTerm(idx uint64, coeff *rational.Rational) {
	if coeff.IsZero() {
		return
	}
	x.terms = append(x.terms, Term{Index: idx, Coeff: coeff})
}

// Neg returns -x.
func (x *Form) Neg() *Form {
	res := &Form{x0: x.x0.Neg(), terms: make([]Term, 0, len(x.terms))}
	for _, t := range x.terms {
		res.terms = append(res.terms, Term{Index: t.Index, Coeff: t.Coeff.Neg()})
	}
	return res
}

// AddRational returns x + r, exact.
func (x *Form) AddRational(r *rational.Rational) *Form {
	return &Form{x0: x.x0.Add(r), terms: x.terms}
}

// MulRational returns x * r, exact: linear scaling touches no noise symbols.
func (x *Form) MulRational(r *rational.Rational) *Form {
	if r.IsZero() {
		return Zero()
	}
	res := &Form{x0: x.x0.Mul(r), terms: make([]Term, 0, len(x.terms))}
	for _, t := range x.terms {
		res.terms = append(res.terms, Term{Index: t.Index, Coeff: t.Coeff.Mul(r)})
	}
	return res
}

// withFresh returns x shifted by shift with one fresh noise term of
// magnitude |rad| appended. Fresh indices are the largest ever minted, so
// the term lands at the end of the ordered list.
func (x *Form) withFresh(shift, rad *rational.Rational) *Form {
	res := &Form{x0: x.x0.Add(shift), terms: x.terms}
	a := rad.Abs()
	if a.IsZero() {
		return res
	}
	terms := make([]Term, len(x.terms), len(x.terms)+1)
	copy(terms, x.terms)
	res.terms = append(terms, Term{Index: FreshIndex(), Coeff: a})
	return res
}

func (x *Form) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v", x.x0)
	for _, t := range x.terms {
		fmt.Fprintf(&sb, " + %v*e%d", t.Coeff, t.Index)
	}
	return sb.String()
}

var halfRat = mustRat(1, 2)

func mustRat(p, q int64) *rational.Rational {
	r, err := rational.New(p, q)
	if err != nil {
		panic(err)
	}
	return r
}
