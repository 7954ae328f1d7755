package affine

import (
	"fmt"

	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// Mul, Inv and Sqrt linearize over the operands' interval enclosures and
// absorb the linearization residual into exactly one fresh noise symbol.
// Div is Inv followed by Mul and so appends up to two fresh symbols, and
// PowInt(n) appends up to n-1, one per multiplication.
//
// Division and square root use the Min-Range rule: the linear slope is the
// derivative at the endpoint where it is smallest in magnitude, which makes
// the residual monotone over the interval and lets both of its extremes be
// read off at the endpoints.

// Mul returns x * y. The linear part keeps every correlation of the
// operands; the cross term rad(x)*rad(y) bounds the residual.
func (x *Form) Mul(y *Form) *Form {
	if x.IsExact() {
		return y.MulRational(x.x0)
	}
	if y.IsExact() {
		return x.MulRational(y.x0)
	}
	lin := y.MulRational(x.x0).Add((&Form{x0: rational.Zero(), terms: x.terms}).MulRational(y.x0))
	return lin.withFresh(rational.Zero(), x.Radius().Mul(y.Radius()))
}

// Inv returns 1 / x. It fails with DivisionByZero when the enclosure of x
// contains zero.
func (x *Form) Inv() (*Form, error) {
	iv := x.ToInterval()
	if iv.ContainsZero() {
		return nil, rounderr.NewDivisionByZero(
			fmt.Sprintf("inverse of affine form with enclosure %v", iv))
	}
	if iv.Lo.Sign() < 0 {
		neg, err := x.Neg().Inv()
		if err != nil {
			return nil, err
		}
		return neg.Neg(), nil
	}
	if x.IsExact() {
		inv, err := x.x0.Inv()
		if err != nil {
			return nil, err
		}
		return FromRational(inv), nil
	}
	a, b := iv.Lo, iv.Hi
	// alpha = -1/b^2 is f'(b), the flattest slope of 1/t on [a, b]; with it
	// the residual d(t) = 1/t - alpha*t decreases over [a, b].
	bsqInv, _ := b.Mul(b).Inv()
	alpha := bsqInv.Neg()
	aInv, _ := a.Inv()
	bInv, _ := b.Inv()
	da := aInv.Sub(alpha.Mul(a))
	db := bInv.Sub(alpha.Mul(b))
	shift := da.Add(db).Mul(halfRat)
	rad := da.Sub(db).Mul(halfRat)
	return x.MulRational(alpha).withFresh(shift, rad), nil
}

// Div returns x / y as x * (1/y).
func (x *Form) Div(y *Form) (*Form, error) {
	inv, err := y.Inv()
	if err != nil {
		return nil, err
	}
	return x.Mul(inv), nil
}

// Sqrt returns an enclosure of sqrt(x). It fails with NegativeSqrt when
// the enclosure of x reaches below zero.
func (x *Form) Sqrt() (*Form, error) {
	iv := x.ToInterval()
	if iv.Lo.Sign() < 0 {
		return nil, rounderr.NewNegativeSqrt(
			fmt.Sprintf("square root of affine form with enclosure %v", iv))
	}
	a, b := iv.Lo, iv.Hi
	if b.IsZero() {
		return Zero(), nil
	}
	saLo, _, err := a.SqrtEnclosure()
	if err != nil {
		return nil, err
	}
	_, sbHi, err := b.SqrtEnclosure()
	if err != nil {
		return nil, err
	}
	// alpha <= 1/(2*sqrt(b)) = f'(b) <= f' everywhere on [a, b], so the
	// residual d(t) = sqrt(t) - alpha*t increases over [a, b]. Outward
	// endpoint enclosures of d(a) and d(b) bound it.
	alpha, _ := rational.One().Div(rational.Two().Mul(sbHi))
	dlo := saLo.Sub(alpha.Mul(a))
	dhi := sbHi.Sub(alpha.Mul(b))
	shift := dlo.Add(dhi).Mul(halfRat)
	rad := dhi.Sub(dlo).Mul(halfRat)
	return x.MulRational(alpha).withFresh(shift, rad), nil
}

// PowInt returns x^n for n >= 0 by iterated multiplication.
func (x *Form) PowInt(n int) *Form {
	if n == 0 {
		return FromRational(rational.One())
	}
	res := x
	for i := 1; i < n; i++ {
		res = res.Mul(x)
	}
	return res
}
