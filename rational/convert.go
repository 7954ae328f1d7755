package rational

import (
	"math/big"
)

// conversionPrec is the big.Float working precision for outward-rounded
// conversions. Well above float64 so the directed rounding is the only
// source of slack.
const conversionPrec = 128

// Float64Low returns the largest float64 that is <= x.
func (x *Rational) Float64Low() float64 {
	f := new(big.Float).SetPrec(53).SetMode(big.ToNegativeInf).SetRat(&x.v)
	lo, _ := f.Float64()
	return lo
}

// Float64High returns the smallest float64 that is >= x.
func (x *Rational) Float64High() float64 {
	f := new(big.Float).SetPrec(53).SetMode(big.ToPositiveInf).SetRat(&x.v)
	hi, _ := f.Float64()
	return hi
}

// DyadicBelow returns a dyadic rational d <= x whose binary significand has
// at most prec bits. It is used to keep enclosure bounds from accumulating
// huge denominators: replacing a lower bound by DyadicBelow keeps it sound.
func (x *Rational) DyadicBelow(prec uint) *Rational {
	f := new(big.Float).SetPrec(prec).SetMode(big.ToNegativeInf).SetRat(&x.v)
	r, _ := f.Rat(nil)
	return FromBigRat(r)
}

// DyadicAbove returns a dyadic rational d >= x whose binary significand has
// at most prec bits.
func (x *Rational) DyadicAbove(prec uint) *Rational {
	f := new(big.Float).SetPrec(prec).SetMode(big.ToPositiveInf).SetRat(&x.v)
	r, _ := f.Rat(nil)
	return FromBigRat(r)
}

// Scientific renders x in decimal scientific notation with the given number
// of significant digits. The binary conversion rounds away from zero; the
// decimal digits come from that outward-rounded value.
func (x *Rational) Scientific(digits int) string {
	f := new(big.Float).SetPrec(conversionPrec).SetMode(big.AwayFromZero).SetRat(&x.v)
	return f.Text('e', digits-1)
}
