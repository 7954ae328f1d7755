// Package interval implements closed real intervals over exact rationals
// with sound outward-rounded arithmetic. Division and square root produce
// their bounds through monotone enclosures; everything else is exact.
package interval

import (
	"fmt"

	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// Interval is the closed range [Lo, Hi] with Lo <= Hi. Treat instances as
// immutable; operations return fresh intervals.
type Interval struct {
	Lo *rational.Rational
	Hi *rational.Rational
}

// New creates [lo, hi]. It fails when lo > hi.
func New(lo, hi *rational.Rational) (Interval, error) {
	if lo.Cmp(hi) > 0 {
		return Interval{}, fmt.Errorf("invalid interval [%v, %v]", lo, hi)
	}
	return Interval{Lo: lo, Hi: hi}, nil
}

// Point creates the degenerate interval [r, r].
func Point(r *rational.Rational) Interval {
	return Interval{Lo: r, Hi: r}
}

// PlusMinus creates [-|r|, +|r|].
func PlusMinus(r *rational.Rational) Interval {
	a := r.Abs()
	return Interval{Lo: a.Neg(), Hi: a}
}

// Zero returns [0, 0].
func Zero() Interval {
	return Point(rational.Zero())
}

// Add returns x + y.
func (x Interval) Add(y Interval) Interval {
	return Interval{Lo: x.Lo.Add(y.Lo), Hi: x.Hi.Add(y.Hi)}
}

// Sub returns x - y.
func (x Interval) Sub(y Interval) Interval {
	return Interval{Lo: x.Lo.Sub(y.Hi), Hi: x.Hi.Sub(y.Lo)}
}

// Neg returns -x.
func (x Interval) Neg() Interval {
	return Interval{Lo: x.Hi.Neg(), Hi: x.Lo.Neg()}
}

// Mul returns x * y as the min/max of the four corner products.
func (x Interval) Mul(y Interval) Interval {
	p1 := x.Lo.Mul(y.Lo)
	p2 := x.Lo.Mul(y.Hi)
	p3 := x.Hi.Mul(y.Lo)
	p4 := x.Hi.Mul(y.Hi)
	lo := rational.Min(rational.Min(p1, p2), rational.Min(p3, p4))
	hi := rational.Max(rational.Max(p1, p2), rational.Max(p3, p4))
	return Interval{Lo: lo, Hi: hi}
}

// MulRational returns x scaled by r.
func (x Interval) MulRational(r *rational.Rational) Interval {
	a := x.Lo.Mul(r)
	b := x.Hi.Mul(r)
	if r.Sign() < 0 {
		a, b = b, a
	}
	return Interval{Lo: a, Hi: b}
}

// Inv returns 1 / x. It fails with DivisionByZero when 0 is in x.
func (x Interval) Inv() (Interval, error) {
	if x.ContainsZero() {
		return Interval{}, rounderr.NewDivisionByZero(
			fmt.Sprintf("inverse of interval %v containing zero", x))
	}
	lo, _ := x.Hi.Inv()
	hi, _ := x.Lo.Inv()
	return Interval{Lo: lo, Hi: hi}, nil
}

// Div returns x / y via multiplication with 1/y. It fails with
// DivisionByZero when 0 is in y.
func (x Interval) Div(y Interval) (Interval, error) {
	inv, err := y.Inv()
	if err != nil {
		return Interval{}, err
	}
	return x.Mul(inv), nil
}

// Sqrt returns an enclosure of the square roots of x. It fails with
// NegativeSqrt when x.Lo < 0.
func (x Interval) Sqrt() (Interval, error) {
	if x.Lo.Sign() < 0 {
		return Interval{}, rounderr.NewNegativeSqrt(
			fmt.Sprintf("square root of interval %v", x))
	}
	lo, _, err := x.Lo.SqrtEnclosure()
	if err != nil {
		return Interval{}, err
	}
	_, hi, err := x.Hi.SqrtEnclosure()
	if err != nil {
		return Interval{}, err
	}
	return Interval{Lo: lo, Hi: hi}, nil
}

// PowInt returns x^n for integer n >= 0, short-cutting on the parity of n
// and the sign of x instead of multiplying out the corner products n times.
func (x Interval) PowInt(n int) Interval {
	if n == 0 {
		return Point(rational.One())
	}
	if n%2 == 1 || x.Lo.Sign() >= 0 {
		// Monotone on the whole interval, or odd power.
		return Interval{Lo: x.Lo.Pow(n), Hi: x.Hi.Pow(n)}
	}
	if x.Hi.Sign() <= 0 {
		// Even power of a non-positive interval is decreasing.
		return Interval{Lo: x.Hi.Pow(n), Hi: x.Lo.Pow(n)}
	}
	// Even power straddling zero.
	return Interval{Lo: rational.Zero(), Hi: x.MaxAbs().Pow(n)}
}

// MaxAbs returns max(|Lo|, |Hi|).
func (x Interval) MaxAbs() *rational.Rational {
	return rational.Max(x.Lo.Abs(), x.Hi.Abs())
}

// MinAbs returns the smallest magnitude of any point in x: zero when x
// contains zero, the nearer bound's magnitude otherwise.
func (x Interval) MinAbs() *rational.Rational {
	if x.ContainsZero() {
		return rational.Zero()
	}
	return rational.Min(x.Lo.Abs(), x.Hi.Abs())
}

// Contains reports whether r lies in x.
func (x Interval) Contains(r *rational.Rational) bool {
	return x.Lo.Cmp(r) <= 0 && x.Hi.Cmp(r) >= 0
}

// ContainsZero reports whether 0 lies in x.
func (x Interval) ContainsZero() bool {
	return x.Lo.Sign() <= 0 && x.Hi.Sign() >= 0
}

// ContainedIn reports whether x is a subset of y.
func (x Interval) ContainedIn(y Interval) bool {
	return y.Lo.Cmp(x.Lo) <= 0 && x.Hi.Cmp(y.Hi) <= 0
}

// Join returns the smallest interval containing both x and y.
func (x Interval) Join(y Interval) Interval {
	return Interval{Lo: rational.Min(x.Lo, y.Lo), Hi: rational.Max(x.Hi, y.Hi)}
}

// Intersect returns the intersection of x and y, and whether it is non-empty.
func (x Interval) Intersect(y Interval) (Interval, bool) {
	lo := rational.Max(x.Lo, y.Lo)
	hi := rational.Min(x.Hi, y.Hi)
	if lo.Cmp(hi) > 0 {
		return Interval{}, false
	}
	return Interval{Lo: lo, Hi: hi}, true
}

// Width returns Hi - Lo.
func (x Interval) Width() *rational.Rational {
	return x.Hi.Sub(x.Lo)
}

// Split bisects x at its midpoint.
func (x Interval) Split() (Interval, Interval) {
	mid := x.Lo.Add(x.Hi).Mul(halfRat)
	return Interval{Lo: x.Lo, Hi: mid}, Interval{Lo: mid, Hi: x.Hi}
}

// IsPoint reports whether Lo = Hi.
func (x Interval) IsPoint() bool {
	return x.Lo.Equal(x.Hi)
}

func (x Interval) String() string {
	return fmt.Sprintf("[%v, %v]", x.Lo, x.Hi)
}

var halfRat = mustRat(1, 2)

func mustRat(p, q int64) *rational.Rational {
	r, err := rational.New(p, q)
	if err != nil {
		panic(err)
	}
	return r
}
