// Package precision describes the finite-precision formats the analyzer
// models and the roundoff each one introduces over a given value range.
package precision

import (
	"fmt"
	"strconv"
	"strings"

	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
)

// Kind distinguishes the supported format families.
type Kind int

const (
	KindFloat32 Kind = iota
	KindFloat64
	KindDoubleDouble
	KindFixed
)

// Precision identifies one finite-precision format. For KindFixed, bits is
// the word length n of the Fixed(n) truncation model; it is unused otherwise.
type Precision struct {
	kind Kind
	bits int
}

var (
	Float32      = Precision{kind: KindFloat32}
	Float64      = Precision{kind: KindFloat64}
	DoubleDouble = Precision{kind: KindDoubleDouble}
)

// Fixed returns the fixed-point format with word length n.
func Fixed(n int) Precision {
	return Precision{kind: KindFixed, bits: n}
}

// Kind returns the format family.
func (p Precision) Kind() Kind { return p.kind }

// Bits returns the word length of a fixed-point format, 0 otherwise.
func (p Precision) Bits() int { return p.bits }

// MachineEpsilon returns the unit roundoff: 2^-24 for Float32, 2^-53 for
// Float64, 2^-105 for DoubleDouble, 2^-(n-1) for Fixed(n).
func (p Precision) MachineEpsilon() *rational.Rational {
	switch p.kind {
	case KindFloat32:
		return rational.PowerOfTwo(-24)
	case KindFloat64:
		return rational.PowerOfTwo(-53)
	case KindDoubleDouble:
		return rational.PowerOfTwo(-105)
	default:
		return rational.PowerOfTwo(-(p.bits - 1))
	}
}

// DenormalThreshold returns the smallest positive denormal magnitude of the
// format: below it the relative error model is replaced by this absolute
// floor. Fixed-point formats have no denormal regime.
func (p Precision) DenormalThreshold() *rational.Rational {
	switch p.kind {
	case KindFloat32:
		return rational.PowerOfTwo(-149)
	case KindFloat64, KindDoubleDouble:
		// DoubleDouble inherits the Float64 underflow behavior.
		return rational.PowerOfTwo(-1074)
	default:
		return rational.Zero()
	}
}

// MaxFinite returns the largest finite magnitude representable in the
// format, used by the driver's overflow advisory.
func (p Precision) MaxFinite() *rational.Rational {
	switch p.kind {
	case KindFloat32:
		// (2 - 2^-23) * 2^127
		return rational.PowerOfTwo(104).Mul(rational.PowerOfTwo(24).Sub(rational.One()))
	case KindFloat64, KindDoubleDouble:
		// (2 - 2^-52) * 2^1023
		return rational.PowerOfTwo(971).Mul(rational.PowerOfTwo(53).Sub(rational.One()))
	default:
		return rational.PowerOfTwo(p.bits - 1)
	}
}

// AbsRoundoff returns a bound on the absolute roundoff of storing any value
// of iv in the format: u * maxAbs(iv) with the denormal threshold as a
// floor for the floating formats, 2^-(n-1) * maxAbs(iv) under the Fixed(n)
// truncation model. A degenerate zero range rounds exactly.
func (p Precision) AbsRoundoff(iv interval.Interval) *rational.Rational {
	maxAbs := iv.MaxAbs()
	if maxAbs.IsZero() {
		return rational.Zero()
	}
	rho := p.MachineEpsilon().Mul(maxAbs)
	if p.kind != KindFixed {
		rho = rational.Max(rho, p.DenormalThreshold())
	}
	return rho
}

// Representable reports whether r is stored exactly by the format: a dyadic
// rational whose significand fits the format's mantissa. The exponent range
// is not checked; the driver's overflow advisory covers that separately.
func (p Precision) Representable(r *rational.Rational) bool {
	if r.IsZero() {
		return true
	}
	rat := r.Rat()
	den := rat.Denom()
	// Power-of-two denominator?
	if den.BitLen() != int(den.TrailingZeroBits())+1 {
		return false
	}
	num := rat.Num()
	mantissa := num.BitLen() - int(num.TrailingZeroBits())
	switch p.kind {
	case KindFloat32:
		return mantissa <= 24
	case KindFloat64:
		return mantissa <= 53
	case KindDoubleDouble:
		return mantissa <= 106
	default:
		return mantissa <= p.bits
	}
}

// Cmp orders precisions by how much roundoff they introduce: it returns a
// positive value when p is the higher (tighter) precision, negative when q
// is, and 0 when they coincide. Cross-family comparisons go by machine
// epsilon, so casts between fixed and float formats behave like any other
// narrowing or widening.
func (p Precision) Cmp(q Precision) int {
	// Smaller epsilon means higher precision.
	return q.MachineEpsilon().Cmp(p.MachineEpsilon())
}

// Parse reads a precision name: "float32", "float64", "doubledouble" (or
// "dd"), and "fixed<n>" such as "fixed16".
func Parse(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "doubledouble", "dd":
		return DoubleDouble, nil
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	if rest, ok := strings.CutPrefix(lower, "fixed"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 2 {
			return Precision{}, fmt.Errorf("invalid fixed-point width %q", s)
		}
		return Fixed(n), nil
	}
	return Precision{}, fmt.Errorf("unknown precision %q", s)
}

func (p Precision) String() string {
	switch p.kind {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindDoubleDouble:
		return "doubledouble"
	default:
		return fmt.Sprintf("fixed%d", p.bits)
	}
}
