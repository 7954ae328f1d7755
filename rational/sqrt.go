package rational

import (
	"math"
	"math/big"

	"martianoff/roundel/rounderr"
)

// sqrtIterations is the number of Newton steps taken from the float64 seed.
// Each step roughly doubles the number of correct bits; four steps from a
// seed within a relative 1e-9 (about 30 bits) push the relative width of the enclosure far below any
// roundoff magnitude the analyzer reports.
const sqrtIterations = 4

// sqrtBoundPrec bounds the significand bits of the returned enclosure. Newton
// squares denominators at every step; compressing the final bounds to
// dyadics keeps downstream arithmetic tractable.
const sqrtBoundPrec = 160

// SqrtEnclosure returns rationals lo <= sqrt(x) <= hi. x must be >= 0.
func (x *Rational) SqrtEnclosure() (lo, hi *Rational, err error) {
	if x.Sign() < 0 {
		return nil, nil, rounderr.NewNegativeSqrt("square root of a negative rational")
	}
	if x.IsZero() {
		return Zero(), Zero(), nil
	}

	t := sqrtSeed(x)
	// Newton from above: with t0 >= sqrt(x) the iteration
	// t <- (t + x/t)/2 decreases monotonically towards sqrt(x).
	for i := 0; i < sqrtIterations; i++ {
		q, _ := x.Div(t)
		t = t.Add(q).Mul(half())
	}
	hi = t.DyadicAbove(sqrtBoundPrec)
	// x/hi <= sqrt(x) whenever hi >= sqrt(x).
	q, _ := x.Div(hi)
	lo = q.DyadicBelow(sqrtBoundPrec)
	if lo.Sign() < 0 {
		lo = Zero()
	}
	return lo, hi, nil
}

// sqrtSeed returns a rational no smaller than sqrt(x).
func sqrtSeed(x *Rational) *Rational {
	f := x.Float64High()
	if f > 0 && !math.IsInf(f, 1) {
		s := math.Sqrt(f) * (1 + 1e-9)
		if !math.IsInf(s, 1) && s > 0 {
			if seed, err := FromFloat64(s); err == nil && seed.Mul(seed).Cmp(x) >= 0 {
				return seed
			}
		}
	}
	// Huge or degenerate input: fall back to (x+1)/2 which dominates
	// sqrt(x) for every x >= 0 by AM-GM, then let Newton converge.
	return x.Add(One()).Mul(half())
}

func half() *Rational {
	r := new(Rational)
	r.v.SetFrac(big.NewInt(1), big.NewInt(2))
	return r
}
