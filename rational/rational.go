// Package rational provides the exact arbitrary-precision rationals used for
// every numeric quantity in the analyzer: range bounds, error magnitudes and
// constants. Values are immutable; every operation returns a fresh Rational.
package rational

import (
	"fmt"
	"math/big"

	"martianoff/roundel/rounderr"
)

// Rational is an exact p/q with q > 0 and gcd(|p|, q) = 1. The zero value is
// not usable; construct values through the package functions.
type Rational struct {
	v big.Rat
}

// New creates the rational p/q. q must be non-zero.
func New(p, q int64) (*Rational, error) {
	if q == 0 {
		return nil, rounderr.NewDivisionByZero("rational with zero denominator")
	}
	r := new(Rational)
	r.v.SetFrac64(p, q)
	return r, nil
}

// FromInt creates the rational n/1.
func FromInt(n int64) *Rational {
	r := new(Rational)
	r.v.SetInt64(n)
	return r
}

// FromBigRat creates a Rational from a big.Rat, copying it.
func FromBigRat(x *big.Rat) *Rational {
	r := new(Rational)
	r.v.Set(x)
	return r
}

// FromFloat64 creates the rational with the exact value of f.
// Infinities and NaN are rejected.
func FromFloat64(f float64) (*Rational, error) {
	r := new(Rational)
	if r.v.SetFloat64(f) == nil {
		return nil, fmt.Errorf("cannot represent %v as a rational", f)
	}
	return r, nil
}

// FromString parses a decimal ("331.4", "-1e-3") or rational ("22/7") literal.
func FromString(s string) (*Rational, error) {
	r := new(Rational)
	if _, ok := r.v.SetString(s); !ok {
		return nil, fmt.Errorf("invalid rational literal %q", s)
	}
	return r, nil
}

// Zero returns a fresh rational 0.
func Zero() *Rational { return FromInt(0) }

// One returns a fresh rational 1.
func One() *Rational { return FromInt(1) }

// Two returns a fresh rational 2.
func Two() *Rational { return FromInt(2) }

// PowerOfTwo returns 2^exp for any integer exp.
func PowerOfTwo(exp int) *Rational {
	r := new(Rational)
	one := big.NewInt(1)
	if exp >= 0 {
		r.v.SetInt(new(big.Int).Lsh(one, uint(exp)))
	} else {
		r.v.SetFrac(one, new(big.Int).Lsh(one, uint(-exp)))
	}
	return r
}

// Rat returns a copy of the underlying big.Rat.
func (x *Rational) Rat() *big.Rat {
	return new(big.Rat).Set(&x.v)
}

// Add returns x + y.
func (x *Rational) Add(y *Rational) *Rational {
	r := new(Rational)
	r.v.Add(&x.v, &y.v)
	return r
}

// Sub returns x - y.
func (x *Rational) Sub(y *Rational) *Rational {
	r := new(Rational)
	r.v.Sub(&x.v, &y.v)
	return r
}

// Mul returns x * y.
func (x *Rational) Mul(y *Rational) *Rational {
	// Fast paths keep denominators from churning in hot evaluator loops.
	if x.IsZero() || y.IsZero() {
		return Zero()
	}
	r := new(Rational)
	r.v.Mul(&x.v, &y.v)
	return r
}

// Div returns x / y, failing with DivisionByZero when y is zero.
func (x *Rational) Div(y *Rational) (*Rational, error) {
	if y.IsZero() {
		return nil, rounderr.NewDivisionByZero("rational division by zero")
	}
	r := new(Rational)
	r.v.Quo(&x.v, &y.v)
	return r, nil
}

// Inv returns 1 / x, failing with DivisionByZero when x is zero.
func (x *Rational) Inv() (*Rational, error) {
	if x.IsZero() {
		return nil, rounderr.NewDivisionByZero("inverse of zero")
	}
	r := new(Rational)
	r.v.Inv(&x.v)
	return r, nil
}

// Neg returns -x.
func (x *Rational) Neg() *Rational {
	r := new(Rational)
	r.v.Neg(&x.v)
	return r
}

// Abs returns |x|.
func (x *Rational) Abs() *Rational {
	r := new(Rational)
	r.v.Abs(&x.v)
	return r
}

// Pow returns x^n for n >= 0. x^0 is 1, also for x = 0.
func (x *Rational) Pow(n int) *Rational {
	res := One()
	for i := 0; i < n; i++ {
		res = res.Mul(x)
	}
	return res
}

// Cmp compares x and y: -1 if x < y, 0 if equal, +1 if x > y.
func (x *Rational) Cmp(y *Rational) int {
	return x.v.Cmp(&y.v)
}

// Equal reports whether x and y denote the same rational.
func (x *Rational) Equal(y *Rational) bool {
	return x.Cmp(y) == 0
}

// Sign returns -1, 0 or +1 according to the sign of x.
func (x *Rational) Sign() int {
	return x.v.Sign()
}

// IsZero reports whether x is 0.
func (x *Rational) IsZero() bool {
	return x.v.Sign() == 0
}

// Min returns the smaller of x and y.
func Min(x, y *Rational) *Rational {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// Max returns the larger of x and y.
func Max(x, y *Rational) *Rational {
	if x.Cmp(y) >= 0 {
		return x
	}
	return y
}

// String renders x as p/q, or just p when q = 1.
func (x *Rational) String() string {
	if x.v.IsInt() {
		return x.v.Num().String()
	}
	return x.v.String()
}
