package analysis

import (
	"context"
	"fmt"
	"time"

	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// Verdict is a solver's answer to a satisfiability query.
type Verdict int

const (
	VerdictSat Verdict = iota
	VerdictUnsat
	VerdictUnknown
)

// Solver is the contract an external SMT backend fulfills. Implementations
// must honor the context's deadline; queries the backend cannot settle in
// time return an SMTTimeout error or VerdictUnknown.
type Solver interface {
	// CheckSat decides whether the conjunction of constraints is
	// satisfiable over the reals.
	CheckSat(ctx context.Context, constraints []frontend.Constraint) (Verdict, error)
}

// SMTRange pairs an interval with the constraint set it was refined under.
type SMTRange struct {
	Iv interval.Interval
	// Constraints holds the precondition conjuncts consulted when the
	// range was refined. Derived ranges carry no constraints of their own.
	Constraints []frontend.Constraint
}

// refineSteps bounds the binary search per input bound; each step costs one
// solver query and halves the remaining slack.
const refineSteps = 6

// SMTOps implements Ops over SMTRange. One value serves one evaluator
// call: it accumulates degradation warnings and must not be shared.
//
// Arithmetic is plain interval arithmetic; the solver enters when inputs
// are lifted, where each input's interval is tightened against the
// precondition's additional constraints. With no solver configured the
// range is the plain interval and nothing is recorded here (the driver
// warns when additional constraints go unused); when a query fails or
// times out, the range falls back to its interval and a warning is
// recorded in Degraded.
type SMTOps struct {
	Solver  Solver
	Ctx     context.Context
	Timeout time.Duration
	// Pre is the constraint set refinement queries assume.
	Pre []frontend.Constraint
	// Degraded collects the inputs whose refinement fell back to plain
	// intervals; the driver reports them as warnings.
	Degraded []string
}

// RefineInput lifts one input range, asking the solver to shrink each bound
// against the precondition's additional constraints.
func (s *SMTOps) RefineInput(id *frontend.Identifier, iv interval.Interval) SMTRange {
	if s.Solver == nil || len(s.Pre) == 0 {
		return SMTRange{Iv: iv, Constraints: s.Pre}
	}
	hi, errHi := s.tightenBound(id, iv, true)
	lo, errLo := s.tightenBound(id, iv, false)
	if errHi != nil || errLo != nil {
		s.Degraded = append(s.Degraded,
			fmt.Sprintf("input %s: solver refinement degraded to interval", id))
		return SMTRange{Iv: iv, Constraints: s.Pre}
	}
	refined, err := interval.New(lo, hi)
	if err != nil {
		// The solver found both half-ranges empty; keep the sound original.
		refined = iv
	}
	return SMTRange{Iv: refined, Constraints: s.Pre}
}

// tightenBound binary-searches the given bound of iv: a candidate bound is
// kept when the solver proves no model of the precondition lies beyond it.
func (s *SMTOps) tightenBound(id *frontend.Identifier, iv interval.Interval, upper bool) (*rational.Rational, error) {
	lo, hi := iv.Lo, iv.Hi
	bound := hi
	if !upper {
		bound = lo
	}
	for i := 0; i < refineSteps; i++ {
		mid := lo.Add(hi).Mul(halfRat)
		var beyond frontend.Constraint
		pos := frontend.Position{}
		v := frontend.NewVar(pos, id)
		if upper {
			beyond = frontend.NewCmp(pos, frontend.OpGt, v, frontend.NewNum(pos, mid))
		} else {
			beyond = frontend.NewCmp(pos, frontend.OpLt, v, frontend.NewNum(pos, mid))
		}
		verdict, err := s.check(append(append([]frontend.Constraint{}, s.Pre...), beyond))
		if err != nil {
			return nil, err
		}
		switch verdict {
		case VerdictUnsat:
			// Nothing beyond mid: the bound moves to mid.
			if upper {
				bound, hi = mid, mid
			} else {
				bound, lo = mid, mid
			}
		case VerdictSat:
			// Models beyond mid exist; search closer to the edge.
			if upper {
				lo = mid
			} else {
				hi = mid
			}
		default:
			return bound, nil
		}
	}
	return bound, nil
}

func (s *SMTOps) check(cs []frontend.Constraint) (Verdict, error) {
	ctx := s.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	verdict, err := s.Solver.CheckSat(ctx, cs)
	if err != nil {
		if ctx.Err() != nil {
			return VerdictUnknown, rounderr.NewSMTTimeout("solver query hit its deadline")
		}
		return VerdictUnknown, err
	}
	return verdict, nil
}

func (s *SMTOps) FromRational(r *rational.Rational) SMTRange {
	return SMTRange{Iv: interval.Point(r)}
}

func (s *SMTOps) FromInterval(iv interval.Interval) SMTRange {
	return SMTRange{Iv: iv}
}

func (s *SMTOps) PlusMinus(r *rational.Rational) SMTRange {
	return SMTRange{Iv: interval.PlusMinus(r)}
}

func (s *SMTOps) Zero() SMTRange { return SMTRange{Iv: interval.Zero()} }

func (s *SMTOps) Add(x, y SMTRange) SMTRange { return SMTRange{Iv: x.Iv.Add(y.Iv)} }
func (s *SMTOps) Sub(x, y SMTRange) SMTRange { return SMTRange{Iv: x.Iv.Sub(y.Iv)} }
func (s *SMTOps) Neg(x SMTRange) SMTRange    { return SMTRange{Iv: x.Iv.Neg()} }
func (s *SMTOps) Mul(x, y SMTRange) SMTRange { return SMTRange{Iv: x.Iv.Mul(y.Iv)} }

func (s *SMTOps) Div(x, y SMTRange) (SMTRange, error) {
	iv, err := x.Iv.Div(y.Iv)
	if err != nil {
		return SMTRange{}, err
	}
	return SMTRange{Iv: iv}, nil
}

func (s *SMTOps) Sqrt(x SMTRange) (SMTRange, error) {
	iv, err := x.Iv.Sqrt()
	if err != nil {
		return SMTRange{}, err
	}
	return SMTRange{Iv: iv}, nil
}

func (s *SMTOps) Pow(x SMTRange, n int) (SMTRange, error) {
	return SMTRange{Iv: x.Iv.PowInt(n)}, nil
}

func (s *SMTOps) ToInterval(x SMTRange) interval.Interval { return x.Iv }

var halfRat = mustHalf()

func mustHalf() *rational.Rational {
	r, err := rational.New(1, 2)
	if err != nil {
		panic(err)
	}
	return r
}
