package analysis

import (
	"martianoff/roundel/affine"
	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/internal/specs"
	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
)

// Fitness scores one candidate expression for the rewriting and
// relative-error collaborators: interval ranges, affine errors, and the
// given precisions. It is a pure function of its arguments — no caches,
// no shared state, only per-invocation allocation — so a genetic search
// may call it from thousands of goroutines at once.
func Fitness(e frontend.Expr, inputs map[*frontend.Identifier]interval.Interval, inputErrors map[*frontend.Identifier]*rational.Rational, precisions *specs.PrecisionMap) (*rational.Rational, interval.Interval, error) {
	env := make(map[*frontend.Identifier]interval.Interval, len(inputs))
	for id, iv := range inputs {
		env[id] = iv
	}
	resRange, ranges, err := EvalRange[interval.Interval](IntervalOps{}, e, env)
	if err != nil {
		return nil, interval.Interval{}, err
	}

	errEnv := make(map[*frontend.Identifier]*affine.Form, len(inputs))
	for id := range inputs {
		if r, ok := inputErrors[id]; ok {
			errEnv[id] = affine.PlusMinus(r)
		} else {
			errEnv[id] = affine.Zero()
		}
	}
	params := &RoundoffParams{
		Ranges:             ranges,
		Precisions:         precisions,
		ConstantsPrecision: precisions.Default,
		TrackRoundoff:      true,
	}
	resErr, _, err := EvalRoundoff[*affine.Form](AffineOps{}, e, errEnv, params)
	if err != nil {
		return nil, interval.Interval{}, err
	}
	return resErr.MaxAbs(), resRange, nil
}
