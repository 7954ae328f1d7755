package analysis

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"martianoff/roundel/affine"
	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/internal/specs"
	"martianoff/roundel/interval"
	"martianoff/roundel/precision"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

// RangeMethod selects the abstract domain for range analysis.
type RangeMethod int

const (
	RangeInterval RangeMethod = iota
	RangeAffine
	RangeSMT
)

// ErrorMethod selects the abstract domain for error analysis.
type ErrorMethod int

const (
	ErrorInterval ErrorMethod = iota
	ErrorAffine
)

// ParseRangeMethod reads "interval", "affine" or "smt".
func ParseRangeMethod(s string) (RangeMethod, error) {
	switch s {
	case "interval":
		return RangeInterval, nil
	case "affine":
		return RangeAffine, nil
	case "smt":
		return RangeSMT, nil
	}
	return 0, fmt.Errorf("unknown range method %q", s)
}

// ParseErrorMethod reads "interval" or "affine".
func ParseErrorMethod(s string) (ErrorMethod, error) {
	switch s {
	case "interval":
		return ErrorInterval, nil
	case "affine":
		return ErrorAffine, nil
	}
	return 0, fmt.Errorf("unknown error method %q", s)
}

// Options configures a Driver.
type Options struct {
	RangeMethod RangeMethod
	ErrorMethod ErrorMethod
	// Precisions assigns precisions to identifiers; its default doubles as
	// the constants precision.
	Precisions *specs.PrecisionMap
	// TrackInitial enables input-error tracking; TrackRoundoff enables the
	// per-operation roundoff terms. See AnalyzeFunction for how the two
	// combine to default missing input errors.
	TrackInitial  bool
	TrackRoundoff bool
	// Solver backs the SMT range method; nil degrades SMT ranges to plain
	// intervals with a warning.
	Solver        Solver
	SolverTimeout time.Duration
	// MaxSplits bounds the input-domain subdivision depth the driver tries
	// when an evaluator fails recoverably.
	MaxSplits int
	// Workers bounds the number of functions analyzed concurrently.
	// Zero means GOMAXPROCS.
	Workers int
}

// Result is the outcome of analyzing one function.
type Result struct {
	Function string
	// AbsError and Range are valid when Err is nil.
	AbsError *rational.Rational
	Range    interval.Interval
	// IntermErrors and IntermRanges expose every sub-expression's error
	// and range, keyed by node identity.
	IntermErrors map[frontend.NodeID]*rational.Rational
	IntermRanges map[frontend.NodeID]interval.Interval
	Warnings     []string
	Err          error
}

// Driver orchestrates the analysis of whole programs: specs processing,
// method selection, evaluator invocation and subdivision recovery.
type Driver struct {
	opts Options
}

// NewDriver creates a driver. Missing options get working defaults.
func NewDriver(opts Options) *Driver {
	if opts.Precisions == nil {
		opts.Precisions = specs.NewPrecisionMap(precision.Float64)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.SolverTimeout <= 0 {
		opts.SolverTimeout = time.Second
	}
	return &Driver{opts: opts}
}

// AnalyzeProgram analyzes every function of prog on a bounded worker pool.
// Results come back in source order regardless of completion order. The
// error is non-nil only when ctx is cancelled.
func (d *Driver) AnalyzeProgram(ctx context.Context, prog *frontend.Program) ([]Result, error) {
	results := make([]Result, len(prog.Functions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, fn := range prog.Functions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = d.AnalyzeFunction(ctx, fn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AnalyzeFunction analyzes one function. Failures are reported on the
// Result, after subdivision recovery was attempted for the recoverable
// kinds.
func (d *Driver) AnalyzeFunction(ctx context.Context, fn *frontend.Function) Result {
	spec, err := specs.Process(fn)
	if err != nil {
		return Result{Function: fn.Name, Err: rounderr.WithFunction(err, fn.Name)}
	}
	res, err := d.analyze(ctx, fn, spec, spec.InputRanges, d.opts.MaxSplits)
	if err != nil {
		return Result{Function: fn.Name, Err: rounderr.WithFunction(err, fn.Name)}
	}
	d.overflowAdvisory(&res)
	return res
}

// analyze runs one attempt over the given input ranges and recovers from
// recoverable failures by bisecting the widest input and merging the
// subdomain results.
func (d *Driver) analyze(ctx context.Context, fn *frontend.Function, spec *specs.FunctionSpec, inputs map[*frontend.Identifier]interval.Interval, splitsLeft int) (Result, error) {
	res, err := d.analyzeOnce(ctx, fn, spec, inputs)
	if err == nil {
		return res, nil
	}
	if splitsLeft <= 0 || !rounderr.Recoverable(err) {
		return Result{}, err
	}

	widest := widestInput(fn.Params, inputs)
	if widest == nil {
		return Result{}, err
	}
	left, right := inputs[widest].Split()

	lres, lerr := d.analyze(ctx, fn, spec, withRange(inputs, widest, left), splitsLeft-1)
	if lerr != nil {
		return Result{}, err
	}
	rres, rerr := d.analyze(ctx, fn, spec, withRange(inputs, widest, right), splitsLeft-1)
	if rerr != nil {
		return Result{}, err
	}
	return mergeResults(lres, rres), nil
}

func (d *Driver) analyzeOnce(ctx context.Context, fn *frontend.Function, spec *specs.FunctionSpec, inputs map[*frontend.Identifier]interval.Interval) (Result, error) {
	res := Result{Function: fn.Name}

	resRange, ranges, warnings, err := d.computeRanges(ctx, fn, spec, inputs)
	if err != nil {
		return Result{}, err
	}
	res.Range = resRange
	res.IntermRanges = ranges
	res.Warnings = warnings

	inputErrs := d.inputErrors(fn, spec, inputs)
	params := &RoundoffParams{
		Ranges:             ranges,
		Precisions:         d.opts.Precisions,
		ConstantsPrecision: d.opts.Precisions.Default,
		TrackRoundoff:      d.opts.TrackRoundoff,
	}

	switch d.opts.ErrorMethod {
	case ErrorAffine:
		env := make(map[*frontend.Identifier]*affine.Form, len(inputErrs))
		for id, r := range inputErrs {
			env[id] = affine.PlusMinus(r)
		}
		resErr, interm, err := EvalRoundoff[*affine.Form](AffineOps{}, fn.Body, env, params)
		if err != nil {
			return Result{}, err
		}
		res.AbsError = resErr.MaxAbs()
		res.IntermErrors = collapseErrors(AffineOps{}, interm)

	default:
		env := make(map[*frontend.Identifier]interval.Interval, len(inputErrs))
		for id, r := range inputErrs {
			env[id] = interval.PlusMinus(r)
		}
		resErr, interm, err := EvalRoundoff[interval.Interval](IntervalOps{}, fn.Body, env, params)
		if err != nil {
			return Result{}, err
		}
		res.AbsError = resErr.MaxAbs()
		res.IntermErrors = collapseErrors(IntervalOps{}, interm)
	}
	return res, nil
}

// computeRanges runs the range evaluator in the configured domain and
// collapses every intermediate range to an interval.
func (d *Driver) computeRanges(ctx context.Context, fn *frontend.Function, spec *specs.FunctionSpec, inputs map[*frontend.Identifier]interval.Interval) (interval.Interval, map[frontend.NodeID]interval.Interval, []string, error) {
	switch d.opts.RangeMethod {
	case RangeAffine:
		env := make(map[*frontend.Identifier]*affine.Form, len(inputs))
		for _, id := range fn.Params {
			env[id] = affine.FromInterval(inputs[id])
		}
		result, interm, err := EvalRange[*affine.Form](AffineOps{}, fn.Body, env)
		if err != nil {
			return interval.Interval{}, nil, nil, err
		}
		return result.ToInterval(), collapseRanges(AffineOps{}, interm), nil, nil

	case RangeSMT:
		ops := &SMTOps{
			Solver:  d.opts.Solver,
			Ctx:     ctx,
			Timeout: d.opts.SolverTimeout,
			Pre:     spec.Additional,
		}
		env := make(map[*frontend.Identifier]SMTRange, len(inputs))
		for _, id := range fn.Params {
			env[id] = ops.RefineInput(id, inputs[id])
		}
		result, interm, err := EvalRange[SMTRange](ops, fn.Body, env)
		if err != nil {
			return interval.Interval{}, nil, nil, err
		}
		var warnings []string
		if d.opts.Solver == nil && len(spec.Additional) > 0 {
			warnings = append(warnings, "no solver configured; additional constraints ignored")
		}
		warnings = append(warnings, ops.Degraded...)
		return result.Iv, collapseRanges[SMTRange](ops, interm), warnings, nil

	default:
		env := make(map[*frontend.Identifier]interval.Interval, len(inputs))
		for _, id := range fn.Params {
			env[id] = inputs[id]
		}
		result, interm, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, env)
		if err != nil {
			return interval.Interval{}, nil, nil, err
		}
		return result, interm, nil, nil
	}
}

// inputErrors resolves each parameter's initial error per the tracking
// configuration: explicit errors count only when initial errors are
// tracked; roundoff tracking without initial tracking recomputes every
// error from the input's precision; with both, the precision fills only
// the gaps.
func (d *Driver) inputErrors(fn *frontend.Function, spec *specs.FunctionSpec, inputs map[*frontend.Identifier]interval.Interval) map[*frontend.Identifier]*rational.Rational {
	out := make(map[*frontend.Identifier]*rational.Rational, len(fn.Params))
	for _, id := range fn.Params {
		switch {
		case d.opts.TrackInitial && d.opts.TrackRoundoff:
			if e, ok := spec.InputErrors[id]; ok {
				out[id] = e
			} else {
				out[id] = d.opts.Precisions.For(id).AbsRoundoff(inputs[id])
			}
		case d.opts.TrackInitial:
			if e, ok := spec.InputErrors[id]; ok {
				out[id] = e
			} else {
				out[id] = rational.Zero()
			}
		case d.opts.TrackRoundoff:
			out[id] = d.opts.Precisions.For(id).AbsRoundoff(inputs[id])
		default:
			out[id] = rational.Zero()
		}
	}
	return out
}

func (d *Driver) overflowAdvisory(res *Result) {
	maxFinite := d.opts.Precisions.Default.MaxFinite()
	if res.Range.MaxAbs().Cmp(maxFinite) > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("result range %v exceeds the largest finite %v value", res.Range, d.opts.Precisions.Default))
	}
}

func collapseRanges[T any](ops Ops[T], interm map[frontend.NodeID]T) map[frontend.NodeID]interval.Interval {
	out := make(map[frontend.NodeID]interval.Interval, len(interm))
	for id, v := range interm {
		out[id] = ops.ToInterval(v)
	}
	return out
}

func collapseErrors[E any](ops Ops[E], interm map[frontend.NodeID]E) map[frontend.NodeID]*rational.Rational {
	out := make(map[frontend.NodeID]*rational.Rational, len(interm))
	for id, v := range interm {
		out[id] = ops.ToInterval(v).MaxAbs()
	}
	return out
}

func widestInput(params []*frontend.Identifier, inputs map[*frontend.Identifier]interval.Interval) *frontend.Identifier {
	var widest *frontend.Identifier
	var width *rational.Rational
	for _, id := range params {
		w := inputs[id].Width()
		if w.IsZero() {
			continue
		}
		if widest == nil || w.Cmp(width) > 0 {
			widest, width = id, w
		}
	}
	return widest
}

func withRange(inputs map[*frontend.Identifier]interval.Interval, id *frontend.Identifier, iv interval.Interval) map[*frontend.Identifier]interval.Interval {
	out := make(map[*frontend.Identifier]interval.Interval, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	out[id] = iv
	return out
}

// mergeResults joins two subdomain results: ranges join, errors take the
// maximum, per-node maps merge pointwise.
func mergeResults(a, b Result) Result {
	res := Result{
		Function: a.Function,
		AbsError: rational.Max(a.AbsError, b.AbsError),
		Range:    a.Range.Join(b.Range),
		Warnings: append(append([]string{}, a.Warnings...), b.Warnings...),
	}
	res.IntermRanges = make(map[frontend.NodeID]interval.Interval, len(a.IntermRanges))
	for id, iv := range a.IntermRanges {
		if other, ok := b.IntermRanges[id]; ok {
			res.IntermRanges[id] = iv.Join(other)
		} else {
			res.IntermRanges[id] = iv
		}
	}
	for id, iv := range b.IntermRanges {
		if _, ok := res.IntermRanges[id]; !ok {
			res.IntermRanges[id] = iv
		}
	}
	res.IntermErrors = make(map[frontend.NodeID]*rational.Rational, len(a.IntermErrors))
	for id, e := range a.IntermErrors {
		if other, ok := b.IntermErrors[id]; ok {
			res.IntermErrors[id] = rational.Max(e, other)
		} else {
			res.IntermErrors[id] = e
		}
	}
	for id, e := range b.IntermErrors {
		if _, ok := res.IntermErrors[id]; !ok {
			res.IntermErrors[id] = e
		}
	}
	return res
}
