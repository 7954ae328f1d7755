package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/internal/specs"
	"martianoff/roundel/precision"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

func defaultDriver(t *testing.T) *Driver {
	t.Helper()
	return NewDriver(Options{
		RangeMethod:   RangeInterval,
		ErrorMethod:   ErrorAffine,
		Precisions:    specs.NewPrecisionMap(precision.Float64),
		TrackInitial:  true,
		TrackRoundoff: true,
		MaxSplits:     2,
	})
}

// The reference kernels of the regression suite, uniform float64, interval
// ranges and affine errors.
const regressionSrc = `
func bspline0(u) {
  pre: 0 <= u && u <= 0.875
  return (1 - u)^3 / 6
}

func bspline1(u) {
  pre: 0.875 <= u && u <= 1
  return (3 * u^3 - 6 * u^2 + 4) / 6
}

func rigidBody1(x1, x2, x3) {
  pre: x1 in [-15, 15] && x2 in [-15, 15] && x3 in [-15, 15]
  return -x1 * x2 - 2 * x2 * x3 - x1 - x3
}

func doppler(u, v, t) {
  pre: u in [-100, 100] && v in [20, 20000] && t in [-30, 50]
  let t1 = 331.4 + 0.6 * t;
  return (-t1 * v) / ((t1 + u) * (t1 + u))
}

func turbine1(v, w, r) {
  pre: v in [-4.5, -0.3] && w in [0.4, 0.9] && r in [3.8, 7.8]
  return 3 + 2 / (r * r) - 0.125 * (3 - 2 * v) * (w * w * r * r) / (1 - v) - 4.5
}

func sineOrder3(x) {
  pre: x in [-2, 2]
  return 0.954 * x - 0.1 * x^3
}
`

func TestRegressionSuite(t *testing.T) {
	expected := map[string]string{
		"bspline0":   "1.5266e-16",
		"bspline1":   "6.1062e-16",
		"rigidBody1": "2.238e-13",
		"doppler":    "1.98e-13",
		"turbine1":   "8.82e-14",
		"sineOrder3": "1.44e-15",
	}

	prog, err := frontend.Parse(regressionSrc)
	require.NoError(t, err)
	require.Len(t, prog.Functions, len(expected))

	results, err := defaultDriver(t).AnalyzeProgram(context.Background(), prog)
	require.NoError(t, err)

	// The release harness pins these values bit-for-bit; here the bound
	// must land in the reference magnitude band. First-order propagation
	// keeps it well within a factor of five of the reference values.
	band := rational.FromInt(5)
	for _, res := range results {
		t.Run(res.Function, func(t *testing.T) {
			require.NoError(t, res.Err)
			want, err := rational.FromString(expected[res.Function])
			require.NoError(t, err)
			got := res.AbsError
			lo, err := want.Div(band)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.Cmp(lo), 0,
				"error %s far below expected %s", got.Scientific(5), expected[res.Function])
			assert.LessOrEqual(t, got.Cmp(want.Mul(band)), 0,
				"error %s far above expected %s", got.Scientific(5), expected[res.Function])
		})
	}
}

func TestRegressionRangeSoundness(t *testing.T) {
	prog, err := frontend.Parse(regressionSrc)
	require.NoError(t, err)
	results, err := defaultDriver(t).AnalyzeProgram(context.Background(), prog)
	require.NoError(t, err)

	byName := make(map[string]Result)
	for _, res := range results {
		byName[res.Function] = res
	}

	// bspline0 is monotone over its domain, so interval analysis is exact:
	// [(1-0.875)^3/6, 1/6] = [1/3072, 1/6].
	bs := byName["bspline0"]
	require.NoError(t, bs.Err)
	lo, _ := rational.New(1, 3072)
	hi, _ := rational.New(1, 6)
	assert.True(t, bs.Range.Lo.Equal(lo), "got %v", bs.Range)
	assert.True(t, bs.Range.Hi.Equal(hi), "got %v", bs.Range)

	// rigidBody1's range is symmetric and bounded by corner evaluation.
	rb := byName["rigidBody1"]
	require.NoError(t, rb.Err)
	assert.True(t, rb.Range.Contains(rational.Zero()))
	assert.True(t, rb.Range.MaxAbs().Cmp(rational.FromInt(705)) <= 0, "got %v", rb.Range)
}

func TestResultsKeepSourceOrder(t *testing.T) {
	prog, err := frontend.Parse(regressionSrc)
	require.NoError(t, err)
	d := defaultDriver(t)
	for range 3 {
		results, err := d.AnalyzeProgram(context.Background(), prog)
		require.NoError(t, err)
		names := make([]string, len(results))
		for i, res := range results {
			names[i] = res.Function
		}
		assert.Equal(t, []string{"bspline0", "bspline1", "rigidBody1", "doppler", "turbine1", "sineOrder3"}, names)
	}
}

func TestDriverDeterminism(t *testing.T) {
	prog, err := frontend.Parse(regressionSrc)
	require.NoError(t, err)
	d := defaultDriver(t)

	first, err := d.AnalyzeProgram(context.Background(), prog)
	require.NoError(t, err)
	second, err := d.AnalyzeProgram(context.Background(), prog)
	require.NoError(t, err)

	for i := range first {
		require.NoError(t, first[i].Err)
		assert.True(t, first[i].AbsError.Equal(second[i].AbsError),
			"%s: %v vs %v", first[i].Function, first[i].AbsError, second[i].AbsError)
		assert.True(t, first[i].Range.Lo.Equal(second[i].Range.Lo))
		assert.True(t, first[i].Range.Hi.Equal(second[i].Range.Hi))
	}
}

func TestSubdivisionRecovery(t *testing.T) {
	// Interval analysis loses the correlation in x*x and sees a divisor
	// straddling zero; bisecting the input makes both halves succeed.
	src := `
func f(x) {
  pre: x in [-1, 1]
  return 1 / (x * x + 0.5)
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	fn := prog.Functions[0]

	res := defaultDriver(t).AnalyzeFunction(context.Background(), fn)
	require.NoError(t, res.Err)
	// 1/(x^2+1/2) over [-1, 1] has range [2/3, 2]; each half-domain is
	// exact, and the join recovers the whole.
	twoThirds, _ := rational.New(2, 3)
	assert.True(t, res.Range.Lo.Equal(twoThirds), "got %v", res.Range)
	assert.True(t, res.Range.Hi.Equal(rational.Two()), "got %v", res.Range)

	noSplits := NewDriver(Options{
		RangeMethod:   RangeInterval,
		ErrorMethod:   ErrorAffine,
		TrackInitial:  true,
		TrackRoundoff: true,
		MaxSplits:     0,
	})
	res = noSplits.AnalyzeFunction(context.Background(), fn)
	require.Error(t, res.Err)
	assert.True(t, rounderr.IsKind(res.Err, rounderr.KindDivisionByZero), "got %v", res.Err)
}

func TestSubdivisionExhausted(t *testing.T) {
	// The singularity sits inside every subdomain; splitting never helps.
	src := `
func f(x) {
  pre: x in [-1, 1]
  return 1 / x
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)

	res := defaultDriver(t).AnalyzeFunction(context.Background(), prog.Functions[0])
	require.Error(t, res.Err)
	assert.True(t, rounderr.IsKind(res.Err, rounderr.KindDivisionByZero))
}

func TestInputErrorDefaults(t *testing.T) {
	src := `
func withDecl(x) {
  pre: x in [1, 2] && x +/- 1e-8
  return x
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	fn := prog.Functions[0]

	declared, _ := rational.FromString("1e-8")
	roundoffOfInput := rational.PowerOfTwo(-52) // u * maxAbs([1, 2])

	tests := []struct {
		name          string
		trackInitial  bool
		trackRoundoff bool
		want          *rational.Rational
	}{
		{name: "both use the declaration", trackInitial: true, trackRoundoff: true, want: declared},
		{name: "initial only uses the declaration", trackInitial: true, trackRoundoff: false, want: declared},
		{name: "roundoff only recomputes", trackInitial: false, trackRoundoff: true, want: roundoffOfInput},
		{name: "neither is zero", trackInitial: false, trackRoundoff: false, want: rational.Zero()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDriver(Options{
				RangeMethod:   RangeInterval,
				ErrorMethod:   ErrorAffine,
				TrackInitial:  tt.trackInitial,
				TrackRoundoff: tt.trackRoundoff,
			})
			res := d.AnalyzeFunction(context.Background(), fn)
			require.NoError(t, res.Err)
			// The body is a bare variable reference: its error is exactly
			// the resolved input error.
			assert.True(t, res.AbsError.Equal(tt.want), "want %v, got %v", tt.want, res.AbsError)
		})
	}
}

func TestMissingInputErrorFilledFromPrecision(t *testing.T) {
	src := `
func plain(x) {
  pre: x in [1, 2]
  return x
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)

	d := NewDriver(Options{
		RangeMethod:   RangeInterval,
		ErrorMethod:   ErrorAffine,
		TrackInitial:  true,
		TrackRoundoff: true,
	})
	res := d.AnalyzeFunction(context.Background(), prog.Functions[0])
	require.NoError(t, res.Err)
	assert.True(t, res.AbsError.Equal(rational.PowerOfTwo(-52)), "got %v", res.AbsError)
}

func TestOverflowAdvisory(t *testing.T) {
	src := `
func huge(x) {
  pre: x in [1e200, 2e200]
  return x * x
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)

	res := defaultDriver(t).AnalyzeFunction(context.Background(), prog.Functions[0])
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "exceeds the largest finite")
}

func TestIntervalErrorMethod(t *testing.T) {
	src := `
func f(x) {
  pre: x in [0, 1]
  return x - x
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	fn := prog.Functions[0]

	affineDriver := defaultDriver(t)
	intervalDriver := NewDriver(Options{
		RangeMethod:   RangeInterval,
		ErrorMethod:   ErrorInterval,
		TrackInitial:  true,
		TrackRoundoff: true,
	})

	aff := affineDriver.AnalyzeFunction(context.Background(), fn)
	require.NoError(t, aff.Err)
	ivr := intervalDriver.AnalyzeFunction(context.Background(), fn)
	require.NoError(t, ivr.Err)

	// Correlated input errors cancel in the affine domain only.
	assert.LessOrEqual(t, aff.AbsError.Cmp(ivr.AbsError), 0)
	assert.Positive(t, ivr.AbsError.Sign())
}

func TestAnalyzeProgramCancellation(t *testing.T) {
	prog, err := frontend.Parse(regressionSrc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = defaultDriver(t).AnalyzeProgram(ctx, prog)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntermediatesExposed(t *testing.T) {
	src := `
func f(x) {
  pre: x in [1, 2]
  return x * x + 1
}
`
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	fn := prog.Functions[0]

	res := defaultDriver(t).AnalyzeFunction(context.Background(), fn)
	require.NoError(t, res.Err)

	// One entry per node in both maps, keyed consistently.
	assert.Len(t, res.IntermRanges, countNodes(fn.Body))
	assert.Len(t, res.IntermErrors, countNodes(fn.Body))
	for id := range res.IntermErrors {
		_, ok := res.IntermRanges[id]
		assert.True(t, ok, "error entry %d has no range entry", id)
	}
}
