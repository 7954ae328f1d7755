package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"martianoff/roundel/affine"
	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/interval"
	"martianoff/roundel/rational"
	"martianoff/roundel/rounderr"
)

func iv(t *testing.T, lo, hi string) interval.Interval {
	t.Helper()
	l, err := rational.FromString(lo)
	require.NoError(t, err)
	h, err := rational.FromString(hi)
	require.NoError(t, err)
	res, err := interval.New(l, h)
	require.NoError(t, err)
	return res
}

// parseBody parses a single-function source and returns the function.
func parseBody(t *testing.T, src string) *frontend.Function {
	t.Helper()
	prog, err := frontend.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)
	return prog.Functions[0]
}

// countNodes walks the expression tree.
func countNodes(e frontend.Expr) int {
	switch e := e.(type) {
	case *frontend.Unary:
		return 1 + countNodes(e.X)
	case *frontend.Binary:
		return 1 + countNodes(e.L) + countNodes(e.R)
	case *frontend.Pow:
		return 1 + countNodes(e.Base)
	case *frontend.Let:
		return 1 + countNodes(e.Value) + countNodes(e.Body)
	default:
		return 1
	}
}

func TestEvalRangeInterval(t *testing.T) {
	fn := parseBody(t, `func f(x, y) { pre: x in [1, 2] && y in [3, 4] return x * y - x }`)
	env := map[*frontend.Identifier]interval.Interval{
		fn.Params[0]: iv(t, "1", "2"),
		fn.Params[1]: iv(t, "3", "4"),
	}
	res, interm, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, env)
	require.NoError(t, err)
	assert.Equal(t, "[1, 7]", res.String())
	// Every sub-expression has an entry, keyed by identity.
	assert.Len(t, interm, countNodes(fn.Body))
}

func TestEvalRangeCancellation(t *testing.T) {
	fn := parseBody(t, `func f(x) { pre: x in [0, 1] return x - x }`)

	ivEnv := map[*frontend.Identifier]interval.Interval{fn.Params[0]: iv(t, "0", "1")}
	ivRes, _, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, ivEnv)
	require.NoError(t, err)
	assert.Equal(t, "[-1, 1]", ivRes.String())

	// The affine domain keeps the correlation and collapses to zero.
	afEnv := map[*frontend.Identifier]*affine.Form{fn.Params[0]: affine.FromInterval(iv(t, "0", "1"))}
	afRes, _, err := EvalRange[*affine.Form](AffineOps{}, fn.Body, afEnv)
	require.NoError(t, err)
	assert.True(t, afRes.IsExact())
	assert.True(t, afRes.Central().IsZero())
	assert.True(t, afRes.ToInterval().ContainedIn(ivRes))
}

func TestEvalRangeLet(t *testing.T) {
	fn := parseBody(t, `
func f(x) {
  pre: x in [1, 2]
  let y = x * x;
  return y + y
}
`)
	env := map[*frontend.Identifier]interval.Interval{fn.Params[0]: iv(t, "1", "2")}
	res, interm, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, env)
	require.NoError(t, err)
	assert.Equal(t, "[2, 8]", res.String())

	// The let's defining expression has its own entry; the two uses of y
	// are distinct nodes with their own entries.
	let := fn.Body.(*frontend.Let)
	assert.Equal(t, "[1, 4]", interm[let.Value.ID()].String())
	add := let.Body.(*frontend.Binary)
	assert.NotEqual(t, add.L.ID(), add.R.ID())
	assert.Equal(t, "[1, 4]", interm[add.L.ID()].String())
	assert.Equal(t, "[1, 4]", interm[add.R.ID()].String())
}

func TestEvalRangeLetScoping(t *testing.T) {
	// The binding is visible in the body only; the defining expression
	// still sees the outer environment.
	x := frontend.NewIdent("x")
	pos := frontend.Position{}
	inner := frontend.NewIdent("x")
	le := frontend.NewLet(pos, inner,
		frontend.NewBinary(pos, frontend.OpAdd, frontend.NewVar(pos, x), frontend.NewNum(pos, rational.One())),
		frontend.NewVar(pos, inner))
	env := map[*frontend.Identifier]interval.Interval{x: iv(t, "0", "1")}
	res, _, err := EvalRange[interval.Interval](IntervalOps{}, le, env)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", res.String())
}

func TestEvalRangeFailures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind rounderr.Kind
	}{
		{
			name: "division by zero range",
			src:  `func f(x) { pre: x in [0, 1] return 1 / x }`,
			kind: rounderr.KindDivisionByZero,
		},
		{
			name: "negative sqrt",
			src:  `func f(x) { pre: x in [-1, 1] return sqrt(x) }`,
			kind: rounderr.KindNegativeSqrt,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := parseBody(t, tt.src)
			env := map[*frontend.Identifier]interval.Interval{}
			for _, p := range fn.Params {
				env[p] = iv(t, "-1", "1")
			}
			if tt.name == "division by zero range" {
				env[fn.Params[0]] = iv(t, "0", "1")
			}
			_, _, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, env)
			require.Error(t, err)
			assert.True(t, rounderr.IsKind(err, tt.kind), "got %v", err)
			// The failure carries the offending position.
			var ee *rounderr.EvalError
			require.ErrorAs(t, err, &ee)
			assert.Positive(t, ee.Line)
		})
	}
}

func TestEvalRangeUnboundVariable(t *testing.T) {
	fn := parseBody(t, `func f(x) { pre: x in [0, 1] return x }`)
	_, _, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, nil)
	require.Error(t, err)
	assert.True(t, rounderr.IsKind(err, rounderr.KindUnboundVariable))
}

func TestEvalRangePow(t *testing.T) {
	fn := parseBody(t, `func f(x) { pre: x in [-2, 3] return x^2 }`)
	env := map[*frontend.Identifier]interval.Interval{fn.Params[0]: iv(t, "-2", "3")}
	res, _, err := EvalRange[interval.Interval](IntervalOps{}, fn.Body, env)
	require.NoError(t, err)
	assert.Equal(t, "[0, 9]", res.String())
}
