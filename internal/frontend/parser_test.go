package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"martianoff/roundel/rounderr"
)

func TestParseFunction(t *testing.T) {
	src := `
// cubic B-spline basis segment
func bspline0(u) {
  pre: 0 <= u && u <= 0.875
  return (1 - u)^3 / 6
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)

	fn := prog.Functions[0]
	assert.Equal(t, "bspline0", fn.Name)
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "u", fn.Params[0].Name())
	require.Len(t, fn.Pre, 2)
	assert.Equal(t, "((1 - u)^3 / 6)", fn.Body.String())
}

func TestParseConstraints(t *testing.T) {
	src := `
func f(x, y) {
  pre: x in [-1, 2.5] && y >= 0 && y <= 10 && x +/- 1e-8 && x*x + y <= 5
  post: res +/- 1e-12
  return x + y
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	fn := prog.Functions[0]
	require.Len(t, fn.Pre, 5)

	in, ok := fn.Pre[0].(*InRange)
	require.True(t, ok)
	assert.Equal(t, "x", in.Ident.Name())
	assert.Equal(t, "-1", in.Lo.String())
	assert.Equal(t, "5/2", in.Hi.String())

	ge, ok := fn.Pre[1].(*Cmp)
	require.True(t, ok)
	assert.Equal(t, OpGe, ge.Op)

	eb, ok := fn.Pre[3].(*ErrBound)
	require.True(t, ok)
	assert.Equal(t, "x", eb.Ident.Name())
	assert.Equal(t, "1/100000000", eb.Err.String())

	poly, ok := fn.Pre[4].(*Cmp)
	require.True(t, ok)
	assert.Equal(t, "((x * x) + y) <= 5", poly.String())

	require.NotNil(t, fn.Post)
	assert.Equal(t, "1/1000000000000", fn.Post.Eps.String())
}

func TestParseLetDesugaring(t *testing.T) {
	src := `
func f(t) {
  pre: 0 <= t && t <= 1
  let c = 331.4 + 0.6 * t;
  let d = c * c;
  return d / c
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	fn := prog.Functions[0]

	outer, ok := fn.Body.(*Let)
	require.True(t, ok)
	assert.Equal(t, "c", outer.Ident.Name())

	inner, ok := outer.Body.(*Let)
	require.True(t, ok)
	assert.Equal(t, "d", inner.Ident.Name())

	// The let-bound identifiers are interned: every use shares the
	// binding's identifier.
	div, ok := inner.Body.(*Binary)
	require.True(t, ok)
	num := div.L.(*Var)
	den := div.R.(*Var)
	assert.Same(t, inner.Ident, num.Ident)
	assert.Same(t, outer.Ident, den.Ident)
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "mul binds tighter", expr: "1 + 2 * 3", want: "(1 + (2 * 3))"},
		{name: "left assoc sub", expr: "1 - 2 - 3", want: "((1 - 2) - 3)"},
		{name: "pow binds tighter than neg", expr: "-x^2", want: "(-x^2)"},
		{name: "parens", expr: "(1 + 2) * 3", want: "((1 + 2) * 3)"},
		{name: "sqrt call", expr: "sqrt(x + 1)", want: "sqrt((x + 1))"},
		{name: "nested negation", expr: "- -x", want: "(-(-x))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "func f(x) { pre: 0 <= x && x <= 1 return " + tt.expr + " }"
			prog, err := Parse(src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, prog.Functions[0].Body.String())
		})
	}
}

func TestNodeIdentity(t *testing.T) {
	src := `func f(x) { pre: 0 <= x && x <= 1 return x * x + x * x }`
	prog, err := Parse(src)
	require.NoError(t, err)

	// Structurally equal sub-expressions keep distinct identities.
	ids := make(map[NodeID]bool)
	var walk func(e Expr)
	walk = func(e Expr) {
		assert.False(t, ids[e.ID()], "node id %d reused", e.ID())
		ids[e.ID()] = true
		switch e := e.(type) {
		case *Unary:
			walk(e.X)
		case *Binary:
			walk(e.L)
			walk(e.R)
		case *Pow:
			walk(e.Base)
		case *Let:
			walk(e.Value)
			walk(e.Body)
		}
	}
	walk(prog.Functions[0].Body)
	// x*x + x*x: one add, two muls, four variable references.
	assert.Len(t, ids, 7)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "missing paren", src: "func f(x { return x }"},
		{name: "undefined variable", src: "func f(x) { return y }"},
		{name: "negative exponent", src: "func f(x) { return x^-2 }"},
		{name: "missing return", src: "func f(x) { let y = x; }"},
		{name: "empty input", src: "   "},
		{name: "duplicate parameter", src: "func f(x, x) { return x }"},
		{name: "empty range", src: "func f(x) { pre: x in [2, 1] return x }"},
		{name: "stray character", src: "func f(x) { return x ? 1 }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.True(t, rounderr.IsKind(err, rounderr.KindSyntax), "got %v", err)
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("func f(x) {\n  return x +\n}")
	require.Error(t, err)
	var se *rounderr.SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Line)
}

func TestIdentifierMarkers(t *testing.T) {
	d := NewDelta("d1")
	e := NewEpsilon("e1")
	x := NewIdent("x")

	assert.True(t, d.IsDelta())
	assert.False(t, d.IsEpsilon())
	assert.True(t, e.IsEpsilon())
	assert.False(t, x.IsDelta())
	assert.NotEqual(t, d.UID(), e.UID())
	assert.NotEqual(t, NewIdent("x").UID(), x.UID())
}
