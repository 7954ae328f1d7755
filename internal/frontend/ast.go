// Package frontend turns source text in the input expression language into
// the expression trees the analysis phases consume.
package frontend

import (
	"fmt"
	"sync/atomic"

	"martianoff/roundel/rational"
)

// Position is a source location.
type Position struct {
	Line   int
	Column int
}

// NodeID is the stable identity of one expression node, assigned at
// construction. Intermediate-result maps key on it: two structurally equal
// sub-expressions at different positions are distinct entries.
type NodeID uint64

var nodeCounter atomic.Uint64

func nextNodeID() NodeID {
	return NodeID(nodeCounter.Add(1))
}

// identCounter mints globally unique identifier ids.
var identCounter atomic.Uint64

// Identifier names a variable. Identifiers are immutable and interned per
// scope: every binding occurrence creates exactly one, and all uses share
// it, so pointer equality is identity.
type Identifier struct {
	id      uint64
	name    string
	delta   bool
	epsilon bool
}

// NewIdent creates a fresh identifier with the given name hint.
func NewIdent(name string) *Identifier {
	return &Identifier{id: identCounter.Add(1), name: name}
}

// NewDelta creates a fresh identifier marked as a delta symbol.
func NewDelta(name string) *Identifier {
	return &Identifier{id: identCounter.Add(1), name: name, delta: true}
}

// NewEpsilon creates a fresh identifier marked as an epsilon symbol.
func NewEpsilon(name string) *Identifier {
	return &Identifier{id: identCounter.Add(1), name: name, epsilon: true}
}

// UID returns the globally unique id.
func (id *Identifier) UID() uint64 { return id.id }

// Name returns the name hint.
func (id *Identifier) Name() string { return id.name }

// IsDelta reports whether the identifier is a delta symbol.
func (id *Identifier) IsDelta() bool { return id.delta }

// IsEpsilon reports whether the identifier is an epsilon symbol.
func (id *Identifier) IsEpsilon() bool { return id.epsilon }

func (id *Identifier) String() string { return id.name }

// UnaryOp identifies a unary operation.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpSqrt
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpSqrt:
		return "sqrt"
	}
	return fmt.Sprintf("unary(%d)", int(op))
}

// BinOp identifies a binary operation.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	}
	return fmt.Sprintf("bin(%d)", int(op))
}

// Expr is the closed sum type of expression nodes. The evaluators do an
// exhaustive type switch over exactly these variants.
type Expr interface {
	ID() NodeID
	Pos() Position
	fmt.Stringer
	exprNode()
}

type node struct {
	id  NodeID
	pos Position
}

func (n *node) ID() NodeID    { return n.id }
func (n *node) Pos() Position { return n.pos }

func newNode(pos Position) node {
	return node{id: nextNodeID(), pos: pos}
}

// Num is a real literal.
type Num struct {
	node
	Val *rational.Rational
}

// Var is a variable reference.
type Var struct {
	node
	Ident *Identifier
}

// Unary applies negation or square root.
type Unary struct {
	node
	Op UnaryOp
	X  Expr
}

// Binary applies +, -, * or /.
type Binary struct {
	node
	Op BinOp
	L  Expr
	R  Expr
}

// Pow raises Base to a fixed integer power Exp >= 0.
type Pow struct {
	node
	Base Expr
	Exp  int
}

// Let binds Ident to Value within Body. The binding is lexically scoped;
// the evaluators record Value's result against Value's own node and Body's
// result against this node, and every use site of Ident, being a distinct
// Var node, gets its own entry.
type Let struct {
	node
	Ident *Identifier
	Value Expr
	Body  Expr
}

// NewNum creates a literal node.
func NewNum(pos Position, val *rational.Rational) *Num {
	return &Num{node: newNode(pos), Val: val}
}

// NewVar creates a variable reference node.
func NewVar(pos Position, ident *Identifier) *Var {
	return &Var{node: newNode(pos), Ident: ident}
}

// NewUnary creates a unary node.
func NewUnary(pos Position, op UnaryOp, x Expr) *Unary {
	return &Unary{node: newNode(pos), Op: op, X: x}
}

// NewBinary creates a binary node.
func NewBinary(pos Position, op BinOp, l, r Expr) *Binary {
	return &Binary{node: newNode(pos), Op: op, L: l, R: r}
}

// NewPow creates a power node.
func NewPow(pos Position, base Expr, exp int) *Pow {
	return &Pow{node: newNode(pos), Base: base, Exp: exp}
}

// NewLet creates a let-binding node.
func NewLet(pos Position, ident *Identifier, value, body Expr) *Let {
	return &Let{node: newNode(pos), Ident: ident, Value: value, Body: body}
}

func (*Num) exprNode()    {}
func (*Var) exprNode()    {}
func (*Unary) exprNode()  {}
func (*Binary) exprNode() {}
func (*Pow) exprNode()    {}
func (*Let) exprNode()    {}

func (e *Num) String() string { return e.Val.String() }
func (e *Var) String() string { return e.Ident.Name() }

func (e *Unary) String() string {
	if e.Op == OpSqrt {
		return fmt.Sprintf("sqrt(%s)", e.X)
	}
	return fmt.Sprintf("(-%s)", e.X)
}

func (e *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", e.L, e.Op, e.R)
}

func (e *Pow) String() string {
	return fmt.Sprintf("%s^%d", e.Base, e.Exp)
}

func (e *Let) String() string {
	return fmt.Sprintf("(let %s = %s in %s)", e.Ident, e.Value, e.Body)
}

// CmpOp identifies a comparison in a precondition constraint.
type CmpOp int

const (
	OpLe CmpOp = iota
	OpLt
	OpGe
	OpGt
	OpEq
)

func (op CmpOp) String() string {
	switch op {
	case OpLe:
		return "<="
	case OpLt:
		return "<"
	case OpGe:
		return ">="
	case OpGt:
		return ">"
	case OpEq:
		return "=="
	}
	return fmt.Sprintf("cmp(%d)", int(op))
}

// Constraint is one conjunct of a precondition.
type Constraint interface {
	Pos() Position
	fmt.Stringer
	constraintNode()
}

// Cmp is a comparison between two expressions. Simple variable bounds are
// interpreted by the specs processor; anything else is carried verbatim to
// the SMT backend.
type Cmp struct {
	pos Position
	Op  CmpOp
	L   Expr
	R   Expr
}

// InRange bounds a variable to a closed interval: x in [lo, hi].
type InRange struct {
	pos   Position
	Ident *Identifier
	Lo    *rational.Rational
	Hi    *rational.Rational
}

// ErrBound declares an initial error on an input: x +/- err.
type ErrBound struct {
	pos   Position
	Ident *Identifier
	Err   *rational.Rational
}

// NewCmp creates a comparison constraint.
func NewCmp(pos Position, op CmpOp, l, r Expr) *Cmp {
	return &Cmp{pos: pos, Op: op, L: l, R: r}
}

// NewInRange creates an interval membership constraint.
func NewInRange(pos Position, ident *Identifier, lo, hi *rational.Rational) *InRange {
	return &InRange{pos: pos, Ident: ident, Lo: lo, Hi: hi}
}

// NewErrBound creates an input error constraint.
func NewErrBound(pos Position, ident *Identifier, err *rational.Rational) *ErrBound {
	return &ErrBound{pos: pos, Ident: ident, Err: err}
}

func (c *Cmp) Pos() Position      { return c.pos }
func (c *InRange) Pos() Position  { return c.pos }
func (c *ErrBound) Pos() Position { return c.pos }

func (*Cmp) constraintNode()      {}
func (*InRange) constraintNode()  {}
func (*ErrBound) constraintNode() {}

func (c *Cmp) String() string {
	return fmt.Sprintf("%s %s %s", c.L, c.Op, c.R)
}

func (c *InRange) String() string {
	return fmt.Sprintf("%s in [%v, %v]", c.Ident, c.Lo, c.Hi)
}

func (c *ErrBound) String() string {
	return fmt.Sprintf("%s +/- %v", c.Ident, c.Err)
}

// Tolerance is the post-condition clause res +/- eps, consumed only by the
// regression harness.
type Tolerance struct {
	Eps *rational.Rational
}

// Function is one analyzable function.
type Function struct {
	Name   string
	Pos    Position
	Params []*Identifier
	Pre    []Constraint
	Post   *Tolerance
	Body   Expr
}

// Program is a parsed source file.
type Program struct {
	Functions []*Function
}
