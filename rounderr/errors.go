// Package rounderr defines the error taxonomy shared by all analysis phases.
package rounderr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of an analysis error.
type Kind string

const (
	KindSyntax              Kind = "SyntaxError"
	KindDivisionByZero      Kind = "DivisionByZero"
	KindNegativeSqrt        Kind = "NegativeSqrt"
	KindUnboundVariable     Kind = "UnboundVariable"
	KindUnsupportedOperator Kind = "UnsupportedOperator"
	KindSMTTimeout          Kind = "SMTTimeout"
	KindSpec                Kind = "SpecError"
)

// AnalysisError is the interface for all roundel errors.
type AnalysisError interface {
	error
	Kind() Kind
}

// BaseError provides common fields for roundel errors.
type BaseError struct {
	Msg     string
	ErrKind Kind
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.ErrKind, e.Msg)
}

func (e *BaseError) Kind() Kind {
	return e.ErrKind
}

// SyntaxError represents an error during lexing or parsing.
type SyntaxError struct {
	BaseError
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("[%s] line %d:%d %s", e.ErrKind, e.Line, e.Column, e.Msg)
}

// EvalError represents a failure raised while evaluating an expression:
// a division by an enclosure containing zero, a square root of a possibly
// negative range, a lookup of an unbound variable, or an operator outside
// the supported set. Function and position are filled in as the error
// bubbles towards the driver.
type EvalError struct {
	BaseError
	Function string
	Line     int
	Column   int
}

func (e *EvalError) Error() string {
	if e.Function != "" {
		if e.Line > 0 {
			return fmt.Sprintf("[%s] %s at %d:%d %s", e.ErrKind, e.Function, e.Line, e.Column, e.Msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.ErrKind, e.Function, e.Msg)
	}
	if e.Line > 0 {
		return fmt.Sprintf("[%s] %d:%d %s", e.ErrKind, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("[%s] %s", e.ErrKind, e.Msg)
}

// MultiError collects multiple roundel errors.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error(s) occurred:\n", len(m.Errors)))
	for _, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("- %v\n", err))
	}
	return sb.String()
}

func (m *MultiError) Kind() Kind {
	if len(m.Errors) > 0 {
		var ae AnalysisError
		if errors.As(m.Errors[0], &ae) {
			return ae.Kind()
		}
	}
	return "MultiError"
}

// NewSyntaxError creates a new SyntaxError.
func NewSyntaxError(line, column int, msg string) *SyntaxError {
	return &SyntaxError{
		BaseError: BaseError{
			Msg:     msg,
			ErrKind: KindSyntax,
		},
		Line:   line,
		Column: column,
	}
}

// NewDivisionByZero creates an EvalError for a divisor enclosure containing zero.
func NewDivisionByZero(msg string) *EvalError {
	return newEval(KindDivisionByZero, msg)
}

// NewNegativeSqrt creates an EvalError for a sqrt argument that may be negative.
func NewNegativeSqrt(msg string) *EvalError {
	return newEval(KindNegativeSqrt, msg)
}

// NewUnboundVariable creates an EvalError for a variable missing from the inputs.
func NewUnboundVariable(name string) *EvalError {
	return newEval(KindUnboundVariable, fmt.Sprintf("variable %q is not bound", name))
}

// NewUnsupportedOperator creates an EvalError for an operator outside the defined set.
func NewUnsupportedOperator(op string) *EvalError {
	return newEval(KindUnsupportedOperator, fmt.Sprintf("operator %q is not supported", op))
}

// NewSMTTimeout creates an EvalError for a solver call that hit its deadline.
func NewSMTTimeout(msg string) *EvalError {
	return newEval(KindSMTTimeout, msg)
}

// NewSpecError creates an EvalError for an ill-formed function specification.
func NewSpecError(msg string) *EvalError {
	return newEval(KindSpec, msg)
}

func newEval(kind Kind, msg string) *EvalError {
	return &EvalError{
		BaseError: BaseError{
			Msg:     msg,
			ErrKind: kind,
		},
	}
}

// KindOf extracts the Kind of err, or "" when err carries no AnalysisError.
func KindOf(err error) Kind {
	var ae AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind()
	}
	return ""
}

// IsKind reports whether err carries an AnalysisError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Recoverable reports whether the driver may retry err on a subdivided
// input domain. Division-by-zero and negative-sqrt failures are artifacts
// of over-approximation and can disappear on smaller subdomains; the
// remaining kinds are genuine programming or specification errors.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindDivisionByZero, KindNegativeSqrt:
		return true
	}
	return false
}

// WithFunction returns err annotated with the enclosing function's name,
// when err is an EvalError that does not carry one yet.
func WithFunction(err error, fn string) error {
	var ee *EvalError
	if errors.As(err, &ee) && ee.Function == "" {
		ee.Function = fn
	}
	return err
}
