package engine

import (
	"errors"
	"fmt"
)

// EvalError represents an error detected while executing a compiled row
// program.
//
// Evaluation errors include:
//   - Untranslated node: a client-form node reached the evaluator
//   - Type mismatch: a value's runtime kind contradicts its static type
//   - Unknown parameter / row / function: an unresolved name at runtime
//   - Cardinality: a single-row query matched more than one row
//   - No rows: a required single-row query matched nothing
//
// EvalError includes structured fields for diagnostics.
type EvalError struct {
	// Code identifies the error category.
	Code EvalErrorCode

	// Message is a human-readable description.
	Message string

	// Row identifies the affected buffer row (for row/column errors).
	Row string

	// Name identifies the parameter or function (for lookup errors).
	Name string
}

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeUntranslatedNode indicates a client-form node survived
	// translation and reached the evaluator.
	ErrCodeUntranslatedNode EvalErrorCode = "UNTRANSLATED_NODE"

	// ErrCodeTypeMismatch indicates a runtime value contradicts the
	// expression's static type.
	ErrCodeTypeMismatch EvalErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownParam indicates an external parameter lookup found
	// no value in the execution context.
	ErrCodeUnknownParam EvalErrorCode = "UNKNOWN_PARAM"

	// ErrCodeUnknownRow indicates a buffer read named a row that is not
	// bound in the environment.
	ErrCodeUnknownRow EvalErrorCode = "UNKNOWN_ROW"

	// ErrCodeUnknownFunction indicates a call to a function the runtime
	// does not provide.
	ErrCodeUnknownFunction EvalErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeEmptyRow indicates a column read against the empty row.
	ErrCodeEmptyRow EvalErrorCode = "EMPTY_ROW"

	// ErrCodeColumnRange indicates a column index outside the row.
	ErrCodeColumnRange EvalErrorCode = "COLUMN_RANGE"

	// ErrCodeCardinality indicates a single-row query matched a second
	// row.
	ErrCodeCardinality EvalErrorCode = "CARDINALITY"

	// ErrCodeNoRows indicates a required single-row query matched
	// nothing.
	ErrCodeNoRows EvalErrorCode = "NO_ROWS"

	// ErrCodeDivideByZero indicates integer division or modulo by zero.
	ErrCodeDivideByZero EvalErrorCode = "DIVIDE_BY_ZERO"
)

// Error implements the error interface.
func (e *EvalError) Error() string {
	switch {
	case e.Row != "" && e.Name != "":
		return fmt.Sprintf("%s: %s (row=%s, name=%s)", e.Code, e.Message, e.Row, e.Name)
	case e.Row != "":
		return fmt.Sprintf("%s: %s (row=%s)", e.Code, e.Message, e.Row)
	case e.Name != "":
		return fmt.Sprintf("%s: %s (name=%s)", e.Code, e.Message, e.Name)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// evalErrorIs reports whether err is an EvalError with the given code.
// Uses errors.As to handle wrapped errors.
func evalErrorIs(err error, code EvalErrorCode) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsNoRows returns true if the error is a required-row miss.
func IsNoRows(err error) bool { return evalErrorIs(err, ErrCodeNoRows) }

// IsCardinality returns true if the error is a single-row cardinality
// violation.
func IsCardinality(err error) bool { return evalErrorIs(err, ErrCodeCardinality) }

// IsTypeMismatch returns true if the error is a runtime type mismatch.
func IsTypeMismatch(err error) bool { return evalErrorIs(err, ErrCodeTypeMismatch) }

// IsUntranslatedNode returns true if the error reports a client-form
// node reaching the evaluator.
func IsUntranslatedNode(err error) bool { return evalErrorIs(err, ErrCodeUntranslatedNode) }

// NewUntranslatedNodeError creates an EvalError for a client-form node
// in an executable tree. rendered is the node's canonical render.
func NewUntranslatedNodeError(rendered string) *EvalError {
	return &EvalError{
		Code:    ErrCodeUntranslatedNode,
		Message: fmt.Sprintf("client-form node in executable tree: %s", rendered),
	}
}

// NewCardinalityError creates an EvalError for a single-row query that
// matched more than one row.
func NewCardinalityError(entity string) *EvalError {
	return &EvalError{
		Code:    ErrCodeCardinality,
		Message: fmt.Sprintf("single-row query over %s matched more than one row", entity),
	}
}

// NewNoRowsError creates an EvalError for a required single-row query
// that matched nothing.
func NewNoRowsError(entity string) *EvalError {
	return &EvalError{
		Code:    ErrCodeNoRows,
		Message: fmt.Sprintf("single-row query over %s matched no rows", entity),
	}
}
