package engine

import "github.com/stratahq/strata/internal/expr"

// ValueBuffer is one flat row of runtime values. Buffers are how every
// entity row and every subquery result crosses the evaluator: the
// translator compiles member accesses down to column reads against a
// named buffer.
//
// A buffer is either a row of values or the distinguished empty row.
// The empty row has no columns; single-row queries that match nothing
// produce it, and the inlined empty-row guard tests for it before any
// column read.
type ValueBuffer struct {
	cols  []expr.Value
	empty bool
}

// NewRow creates a buffer holding the given column values in order.
// Nil slots are normalized to the null value.
func NewRow(cols ...expr.Value) *ValueBuffer {
	out := make([]expr.Value, len(cols))
	for i, v := range cols {
		if v == nil {
			v = expr.Null{}
		}
		out[i] = v
	}
	return &ValueBuffer{cols: out}
}

// EmptyRow returns the empty row.
func EmptyRow() *ValueBuffer {
	return &ValueBuffer{empty: true}
}

// IsEmpty reports whether the buffer is the empty row.
func (b *ValueBuffer) IsEmpty() bool { return b.empty }

// Len reports the column count. The empty row has no columns.
func (b *ValueBuffer) Len() int { return len(b.cols) }

// Col reads one column. Reading the empty row or an out-of-range index
// is an evaluation error; the compiled guard makes the former
// unreachable in well-formed programs.
func (b *ValueBuffer) Col(i int) (expr.Value, error) {
	if b.empty {
		return nil, &EvalError{Code: ErrCodeEmptyRow, Message: "column read against the empty row"}
	}
	if i < 0 || i >= len(b.cols) {
		return nil, &EvalError{
			Code:    ErrCodeColumnRange,
			Message: "column index out of range",
		}
	}
	return b.cols[i], nil
}

// Values returns a copy of the column values.
func (b *ValueBuffer) Values() []expr.Value {
	out := make([]expr.Value, len(b.cols))
	copy(out, b.cols)
	return out
}
