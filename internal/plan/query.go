// Package plan is the planning layer: it compiles entity queries into
// executable row programs and re-enters the translator for correlated
// scalar subqueries.
//
// A Query is built incrementally - filters and a selection accumulate
// against a pending projection map - and is frozen by ApplyProjection,
// which collapses the map into the final ordered column list. The
// engine executes frozen queries; the translator inlines them as
// scalars through the SubPlan view.
package plan

import (
	"fmt"
	"strings"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
	"github.com/stratahq/strata/internal/translate"
)

// RootKey is the projection-map key bound to the query's root entity
// reference. Lambda parameters substitute to the reference stored
// under it.
const RootKey = ""

// ValueKey is the projection-map key the selection lambda binds its
// scalar result under.
const ValueKey = "value"

// Mode is a query's result shape.
type Mode uint8

const (
	// ModeRows streams every matching row.
	ModeRows Mode = iota + 1

	// ModeFirst yields the first matching row, or the empty row.
	ModeFirst

	// ModeSingle yields the only matching row; a second match is a
	// runtime cardinality error.
	ModeSingle

	// ModeCount yields one row holding the match count. Never empty.
	ModeCount
)

var modeNames = map[Mode]string{
	ModeRows:   "rows",
	ModeFirst:  "first",
	ModeSingle: "single",
	ModeCount:  "count",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "mode?"
}

// Query is one compiled single-source entity query.
//
// The zero value is not usable; Planner.NewQuery allocates queries with
// their root binding in place. Until ApplyProjection runs the
// projection is pending: bindings accumulate in a map keyed by
// projection member, with the root entity reference under RootKey.
type Query struct {
	entity *schema.Entity
	row    string
	filter expr.Node

	bindings map[string]expr.Node
	cols     []expr.Node
	applied  bool

	mode      Mode
	orDefault bool
}

// Entity reports the query's source entity type.
func (q *Query) Entity() *schema.Entity { return q.entity }

// Row reports the query's row name. Buffer reads produced for this
// query reference the current row under this name.
func (q *Query) Row() string { return q.row }

// Filter returns the translated filter expression, nil when the query
// is unfiltered.
func (q *Query) Filter() expr.Node { return q.filter }

// Mode reports the query's result shape.
func (q *Query) Mode() Mode { return q.mode }

// OrDefault reports whether an empty single-row result is the scalar
// default rather than a runtime error.
func (q *Query) OrDefault() bool { return q.orDefault }

// Binding resolves a pending projection-map key.
func (q *Query) Binding(key string) (expr.Node, bool) {
	n, ok := q.bindings[key]
	return n, ok
}

// HasSelection reports whether a value column is bound. Queries without
// one yield whole entity rows, which only a top-level run can accept.
func (q *Query) HasSelection() bool {
	_, ok := q.bindings[ValueKey]
	return ok
}

// ApplyProjection freezes the projection: the pending map collapses to
// the final ordered column list, every column boxed to Any (the
// buffer's storage type). Idempotent.
//
// Column choice by mode:
//   - a bound selection becomes the single value column;
//   - ModeCount counts matches, so each row contributes the constant 1;
//   - otherwise the root reference itself is the column, which no
//     scalar context can accept - the enclosing translation fails on
//     the leaked entity reference.
func (q *Query) ApplyProjection() {
	if q.applied {
		return
	}
	q.applied = true

	var col expr.Node
	switch {
	case q.mode == ModeCount:
		col = &expr.Constant{Value: expr.Int(1), Type: expr.IntType}
	default:
		if bound, ok := q.bindings[ValueKey]; ok {
			col = bound
		} else {
			col = q.bindings[RootKey]
		}
	}
	q.cols = []expr.Node{box(col)}
}

// Projection returns the applied columns in order. Empty before
// ApplyProjection.
func (q *Query) Projection() []expr.Node {
	return q.cols
}

// RowExpression returns the compiled row-producing expression: a
// buffer construction over the applied projection.
func (q *Query) RowExpression() expr.Node {
	return &expr.BufferInit{Cols: q.cols}
}

// ResultCardinality reports whether the query yields at most one row.
func (q *Query) ResultCardinality() translate.Cardinality {
	if q.mode == ModeRows {
		return translate.CardinalityEnumerable
	}
	return translate.CardinalitySingle
}

// Handle returns the executable handle the engine runs the query
// through. The query is its own handle.
func (q *Query) Handle() expr.SubplanHandle { return q }

// Describe renders the query deterministically. Subplan rendering and
// hashing include it, so structurally equal plans must describe
// identically.
func (q *Query) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query %s row=%s mode=%s", q.entity.Name, q.row, q.mode)
	if q.orDefault {
		b.WriteString(" ordefault")
	}
	if q.filter != nil {
		fmt.Fprintf(&b, " filter=%s", expr.Render(q.filter))
	}
	if q.applied {
		fmt.Fprintf(&b, " cols=%s", expr.Render(q.RowExpression()))
	}
	return b.String()
}

// box wraps a column expression to Any unless it already is Any.
func box(n expr.Node) expr.Node {
	if n.ResultType().Kind == expr.KindAny {
		return n
	}
	return &expr.Unary{Op: expr.OpConvert, Operand: n, Type: expr.AnyType}
}
