package translate

import "github.com/stratahq/strata/internal/expr"

// Cardinality is the row count category of a compiled subquery.
type Cardinality uint8

const (
	// CardinalitySingle means at most one row: inlinable as a scalar.
	CardinalitySingle Cardinality = iota + 1

	// CardinalityEnumerable means any number of rows: a scalar context
	// cannot accept it.
	CardinalityEnumerable
)

// SubPlan is the planner's compiled form of one correlated subquery.
type SubPlan interface {
	// ResultCardinality reports whether the subquery yields at most one
	// row or a stream.
	ResultCardinality() Cardinality

	// ApplyProjection collapses the pending projection map into the
	// final ordered column list. Must be called before Projection or
	// RowExpression.
	ApplyProjection()

	// Projection returns the applied columns in order.
	Projection() []expr.Node

	// RowExpression returns the compiled row-producing expression: a
	// buffer construction over the applied projection.
	RowExpression() expr.Node

	// Handle returns the executable handle the engine runs the
	// subquery through.
	Handle() expr.SubplanHandle
}

// SubqueryTranslator is the planning layer re-entered for subquery
// calls. TranslateSubquery reports false when the call is not a
// subquery shape at all; a recognized subquery that fails to compile
// softly returns (nil, true, nil) and fails the enclosing expression.
// A non-nil error is a hard modeling violation found inside the
// subquery and escapes the enclosing translation unchanged.
type SubqueryTranslator interface {
	TranslateSubquery(call *expr.Call) (SubPlan, bool, error)
}

// inlineSubquery rewrites a compiled single-row subquery into a scalar
// expression in the outer scope:
//
//	let sqN = <subquery row> in
//	  emptyrow(sqN) ? default(T) : read(sqN, 0, T)
//
// The local binding evaluates the subquery once no matter how many
// times the branches read it.
func (v *visitor) inlineSubquery(sp SubPlan) (expr.Node, error) {
	if sp == nil {
		return nil, nil
	}
	if sp.ResultCardinality() != CardinalitySingle {
		return nil, nil
	}
	sp.ApplyProjection()
	if len(sp.Projection()) != 1 {
		return nil, nil
	}
	row, ok := sp.RowExpression().(*expr.BufferInit)
	if !ok || len(row.Cols) != 1 {
		return nil, nil
	}

	value := stripBoxing(row.Cols[0])
	if ContainsEntityRef(value) {
		return nil, nil
	}
	t := value.ResultType()
	if !t.IsScalar() && t.Kind != expr.KindAny {
		return nil, nil
	}

	name := v.freshLocal()
	return &expr.Let{
		Name:  name,
		Value: &expr.Subplan{Handle: sp.Handle()},
		Body: &expr.Conditional{
			Test: &expr.BufferEmpty{Row: name},
			Then: &expr.Constant{Value: expr.Default(t), Type: t},
			Else: &expr.BufferRead{Row: name, Index: 0, Type: t},
			Type: t,
		},
	}, nil
}

// stripBoxing removes the conversion wrappers a projection puts around
// a column value: boxing to Any on the way into the buffer, unboxing
// from Any on the way out.
func stripBoxing(n expr.Node) expr.Node {
	for {
		u, ok := n.(*expr.Unary)
		if !ok || u.Op != expr.OpConvert {
			return n
		}
		if u.Type.Kind == expr.KindAny || u.Operand.ResultType().Kind == expr.KindAny {
			n = u.Operand
			continue
		}
		return n
	}
}
