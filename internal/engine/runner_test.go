package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/plan"
	"github.com/stratahq/strata/internal/testutil"
	"github.com/stratahq/strata/internal/translate"
)

// tableSource serves stored rows keyed by hierarchy root.
type tableSource map[string][][]expr.Value

func (s tableSource) HierarchyRows(ctx context.Context, root string) ([][]expr.Value, error) {
	return s[root], nil
}

// shapeRows is the canonical hierarchy's storage: one row per concrete
// type plus a plain base row. Layout: disc, Id, Name, Score, Weight, Tag.
func shapeRows() tableSource {
	return tableSource{
		"Base": {
			{expr.Str("Base"), expr.Int(1), expr.Str("alpha"), expr.Null{}, expr.Null{}, expr.Null{}},
			{expr.Str("Mid"), expr.Int(2), expr.Str("beta"), expr.Int(10), expr.Null{}, expr.Null{}},
			{expr.Str("LeafA"), expr.Int(3), expr.Str("gamma"), expr.Int(20), expr.Float(1.5), expr.Null{}},
			{expr.Str("LeafB"), expr.Int(4), expr.Str("delta"), expr.Int(30), expr.Null{}, expr.Str("hot")},
		},
	}
}

func shapeRunner(t *testing.T, source tableSource, opts ...ContextOption) (*plan.Planner, *Runner) {
	t.Helper()
	model := testutil.ShapeModel()
	exec := NewExecContext(append([]ContextOption{
		WithRunToken("test-run"),
	}, opts...)...)
	return plan.NewPlanner(model), NewRunner(model, source, exec)
}

func scoreGT(n int64) *expr.Lambda {
	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	return &expr.Lambda{
		Params: []*expr.Param{x},
		Body: &expr.Binary{
			Op:    expr.OpGt,
			Left:  &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
			Right: &expr.Constant{Value: expr.Int(n), Type: expr.IntType},
			Type:  expr.BoolType,
		},
	}
}

func selectScore() *expr.Lambda {
	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	return &expr.Lambda{
		Params: []*expr.Param{x},
		Body:   &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
	}
}

func singleCol(t *testing.T, row *ValueBuffer) expr.Value {
	t.Helper()
	require.False(t, row.IsEmpty())
	require.Equal(t, 1, row.Len())
	v, err := row.Col(0)
	require.NoError(t, err)
	return v
}

func TestRunner_StreamsMatchesInStorageOrder(t *testing.T) {
	p, r := shapeRunner(t, shapeRows())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)
	require.NoError(t, p.ApplyFilter(q, scoreGT(15)))
	require.NoError(t, p.ApplySelection(q, selectScore()))

	rows, err := r.Run(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, expr.Int(20), singleCol(t, rows[0]))
	assert.Equal(t, expr.Int(30), singleCol(t, rows[1]))
}

func TestRunner_DiscriminatorNarrowsToConcreteTypes(t *testing.T) {
	p, r := shapeRunner(t, shapeRows())

	// A Mid query sees Mid and both leaves, never the plain base row.
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)
	require.NoError(t, p.ApplySelection(q, selectScore()))
	rows, err := r.Run(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// A leaf query sees only its own rows.
	leaf, err := p.NewQuery("LeafA")
	require.NoError(t, err)
	rows, err = r.Run(context.Background(), leaf)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunner_SingleModeRejectsSecondMatch(t *testing.T) {
	p, r := shapeRunner(t, shapeRows())
	call := &expr.Call{
		Method: "single",
		Recv: &expr.Call{
			Method: "select",
			Recv:   &expr.Root{Entity: "Mid"},
			Args:   []expr.Node{selectScore()},
		},
		Args: []expr.Node{scoreGT(15)},
		Type: expr.IntType,
	}
	sp, ok, err := p.TranslateSubquery(call)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.Run(context.Background(), sp.(*plan.Query))
	assert.True(t, IsCardinality(err))
}

func TestRunner_SingleModeOneMatch(t *testing.T) {
	p, r := shapeRunner(t, shapeRows())
	call := &expr.Call{
		Method: "single",
		Recv: &expr.Call{
			Method: "select",
			Recv:   &expr.Root{Entity: "Mid"},
			Args:   []expr.Node{selectScore()},
		},
		Args: []expr.Node{scoreGT(25)},
		Type: expr.IntType,
	}
	sp, ok, err := p.TranslateSubquery(call)
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := r.Run(context.Background(), sp.(*plan.Query))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, expr.Int(30), singleCol(t, rows[0]))
}

func TestRunner_FirstModeEmptyResult(t *testing.T) {
	build := func(p *plan.Planner, method string) *plan.Query {
		call := &expr.Call{
			Method: method,
			Recv: &expr.Call{
				Method: "select",
				Recv:   &expr.Root{Entity: "Mid"},
				Args:   []expr.Node{selectScore()},
			},
			Args: []expr.Node{scoreGT(999)},
			Type: expr.IntType,
		}
		sp, ok, err := p.TranslateSubquery(call)
		require.NoError(t, err)
		require.True(t, ok)
		return sp.(*plan.Query)
	}

	p, r := shapeRunner(t, shapeRows())
	_, err := r.Run(context.Background(), build(p, "first"))
	assert.True(t, IsNoRows(err), "first over nothing is an error")

	p, r = shapeRunner(t, shapeRows())
	rows, err := r.Run(context.Background(), build(p, "firstOrDefault"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsEmpty(), "firstOrDefault over nothing is the empty row")
}

func TestRunner_CountModeNeverEmpty(t *testing.T) {
	p, r := shapeRunner(t, shapeRows())
	count := func(filter int64) expr.Value {
		call := &expr.Call{
			Method: "count",
			Recv:   &expr.Root{Entity: "Mid"},
			Args:   []expr.Node{scoreGT(filter)},
			Type:   expr.IntType,
		}
		sp, ok, err := p.TranslateSubquery(call)
		require.NoError(t, err)
		require.True(t, ok)
		rows, err := r.Run(context.Background(), sp.(*plan.Query))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		return singleCol(t, rows[0])
	}

	assert.Equal(t, expr.Int(3), count(0))
	assert.Equal(t, expr.Int(0), count(999), "empty count is zero, not the empty row")
}

func TestRunner_NullFilterResultExcludesRow(t *testing.T) {
	p, r := shapeRunner(t, shapeRows())
	q, err := p.NewQuery("LeafB")
	require.NoError(t, err)

	// Tag is nullable; an ordering comparison against a null tag yields
	// null, which must exclude the row rather than match or error. The
	// fixture's LeafB has a tag, so flip the fixture to null first.
	src := shapeRows()
	src["Base"][3][5] = expr.Null{}
	_, r = shapeRunner(t, src)

	x := &expr.Param{Name: "x", Type: expr.EntityType("LeafB")}
	fn := &expr.Lambda{
		Params: []*expr.Param{x},
		Body: &expr.Binary{
			Op:    expr.OpLt,
			Left:  &expr.Member{Recv: x, Name: "Tag", Type: expr.Nullable(expr.StringType)},
			Right: &expr.Constant{Value: expr.Str("zzz"), Type: expr.StringType},
			Type:  expr.Nullable(expr.BoolType),
		},
	}
	require.NoError(t, p.ApplyFilter(q, fn))

	rows, err := r.Run(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunner_ScalarExpressionEndToEnd(t *testing.T) {
	// exists(Mid, x => x.Score > __min) evaluated as one translated
	// scalar: the subquery runs through the same runner and the empty
	// guard supplies false when nothing matches.
	run := func(min int64) expr.Value {
		model := testutil.ShapeModel()
		p := plan.NewPlanner(model)
		tr := translate.New(model, translate.WithSubqueries(p))
		exec := NewExecContext(WithRunToken("test-run"), WithParam("__min", expr.Int(min)))
		r := NewRunner(model, shapeRows(), exec)

		in := &expr.Call{
			Method: "exists",
			Recv:   &expr.Root{Entity: "Mid"},
			Args: []expr.Node{func() *expr.Lambda {
				x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
				return &expr.Lambda{
					Params: []*expr.Param{x},
					Body: &expr.Binary{
						Op:    expr.OpGt,
						Left:  &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
						Right: &expr.Param{Name: "__min", Type: expr.IntType},
						Type:  expr.BoolType,
					},
				}
			}()},
			Type: expr.BoolType,
		}
		out, err := tr.Translate(in)
		require.NoError(t, err)

		v, err := r.Evaluator().Eval(context.Background(), out, nil)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, expr.Bool(true), run(25))
	assert.Equal(t, expr.Bool(false), run(999))
}

// ordersRows is the commerce model's storage. Customer layout: disc,
// Id, Name, Region. Order layout: disc, Id, CustomerId, Total, Note,
// Surcharge.
func ordersRows() tableSource {
	return tableSource{
		"Customer": {
			{expr.Str("Customer"), expr.Int(1), expr.Str("Ada"), expr.Str("west")},
			{expr.Str("Customer"), expr.Int(2), expr.Str("Bob"), expr.Str("east")},
		},
		"Order": {
			{expr.Str("Order"), expr.Int(10), expr.Int(1), expr.Int(100), expr.Null{}, expr.Null{}},
			{expr.Str("RushOrder"), expr.Int(11), expr.Int(1), expr.Int(250), expr.Null{}, expr.Int(25)},
		},
	}
}

func TestRunner_CorrelatedSubqueryReadsOuterRow(t *testing.T) {
	// Customers with at least one order: the inner filter reads the
	// outer customer row through the shared environment.
	model := testutil.OrdersModel()
	p := plan.NewPlanner(model)
	exec := NewExecContext(WithRunToken("test-run"))
	r := NewRunner(model, ordersRows(), exec)

	q, err := p.NewQuery("Customer")
	require.NoError(t, err)

	c := &expr.Param{Name: "c", Type: expr.EntityType("Customer")}
	o := &expr.Param{Name: "o", Type: expr.EntityType("Order")}
	filter := &expr.Lambda{
		Params: []*expr.Param{c},
		Body: &expr.Call{
			Method: "exists",
			Recv:   &expr.Root{Entity: "Order"},
			Args: []expr.Node{&expr.Lambda{
				Params: []*expr.Param{o},
				Body: &expr.Binary{
					Op:    expr.OpEq,
					Left:  &expr.Member{Recv: o, Name: "CustomerId", Type: expr.IntType},
					Right: &expr.Member{Recv: c, Name: "Id", Type: expr.IntType},
					Type:  expr.BoolType,
				},
			}},
			Type: expr.BoolType,
		},
	}
	require.NoError(t, p.ApplyFilter(q, filter))

	name := &expr.Lambda{
		Params: []*expr.Param{{Name: "c", Type: expr.EntityType("Customer")}},
		Body:   &expr.Member{Recv: &expr.Param{Name: "c", Type: expr.EntityType("Customer")}, Name: "Name", Type: expr.StringType},
	}
	require.NoError(t, p.ApplySelection(q, name))

	rows, err := r.Run(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, expr.Str("Ada"), singleCol(t, rows[0]))
}

func TestRunner_ClockStampsEveryQueryRun(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	p, r := shapeRunner(t, shapeRows(), WithClock(clock))

	q, err := p.NewQuery("Mid")
	require.NoError(t, err)
	require.NoError(t, p.ApplySelection(q, selectScore()))
	_, err = r.Run(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), clock.Current())

	q2, err := p.NewQuery("Base")
	require.NoError(t, err)
	_, err = r.Run(context.Background(), q2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), clock.Current())
}
