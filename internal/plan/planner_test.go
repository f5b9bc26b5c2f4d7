package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/testutil"
	"github.com/stratahq/strata/internal/translate"
)

// scoreGT builds the predicate lambda `x => x.Score > n` over the shape
// model's Mid entity.
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

// selectScore builds the projection lambda `x => x.Score`.
func selectScore() *expr.Lambda {
	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	return &expr.Lambda{
		Params: []*expr.Param{x},
		Body:   &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
	}
}

func TestPlanner_NewQueryAllocatesFreshRows(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	q0, err := p.NewQuery("Mid")
	require.NoError(t, err)
	q1, err := p.NewQuery("Base")
	require.NoError(t, err)

	assert.Equal(t, "q0", q0.Row())
	assert.Equal(t, "q1", q1.Row())

	root, ok := q0.Binding(RootKey)
	require.True(t, ok)
	assert.True(t, expr.Equal(root, &expr.EntityRef{Entity: "Mid", Row: "q0"}))
}

func TestPlanner_NewQueryUnknownEntity(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	q, err := p.NewQuery("Widget")
	assert.Nil(t, q)
	assert.Error(t, err)
}

func TestPlanner_ApplyFilterBindsRowColumn(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	require.NoError(t, p.ApplyFilter(q, scoreGT(5)))

	// Score is column 3 in the shape hierarchy; the lambda parameter
	// resolves through the root binding to the query's own row.
	want := &expr.Binary{
		Op:    expr.OpGt,
		Left:  &expr.BufferRead{Row: "q0", Index: 3, Type: expr.IntType},
		Right: &expr.Constant{Value: expr.Int(5), Type: expr.IntType},
		Type:  expr.BoolType,
	}
	assert.True(t, expr.Equal(q.Filter(), want), "got %s", expr.Render(q.Filter()))
}

func TestPlanner_ApplyFilterConjoinsInOrder(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	require.NoError(t, p.ApplyFilter(q, scoreGT(1)))
	require.NoError(t, p.ApplyFilter(q, scoreGT(2)))

	and, ok := q.Filter().(*expr.Binary)
	require.True(t, ok)
	assert.Equal(t, expr.OpAnd, and.Op)

	first := and.Left.(*expr.Binary)
	second := and.Right.(*expr.Binary)
	assert.True(t, expr.Equal(first.Right, &expr.Constant{Value: expr.Int(1), Type: expr.IntType}))
	assert.True(t, expr.Equal(second.Right, &expr.Constant{Value: expr.Int(2), Type: expr.IntType}))
}

func TestPlanner_ApplyFilterExternalParameter(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	fn := &expr.Lambda{
		Params: []*expr.Param{x},
		Body: &expr.Binary{
			Op:    expr.OpGt,
			Left:  &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
			Right: &expr.Param{Name: "__min", Type: expr.IntType},
			Type:  expr.BoolType,
		},
	}
	require.NoError(t, p.ApplyFilter(q, fn))

	bin := q.Filter().(*expr.Binary)
	assert.True(t, expr.Equal(bin.Right, &expr.ParamLookup{Name: "__min", Type: expr.IntType}))
}

func TestPlanner_ApplyFilterUnboundParameterIsHard(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	fn := &expr.Lambda{
		Params: []*expr.Param{x},
		Body: &expr.Binary{
			Op:    expr.OpGt,
			Left:  &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
			Right: &expr.Param{Name: "stray", Type: expr.IntType},
			Type:  expr.BoolType,
		},
	}
	err = p.ApplyFilter(q, fn)
	assert.True(t, translate.IsUnboundParameter(err))
	assert.NotErrorIs(t, err, translate.ErrUntranslatable)
}

func TestPlanner_ApplyFilterUntranslatableBody(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	fn := &expr.Lambda{
		Params: []*expr.Param{x},
		Body:   &expr.Lambda{Params: []*expr.Param{{Name: "y", Type: expr.IntType}}, Body: x},
	}
	err = p.ApplyFilter(q, fn)
	assert.ErrorIs(t, err, translate.ErrUntranslatable)
	assert.Nil(t, q.Filter())
}

func TestPlanner_ApplyFilterWrongArity(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	two := &expr.Lambda{
		Params: []*expr.Param{
			{Name: "a", Type: expr.EntityType("Mid")},
			{Name: "b", Type: expr.IntType},
		},
		Body: &expr.Constant{Value: expr.Bool(true), Type: expr.BoolType},
	}
	assert.ErrorIs(t, p.ApplyFilter(q, two), translate.ErrUntranslatable)
	assert.ErrorIs(t, p.ApplyFilter(q, nil), translate.ErrUntranslatable)
}

func TestPlanner_ApplySelectionBindsValue(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	require.NoError(t, p.ApplySelection(q, selectScore()))

	bound, ok := q.Binding(ValueKey)
	require.True(t, ok)
	assert.True(t, expr.Equal(bound, &expr.BufferRead{Row: "q0", Index: 3, Type: expr.IntType}))
}

func TestPlanner_ShadowedParameterStaysUnbound(t *testing.T) {
	// The inner lambda rebinds x; its body must not resolve against the
	// outer query row, so translation rejects the inner lambda leaf.
	p := NewPlanner(testutil.ShapeModel())
	q, err := p.NewQuery("Mid")
	require.NoError(t, err)

	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	inner := &expr.Lambda{
		Params: []*expr.Param{{Name: "x", Type: expr.IntType}},
		Body:   &expr.Param{Name: "x", Type: expr.IntType},
	}
	fn := &expr.Lambda{
		Params: []*expr.Param{x},
		Body: &expr.Call{
			Method: "apply",
			Args:   []expr.Node{inner},
			Type:   expr.IntType,
		},
	}
	err = p.ApplyFilter(q, fn)
	assert.ErrorIs(t, err, translate.ErrUntranslatable)
}

func firstCall(recv expr.Node, args ...expr.Node) *expr.Call {
	return &expr.Call{Method: "first", Recv: recv, Args: args, Type: expr.IntType}
}

func selectChain(entity string) *expr.Call {
	return &expr.Call{
		Method: "select",
		Recv:   &expr.Root{Entity: entity},
		Args:   []expr.Node{selectScore()},
	}
}

func TestTranslateSubquery_WhereSelectFirst(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	call := firstCall(&expr.Call{
		Method: "select",
		Recv: &expr.Call{
			Method: "where",
			Recv:   &expr.Root{Entity: "Mid"},
			Args:   []expr.Node{scoreGT(5)},
		},
		Args: []expr.Node{selectScore()},
	})

	sp, ok, err := p.TranslateSubquery(call)
	require.NoError(t, err)
	require.True(t, ok)
	q := sp.(*Query)

	assert.Equal(t, ModeFirst, q.Mode())
	assert.False(t, q.OrDefault())
	require.NotNil(t, q.Filter())

	sp.ApplyProjection()
	cols := sp.Projection()
	require.Len(t, cols, 1)
	boxed := cols[0].(*expr.Unary)
	assert.True(t, expr.Equal(boxed.Operand, &expr.BufferRead{Row: "q0", Index: 3, Type: expr.IntType}))
}

func TestTranslateSubquery_PredicateArgumentIsTrailingWhere(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	call := &expr.Call{
		Method: "singleOrDefault",
		Recv:   selectChain("Mid"),
		Args:   []expr.Node{scoreGT(9)},
	}
	// select before the scalar method's own predicate: the predicate
	// still filters rows, it does not see the projected value.
	sp, ok, err := p.TranslateSubquery(call)
	require.NoError(t, err)
	require.True(t, ok)
	q := sp.(*Query)

	assert.Equal(t, ModeSingle, q.Mode())
	assert.True(t, q.OrDefault())
	require.NotNil(t, q.Filter())
	_, bound := q.Binding(ValueKey)
	assert.True(t, bound)
}

func TestTranslateSubquery_ExistsSynthesizesTrueColumn(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	call := &expr.Call{
		Method: "exists",
		Recv:   &expr.Root{Entity: "Mid"},
		Args:   []expr.Node{scoreGT(0)},
		Type:   expr.BoolType,
	}
	sp, ok, err := p.TranslateSubquery(call)
	require.NoError(t, err)
	require.True(t, ok)
	q := sp.(*Query)

	assert.Equal(t, ModeFirst, q.Mode())
	assert.True(t, q.OrDefault(), "empty result is false, not an error")

	sp.ApplyProjection()
	boxed := sp.Projection()[0].(*expr.Unary)
	assert.True(t, expr.Equal(boxed.Operand, &expr.Constant{Value: expr.Bool(true), Type: expr.BoolType}))
}

func TestTranslateSubquery_CountSynthesizesUnitColumn(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	call := &expr.Call{
		Method: "count",
		Recv:   &expr.Root{Entity: "Base"},
		Type:   expr.IntType,
	}
	sp, ok, err := p.TranslateSubquery(call)
	require.NoError(t, err)
	require.True(t, ok)
	q := sp.(*Query)

	assert.Equal(t, ModeCount, q.Mode())
	assert.Equal(t, translate.CardinalitySingle, sp.ResultCardinality())

	sp.ApplyProjection()
	boxed := sp.Projection()[0].(*expr.Unary)
	assert.True(t, expr.Equal(boxed.Operand, &expr.Constant{Value: expr.Int(1), Type: expr.IntType}))
}

func TestTranslateSubquery_UnrecognizedShapes(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	cases := map[string]*expr.Call{
		"not a scalar method": {
			Method: "aggregate",
			Recv:   &expr.Root{Entity: "Mid"},
		},
		"receiver is not a chain": {
			Method: "first",
			Recv:   &expr.Constant{Value: expr.Int(1), Type: expr.IntType},
		},
		"non-lambda argument": firstCall(
			&expr.Root{Entity: "Mid"},
			&expr.Constant{Value: expr.Int(1), Type: expr.IntType},
		),
		"two arguments": firstCall(&expr.Root{Entity: "Mid"}, scoreGT(1), scoreGT(2)),
		"where after select": firstCall(&expr.Call{
			Method: "where",
			Recv:   selectChain("Mid"),
			Args:   []expr.Node{scoreGT(1)},
		}),
		"chain link without lambda": firstCall(&expr.Call{
			Method: "where",
			Recv:   &expr.Root{Entity: "Mid"},
			Args:   []expr.Node{&expr.Constant{Value: expr.Bool(true), Type: expr.BoolType}},
		}),
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			sp, ok, err := p.TranslateSubquery(call)
			assert.Nil(t, sp)
			assert.False(t, ok)
			assert.NoError(t, err)
		})
	}
}

func TestTranslateSubquery_UnknownEntityFailsSoftly(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	sp, ok, err := p.TranslateSubquery(firstCall(&expr.Root{Entity: "Widget"}))
	assert.Nil(t, sp)
	assert.True(t, ok, "shape recognized, compilation failed")
	assert.NoError(t, err)
}

func TestTranslateSubquery_HardErrorInChainEscapes(t *testing.T) {
	p := NewPlanner(testutil.ShapeModel())

	x := &expr.Param{Name: "x", Type: expr.EntityType("Mid")}
	bad := &expr.Lambda{
		Params: []*expr.Param{x},
		Body: &expr.Binary{
			Op:    expr.OpGt,
			Left:  &expr.Member{Recv: x, Name: "Score", Type: expr.IntType},
			Right: &expr.Param{Name: "loose", Type: expr.IntType},
			Type:  expr.BoolType,
		},
	}
	sp, ok, err := p.TranslateSubquery(firstCall(&expr.Root{Entity: "Mid"}, bad))
	assert.Nil(t, sp)
	assert.True(t, ok)
	assert.True(t, translate.IsUnboundParameter(err))
}

func TestTranslateSubquery_EndToEndInline(t *testing.T) {
	model := testutil.ShapeModel()
	p := NewPlanner(model)
	tr := translate.New(model, translate.WithSubqueries(p))

	in := &expr.Binary{
		Op: expr.OpGt,
		Left: firstCall(&expr.Call{
			Method: "select",
			Recv: &expr.Call{
				Method: "where",
				Recv:   &expr.Root{Entity: "Mid"},
				Args:   []expr.Node{scoreGT(5)},
			},
			Args: []expr.Node{selectScore()},
		}),
		Right: &expr.Constant{Value: expr.Int(10), Type: expr.IntType},
		Type:  expr.BoolType,
	}
	out, err := tr.Translate(in)
	require.NoError(t, err)

	bin := out.(*expr.Binary)
	let, ok := bin.Left.(*expr.Let)
	require.True(t, ok, "got %s", expr.Render(bin.Left))
	assert.Equal(t, "sq0", let.Name)

	sub := let.Value.(*expr.Subplan)
	q := sub.Handle.(*Query)
	assert.Equal(t, "Mid", q.Entity().Name)
	assert.Equal(t, "q0", q.Row())

	wantBody := &expr.Conditional{
		Test: &expr.BufferEmpty{Row: "sq0"},
		Then: &expr.Constant{Value: expr.Int(0), Type: expr.IntType},
		Else: &expr.BufferRead{Row: "sq0", Index: 0, Type: expr.IntType},
		Type: expr.IntType,
	}
	assert.True(t, expr.Equal(let.Body, wantBody), "got %s", expr.Render(let.Body))
}

func TestTranslateSubquery_SelectWithoutScalarStaysGeneralCall(t *testing.T) {
	// A bare select chain never reaches TranslateSubquery as a scalar;
	// through the translator it takes the general-call path and fails on
	// its enumerable receiver.
	model := testutil.ShapeModel()
	p := NewPlanner(model)
	tr := translate.New(model, translate.WithSubqueries(p))

	out, err := tr.Translate(selectChain("Mid"))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, translate.ErrUntranslatable)
}
