package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/internal/expr"
)

func TestValueBuffer_ColReads(t *testing.T) {
	b := NewRow(expr.Str("Mid"), expr.Int(7), nil)

	v, err := b.Col(0)
	require.NoError(t, err)
	assert.Equal(t, expr.Str("Mid"), v)

	v, err = b.Col(2)
	require.NoError(t, err)
	assert.Equal(t, expr.Null{}, v, "nil slots normalize to null")

	_, err = b.Col(3)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeColumnRange, ee.Code)
}

func TestValueBuffer_EmptyRow(t *testing.T) {
	b := EmptyRow()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.Len())

	_, err := b.Col(0)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeEmptyRow, ee.Code)

	assert.False(t, NewRow().IsEmpty(), "a zero-column row is not the empty row")
}

func TestValueBuffer_ValuesCopies(t *testing.T) {
	b := NewRow(expr.Int(1), expr.Int(2))
	vs := b.Values()
	vs[0] = expr.Int(99)

	v, err := b.Col(0)
	require.NoError(t, err)
	assert.Equal(t, expr.Int(1), v)
}

func TestExecContext_Defaults(t *testing.T) {
	c := NewExecContext()

	assert.Len(t, c.RunToken(), 36, "defaults to a UUID token")
	assert.Equal(t, int64(0), c.Clock().Current())

	_, ok := c.Param("__absent")
	assert.False(t, ok)
}

func TestExecContext_Options(t *testing.T) {
	clock := NewClockAt(10)
	c := NewExecContext(
		WithRunToken("fixed-run"),
		WithClock(clock),
		WithParams(map[string]expr.Value{"__min": expr.Int(5)}),
		WithParam("__name", expr.Str("ada")),
	)

	assert.Equal(t, "fixed-run", c.RunToken())
	assert.Equal(t, int64(11), c.Clock().Next())

	v, ok := c.Param("__min")
	require.True(t, ok)
	assert.Equal(t, expr.Int(5), v)
	v, ok = c.Param("__name")
	require.True(t, ok)
	assert.Equal(t, expr.Str("ada"), v)
}

func TestExecContext_FixedTokenBeatsGenerator(t *testing.T) {
	c := NewExecContext(WithRunToken("fixed-run"), WithTokenGenerator(UUIDv7Generator{}))
	assert.Equal(t, "fixed-run", c.RunToken())
}

func TestStepClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
