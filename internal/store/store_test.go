package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
	"github.com/stratahq/strata/internal/testutil"
)

func openShapeStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.LoadModel(context.Background(), testutil.ShapeModel()))
	return s
}

func TestOpen_AppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}

func TestLoadModel_RegistersAndCreatesTables(t *testing.T) {
	s := openShapeStore(t)

	// The hierarchy table exists and is empty.
	var n int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM "rows_base"`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Reloading the same model is a no-op.
	assert.NoError(t, s.LoadModel(context.Background(), testutil.ShapeModel()))
}

func TestLoadModel_RejectsDifferentModelUnderSameName(t *testing.T) {
	s := openShapeStore(t)

	spec := testutil.ShapeSpec()
	spec.Entities = spec.Entities[:2] // same name, different content
	other, err := schema.NewModel(spec)
	require.NoError(t, err)

	err = s.LoadModel(context.Background(), other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different hash")
}

func TestInsertRows_RoundTripsInStorageOrder(t *testing.T) {
	s := openShapeStore(t)
	model := s.Model()
	base, _ := model.Entity("Base")

	rows := [][]expr.Value{
		{expr.Str("LeafB"), expr.Int(4), expr.Str("delta"), expr.Int(30), expr.Null{}, expr.Str("hot")},
		{expr.Str("Base"), expr.Int(1), expr.Str("alpha"), expr.Null{}, expr.Null{}, expr.Null{}},
		{expr.Str("LeafA"), expr.Int(3), expr.Str("gamma"), expr.Int(20), expr.Float(1.5), expr.Null{}},
	}
	require.NoError(t, s.InsertRows(context.Background(), base, rows))

	got, err := s.HierarchyRows(context.Background(), "Base")
	require.NoError(t, err)
	assert.Equal(t, rows, got, "rows read back in insertion order with typed values")

	// Reading through a non-root member of the hierarchy sees the same
	// table.
	got, err = s.HierarchyRows(context.Background(), "Mid")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestInsertRows_RejectsBadRows(t *testing.T) {
	s := openShapeStore(t)
	base, _ := s.Model().Entity("Base")

	err := s.InsertRows(context.Background(), base, [][]expr.Value{
		{expr.Str("Base"), expr.Int(1)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")

	err = s.InsertRows(context.Background(), base, [][]expr.Value{
		{expr.Str("Ghost"), expr.Int(1), expr.Str("x"), expr.Null{}, expr.Null{}, expr.Null{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no concrete type")
}

func TestInsertRows_FailedBatchWritesNothing(t *testing.T) {
	s := openShapeStore(t)
	base, _ := s.Model().Entity("Base")

	err := s.InsertRows(context.Background(), base, [][]expr.Value{
		{expr.Str("Base"), expr.Int(1), expr.Str("alpha"), expr.Null{}, expr.Null{}, expr.Null{}},
		{expr.Str("Ghost"), expr.Int(2), expr.Str("beta"), expr.Null{}, expr.Null{}, expr.Null{}},
	})
	require.Error(t, err)

	n, err := s.CountRows(context.Background(), "Base")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestValueRoundTrip(t *testing.T) {
	when := expr.Time(time.Date(2024, 3, 1, 12, 30, 0, 500000000, time.UTC))
	cases := []struct {
		name string
		in   expr.Value
		typ  expr.Type
	}{
		{"bool", expr.Bool(true), expr.BoolType},
		{"int", expr.Int(-7), expr.IntType},
		{"float", expr.Float(2.5), expr.FloatType},
		{"string", expr.Str("héllo"), expr.StringType},
		{"time", when, expr.TimeType},
		{"null", expr.Null{}, expr.Nullable(expr.StringType)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := valueToSQL(tc.in)
			require.NoError(t, err)
			// The driver hands scanned TEXT back as string and REAL
			// as float64, matching what valueToSQL produced.
			out, err := sqlToValue(raw, tc.typ)
			require.NoError(t, err)
			assert.Equal(t, tc.in, out)
		})
	}
}

func TestHierarchyRows_UnknownEntity(t *testing.T) {
	s := openShapeStore(t)

	_, err := s.HierarchyRows(context.Background(), "Widget")
	assert.Error(t, err)
}

func TestHierarchyRows_NoModelLoaded(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.HierarchyRows(context.Background(), "Base")
	assert.Error(t, err)
}
