package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/internal/expr"
)

const shapesFixture = "testdata/fixtures/shapes_basic.yaml"

func writeFixtureFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFixture_Valid(t *testing.T) {
	fx, err := LoadFixture(shapesFixture)
	require.NoError(t, err)

	assert.Equal(t, "shapes_basic", fx.Name)
	assert.Equal(t, "run-shapes", fx.RunToken)
	assert.True(t, strings.HasSuffix(fx.Model, filepath.Join("models", "shapes.cue")),
		"model path resolves against the fixture directory")
	assert.Len(t, fx.Rows["Base"], 4)
	assert.Equal(t, 25, fx.Params["__min"])
}

func TestLoadFixture_UnknownFieldRejected(t *testing.T) {
	path := writeFixtureFile(t, `
name: typo
description: a typo fixture
model: nope.cue
rowz:
  Base: []
`)
	_, err := LoadFixture(path)
	assert.Error(t, err)
}

func TestLoadFixture_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"no name", "description: d\nmodel: m.cue\n", "name is required"},
		{"no description", "name: n\nmodel: m.cue\n", "description is required"},
		{"no model", "name: n\ndescription: d\n", "model is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFixture(writeFixtureFile(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFixture_ModelFileMustExist(t *testing.T) {
	path := writeFixtureFile(t, `
name: missing_model
description: model path points nowhere
model: ghost.cue
`)
	_, err := LoadFixture(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestFixtureValue(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  any
		typ  expr.Type
		want expr.Value
	}{
		{"null anywhere", nil, expr.IntType, expr.Null{}},
		{"bool", true, expr.BoolType, expr.Bool(true)},
		{"int", 7, expr.IntType, expr.Int(7)},
		{"float", 1.5, expr.FloatType, expr.Float(1.5)},
		{"int literal into float", 2, expr.FloatType, expr.Float(2)},
		{"string", "hot", expr.Nullable(expr.StringType), expr.Str("hot")},
		{"time", "2024-03-01T12:00:00Z", expr.TimeType, expr.Time(when)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fixtureValue(tc.raw, tc.typ)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFixtureValue_Mismatch(t *testing.T) {
	_, err := fixtureValue("seven", expr.IntType)
	assert.Error(t, err)

	_, err = fixtureValue("not-a-time", expr.TimeType)
	assert.Error(t, err)
}

func TestParamValue(t *testing.T) {
	v, err := paramValue(25)
	require.NoError(t, err)
	assert.Equal(t, expr.Int(25), v)

	v, err = paramValue("west")
	require.NoError(t, err)
	assert.Equal(t, expr.Str("west"), v)

	_, err = paramValue([]any{1})
	assert.Error(t, err)
}
