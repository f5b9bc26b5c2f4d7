package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratahq/strata/internal/expr"
)

// Fixture is one loaded conformance fixture: the model to compile,
// the rows to store, and the execution environment.
type Fixture struct {
	// Name uniquely identifies the fixture. Snapshot headers carry it.
	Name string `yaml:"name"`

	// Description explains what the fixture exercises.
	Description string `yaml:"description"`

	// Model is the CUE model file path. Relative paths resolve against
	// the fixture file's directory.
	Model string `yaml:"model"`

	// Rows holds stored rows keyed by hierarchy root entity. Each row
	// is a full layout literal: discriminator tag first, then every
	// property column in declaration order.
	Rows map[string][][]any `yaml:"rows,omitempty"`

	// Params binds external parameters by name.
	Params map[string]any `yaml:"params,omitempty"`

	// RunToken fixes the execution token. Empty means the testutil
	// default, which is still deterministic.
	RunToken string `yaml:"run_token,omitempty"`
}

// LoadFixture reads and parses a fixture YAML file. Unknown fields
// are rejected so a typo fails loudly instead of silently dropping a
// section.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var fx Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	if fx.Model != "" && !filepath.IsAbs(fx.Model) {
		fx.Model = filepath.Join(filepath.Dir(path), fx.Model)
	}

	if err := validateFixture(&fx); err != nil {
		return nil, fmt.Errorf("invalid fixture %s: %w", path, err)
	}
	return &fx, nil
}

func validateFixture(fx *Fixture) error {
	if fx.Name == "" {
		return fmt.Errorf("name is required")
	}
	if fx.Description == "" {
		return fmt.Errorf("description is required")
	}
	if fx.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(fx.Model); err != nil {
		return fmt.Errorf("model file not found: %s", fx.Model)
	}
	for entity, rows := range fx.Rows {
		if len(rows) == 0 {
			return fmt.Errorf("rows.%s: empty row list (drop the key instead)", entity)
		}
	}
	return nil
}

// fixtureValue converts one YAML scalar into the typed value a layout
// column expects.
func fixtureValue(raw any, t expr.Type) (expr.Value, error) {
	// Null is legal in any column: rows store null for every property
	// a concrete type does not declare.
	if raw == nil {
		return expr.Null{}, nil
	}
	switch expr.Unwrap(t).Kind {
	case expr.KindBool:
		if b, ok := raw.(bool); ok {
			return expr.Bool(b), nil
		}
	case expr.KindInt:
		switch n := raw.(type) {
		case int:
			return expr.Int(n), nil
		case int64:
			return expr.Int(n), nil
		}
	case expr.KindFloat:
		switch n := raw.(type) {
		case float64:
			return expr.Float(n), nil
		case int:
			return expr.Float(n), nil
		}
	case expr.KindString:
		if s, ok := raw.(string); ok {
			return expr.Str(s), nil
		}
	case expr.KindTime:
		if s, ok := raw.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("time literal %q: %w", s, err)
			}
			return expr.Time(ts), nil
		}
	default:
		return nil, fmt.Errorf("no literal form for %s", t)
	}
	return nil, fmt.Errorf("literal %v (%T) does not fit %s", raw, raw, t)
}

// paramValue converts an untyped parameter binding. The scalar family
// is inferred from the YAML form.
func paramValue(raw any) (expr.Value, error) {
	switch v := raw.(type) {
	case nil:
		return expr.Null{}, nil
	case bool:
		return expr.Bool(v), nil
	case int:
		return expr.Int(v), nil
	case int64:
		return expr.Int(v), nil
	case float64:
		return expr.Float(v), nil
	case string:
		return expr.Str(v), nil
	default:
		return nil, fmt.Errorf("unsupported parameter literal %v (%T)", raw, raw)
	}
}
