package store

import (
	"fmt"
	"time"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
)

// layoutTypes resolves the static type of every layout column in a
// hierarchy: the discriminator tag first, then each property at its
// assigned column.
func layoutTypes(root *schema.Entity) []expr.Type {
	types := make([]expr.Type, root.Width())
	types[schema.DiscriminatorColumn] = expr.StringType
	for _, e := range append([]*schema.Entity{root}, root.AllDerived()...) {
		for _, p := range e.Properties {
			types[p.Column] = p.Type
		}
	}
	return types
}

// columnAffinity maps a layout column to its SQLite type affinity.
// Bools store as 0/1 integers, times as RFC 3339 text in UTC.
func columnAffinity(root *schema.Entity, col int) string {
	t := expr.Unwrap(layoutTypes(root)[col])
	switch t.Kind {
	case expr.KindBool, expr.KindInt:
		return "INTEGER"
	case expr.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// valueToSQL converts a runtime value to its stored representation.
func valueToSQL(v expr.Value) (any, error) {
	switch val := v.(type) {
	case nil, expr.Null:
		return nil, nil
	case expr.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case expr.Int:
		return int64(val), nil
	case expr.Float:
		return float64(val), nil
	case expr.Str:
		return string(val), nil
	case expr.Time:
		return time.Time(val).UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// sqlToValue converts a scanned database value back to a runtime value
// of the column's static type.
func sqlToValue(raw any, t expr.Type) (expr.Value, error) {
	if raw == nil {
		return expr.Null{}, nil
	}
	switch expr.Unwrap(t).Kind {
	case expr.KindBool:
		switch v := raw.(type) {
		case int64:
			return expr.Bool(v != 0), nil
		case bool:
			return expr.Bool(v), nil
		}
	case expr.KindInt:
		if v, ok := raw.(int64); ok {
			return expr.Int(v), nil
		}
	case expr.KindFloat:
		switch v := raw.(type) {
		case float64:
			return expr.Float(v), nil
		case int64:
			return expr.Float(v), nil
		}
	case expr.KindString:
		switch v := raw.(type) {
		case string:
			return expr.Str(v), nil
		case []byte:
			return expr.Str(v), nil
		}
	case expr.KindTime:
		var text string
		switch v := raw.(type) {
		case string:
			text = v
		case []byte:
			text = string(v)
		case time.Time:
			return expr.Time(v.UTC()), nil
		}
		if text != "" {
			ts, err := time.Parse(time.RFC3339Nano, text)
			if err != nil {
				return nil, fmt.Errorf("parse stored time %q: %w", text, err)
			}
			return expr.Time(ts.UTC()), nil
		}
	case expr.KindAny:
		switch v := raw.(type) {
		case int64:
			return expr.Int(v), nil
		case float64:
			return expr.Float(v), nil
		case string:
			return expr.Str(v), nil
		case []byte:
			return expr.Str(v), nil
		case bool:
			return expr.Bool(v), nil
		}
	}
	return nil, fmt.Errorf("stored %T does not fit column type %s", raw, t)
}
