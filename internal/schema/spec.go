// Package schema holds the mapped entity model: entity types, their
// inheritance hierarchy, and the hierarchy's flat column layout.
//
// A Model is built once from a ModelSpec and is read-only afterwards.
// Every hierarchy question the translator asks (root type, derived
// types, base chains, discriminator columns) is answered from indexes
// resolved at build time.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stratahq/strata/internal/expr"
)

// ModelSpec is the serializable form of a model definition. The
// compiler produces one from CUE sources; tests build them directly.
type ModelSpec struct {
	Name     string       `json:"name"`
	Entities []EntitySpec `json:"entities"`
}

// EntitySpec defines one entity type.
type EntitySpec struct {
	Name          string         `json:"name"`
	Base          string         `json:"base,omitempty"`          // parent entity, "" for hierarchy roots
	Abstract      bool           `json:"abstract,omitempty"`      // abstract types have no rows of their own
	Discriminator string         `json:"discriminator,omitempty"` // stored discriminator value, defaults to Name
	Implements    []string       `json:"implements,omitempty"`    // declared interface names
	Properties    []PropertySpec `json:"properties"`
}

// PropertySpec defines one declared property. Type names a scalar
// family with an optional "?" nullable suffix: "int", "string?", ...
type PropertySpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParseType resolves a property type name to its static type.
func ParseType(name string) (expr.Type, error) {
	base, nullable := strings.CutSuffix(name, "?")
	var t expr.Type
	switch base {
	case "bool":
		t = expr.BoolType
	case "int":
		t = expr.IntType
	case "float":
		t = expr.FloatType
	case "string":
		t = expr.StringType
	case "time":
		t = expr.TimeType
	default:
		return expr.Type{}, fmt.Errorf("unknown property type %q", name)
	}
	if nullable {
		t = expr.Nullable(t)
	}
	return t, nil
}

// CanonicalJSON renders the spec as deterministic JSON for hashing and
// for CLI output.
func (s *ModelSpec) CanonicalJSON() ([]byte, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal model spec: %w", err)
	}
	return out, nil
}
