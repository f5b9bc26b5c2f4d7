// Package compiler parses CUE model definitions into entity model
// specs and validates them against the schema rules.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/stratahq/strata/internal/schema"
)

// CompileModel parses a CUE value into a ModelSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: { name: "shapes", ... }`)
//	spec, err := CompileModel(v.LookupPath(cue.ParsePath("model")))
//
// Entity declaration order is preserved: hierarchies lay out their
// columns in the order entities and properties appear in the source.
func CompileModel(v cue.Value) (*schema.ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &schema.ModelSpec{}

	// Parse model name (required)
	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "name",
			Message: "model name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Name = name

	// Parse entities (required, at least one)
	spec.Entities, err = parseEntities(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Entities) == 0 {
		return nil, &CompileError{
			Field:   "entity",
			Message: "at least one entity is required",
			Pos:     v.Pos(),
		}
	}

	return spec, nil
}

// parseEntities extracts entity definitions in declaration order.
func parseEntities(v cue.Value) ([]schema.EntitySpec, error) {
	var entities []schema.EntitySpec

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return entities, nil
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		e := schema.EntitySpec{Name: iter.Label()}
		body := iter.Value()

		// base (optional)
		baseVal := body.LookupPath(cue.ParsePath("base"))
		if baseVal.Exists() {
			base, err := baseVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			e.Base = base
		}

		// abstract (optional)
		absVal := body.LookupPath(cue.ParsePath("abstract"))
		if absVal.Exists() {
			abs, err := absVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			e.Abstract = abs
		}

		// discriminator (optional, defaults to the entity name)
		discVal := body.LookupPath(cue.ParsePath("discriminator"))
		if discVal.Exists() {
			disc, err := discVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			e.Discriminator = disc
		}

		// implements (optional)
		implVal := body.LookupPath(cue.ParsePath("implements"))
		if implVal.Exists() {
			implIter, err := implVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for implIter.Next() {
				iface, err := implIter.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				e.Implements = append(e.Implements, iface)
			}
		}

		// properties (optional, declaration order preserved)
		props, err := parseProperties(e.Name, body)
		if err != nil {
			return nil, err
		}
		e.Properties = props

		entities = append(entities, e)
	}

	return entities, nil
}

// parseProperties extracts an entity's property declarations. Each
// property maps its name to a type string ("int", "string?", ...).
func parseProperties(entity string, v cue.Value) ([]schema.PropertySpec, error) {
	var props []schema.PropertySpec

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return props, nil
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		typeStr, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("entity.%s.properties.%s", entity, iter.Label()),
				Message: "property type must be a type string",
				Pos:     iter.Value().Pos(),
			}
		}
		props = append(props, schema.PropertySpec{
			Name: iter.Label(),
			Type: typeStr,
		})
	}

	return props, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
