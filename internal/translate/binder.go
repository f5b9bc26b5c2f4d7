package translate

import (
	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
)

// bindMember is the member binder: it resolves a member requested
// against an entity projection into a typed column read.
//
// Resolution steps:
//  1. Unwrap one conversion layer around source. A conversion to an
//     entity type records a narrowing; a conversion to Any narrows
//     nothing.
//  2. Require the unwrapped source to be an entity projection.
//  3. A recorded narrowing that is not an interface the shape declares
//     re-resolves the shape to the one matching type in the hierarchy
//     fragment rooted at the projection's shape. No single match, no
//     bind.
//  4. Resolve the member against the shape, declaration-qualified
//     identity first, bare name second. An unmapped member fails the
//     bind; the caller decides whether that is fatal.
//  5. Emit the column read, converted when the property's type is not
//     the requested type.
func (t *Translator) bindMember(source expr.Node, decl, name string, want expr.Type) (expr.Node, bool) {
	core := source
	narrowed := ""
	if u, ok := source.(*expr.Unary); ok && u.Op == expr.OpConvert {
		core = u.Operand
		if u.Type.Kind == expr.KindEntity {
			narrowed = u.Type.Entity
		}
	}

	ref, ok := core.(*expr.EntityRef)
	if !ok {
		return nil, false
	}
	shape, ok := t.model.Entity(ref.Entity)
	if !ok {
		return nil, false
	}

	if narrowed != "" && !shape.Implements(narrowed) {
		resolved := resolveNarrowed(shape, narrowed)
		if resolved == nil {
			return nil, false
		}
		shape = resolved
	}

	prop := shape.FindProperty(decl, name)
	if prop == nil {
		return nil, false
	}

	var read expr.Node = &expr.BufferRead{
		Row:   ref.Row,
		Index: ref.Offset + prop.Column,
		Type:  prop.Type,
	}
	if want.Kind != expr.KindInvalid && !prop.Type.Equal(want) {
		read = &expr.Unary{Op: expr.OpConvert, Operand: read, Type: want}
	}
	return read, true
}

// resolveNarrowed finds the single type named by a narrowing cast in
// the hierarchy fragment rooted at shape, shape itself included.
func resolveNarrowed(shape *schema.Entity, target string) *schema.Entity {
	var match *schema.Entity
	if shape.Name == target {
		match = shape
	}
	for _, d := range shape.AllDerived() {
		if d.Name != target {
			continue
		}
		if match != nil {
			return nil
		}
		match = d
	}
	return match
}
