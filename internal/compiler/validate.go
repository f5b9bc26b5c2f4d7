package compiler

import (
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/stratahq/strata/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// Model-level errors (E100-E109)
	ErrModelNameEmpty  = "E100" // model name is required
	ErrModelNoEntities = "E101" // at least one entity required

	// Entity errors (E110-E119)
	ErrDuplicateEntity        = "E110" // duplicate entity name
	ErrInvalidEntityName      = "E111" // entity name format
	ErrUnknownBase            = "E112" // base references no declared entity
	ErrInheritanceCycle       = "E113" // base chain loops
	ErrDuplicateDiscriminator = "E114" // two hierarchy members share a tag
	ErrNoConcreteTypes        = "E115" // hierarchy is entirely abstract

	// Property errors (E120-E129)
	ErrInvalidPropertyType = "E120" // unknown property type string
	ErrDuplicateProperty   = "E121" // redeclared within the entity
	ErrShadowedProperty    = "E122" // redeclares an inherited property
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// entityNamePattern matches entity names: uppercase start, alphanumeric.
var entityNamePattern = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)

// Validate validates a model spec against the schema rules.
// Returns all errors found (does not fail-fast). A spec with no
// validation errors is guaranteed to build with schema.NewModel.
func Validate(spec *schema.ModelSpec) []ValidationError {
	var errs []ValidationError

	// E100: model name required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "model name is required and must be non-empty",
			Code:    ErrModelNameEmpty,
		})
	}

	// E101: at least one entity
	if len(spec.Entities) == 0 {
		errs = append(errs, ValidationError{
			Field:   "entities",
			Message: "at least one entity is required",
			Code:    ErrModelNoEntities,
		})
		return errs
	}

	byName := make(map[string]*schema.EntitySpec, len(spec.Entities))
	for i := range spec.Entities {
		e := &spec.Entities[i]

		// E110: duplicate entity name
		if _, dup := byName[e.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entities[%d].name", i),
				Message: fmt.Sprintf("duplicate entity name: %q", e.Name),
				Code:    ErrDuplicateEntity,
			})
			continue
		}
		byName[e.Name] = e

		// E111: entity name format
		if !entityNamePattern.MatchString(e.Name) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entities[%d].name", i),
				Message: fmt.Sprintf("invalid entity name %q, expected an uppercase identifier", e.Name),
				Code:    ErrInvalidEntityName,
			})
		}

		// E120/E121: property types and duplicates
		seen := make(map[string]bool, len(e.Properties))
		for _, p := range e.Properties {
			field := fmt.Sprintf("entity.%s.properties.%s", e.Name, p.Name)
			if seen[p.Name] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("duplicate property %q", p.Name),
					Code:    ErrDuplicateProperty,
				})
			}
			seen[p.Name] = true
			if _, err := schema.ParseType(p.Type); err != nil {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid type %q for property %q", p.Type, p.Name),
					Code:    ErrInvalidPropertyType,
				})
			}
		}
	}

	// E112: base references
	for _, e := range spec.Entities {
		if e.Base == "" {
			continue
		}
		if _, ok := byName[e.Base]; !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity.%s.base", e.Name),
				Message: fmt.Sprintf("base %q references no declared entity", e.Base),
				Code:    ErrUnknownBase,
			})
		}
	}

	// E113: inheritance cycles. Each entity has at most one base, so a
	// cycle is a loop on the base-chain walk.
	cyclic := mapset.NewThreadUnsafeSet[string]()
	for _, e := range spec.Entities {
		walked := mapset.NewThreadUnsafeSet[string]()
		cur := e.Name
		for cur != "" {
			if walked.Contains(cur) {
				if !cyclic.Contains(e.Name) {
					cyclic.Add(e.Name)
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("entity.%s.base", e.Name),
						Message: fmt.Sprintf("inheritance cycle through %q", cur),
						Code:    ErrInheritanceCycle,
					})
				}
				break
			}
			walked.Add(cur)
			next, ok := byName[cur]
			if !ok {
				break
			}
			cur = next.Base
		}
	}
	if cyclic.Cardinality() > 0 {
		// Hierarchy-level checks below assume acyclic base chains.
		return errs
	}

	errs = append(errs, validateHierarchies(spec, byName)...)
	return errs
}

// validateHierarchies runs the checks that need resolved hierarchy
// groupings: shadowing, discriminator uniqueness, and concreteness.
func validateHierarchies(spec *schema.ModelSpec, byName map[string]*schema.EntitySpec) []ValidationError {
	var errs []ValidationError

	rootOf := func(e *schema.EntitySpec) string {
		cur := e
		for cur.Base != "" {
			next, ok := byName[cur.Base]
			if !ok {
				return cur.Name
			}
			cur = next
		}
		return cur.Name
	}

	// E122: a property redeclaring an inherited name shadows it.
	for _, e := range spec.Entities {
		inherited := make(map[string]string) // property name → declaring entity
		cur := e.Base
		for cur != "" {
			base, ok := byName[cur]
			if !ok {
				break
			}
			for _, p := range base.Properties {
				if _, have := inherited[p.Name]; !have {
					inherited[p.Name] = base.Name
				}
			}
			cur = base.Base
		}
		for _, p := range e.Properties {
			if decl, clash := inherited[p.Name]; clash {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entity.%s.properties.%s", e.Name, p.Name),
					Message: fmt.Sprintf("property %q shadows %s.%s", p.Name, decl, p.Name),
					Code:    ErrShadowedProperty,
				})
			}
		}
	}

	// E114/E115: per-hierarchy discriminator uniqueness and at least
	// one concrete member.
	type hierarchy struct {
		tags     map[string]string // tag → entity
		concrete bool
	}
	groups := make(map[string]*hierarchy)
	for i := range spec.Entities {
		e := &spec.Entities[i]
		root := rootOf(e)
		g := groups[root]
		if g == nil {
			g = &hierarchy{tags: make(map[string]string)}
			groups[root] = g
		}
		tag := e.Discriminator
		if tag == "" {
			tag = e.Name
		}
		if prev, dup := g.tags[tag]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity.%s.discriminator", e.Name),
				Message: fmt.Sprintf("discriminator %q already used by %s", tag, prev),
				Code:    ErrDuplicateDiscriminator,
			})
		} else {
			g.tags[tag] = e.Name
		}
		if !e.Abstract {
			g.concrete = true
		}
	}
	for root, g := range groups {
		if !g.concrete {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity.%s", root),
				Message: fmt.Sprintf("hierarchy rooted at %q has no concrete types", root),
				Code:    ErrNoConcreteTypes,
			})
		}
	}

	return errs
}
