package schema

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/stratahq/strata/internal/expr"
)

// Model is the built, indexed form of a ModelSpec. It is immutable
// after NewModel returns; the translator and the engine share one
// instance freely across goroutines.
type Model struct {
	name     string
	hash     string
	entities map[string]*Entity
	order    []*Entity // declaration order
	roots    []*Entity // hierarchy roots, declaration order
}

// Entity is one entity type with its resolved hierarchy links and the
// slice of the hierarchy column layout it can see.
type Entity struct {
	Name          string
	Base          *Entity // nil for hierarchy roots
	Abstract      bool
	Discriminator expr.Value
	Properties    []*Property // declared here, declaration order

	root       *Entity
	derived    []*Entity // direct subtypes, declaration order
	allDerived []*Entity // transitive subtypes, preorder
	baseChain  []*Entity // self up to root, inclusive
	implements mapset.Set[string]
	visible    map[string]*Property // inherited and own, by name
	width      int                  // hierarchy column count, set on roots
}

// Property is one declared property with its assigned column in the
// hierarchy layout.
type Property struct {
	Name   string
	Decl   *Entity
	Type   expr.Type
	Column int
}

// DiscriminatorColumn is the synthetic column every hierarchy layout
// reserves for the row's concrete type tag.
const DiscriminatorColumn = 0

// NewModel validates a spec and builds the indexed model: hierarchy
// links, preorder derived sets, interface sets, and the
// table-per-hierarchy column layout (discriminator first, then every
// property declared anywhere in the hierarchy in preorder declaration
// order).
func NewModel(spec *ModelSpec) (*Model, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("model has no name")
	}
	m := &Model{
		name:     spec.Name,
		entities: make(map[string]*Entity, len(spec.Entities)),
	}

	// First pass: allocate entities, reject duplicates.
	for i := range spec.Entities {
		es := &spec.Entities[i]
		if es.Name == "" {
			return nil, fmt.Errorf("entity %d has no name", i)
		}
		if _, dup := m.entities[es.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", es.Name)
		}
		disc := es.Discriminator
		if disc == "" {
			disc = es.Name
		}
		e := &Entity{
			Name:          es.Name,
			Abstract:      es.Abstract,
			Discriminator: expr.Str(disc),
			implements:    mapset.NewThreadUnsafeSet(es.Implements...),
		}
		for _, ps := range es.Properties {
			t, err := ParseType(ps.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %q property %q: %w", es.Name, ps.Name, err)
			}
			e.Properties = append(e.Properties, &Property{Name: ps.Name, Decl: e, Type: t})
		}
		m.entities[es.Name] = e
		m.order = append(m.order, e)
	}

	// Second pass: link bases, detect cycles.
	for i := range spec.Entities {
		es := &spec.Entities[i]
		if es.Base == "" {
			continue
		}
		base, ok := m.entities[es.Base]
		if !ok {
			return nil, fmt.Errorf("entity %q: unknown base %q", es.Name, es.Base)
		}
		m.entities[es.Name].Base = base
	}
	for _, e := range m.order {
		seen := mapset.NewThreadUnsafeSet[string]()
		for cur := e; cur != nil; cur = cur.Base {
			if !seen.Add(cur.Name) {
				return nil, fmt.Errorf("inheritance cycle through %q", cur.Name)
			}
		}
	}

	// Third pass: hierarchy links, visible properties, column layout.
	for _, e := range m.order {
		if e.Base == nil {
			m.roots = append(m.roots, e)
		} else {
			e.Base.derived = append(e.Base.derived, e)
		}
	}
	for _, root := range m.roots {
		if err := m.indexHierarchy(root); err != nil {
			return nil, err
		}
	}
	for _, e := range m.order {
		e.baseChain = buildBaseChain(e)
		e.root = e.baseChain[len(e.baseChain)-1]
		e.allDerived = collectDerived(e)
	}

	canonical, err := spec.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	m.hash = expr.HashWithDomain(expr.DomainModel, canonical)
	return m, nil
}

// indexHierarchy assigns columns in preorder from the root and builds
// each type's visible-property map, rejecting shadowed names.
func (m *Model) indexHierarchy(root *Entity) error {
	next := DiscriminatorColumn + 1
	var walk func(e *Entity, inherited map[string]*Property) error
	walk = func(e *Entity, inherited map[string]*Property) error {
		visible := make(map[string]*Property, len(inherited)+len(e.Properties))
		for k, v := range inherited {
			visible[k] = v
		}
		for _, p := range e.Properties {
			if prev, clash := visible[p.Name]; clash {
				return fmt.Errorf("entity %q: property %q shadows %s.%s",
					e.Name, p.Name, prev.Decl.Name, prev.Name)
			}
			p.Column = next
			next++
			visible[p.Name] = p
		}
		e.visible = visible
		for _, d := range e.derived {
			if err := walk(d, visible); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, nil); err != nil {
		return err
	}
	root.width = next
	return nil
}

func buildBaseChain(e *Entity) []*Entity {
	var chain []*Entity
	for cur := e; cur != nil; cur = cur.Base {
		chain = append(chain, cur)
	}
	return chain
}

func collectDerived(e *Entity) []*Entity {
	var out []*Entity
	var walk func(*Entity)
	walk = func(cur *Entity) {
		for _, d := range cur.derived {
			out = append(out, d)
			walk(d)
		}
	}
	walk(e)
	return out
}

// Name reports the model's name.
func (m *Model) Name() string { return m.name }

// Hash reports the model's content-addressed identity.
func (m *Model) Hash() string { return m.hash }

// Entity looks up an entity type by name.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities returns every entity type in declaration order.
func (m *Model) Entities() []*Entity { return m.order }

// Roots returns the hierarchy roots in declaration order.
func (m *Model) Roots() []*Entity { return m.roots }

// Root reports the entity's hierarchy root (itself for roots).
func (e *Entity) Root() *Entity { return e.root }

// Width reports the hierarchy's total column count, discriminator
// included. Valid on any member of the hierarchy.
func (e *Entity) Width() int { return e.root.width }

// Derived returns the entity's direct subtypes in declaration order.
func (e *Entity) Derived() []*Entity { return e.derived }

// AllDerived returns every transitive subtype in preorder. The
// receiver is not included.
func (e *Entity) AllDerived() []*Entity { return e.allDerived }

// BaseChain returns the inclusive chain from the entity to its root.
func (e *Entity) BaseChain() []*Entity { return e.baseChain }

// AssignableTo reports whether every instance of e is an instance of
// other, i.e. other is e or one of its bases.
func (e *Entity) AssignableTo(other *Entity) bool {
	for _, b := range e.baseChain {
		if b == other {
			return true
		}
	}
	return false
}

// Implements reports whether the entity declares the named interface.
// Declarations are not inherited implicitly; each type lists its own.
func (e *Entity) Implements(name string) bool {
	return e.implements.Contains(name)
}

// FindProperty resolves a member against the entity's visible
// properties. A declaration-qualified identity (decl non-empty) must
// match the declaring type exactly; the bare name is the fallback.
func (e *Entity) FindProperty(decl, name string) *Property {
	p, ok := e.visible[name]
	if !ok {
		return nil
	}
	if decl != "" && p.Decl.Name != decl {
		// Qualified lookup missed; fall back to the name match, which
		// is p itself. The qualifier documents intent, the name binds.
		return p
	}
	return p
}

// ConcreteTypes returns the non-abstract members of the hierarchy
// fragment rooted at e (e plus its transitive subtypes), in preorder.
func (e *Entity) ConcreteTypes() []*Entity {
	var out []*Entity
	if !e.Abstract {
		out = append(out, e)
	}
	for _, d := range e.allDerived {
		if !d.Abstract {
			out = append(out, d)
		}
	}
	return out
}
