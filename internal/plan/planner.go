package plan

import (
	"fmt"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
	"github.com/stratahq/strata/internal/translate"
)

// Planner compiles queries against one immutable model. It hands out
// fresh row names (q0, q1, ...), so one Planner serves one logical
// compilation; it is not safe for concurrent use.
type Planner struct {
	model *schema.Model
	next  int
}

// NewPlanner creates a Planner over the given model.
func NewPlanner(model *schema.Model) *Planner {
	return &Planner{model: model}
}

// Model reports the model the planner compiles against.
func (p *Planner) Model() *schema.Model { return p.model }

// NewQuery starts a query over the named entity with a fresh row name
// and the root entity reference bound in the projection map.
func (p *Planner) NewQuery(entity string) (*Query, error) {
	e, ok := p.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	row := fmt.Sprintf("q%d", p.next)
	p.next++
	q := &Query{
		entity:   e,
		row:      row,
		mode:     ModeRows,
		bindings: map[string]expr.Node{},
	}
	q.bindings[RootKey] = &expr.EntityRef{Entity: e.Name, Row: row}
	return q, nil
}

// translatorFor builds the translator for expressions in q's scope:
// projection-binding placeholders resolve through q's pending map and
// nested subqueries re-enter this planner.
func (p *Planner) translatorFor(q *Query) *translate.Translator {
	return translate.New(p.model,
		translate.WithSubqueries(p),
		translate.WithProjections(q.Binding),
	)
}

// ApplyFilter translates a one-parameter predicate lambda in q's scope
// and conjoins it with the existing filter. The lambda parameter stands
// for the query's row; it substitutes to the root projection binding
// before translation.
//
// Returns translate.ErrUntranslatable when the predicate has no row
// form; hard translation errors pass through unchanged.
func (p *Planner) ApplyFilter(q *Query, fn *expr.Lambda) error {
	body, err := p.enterLambda(q, fn)
	if err != nil {
		return err
	}
	translated, err := p.translatorFor(q).Translate(body)
	if err != nil {
		return err
	}
	if q.filter == nil {
		q.filter = translated
		return nil
	}
	q.filter = &expr.Binary{
		Op:    expr.OpAnd,
		Left:  q.filter,
		Right: translated,
		Type:  expr.BoolType,
	}
	return nil
}

// ApplySelection translates a one-parameter projection lambda in q's
// scope and binds the scalar result under ValueKey for ApplyProjection
// to pick up.
func (p *Planner) ApplySelection(q *Query, fn *expr.Lambda) error {
	body, err := p.enterLambda(q, fn)
	if err != nil {
		return err
	}
	translated, err := p.translatorFor(q).Translate(body)
	if err != nil {
		return err
	}
	q.bindings[ValueKey] = translated
	return nil
}

// enterLambda substitutes the lambda's single parameter with q's root
// entity reference, bringing the body into q's scope. Substituting the
// reference itself, not a projection key, keeps outer references intact
// when a nested subquery compiles with its own root.
func (p *Planner) enterLambda(q *Query, fn *expr.Lambda) (expr.Node, error) {
	if fn == nil || len(fn.Params) != 1 {
		return nil, translate.ErrUntranslatable
	}
	root, ok := q.Binding(RootKey)
	if !ok {
		return nil, translate.ErrUntranslatable
	}
	return substituteParam(fn.Body, fn.Params[0].Name, root), nil
}

// scalarMethods maps the single-value query methods to their result
// shape. Exists compiles as "first row of (select true)": an empty
// result defaults to false in the enclosing scalar rewrite.
var scalarMethods = map[string]struct {
	mode      Mode
	orDefault bool
	implicit  expr.Node // implicit selection, nil when the chain supplies one
}{
	"first":           {mode: ModeFirst},
	"firstOrDefault":  {mode: ModeFirst, orDefault: true},
	"single":          {mode: ModeSingle},
	"singleOrDefault": {mode: ModeSingle, orDefault: true},
	"exists":          {mode: ModeFirst, orDefault: true, implicit: &expr.Constant{Value: expr.Bool(true), Type: expr.BoolType}},
	"count":           {mode: ModeCount},
}

// TranslateSubquery recognizes scalar-subquery call shapes and compiles
// them into single-row plans. It implements translate.SubqueryTranslator.
//
// Recognized shape: a scalar method (first / firstOrDefault / single /
// singleOrDefault / exists / count) over a chain of where and select
// calls rooted at an entity query root. The scalar method may carry one
// predicate lambda argument, shorthand for a trailing where.
//
// Anything else reports (nil, false, nil) and takes the general-call
// path. A recognized chain that fails to compile softly reports
// (nil, true, nil), failing the enclosing scalar expression; hard
// errors inside the chain's lambdas escape unchanged.
func (p *Planner) TranslateSubquery(call *expr.Call) (translate.SubPlan, bool, error) {
	spec, ok := scalarMethods[call.Method]
	if !ok {
		return nil, false, nil
	}
	chain, ok := parseChain(call.Recv)
	if !ok {
		return nil, false, nil
	}
	var argFilter *expr.Lambda
	switch len(call.Args) {
	case 0:
	case 1:
		lam, ok := call.Args[0].(*expr.Lambda)
		if !ok {
			return nil, false, nil
		}
		argFilter = lam
	default:
		return nil, false, nil
	}

	q, err := p.NewQuery(chain.entity)
	if err != nil {
		// Recognized shape over an unmapped entity: untranslatable.
		return nil, true, nil
	}
	q.mode = spec.mode
	q.orDefault = spec.orDefault

	for _, where := range chain.wheres {
		if err := p.ApplyFilter(q, where); err != nil {
			return subqueryFailure(err)
		}
	}
	if argFilter != nil {
		if err := p.ApplyFilter(q, argFilter); err != nil {
			return subqueryFailure(err)
		}
	}
	if chain.selection != nil {
		if err := p.ApplySelection(q, chain.selection); err != nil {
			return subqueryFailure(err)
		}
	} else if spec.implicit != nil {
		q.bindings[ValueKey] = spec.implicit
	}

	return q, true, nil
}

// subqueryFailure splits a compile error into the soft and hard
// channels: soft failures fail the subquery, hard errors escape.
func subqueryFailure(err error) (translate.SubPlan, bool, error) {
	if err == translate.ErrUntranslatable {
		return nil, true, nil
	}
	return nil, true, err
}

// chain is a parsed where/select call chain over a query root.
type chain struct {
	entity    string
	wheres    []*expr.Lambda // outermost-first application order
	selection *expr.Lambda
}

// parseChain walks a receiver chain down to its root. Select is only
// legal as the last link before the scalar method; where links stack.
func parseChain(recv expr.Node) (chain, bool) {
	var out chain
	for {
		switch node := recv.(type) {
		case *expr.Root:
			out.entity = node.Entity
			// Wheres were collected outside-in; application order is
			// root-first.
			reverse(out.wheres)
			return out, true
		case *expr.Call:
			if len(node.Args) != 1 {
				return chain{}, false
			}
			lam, ok := node.Args[0].(*expr.Lambda)
			if !ok {
				return chain{}, false
			}
			switch node.Method {
			case "select":
				// Walking outside-in, a legal select is the first link;
				// one already seen, or wheres stacked on top of it,
				// breaks the shape.
				if out.selection != nil || len(out.wheres) > 0 {
					return chain{}, false
				}
				out.selection = lam
			case "where":
				out.wheres = append(out.wheres, lam)
			default:
				return chain{}, false
			}
			recv = node.Recv
		default:
			return chain{}, false
		}
	}
}

func reverse(ls []*expr.Lambda) {
	for i, j := 0, len(ls)-1; i < j; i, j = i+1, j-1 {
		ls[i], ls[j] = ls[j], ls[i]
	}
}
