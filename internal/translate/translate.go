// Package translate rewrites entity-oriented expression trees into
// trees that execute against flat value-buffer rows.
//
// The translator is a recursive-descent visitor: it translates children
// first, then reconstructs each parent from the translated children.
// Member accesses bind to column reads through the entity model,
// correlated scalar subqueries inline through the planning layer, type
// tests become discriminator comparisons, and externally-bound
// parameters become runtime lookups. Anything the row model cannot
// express makes the whole translation fail softly rather than produce
// an approximate tree.
//
// Failure travels on two channels that are never conflated: soft
// failures surface as ErrUntranslatable, hard modeling violations as
// *HardError. Inside the visitor a nil node with a nil error is the
// soft sentinel; a non-nil error is always hard and escapes unchanged.
package translate

import (
	"strconv"
	"strings"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
)

// ExternalParamPrefix marks parameters whose values arrive through the
// execution context. A parameter without it must have been substituted
// away before translation; seeing one is a hard error.
const ExternalParamPrefix = "__"

// ProjectionLookup resolves a projection-binding placeholder key to the
// expression the enclosing query bound under it.
type ProjectionLookup func(key string) (expr.Node, bool)

// Translator rewrites scalar expression trees against one immutable
// model. It holds no per-call state: one Translator may serve
// concurrent Translate calls for different trees.
type Translator struct {
	model       *schema.Model
	subqueries  SubqueryTranslator
	projections ProjectionLookup
}

// Option configures a Translator.
type Option func(*Translator)

// WithSubqueries wires the planning layer back in for correlated
// subquery calls. Without it every subquery-shaped call takes the
// general-call path and usually fails.
func WithSubqueries(st SubqueryTranslator) Option {
	return func(t *Translator) { t.subqueries = st }
}

// WithProjections supplies the enclosing query's projection map for
// resolving projection-binding placeholders.
func WithProjections(lookup ProjectionLookup) Option {
	return func(t *Translator) { t.projections = lookup }
}

// New creates a Translator over the given model.
func New(model *schema.Model, opts ...Option) *Translator {
	t := &Translator{model: model}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate rewrites root into a value-buffer tree.
//
// It returns ErrUntranslatable when any subexpression has no row form,
// and a *HardError when the tree violates a modeling contract. A
// successful result never contains an EntityRef: the projection
// detector gates every non-failed result before it is returned.
func (t *Translator) Translate(root expr.Node) (expr.Node, error) {
	v := &visitor{Translator: t}
	out, err := v.visit(root)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrUntranslatable
	}
	if ContainsEntityRef(out) {
		return nil, ErrUntranslatable
	}
	return out, nil
}

// visitor carries the per-call state of one Translate: the local-name
// counter for subquery bindings. Everything else is read from the
// shared Translator.
type visitor struct {
	*Translator
	locals int
}

func (v *visitor) freshLocal() string {
	name := "sq" + strconv.Itoa(v.locals)
	v.locals++
	return name
}

// failed reports whether a child that was present in the input
// translated to nothing.
func failed(original, translated expr.Node) bool {
	return original != nil && translated == nil
}

// visit dispatches on node kind. A (nil, nil) return is the soft
// failure sentinel; errors are always hard.
func (v *visitor) visit(n expr.Node) (expr.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch node := n.(type) {
	case *expr.Constant:
		return node, nil
	case *expr.Param:
		return v.visitParam(node)
	case *expr.Member:
		return v.visitMember(node)
	case *expr.Call:
		return v.visitCall(node)
	case *expr.Binary:
		return v.visitBinary(node)
	case *expr.Conditional:
		return v.visitConditional(node)
	case *expr.TypeIs:
		return v.visitTypeIs(node)
	case *expr.Unary:
		return v.visitUnary(node)
	case *expr.Lambda, *expr.ListInit, *expr.Invoke, *expr.Root:
		// No row-program form; fail without recursing.
		return nil, nil
	case *expr.EntityRef:
		// Valid intermediate, invalid final result; the gate in
		// Translate rejects any that survive to the top.
		return node, nil
	case *expr.Materialize:
		return v.visit(node.Row)
	case *expr.ProjectionRef:
		if v.projections == nil {
			return nil, nil
		}
		bound, ok := v.projections(node.Key)
		if !ok {
			return nil, nil
		}
		return bound, nil
	case *expr.NullSafe:
		return v.visitNullSafe(node)
	case *expr.BufferRead, *expr.BufferEmpty, *expr.ParamLookup,
		*expr.BufferInit, *expr.Let, *expr.Subplan:
		// Already in server form; nothing to rewrite.
		return node, nil
	default:
		// Unknown extension kinds are untranslatable.
		return nil, nil
	}
}

func (v *visitor) visitParam(node *expr.Param) (expr.Node, error) {
	if !strings.HasPrefix(node.Name, ExternalParamPrefix) {
		return nil, NewUnboundParameterError(expr.Render(node))
	}
	return &expr.ParamLookup{Name: node.Name, Type: node.Type}, nil
}

func (v *visitor) visitBinary(node *expr.Binary) (expr.Node, error) {
	left, err := v.visit(node.Left)
	if err != nil {
		return nil, err
	}
	if failed(node.Left, left) {
		return nil, nil
	}
	right, err := v.visit(node.Right)
	if err != nil {
		return nil, err
	}
	if failed(node.Right, right) {
		return nil, nil
	}
	return &expr.Binary{Op: node.Op, Left: left, Right: right, Type: node.Type}, nil
}

func (v *visitor) visitConditional(node *expr.Conditional) (expr.Node, error) {
	test, err := v.visit(node.Test)
	if err != nil {
		return nil, err
	}
	if failed(node.Test, test) {
		return nil, nil
	}
	then, err := v.visit(node.Then)
	if err != nil {
		return nil, err
	}
	if failed(node.Then, then) {
		return nil, nil
	}
	els, err := v.visit(node.Else)
	if err != nil {
		return nil, err
	}
	if failed(node.Else, els) {
		return nil, nil
	}
	return &expr.Conditional{Test: test, Then: then, Else: els, Type: node.Type}, nil
}

func (v *visitor) visitMember(node *expr.Member) (expr.Node, error) {
	recv, err := v.visit(node.Recv)
	if err != nil {
		return nil, err
	}
	if failed(node.Recv, recv) {
		return nil, nil
	}
	if isEntitySource(recv) {
		bound, ok := v.bindMember(recv, node.Decl, node.Name, node.Type)
		if !ok {
			return nil, nil
		}
		return bound, nil
	}
	return &expr.Member{Recv: recv, Name: node.Name, Decl: node.Decl, Type: node.Type}, nil
}

func (v *visitor) visitTypeIs(node *expr.TypeIs) (expr.Node, error) {
	operand, err := v.visit(node.Operand)
	if err != nil {
		return nil, err
	}
	ref, ok := operand.(*expr.EntityRef)
	if !ok {
		// Type tests are only meaningful against mapped entity shapes.
		return constantBool(false), nil
	}
	shape, ok := v.model.Entity(ref.Entity)
	if !ok {
		return constantBool(false), nil
	}

	// Target at or above the shape: statically true.
	if target, ok := v.model.Entity(node.Target); ok && shape.AssignableTo(target) {
		return constantBool(true), nil
	}

	// Target a strict descendant: discriminator comparisons covering
	// the descendant and everything derived from it.
	var match *schema.Entity
	for _, d := range shape.AllDerived() {
		if d.Name == node.Target {
			if match != nil {
				return constantBool(false), nil
			}
			match = d
		}
	}
	if match == nil {
		return constantBool(false), nil
	}
	return v.discriminatorTest(ref, match), nil
}

// discriminatorTest builds disc == v1 OR disc == v2 OR ... over the
// concrete types at and below the target.
func (v *visitor) discriminatorTest(ref *expr.EntityRef, target *schema.Entity) expr.Node {
	concrete := target.ConcreteTypes()
	if len(concrete) == 0 {
		return constantBool(false)
	}
	disc := func() expr.Node {
		return &expr.BufferRead{
			Row:   ref.Row,
			Index: ref.Offset + schema.DiscriminatorColumn,
			Type:  expr.StringType,
		}
	}
	var out expr.Node
	for _, e := range concrete {
		eq := &expr.Binary{
			Op:    expr.OpEq,
			Left:  disc(),
			Right: &expr.Constant{Value: e.Discriminator, Type: expr.StringType},
			Type:  expr.BoolType,
		}
		if out == nil {
			out = eq
			continue
		}
		out = &expr.Binary{Op: expr.OpOr, Left: out, Right: eq, Type: expr.BoolType}
	}
	return out
}

func (v *visitor) visitUnary(node *expr.Unary) (expr.Node, error) {
	operand, err := v.visit(node.Operand)
	if err != nil {
		return nil, err
	}
	if failed(node.Operand, operand) {
		return nil, nil
	}

	if node.Op == expr.OpConvert {
		if inner, ok := operand.(*expr.Unary); ok && inner.Op == expr.OpConvert {
			innermost := inner.Operand
			// A round trip that only toggles nullability is a no-op.
			if node.Type.Equal(innermost.ResultType()) &&
				expr.Unwrap(inner.Type).Equal(expr.Unwrap(node.Type)) {
				return innermost, nil
			}
			// Boxing a nullable unwrap widens directly instead.
			if node.Type.Kind == expr.KindAny &&
				inner.Type.Equal(expr.Unwrap(innermost.ResultType())) {
				return &expr.Unary{Op: expr.OpConvert, Operand: innermost, Type: expr.AnyType}, nil
			}
		}
	}
	return &expr.Unary{Op: node.Op, Operand: operand, Type: node.Type}, nil
}

func (v *visitor) visitNullSafe(node *expr.NullSafe) (expr.Node, error) {
	inner, err := v.visit(node.Access)
	if err != nil {
		return nil, err
	}
	if failed(node.Access, inner) {
		return nil, nil
	}
	t := inner.ResultType()
	if t.IsNullable() {
		return inner, nil
	}
	return &expr.Unary{Op: expr.OpConvert, Operand: inner, Type: expr.Nullable(t)}, nil
}

func (v *visitor) visitCall(node *expr.Call) (expr.Node, error) {
	// Case 1: metadata-property access by name string.
	if node.Method == expr.PropertyMethod && node.Recv == nil && len(node.Args) == 2 {
		return v.visitPropertyCall(node)
	}

	// Case 2: correlated subquery, delegated back to the planner.
	if v.subqueries != nil {
		sp, ok, err := v.subqueries.TranslateSubquery(node)
		if err != nil {
			return nil, err
		}
		if ok {
			return v.inlineSubquery(sp)
		}
	}

	// Case 3: general call.
	var recv expr.Node
	if node.Recv != nil {
		translated, err := v.visit(node.Recv)
		if err != nil {
			return nil, err
		}
		if translated == nil || isEntityRef(translated) {
			return nil, nil
		}
		recv = translated
	}
	args := make([]expr.Node, len(node.Args))
	for i, a := range node.Args {
		translated, err := v.visit(a)
		if err != nil {
			return nil, err
		}
		if failed(a, translated) || isEntityRef(translated) {
			return nil, nil
		}
		args[i] = translated
	}
	return &expr.Call{Method: node.Method, Recv: recv, Args: args, Type: node.Type}, nil
}

func (v *visitor) visitPropertyCall(node *expr.Call) (expr.Node, error) {
	source, err := v.visit(node.Args[0])
	if err != nil {
		return nil, err
	}
	if failed(node.Args[0], source) {
		return nil, nil
	}
	nameConst, ok := node.Args[1].(*expr.Constant)
	if !ok {
		return nil, nil
	}
	name, ok := nameConst.Value.(expr.Str)
	if !ok {
		return nil, nil
	}
	bound, ok := v.bindMember(source, "", string(name), node.Type)
	if !ok {
		// This call form is only emitted when the property is known to
		// exist, so a failed bind is a model inconsistency, not a soft
		// failure.
		return nil, NewUnmappedPropertyError(entityName(source), string(name))
	}
	return bound, nil
}

func constantBool(b bool) expr.Node {
	return &expr.Constant{Value: expr.Bool(b), Type: expr.BoolType}
}

func isEntityRef(n expr.Node) bool {
	_, ok := n.(*expr.EntityRef)
	return ok
}

// isEntitySource reports whether n is an entity projection, directly
// or through one conversion wrapper.
func isEntitySource(n expr.Node) bool {
	if isEntityRef(n) {
		return true
	}
	if u, ok := n.(*expr.Unary); ok && u.Op == expr.OpConvert {
		return isEntityRef(u.Operand)
	}
	return false
}

// entityName names the entity behind a projection reference for error
// text, looking through one conversion wrapper.
func entityName(n expr.Node) string {
	if u, ok := n.(*expr.Unary); ok && u.Op == expr.OpConvert {
		n = u.Operand
	}
	if ref, ok := n.(*expr.EntityRef); ok {
		return ref.Entity
	}
	return n.ResultType().String()
}
