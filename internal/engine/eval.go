package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratahq/strata/internal/expr"
)

// Env binds buffer row names to their value buffers for one evaluation.
// Envs form a persistent chain: With extends without mutating, so a
// subquery evaluated under a Let sees its local binding while the
// enclosing evaluation keeps its own view.
//
// The zero Env is the empty environment; a nil *Env is usable.
type Env struct {
	parent *Env
	name   string
	row    *ValueBuffer
}

// With returns an environment extending e with one binding.
func (e *Env) With(name string, row *ValueBuffer) *Env {
	return &Env{parent: e, name: name, row: row}
}

// Lookup resolves a row name, innermost binding first.
func (e *Env) Lookup(name string) (*ValueBuffer, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.row, true
		}
	}
	return nil, false
}

// SubplanRunner executes an embedded row plan and returns its
// single-row result. The runner resolves the opaque handle back to the
// plan it compiled.
type SubplanRunner interface {
	RunSubplan(ctx context.Context, handle expr.SubplanHandle, env *Env) (*ValueBuffer, error)
}

// Evaluator executes translated expression trees against buffer
// environments. Only server-form nodes evaluate; any client-form node
// reaching the evaluator is an UNTRANSLATED_NODE error, never a silent
// fallback.
type Evaluator struct {
	exec     *ExecContext
	funcs    map[string]BuiltinFunc
	subplans SubplanRunner
	logger   *slog.Logger
}

// EvalOption configures an Evaluator.
type EvalOption func(*Evaluator)

// WithFunctions merges extra named functions into the builtin registry.
func WithFunctions(funcs map[string]BuiltinFunc) EvalOption {
	return func(ev *Evaluator) {
		for name, fn := range funcs {
			ev.funcs[name] = fn
		}
	}
}

// WithSubplans sets the runner Let-bound subplans execute through.
func WithSubplans(r SubplanRunner) EvalOption {
	return func(ev *Evaluator) { ev.subplans = r }
}

// WithEvalLogger sets the evaluator's logger.
func WithEvalLogger(logger *slog.Logger) EvalOption {
	return func(ev *Evaluator) { ev.logger = logger }
}

// NewEvaluator creates an evaluator over one execution context with the
// builtin function registry.
func NewEvaluator(exec *ExecContext, opts ...EvalOption) *Evaluator {
	ev := &Evaluator{
		exec:   exec,
		funcs:  Builtins(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Eval evaluates a translated scalar expression under the given
// environment.
func (ev *Evaluator) Eval(ctx context.Context, n expr.Node, env *Env) (expr.Value, error) {
	switch node := n.(type) {
	case *expr.Constant:
		return node.Value, nil

	case *expr.ParamLookup:
		v, ok := ev.exec.Param(node.Name)
		if !ok {
			return nil, &EvalError{
				Code:    ErrCodeUnknownParam,
				Message: "external parameter has no value",
				Name:    node.Name,
			}
		}
		return convertValue(v, node.Type)

	case *expr.BufferRead:
		row, ok := env.Lookup(node.Row)
		if !ok {
			return nil, &EvalError{
				Code:    ErrCodeUnknownRow,
				Message: "buffer row is not bound",
				Row:     node.Row,
			}
		}
		v, err := row.Col(node.Index)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", node.Row, err)
		}
		return convertValue(v, node.Type)

	case *expr.BufferEmpty:
		row, ok := env.Lookup(node.Row)
		if !ok {
			return nil, &EvalError{
				Code:    ErrCodeUnknownRow,
				Message: "buffer row is not bound",
				Row:     node.Row,
			}
		}
		return expr.Bool(row.IsEmpty()), nil

	case *expr.Unary:
		return ev.evalUnary(ctx, node, env)

	case *expr.Binary:
		return ev.evalBinary(ctx, node, env)

	case *expr.Conditional:
		test, err := ev.Eval(ctx, node.Test, env)
		if err != nil {
			return nil, err
		}
		// A null test selects the else branch, matching comparison
		// semantics where null never satisfies a condition.
		if b, ok := test.(expr.Bool); ok && bool(b) {
			return ev.Eval(ctx, node.Then, env)
		}
		return ev.Eval(ctx, node.Else, env)

	case *expr.Call:
		return ev.evalCall(ctx, node, env)

	case *expr.Let:
		sub, ok := node.Value.(*expr.Subplan)
		if !ok {
			return nil, NewUntranslatedNodeError(expr.Render(node.Value))
		}
		if ev.subplans == nil {
			return nil, &EvalError{
				Code:    ErrCodeUntranslatedNode,
				Message: "embedded plan with no subplan runner",
				Row:     node.Name,
			}
		}
		row, err := ev.subplans.RunSubplan(ctx, sub.Handle, env)
		if err != nil {
			return nil, err
		}
		return ev.Eval(ctx, node.Body, env.With(node.Name, row))

	case *expr.NullSafe:
		return ev.Eval(ctx, node.Access, env)

	case *expr.Subplan:
		return nil, &EvalError{
			Code:    ErrCodeTypeMismatch,
			Message: "row-valued plan in scalar position",
		}

	default:
		// Client-form nodes (members, parameters, lambdas, entity
		// references) must not survive translation.
		return nil, NewUntranslatedNodeError(expr.Render(n))
	}
}

// EvalRow evaluates a row-producing expression into a buffer.
func (ev *Evaluator) EvalRow(ctx context.Context, init *expr.BufferInit, env *Env) (*ValueBuffer, error) {
	cols := make([]expr.Value, len(init.Cols))
	for i, col := range init.Cols {
		v, err := ev.Eval(ctx, col, env)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}
	return NewRow(cols...), nil
}

func (ev *Evaluator) evalUnary(ctx context.Context, node *expr.Unary, env *Env) (expr.Value, error) {
	v, err := ev.Eval(ctx, node.Operand, env)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case expr.OpConvert:
		return convertValue(v, node.Type)
	case expr.OpNot:
		if expr.IsNull(v) {
			return expr.Null{}, nil
		}
		b, ok := v.(expr.Bool)
		if !ok {
			return nil, typeMismatch("not", v)
		}
		return expr.Bool(!b), nil
	case expr.OpNeg:
		switch val := v.(type) {
		case expr.Null:
			return expr.Null{}, nil
		case expr.Int:
			return expr.Int(-val), nil
		case expr.Float:
			return expr.Float(-val), nil
		default:
			return nil, typeMismatch("neg", v)
		}
	default:
		return nil, NewUntranslatedNodeError(expr.Render(node))
	}
}

func (ev *Evaluator) evalBinary(ctx context.Context, node *expr.Binary, env *Env) (expr.Value, error) {
	// And/Or short-circuit on the left operand; the right operand is
	// not evaluated when the left decides the result.
	switch node.Op {
	case expr.OpAnd, expr.OpOr:
		return ev.evalLogical(ctx, node, env)
	case expr.OpCoalesce:
		left, err := ev.Eval(ctx, node.Left, env)
		if err != nil {
			return nil, err
		}
		if !expr.IsNull(left) {
			return left, nil
		}
		return ev.Eval(ctx, node.Right, env)
	}

	left, err := ev.Eval(ctx, node.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := ev.Eval(ctx, node.Right, env)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case expr.OpEq:
		return expr.Bool(valuesEqual(left, right)), nil
	case expr.OpNe:
		return expr.Bool(!valuesEqual(left, right)), nil
	case expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		return compareValues(node.Op, left, right)
	case expr.OpAdd, expr.OpSub, expr.OpMul, expr.OpDiv, expr.OpMod:
		return arithmetic(node.Op, left, right)
	default:
		return nil, NewUntranslatedNodeError(expr.Render(node))
	}
}

func (ev *Evaluator) evalLogical(ctx context.Context, node *expr.Binary, env *Env) (expr.Value, error) {
	short := expr.Bool(node.Op == expr.OpOr) // or: true decides; and: false decides
	left, err := ev.Eval(ctx, node.Left, env)
	if err != nil {
		return nil, err
	}
	if b, ok := left.(expr.Bool); ok && b == short {
		return short, nil
	}
	right, err := ev.Eval(ctx, node.Right, env)
	if err != nil {
		return nil, err
	}
	if b, ok := right.(expr.Bool); ok && b == short {
		return short, nil
	}
	// Neither side decided; null is contagious for the remaining cases.
	if expr.IsNull(left) || expr.IsNull(right) {
		return expr.Null{}, nil
	}
	lb, lok := left.(expr.Bool)
	rb, rok := right.(expr.Bool)
	if !lok || !rok {
		return nil, typeMismatch(node.Op.String(), left)
	}
	if node.Op == expr.OpAnd {
		return expr.Bool(bool(lb) && bool(rb)), nil
	}
	return expr.Bool(bool(lb) || bool(rb)), nil
}

func (ev *Evaluator) evalCall(ctx context.Context, node *expr.Call, env *Env) (expr.Value, error) {
	fn, ok := ev.funcs[node.Method]
	if !ok {
		return nil, &EvalError{
			Code:    ErrCodeUnknownFunction,
			Message: "function is not provided by the runtime",
			Name:    node.Method,
		}
	}
	var args []expr.Value
	if node.Recv != nil {
		recv, err := ev.Eval(ctx, node.Recv, env)
		if err != nil {
			return nil, err
		}
		args = append(args, recv)
	}
	for _, arg := range node.Args {
		v, err := ev.Eval(ctx, arg, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", node.Method, err)
	}
	return out, nil
}

// convertValue coerces a runtime value to a static type. Boxing to Any
// and unboxing from Any pass the value through; numeric conversions
// follow the usual widening and truncation; everything else must match
// the target's scalar family.
func convertValue(v expr.Value, t expr.Type) (expr.Value, error) {
	if expr.IsNull(v) {
		if t.IsNullable() {
			return expr.Null{}, nil
		}
		return nil, &EvalError{
			Code:    ErrCodeTypeMismatch,
			Message: fmt.Sprintf("null value where non-null %s expected", t),
		}
	}
	switch t.Kind {
	case expr.KindAny:
		return v, nil
	case expr.KindBool:
		if b, ok := v.(expr.Bool); ok {
			return b, nil
		}
	case expr.KindInt:
		switch val := v.(type) {
		case expr.Int:
			return val, nil
		case expr.Float:
			return expr.Int(val), nil
		}
	case expr.KindFloat:
		switch val := v.(type) {
		case expr.Float:
			return val, nil
		case expr.Int:
			return expr.Float(val), nil
		}
	case expr.KindString:
		if s, ok := v.(expr.Str); ok {
			return s, nil
		}
	case expr.KindTime:
		if ts, ok := v.(expr.Time); ok {
			return ts, nil
		}
	}
	return nil, &EvalError{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("%s value where %s expected", expr.TypeOf(v), t),
	}
}

// valuesEqual compares two values for equality. Null equals only null;
// mixed numeric kinds compare by value; times compare as instants.
func valuesEqual(a, b expr.Value) bool {
	if expr.IsNull(a) || expr.IsNull(b) {
		return expr.IsNull(a) && expr.IsNull(b)
	}
	switch av := a.(type) {
	case expr.Int:
		switch bv := b.(type) {
		case expr.Int:
			return av == bv
		case expr.Float:
			return expr.Float(av) == bv
		}
	case expr.Float:
		switch bv := b.(type) {
		case expr.Float:
			return av == bv
		case expr.Int:
			return av == expr.Float(bv)
		}
	case expr.Time:
		if bv, ok := b.(expr.Time); ok {
			return time.Time(av).Equal(time.Time(bv))
		}
	default:
		return a == b
	}
	return false
}

// compareValues evaluates an ordering comparison. Null operands yield
// null; only matching scalar families order.
func compareValues(op expr.BinaryOp, a, b expr.Value) (expr.Value, error) {
	if expr.IsNull(a) || expr.IsNull(b) {
		return expr.Null{}, nil
	}
	var cmp int
	switch av := a.(type) {
	case expr.Int:
		switch bv := b.(type) {
		case expr.Int:
			cmp = compareOrdered(int64(av), int64(bv))
		case expr.Float:
			cmp = compareOrdered(float64(av), float64(bv))
		default:
			return nil, typeMismatch(op.String(), b)
		}
	case expr.Float:
		switch bv := b.(type) {
		case expr.Float:
			cmp = compareOrdered(float64(av), float64(bv))
		case expr.Int:
			cmp = compareOrdered(float64(av), float64(bv))
		default:
			return nil, typeMismatch(op.String(), b)
		}
	case expr.Str:
		bv, ok := b.(expr.Str)
		if !ok {
			return nil, typeMismatch(op.String(), b)
		}
		cmp = compareOrdered(string(av), string(bv))
	case expr.Time:
		bv, ok := b.(expr.Time)
		if !ok {
			return nil, typeMismatch(op.String(), b)
		}
		at, bt := time.Time(av), time.Time(bv)
		switch {
		case at.Before(bt):
			cmp = -1
		case at.After(bt):
			cmp = 1
		}
	default:
		return nil, typeMismatch(op.String(), a)
	}
	switch op {
	case expr.OpLt:
		return expr.Bool(cmp < 0), nil
	case expr.OpLe:
		return expr.Bool(cmp <= 0), nil
	case expr.OpGt:
		return expr.Bool(cmp > 0), nil
	default:
		return expr.Bool(cmp >= 0), nil
	}
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// arithmetic evaluates a numeric (or string concatenation) operator.
// Null propagates; mixed int and float widen to float; integer division
// and modulo by zero are evaluation errors.
func arithmetic(op expr.BinaryOp, a, b expr.Value) (expr.Value, error) {
	if expr.IsNull(a) || expr.IsNull(b) {
		return expr.Null{}, nil
	}
	if as, ok := a.(expr.Str); ok {
		bs, sok := b.(expr.Str)
		if !sok || op != expr.OpAdd {
			return nil, typeMismatch(op.String(), b)
		}
		return as + bs, nil
	}

	ai, aInt := a.(expr.Int)
	bi, bInt := b.(expr.Int)
	if aInt && bInt {
		switch op {
		case expr.OpAdd:
			return ai + bi, nil
		case expr.OpSub:
			return ai - bi, nil
		case expr.OpMul:
			return ai * bi, nil
		case expr.OpDiv:
			if bi == 0 {
				return nil, &EvalError{Code: ErrCodeDivideByZero, Message: "integer division by zero"}
			}
			return ai / bi, nil
		case expr.OpMod:
			if bi == 0 {
				return nil, &EvalError{Code: ErrCodeDivideByZero, Message: "integer modulo by zero"}
			}
			return ai % bi, nil
		}
	}

	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, typeMismatch(op.String(), a)
	}
	switch op {
	case expr.OpAdd:
		return expr.Float(af + bf), nil
	case expr.OpSub:
		return expr.Float(af - bf), nil
	case expr.OpMul:
		return expr.Float(af * bf), nil
	case expr.OpDiv:
		return expr.Float(af / bf), nil
	default:
		return nil, typeMismatch(op.String(), a)
	}
}

func asFloat(v expr.Value) (float64, bool) {
	switch val := v.(type) {
	case expr.Int:
		return float64(val), true
	case expr.Float:
		return float64(val), true
	default:
		return 0, false
	}
}

func typeMismatch(op string, v expr.Value) *EvalError {
	return &EvalError{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("operator %s cannot take a %s value", op, expr.TypeOf(v)),
	}
}
