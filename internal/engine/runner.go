package engine

import (
	"context"
	"log/slog"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/plan"
	"github.com/stratahq/strata/internal/schema"
)

// RowSource streams the stored rows of one hierarchy in storage order.
// Each row is the full hierarchy layout: the discriminator tag first,
// then every property column.
type RowSource interface {
	HierarchyRows(ctx context.Context, root string) ([][]expr.Value, error)
}

// Runner executes compiled queries: it scans the source hierarchy,
// narrows rows to the query's entity type by discriminator, applies the
// compiled filter, and materializes result buffers per the query's
// result mode. It also serves the evaluator's embedded subqueries, so
// correlated plans re-enter the same runner.
type Runner struct {
	model  *schema.Model
	source RowSource
	exec   *ExecContext
	eval   *Evaluator
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerFunctions merges extra named functions into the runner's
// evaluator.
func WithRunnerFunctions(funcs map[string]BuiltinFunc) RunnerOption {
	return func(r *Runner) { r.eval = NewEvaluator(r.exec, WithSubplans(r), WithFunctions(funcs), WithEvalLogger(r.logger)) }
}

// NewRunner creates a runner over one model, row source, and execution
// context.
func NewRunner(model *schema.Model, source RowSource, exec *ExecContext, opts ...RunnerOption) *Runner {
	r := &Runner{
		model:  model,
		source: source,
		exec:   exec,
		logger: slog.Default(),
	}
	r.eval = NewEvaluator(exec, WithSubplans(r), WithEvalLogger(r.logger))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluator returns the runner's evaluator, wired back to the runner
// for embedded subqueries.
func (r *Runner) Evaluator() *Evaluator { return r.eval }

// Run executes a query top-level and returns its result rows. Streaming
// queries return every match; single-row modes return one buffer, which
// may be the empty row when the query allows a default.
func (r *Runner) Run(ctx context.Context, q *plan.Query) ([]*ValueBuffer, error) {
	return r.runQuery(ctx, q, nil)
}

// RunSubplan executes an embedded single-row plan for the evaluator.
// The environment carries the enclosing scope, so correlated filters
// see the outer rows. Implements SubplanRunner.
func (r *Runner) RunSubplan(ctx context.Context, handle expr.SubplanHandle, env *Env) (*ValueBuffer, error) {
	q, ok := handle.(*plan.Query)
	if !ok {
		return nil, &EvalError{
			Code:    ErrCodeUntranslatedNode,
			Message: "embedded plan handle is not a compiled query",
		}
	}
	rows, err := r.runQuery(ctx, q, env)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, NewCardinalityError(q.Entity().Name)
	}
	return rows[0], nil
}

func (r *Runner) runQuery(ctx context.Context, q *plan.Query, env *Env) ([]*ValueBuffer, error) {
	q.ApplyProjection()
	step := r.exec.Clock().Next()

	stored, err := r.source.HierarchyRows(ctx, q.Entity().Root().Name)
	if err != nil {
		return nil, err
	}
	rowExpr, ok := q.RowExpression().(*expr.BufferInit)
	if !ok {
		return nil, NewUntranslatedNodeError(expr.Render(q.RowExpression()))
	}

	var (
		results []*ValueBuffer
		matched int
	)
	for _, cols := range stored {
		row := NewRow(cols...)
		if !r.rowIsEntity(row, q.Entity()) {
			continue
		}
		rowEnv := env.With(q.Row(), row)
		if filter := q.Filter(); filter != nil {
			v, err := r.eval.Eval(ctx, filter, rowEnv)
			if err != nil {
				return nil, err
			}
			// A null filter result excludes the row.
			if b, ok := v.(expr.Bool); !ok || !bool(b) {
				continue
			}
		}
		matched++

		switch q.Mode() {
		case plan.ModeCount:
			// Columns are synthesized constants; only the count matters.
			continue
		case plan.ModeSingle:
			if matched > 1 {
				return nil, NewCardinalityError(q.Entity().Name)
			}
		}

		// Without a selection the result is the entity row itself; the
		// projection's root-reference column never evaluates.
		out := row
		if q.HasSelection() {
			out, err = r.eval.EvalRow(ctx, rowExpr, rowEnv)
			if err != nil {
				return nil, err
			}
		}
		results = append(results, out)

		if q.Mode() == plan.ModeFirst {
			break
		}
	}

	r.logger.Debug("query executed",
		"run", r.exec.RunToken(),
		"step", step,
		"entity", q.Entity().Name,
		"row", q.Row(),
		"mode", q.Mode().String(),
		"matched", matched,
	)

	switch q.Mode() {
	case plan.ModeRows:
		return results, nil
	case plan.ModeCount:
		return []*ValueBuffer{NewRow(expr.Int(matched))}, nil
	default:
		if len(results) == 0 {
			if q.OrDefault() {
				return []*ValueBuffer{EmptyRow()}, nil
			}
			return nil, NewNoRowsError(q.Entity().Name)
		}
		return results[:1], nil
	}
}

// rowIsEntity reports whether a stored row's discriminator names the
// query entity or one of its concrete subtypes.
func (r *Runner) rowIsEntity(row *ValueBuffer, e *schema.Entity) bool {
	disc, err := row.Col(schema.DiscriminatorColumn)
	if err != nil {
		return false
	}
	for _, concrete := range e.ConcreteTypes() {
		if valuesEqual(disc, concrete.Discriminator) {
			return true
		}
	}
	return false
}
