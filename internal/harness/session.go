package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/stratahq/strata/internal/compiler"
	"github.com/stratahq/strata/internal/engine"
	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/plan"
	"github.com/stratahq/strata/internal/schema"
	"github.com/stratahq/strata/internal/store"
	"github.com/stratahq/strata/internal/testutil"
	"github.com/stratahq/strata/internal/translate"
)

// Session is one wired pipeline over a loaded fixture: compiled
// model, populated in-memory store, planner, translator, and runner
// sharing a deterministic execution context.
type Session struct {
	fixture    *Fixture
	model      *schema.Model
	store      *store.Store
	planner    *plan.Planner
	translator *translate.Translator
	exec       *engine.ExecContext
	runner     *engine.Runner
	logger     *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger. Defaults to a discarding logger
// so fixture runs stay quiet under test.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// OpenSession loads a fixture file and builds the full pipeline over
// it. Each session owns a fresh in-memory database for isolation.
func OpenSession(ctx context.Context, fixturePath string, opts ...SessionOption) (*Session, error) {
	fx, err := LoadFixture(fixturePath)
	if err != nil {
		return nil, err
	}
	return NewSession(ctx, fx, opts...)
}

// NewSession builds the pipeline over an already-loaded fixture.
func NewSession(ctx context.Context, fx *Fixture, opts ...SessionOption) (*Session, error) {
	s := &Session{
		fixture: fx,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	model, err := compileModelFile(fx.Model)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
	}
	s.model = model

	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
	}
	if err := st.LoadModel(ctx, model); err != nil {
		st.Close()
		return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
	}
	s.store = st

	if err := s.insertRows(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
	}

	params := make(map[string]expr.Value, len(fx.Params))
	for name, raw := range fx.Params {
		v, err := paramValue(raw)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("fixture %s: param %s: %w", fx.Name, name, err)
		}
		params[name] = v
	}

	s.exec = engine.NewExecContext(
		engine.WithParams(params),
		engine.WithTokenGenerator(testutil.NewFixedRunGenerator(fx.RunToken)),
		engine.WithClock(testutil.NewDeterministicClock()),
	)
	s.planner = plan.NewPlanner(model)
	s.translator = translate.New(model, translate.WithSubqueries(s.planner))
	s.runner = engine.NewRunner(model, st, s.exec, engine.WithRunnerLogger(s.logger))

	s.logger.Info("session opened",
		"fixture", fx.Name,
		"model", model.Name(),
		"run", s.exec.RunToken(),
	)
	return s, nil
}

// Close releases the session's store.
func (s *Session) Close() error { return s.store.Close() }

func (s *Session) Fixture() *Fixture                 { return s.fixture }
func (s *Session) Model() *schema.Model              { return s.model }
func (s *Session) Store() *store.Store               { return s.store }
func (s *Session) Planner() *plan.Planner            { return s.planner }
func (s *Session) Translator() *translate.Translator { return s.translator }
func (s *Session) Runner() *engine.Runner            { return s.runner }
func (s *Session) RunToken() string                  { return s.exec.RunToken() }

// Query builds a query over one entity with an optional filter and
// selection, in that order.
func (s *Session) Query(entity string, where, sel *expr.Lambda) (*plan.Query, error) {
	q, err := s.planner.NewQuery(entity)
	if err != nil {
		return nil, err
	}
	if where != nil {
		if err := s.planner.ApplyFilter(q, where); err != nil {
			return nil, err
		}
	}
	if sel != nil {
		if err := s.planner.ApplySelection(q, sel); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Run executes a query against the fixture rows.
func (s *Session) Run(ctx context.Context, q *plan.Query) ([]*engine.ValueBuffer, error) {
	return s.runner.Run(ctx, q)
}

// Translate rewrites a scalar expression against the fixture model.
func (s *Session) Translate(root expr.Node) (expr.Node, error) {
	return s.translator.Translate(root)
}

// Eval translates a scalar expression and evaluates the result,
// returning both the translated tree and the value it produced.
func (s *Session) Eval(ctx context.Context, root expr.Node) (expr.Node, expr.Value, error) {
	out, err := s.translator.Translate(root)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.runner.Evaluator().Eval(ctx, out, nil)
	if err != nil {
		return out, nil, err
	}
	return out, v, nil
}

// insertRows loads the fixture rows, hierarchy by hierarchy, typed by
// the hierarchy layout.
func (s *Session) insertRows(ctx context.Context) error {
	names := make([]string, 0, len(s.fixture.Rows))
	for name := range s.fixture.Rows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entity, ok := s.model.Entity(name)
		if !ok {
			return fmt.Errorf("rows.%s: unknown entity", name)
		}
		types := layoutTypes(entity.Root())

		raws := s.fixture.Rows[name]
		rows := make([][]expr.Value, len(raws))
		for i, raw := range raws {
			if len(raw) != len(types) {
				return fmt.Errorf("rows.%s[%d]: %d columns, layout has %d", name, i, len(raw), len(types))
			}
			row := make([]expr.Value, len(types))
			for c, cell := range raw {
				v, err := fixtureValue(cell, types[c])
				if err != nil {
					return fmt.Errorf("rows.%s[%d] column %d: %w", name, i, c, err)
				}
				row[c] = v
			}
			rows[i] = row
		}
		if err := s.store.InsertRows(ctx, entity, rows); err != nil {
			return fmt.Errorf("rows.%s: %w", name, err)
		}
	}
	return nil
}

// layoutTypes returns the declared type of every column in a
// hierarchy's layout, discriminator tag first.
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

// compileModelFile compiles and validates one CUE model file.
func compileModelFile(path string) (*schema.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	spec, err := compiler.CompileModel(v.LookupPath(cue.ParsePath("model")))
	if err != nil {
		return nil, fmt.Errorf("compile model %s: %w", path, err)
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("model %s: %s", path, strings.Join(msgs, "; "))
	}
	return schema.NewModel(spec)
}
