package engine

import "github.com/stratahq/strata/internal/expr"

// ExecContext carries the per-run execution state: the external
// parameter values, the run token, and the step clock.
//
// A context is built once per run and read-only afterwards; it is safe
// to share across the evaluator and the runner.
type ExecContext struct {
	params   map[string]expr.Value
	runToken string
	clock    Clock
}

// ContextOption configures an ExecContext.
type ContextOption func(*ExecContext)

// WithParams sets the external parameter values, keyed by full
// parameter name including the external prefix.
func WithParams(params map[string]expr.Value) ContextOption {
	return func(c *ExecContext) {
		for k, v := range params {
			c.params[k] = v
		}
	}
}

// WithParam sets one external parameter value.
func WithParam(name string, v expr.Value) ContextOption {
	return func(c *ExecContext) { c.params[name] = v }
}

// WithRunToken sets a fixed run token, bypassing generation.
func WithRunToken(token string) ContextOption {
	return func(c *ExecContext) { c.runToken = token }
}

// WithTokenGenerator sets the run token generator. Ignored when
// WithRunToken supplies a fixed token.
func WithTokenGenerator(g RunTokenGenerator) ContextOption {
	return func(c *ExecContext) {
		if c.runToken == "" {
			c.runToken = g.Generate()
		}
	}
}

// WithClock sets the step clock. Defaults to a fresh StepClock.
func WithClock(clock Clock) ContextOption {
	return func(c *ExecContext) { c.clock = clock }
}

// NewExecContext creates an execution context. Without options the
// context has no parameters, a fresh UUIDv7 run token, and a step clock
// starting at 0.
func NewExecContext(opts ...ContextOption) *ExecContext {
	c := &ExecContext{params: map[string]expr.Value{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.runToken == "" {
		c.runToken = UUIDv7Generator{}.Generate()
	}
	if c.clock == nil {
		c.clock = NewClock()
	}
	return c
}

// Param resolves one external parameter by its full name.
func (c *ExecContext) Param(name string) (expr.Value, bool) {
	v, ok := c.params[name]
	return v, ok
}

// RunToken reports the token naming this run.
func (c *ExecContext) RunToken() string { return c.runToken }

// Clock reports the run's step clock.
func (c *ExecContext) Clock() Clock { return c.clock }
