package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/stratahq/strata/internal/engine"
	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/plan"
)

// Snapshot accumulates one deterministic trace of a session: the
// fixture identity, then one section per translated expression or
// executed query. Everything renders through the canonical forms
// (expr.Render, Query.Describe, expr.RenderValue), so structurally
// equal runs produce byte-identical snapshots.
type Snapshot struct {
	b strings.Builder
}

// NewSnapshot starts a snapshot with the session's identity header.
func NewSnapshot(s *Session) *Snapshot {
	sn := &Snapshot{}
	fmt.Fprintf(&sn.b, "fixture: %s\n", s.fixture.Name)
	fmt.Fprintf(&sn.b, "run: %s\n", s.RunToken())
	return sn
}

// Scalar records one translated scalar expression and the value it
// evaluated to.
func (sn *Snapshot) Scalar(name string, translated expr.Node, v expr.Value) {
	fmt.Fprintf(&sn.b, "\nscalar: %s\n", name)
	fmt.Fprintf(&sn.b, "expr: %s\n", expr.Render(translated))
	fmt.Fprintf(&sn.b, "value: %s\n", expr.RenderValue(v))
}

// Query records one executed query and the rows it produced.
func (sn *Snapshot) Query(name string, q *plan.Query, rows []*engine.ValueBuffer) {
	fmt.Fprintf(&sn.b, "\nquery: %s\n", name)
	fmt.Fprintf(&sn.b, "plan: %s\n", q.Describe())
	fmt.Fprintf(&sn.b, "rows: %d\n", len(rows))
	for _, row := range rows {
		sn.b.WriteString(formatRow(row))
		sn.b.WriteByte('\n')
	}
}

// Assert compares the snapshot against testdata/golden/<name>.golden.
func (sn *Snapshot) Assert(t *testing.T, name string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(sn.b.String()))
}

func formatRow(row *engine.ValueBuffer) string {
	if row.IsEmpty() {
		return "  <empty>"
	}
	vals := row.Values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = expr.RenderValue(v)
	}
	return "  [" + strings.Join(parts, " ") + "]"
}
