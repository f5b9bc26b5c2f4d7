package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratahq/strata/internal/expr"
)

// HierarchyRows reads every stored row of a hierarchy in storage order.
// Rows come back in the full layout the engine scans: discriminator
// tag first, then every property column.
//
// Ordering is seq ASC - insertion order - so repeated reads of the same
// fixture stream rows identically. Implements the engine's row source.
func (s *Store) HierarchyRows(ctx context.Context, rootName string) ([][]expr.Value, error) {
	if s.model == nil {
		return nil, fmt.Errorf("hierarchy rows: no model loaded")
	}
	entity, ok := s.model.Entity(rootName)
	if !ok {
		return nil, fmt.Errorf("hierarchy rows: unknown entity %q", rootName)
	}
	root := entity.Root()
	types := layoutTypes(root)

	cols := make([]string, len(types))
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %q ORDER BY seq ASC",
		strings.Join(cols, ", "), tableName(root),
	))
	if err != nil {
		return nil, fmt.Errorf("hierarchy rows: query %s: %w", root.Name, err)
	}
	defer rows.Close()

	var out [][]expr.Value
	for rows.Next() {
		raw := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("hierarchy rows: scan: %w", err)
		}
		row := make([]expr.Value, len(types))
		for i, r := range raw {
			v, err := sqlToValue(r, types[i])
			if err != nil {
				return nil, fmt.Errorf("hierarchy rows: column c%d: %w", i, err)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hierarchy rows: iterate: %w", err)
	}
	return out, nil
}

// CountRows reports the stored row count for one hierarchy. Used by
// the CLI's fixture inspection.
func (s *Store) CountRows(ctx context.Context, rootName string) (int64, error) {
	if s.model == nil {
		return 0, fmt.Errorf("count rows: no model loaded")
	}
	entity, ok := s.model.Entity(rootName)
	if !ok {
		return 0, fmt.Errorf("count rows: unknown entity %q", rootName)
	}
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %q", tableName(entity.Root()),
	)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}
