package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratahq/strata/internal/expr"
	"github.com/stratahq/strata/internal/schema"
)

// InsertRows appends full-layout rows to one hierarchy's table in a
// single transaction. Each row carries every layout column: the
// discriminator tag first, then all property slots, null where the
// row's concrete type does not declare the property.
//
// The discriminator must name a concrete type of the hierarchy; rows
// for abstract or foreign types are rejected before anything writes.
func (s *Store) InsertRows(ctx context.Context, entity *schema.Entity, rows [][]expr.Value) error {
	root := entity.Root()
	width := root.Width()

	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("insert rows: row %d has %d columns, layout has %d", i, len(row), width)
		}
		if err := checkDiscriminator(root, row[schema.DiscriminatorColumn]); err != nil {
			return fmt.Errorf("insert rows: row %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert rows: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	cols := make([]string, width)
	marks := make([]string, width)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)",
		tableName(root), strings.Join(cols, ", "), strings.Join(marks, ", "),
	))
	if err != nil {
		return fmt.Errorf("insert rows: prepare: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		args := make([]any, width)
		for c, v := range row {
			args[c], err = valueToSQL(v)
			if err != nil {
				return fmt.Errorf("insert rows: row %d column %d: %w", i, c, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert rows: row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert rows: commit: %w", err)
	}
	return nil
}

// checkDiscriminator verifies the tag names a concrete type in the
// hierarchy.
func checkDiscriminator(root *schema.Entity, tag expr.Value) error {
	for _, concrete := range root.ConcreteTypes() {
		if concrete.Discriminator == tag {
			return nil
		}
	}
	return fmt.Errorf("discriminator %v names no concrete type under %s", tag, root.Name)
}
