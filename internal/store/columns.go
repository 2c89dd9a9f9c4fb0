package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/anaphora/internal/stats"
)

// Column describes one tracked stat: an own-value column on nodes named
// after the stat and a child_ column holding the children's aggregate.
type Column struct {
	Name string
	Type stats.Type
	Mode stats.Mode
}

// Child returns the name of the children-aggregate column.
func (c Column) Child() string {
	return "child_" + c.Name
}

// ErrStatsTracked is returned when TrackStats is called on a store that
// already has stat columns.
var ErrStatsTracked = errors.New("stats already tracked")

var reservedColumns = map[string]bool{
	"id":          true,
	"description": true,
	"parent_id":   true,
	"noun_id":     true,
	"outcome":     true,
	"ignored":     true,
	"finalized":   true,
	"depth":       true,
	"noun":        true,
}

// quote returns name as a quoted SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TrackStats adds an own and a child_ column to nodes for each stat and
// creates the aggregate view over them. It must be called once, before the
// first AddNode.
func (s *Store) TrackStats(ctx context.Context, tracked []*stats.Stat) error {
	if len(s.columns) > 0 {
		return schemaErr("track stats", ErrStatsTracked)
	}

	columns := make([]Column, 0, len(tracked))
	seen := map[string]bool{}
	for _, st := range tracked {
		c := Column{Name: st.Name, Type: st.Type, Mode: st.Mode}
		for _, name := range []string{c.Name, c.Child()} {
			if reservedColumns[name] {
				return schemaErr("track stats", fmt.Errorf("stat %q collides with column %q", st.Name, name))
			}
			if seen[name] {
				return schemaErr("track stats", fmt.Errorf("stat %q collides with another stat's column %q", st.Name, name))
			}
			seen[name] = true
		}
		columns = append(columns, c)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("track stats: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for i, c := range columns {
		for _, name := range []string{c.Name, c.Child()} {
			stmt := fmt.Sprintf("ALTER TABLE nodes ADD COLUMN %s %s", quote(name), c.Type)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return schemaErr("track stats", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO stats (name, type, mode, position) VALUES (?, ?, ?, ?)",
			c.Name, string(c.Type), string(c.Mode), i,
		); err != nil {
			return schemaErr("track stats", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DROP VIEW IF EXISTS aggregate"); err != nil {
		return schemaErr("track stats", err)
	}
	if _, err := tx.ExecContext(ctx, aggregateViewSQL(columns)); err != nil {
		return schemaErr("track stats", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("track stats: %w", err)
	}

	s.columns = columns
	return nil
}

// Columns returns the tracked stat columns in table order.
func (s *Store) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// aggregateViewSQL builds the aggregate view: one row per parent with, for
// each stat, the total of the finalized children's effective values.
//
// A child's effective value already covers its own subtree:
//   - all: own + children's aggregate (NULL for leaves counts as 0)
//   - children: children's aggregate if it has any children, else own
func aggregateViewSQL(columns []Column) string {
	var b strings.Builder
	b.WriteString("CREATE VIEW aggregate AS\nSELECT parent_id")
	for _, c := range columns {
		own, child := quote(c.Name), quote(c.Child())
		var effective string
		switch c.Mode {
		case stats.Children:
			effective = fmt.Sprintf("CASE WHEN %s IS NULL THEN %s ELSE %s END", child, own, child)
		default:
			effective = fmt.Sprintf("%s + COALESCE(%s, 0)", own, child)
		}
		fmt.Fprintf(&b, ",\n    TOTAL(%s) AS %s", effective, quote("ag_"+c.Name))
	}
	b.WriteString("\nFROM nodes\nWHERE parent_id IS NOT NULL AND finalized = 1\nGROUP BY parent_id")
	return b.String()
}

// loadColumns reads the tracked stat columns recorded by TrackStats.
func (s *Store) loadColumns(ctx context.Context) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, type, mode FROM stats ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		var c Column
		var typ, mode string
		if err := rows.Scan(&c.Name, &typ, &mode); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		c.Type, c.Mode = stats.Type(typ), stats.Mode(mode)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return columns, nil
}
