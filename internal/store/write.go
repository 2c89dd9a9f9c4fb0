package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AddNoun returns the id of the noun called name, inserting it on first use.
// Names are NFC-normalized so visually identical names share one row.
func (s *Store) AddNoun(ctx context.Context, name string) (int64, error) {
	name = norm.NFC.String(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add noun: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nouns (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`, name); err != nil {
		return 0, schemaErr("add noun", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM nouns WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("add noun: select existing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add noun: commit: %w", err)
	}
	return id, nil
}

// AddNode inserts a node row and returns its generated id.
// A parentID of 0 inserts a root node.
func (s *Store) AddNode(ctx context.Context, description string, parentID, nounID int64) (int64, error) {
	var parent sql.NullInt64
	if parentID != 0 {
		parent = sql.NullInt64{Int64: parentID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (description, parent_id, noun_id)
		VALUES (?, ?, ?)
	`, norm.NFC.String(description), parent, nounID)
	if err != nil {
		return 0, schemaErr("add node", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add node: last insert id: %w", err)
	}
	return id, nil
}

// UpdateNode finalizes a node: it writes the node's own stat values, the
// children's aggregate read from the aggregate view, and the outcome, all in
// one statement. Every child must be finalized first.
func (s *Store) UpdateNode(ctx context.Context, u NodeUpdate) error {
	sets := make([]string, 0, 2*len(s.columns)+3)
	args := make([]any, 0, len(s.columns)+4)
	args = append(args, u.ID)

	for _, c := range s.columns {
		v, ok := u.Values[c.Name]
		if !ok {
			return schemaErr("update node", fmt.Errorf("no value for tracked stat %q", c.Name))
		}
		sets = append(sets,
			quote(c.Name)+" = ?",
			fmt.Sprintf("%s = (SELECT %s FROM ag)", quote(c.Child()), quote("ag_"+c.Name)),
		)
		args = append(args, v)
	}

	var outcome sql.NullString
	if u.Outcome != "" {
		outcome = sql.NullString{String: u.Outcome, Valid: true}
	}
	sets = append(sets, "outcome = ?", "ignored = ?", "finalized = 1")
	args = append(args, outcome, u.Ignored, u.ID)

	query := fmt.Sprintf(`
		WITH ag AS (SELECT * FROM aggregate WHERE parent_id = ?)
		UPDATE nodes SET %s
		WHERE id = ?
	`, strings.Join(sets, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return schemaErr("update node", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update node: rows affected: %w", err)
	}
	if n == 0 {
		return schemaErr("update node", fmt.Errorf("node %d does not exist", u.ID))
	}
	return nil
}

// AddException inserts one exception row and returns its id.
func (s *Store) AddException(ctx context.Context, rec ExceptionRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO exceptions
		(e_class, e_context, e_message, e_traceback, e_output, e_line, e_path, e_terminal, node_id, ignore)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Class,
		rec.Context,
		rec.Message,
		rec.Traceback,
		rec.Output,
		rec.Line,
		rec.Path,
		rec.Terminal,
		rec.NodeID,
		rec.Ignore,
	)
	if err != nil {
		return 0, schemaErr("add exception", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add exception: last insert id: %w", err)
	}
	return id, nil
}

// WriteMeta records a run-level key/value pair, replacing any earlier value.
func (s *Store) WriteMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}
