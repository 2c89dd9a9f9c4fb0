package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// treeCTE walks down from the root(s) selected by the anchor clause,
// materializing each node's depth below its root.
const treeCTE = `
	WITH RECURSIVE tree(id, depth) AS (
		SELECT id, 0 FROM nodes WHERE %s
		UNION ALL
		SELECT child.id, parent.depth + 1
		FROM nodes AS child
		JOIN tree AS parent ON child.parent_id = parent.id
	)
`

// treeAnchor selects rootID, or every root node when rootID is 0.
func treeAnchor(rootID int64) (string, []any) {
	if rootID == 0 {
		return "parent_id IS NULL", nil
	}
	return "id = ?", []any{rootID}
}

func (s *Store) nodeColumns() string {
	cols := []string{
		"n.id", "n.description", "n.parent_id", "nn.name", "n.outcome", "n.ignored", "n.finalized",
	}
	for _, c := range s.columns {
		cols = append(cols, "n."+quote(c.Name), "n."+quote(c.Child()))
	}
	return strings.Join(cols, ", ")
}

// Tree returns the subtree below rootID (the whole forest when rootID is 0),
// ordered by depth descending then id ascending, so every node appears
// after all of its descendants.
//
// Returns an empty slice (not nil) if no nodes match.
func (s *Store) Tree(ctx context.Context, rootID int64) ([]NodeRow, error) {
	anchor, args := treeAnchor(rootID)
	query := fmt.Sprintf(treeCTE, anchor) + fmt.Sprintf(`
		SELECT %s, tree.depth
		FROM tree
		JOIN nodes AS n ON n.id = tree.id
		JOIN nouns AS nn ON nn.id = n.noun_id
		ORDER BY tree.depth DESC, n.id ASC
	`, s.nodeColumns())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tree: %w", err)
	}
	defer rows.Close()

	nodes := []NodeRow{}
	for rows.Next() {
		row, err := s.scanNode(rows, true)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree: %w", err)
	}
	return nodes, nil
}

// Nodes returns every node in id order. Depth is not populated.
func (s *Store) Nodes(ctx context.Context) ([]NodeRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM nodes AS n
		JOIN nouns AS nn ON nn.id = n.noun_id
		ORDER BY n.id ASC
	`, s.nodeColumns()))
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []NodeRow{}
	for rows.Next() {
		row, err := s.scanNode(rows, false)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

// Node retrieves a single node by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) Node(ctx context.Context, id int64) (NodeRow, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM nodes AS n
		JOIN nouns AS nn ON nn.id = n.noun_id
		WHERE n.id = ?
	`, s.nodeColumns()), id)
	return s.scanNode(row, false)
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanNode(sc scanner, withDepth bool) (NodeRow, error) {
	var (
		row     NodeRow
		parent  sql.NullInt64
		outcome sql.NullString
		final   int
	)
	own := make([]sql.NullFloat64, len(s.columns))
	child := make([]sql.NullFloat64, len(s.columns))

	dest := []any{&row.ID, &row.Description, &parent, &row.Noun, &outcome, &row.Ignored, &final}
	for i := range s.columns {
		dest = append(dest, &own[i], &child[i])
	}
	if withDepth {
		dest = append(dest, &row.Depth)
	}

	if err := sc.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return NodeRow{}, err
		}
		return NodeRow{}, fmt.Errorf("scan node: %w", err)
	}

	row.ParentID = parent.Int64
	row.Outcome = outcome.String
	row.Finalized = final == 1
	row.Stats = make(map[string]float64, len(s.columns))
	row.Children = make(map[string]float64, len(s.columns))
	for i, c := range s.columns {
		if own[i].Valid {
			row.Stats[c.Name] = own[i].Float64
		}
		if child[i].Valid {
			row.Children[c.Name] = child[i].Float64
		}
	}
	return row, nil
}

// Depths returns the number of nodes at each depth below rootID (every
// root when rootID is 0), ordered by depth.
func (s *Store) Depths(ctx context.Context, rootID int64) ([]DepthCount, error) {
	anchor, args := treeAnchor(rootID)
	query := fmt.Sprintf(treeCTE, anchor) + `
		SELECT depth, COUNT(*) FROM tree
		GROUP BY depth
		ORDER BY depth ASC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query depths: %w", err)
	}
	defer rows.Close()

	depths := []DepthCount{}
	for rows.Next() {
		var d DepthCount
		if err := rows.Scan(&d.Depth, &d.Count); err != nil {
			return nil, fmt.Errorf("scan depth: %w", err)
		}
		depths = append(depths, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate depths: %w", err)
	}
	return depths, nil
}

// Depth returns the number of nodes exactly depth levels below rootID.
func (s *Store) Depth(ctx context.Context, rootID int64, depth int) (int, error) {
	anchor, args := treeAnchor(rootID)
	query := fmt.Sprintf(treeCTE, anchor) + `
		SELECT COUNT(*) FROM tree WHERE depth = ?
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, append(args, depth)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query depth: %w", err)
	}
	return count, nil
}

func ignoreClause(filter IgnoreFilter) (string, []any) {
	if filter == AnyIgnore {
		return "", nil
	}
	return "WHERE ignore = ?", []any{int(filter)}
}

// Exceptions returns exception rows in insertion order, filtered by the
// ignore level of the owning node.
//
// Returns an empty slice (not nil) if none match.
func (s *Store) Exceptions(ctx context.Context, filter IgnoreFilter) ([]ExceptionRecord, error) {
	where, args := ignoreClause(filter)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, e_class, e_context, e_message, e_traceback, e_output, e_line, e_path, e_terminal, node_id, ignore
		FROM exceptions
		%s
		ORDER BY id ASC
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	records := []ExceptionRecord{}
	for rows.Next() {
		var r ExceptionRecord
		if err := rows.Scan(
			&r.ID, &r.Class, &r.Context, &r.Message, &r.Traceback, &r.Output,
			&r.Line, &r.Path, &r.Terminal, &r.NodeID, &r.Ignore,
		); err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exceptions: %w", err)
	}
	return records, nil
}

// ExceptionCount counts exception rows matching filter.
func (s *Store) ExceptionCount(ctx context.Context, filter IgnoreFilter) (int, error) {
	where, args := ignoreClause(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exceptions "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count exceptions: %w", err)
	}
	return count, nil
}

// Nouns returns every noun in id order.
func (s *Store) Nouns(ctx context.Context) ([]Noun, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM nouns ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query nouns: %w", err)
	}
	defer rows.Close()

	nouns := []Noun{}
	for rows.Next() {
		var n Noun
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, fmt.Errorf("scan noun: %w", err)
		}
		nouns = append(nouns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nouns: %w", err)
	}
	return nouns, nil
}

// Meta returns every run-level key/value pair.
func (s *Store) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	return meta, nil
}
