package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/anaphora/internal/store"
)

// InspectOptions holds flags shared by the inspect subcommands.
type InspectOptions struct {
	*RootOptions
	Database string
	Root     int64
	Stats    []string
	Ignore   string
}

// ignoreFilters maps --ignore values to store filters.
var ignoreFilters = map[string]store.IgnoreFilter{
	"all":      store.AnyIgnore,
	"real":     store.Real,
	"ignored":  store.Ignored,
	"warnings": store.Warnings,
}

// NewInspectCommand creates the inspect command and its subcommands.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read back a results database",
		Long: `Read back the tree, failures and metadata recorded by a run.

Examples:
  anaphora inspect tree --db checkout.db
  anaphora inspect tree --db checkout.db --root 12 --stat failed,during
  anaphora inspect exceptions --db checkout.db --ignore warnings
  anaphora inspect depths --db checkout.db --format json`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "results database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	tree := &cobra.Command{
		Use:   "tree",
		Short: "Show every node with its stats, children first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return inspectTree(ctx, opts, st, cmd)
			})
		},
	}
	tree.Flags().Int64Var(&opts.Root, "root", 0, "node id to start from (default: every root)")
	tree.Flags().StringSliceVar(&opts.Stats, "stat", nil, "stats to show (default: all tracked)")

	depths := &cobra.Command{
		Use:   "depths",
		Short: "Count nodes at each depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return inspectDepths(ctx, opts, st, cmd)
			})
		},
	}
	depths.Flags().Int64Var(&opts.Root, "root", 0, "node id to start from (default: every root)")

	exceptions := &cobra.Command{
		Use:   "exceptions",
		Short: "List recorded failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return inspectExceptions(ctx, opts, st, cmd)
			})
		},
	}
	exceptions.Flags().StringVar(&opts.Ignore, "ignore", "real", "ignore level to list (all|real|ignored|warnings)")

	meta := &cobra.Command{
		Use:   "meta",
		Short: "Show run metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return inspectMeta(ctx, opts, st, cmd)
			})
		},
	}

	cmd.AddCommand(tree, depths, exceptions, meta)
	return cmd
}

// withStore opens an existing database for fn.
func withStore(opts *InspectOptions, cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(opts.Database); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reportError(f, ErrCodeNotFound, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database)))
		}
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to read database", err))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to open database", err))
	}
	defer st.Close()

	return fn(context.Background(), st)
}

// treeRow is the JSON form of one node in inspect tree.
type treeRow struct {
	ID          int64              `json:"id"`
	ParentID    int64              `json:"parent_id,omitempty"`
	Depth       int                `json:"depth"`
	Noun        string             `json:"noun"`
	Description string             `json:"description"`
	Outcome     string             `json:"outcome,omitempty"`
	Ignored     int                `json:"ignored"`
	Stats       map[string]float64 `json:"stats"`
	Children    map[string]float64 `json:"children,omitempty"`
}

// selectStats returns the requested stat names, or every tracked one.
func selectStats(st *store.Store, requested []string) ([]string, *ExitError) {
	var tracked []string
	for _, c := range st.Columns() {
		tracked = append(tracked, c.Name)
	}
	if len(requested) == 0 {
		return tracked, nil
	}
	for _, name := range requested {
		if !slices.Contains(tracked, name) {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("stat %q is not tracked in this database (tracked: %v)", name, tracked))
		}
	}
	return requested, nil
}

func pick(values map[string]float64, names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

func formatStat(values map[string]float64, name string) string {
	v, ok := values[name]
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func inspectTree(ctx context.Context, opts *InspectOptions, st *store.Store, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	names, unknown := selectStats(st, opts.Stats)
	if unknown != nil {
		return reportError(f, ErrCodeNotFound, unknown)
	}
	nodes, err := st.Tree(ctx, opts.Root)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to read tree", err))
	}

	header := table.Row{"ID", "Parent", "Depth", "Noun", "Description", "Outcome"}
	for _, name := range names {
		header = append(header, name, "child_"+name)
	}

	data := make([]treeRow, 0, len(nodes))
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		data = append(data, treeRow{
			ID:          n.ID,
			ParentID:    n.ParentID,
			Depth:       n.Depth,
			Noun:        n.Noun,
			Description: n.Description,
			Outcome:     n.Outcome,
			Ignored:     n.Ignored,
			Stats:       pick(n.Stats, names),
			Children:    pick(n.Children, names),
		})

		outcome := n.Outcome
		if outcome == "" {
			outcome = "-"
		}
		parent := "-"
		if n.ParentID != 0 {
			parent = strconv.FormatInt(n.ParentID, 10)
		}
		row := table.Row{n.ID, parent, n.Depth, n.Noun, n.Description, outcome}
		for _, name := range names {
			row = append(row, formatStat(n.Stats, name), formatStat(n.Children, name))
		}
		rows = append(rows, row)
	}

	return f.Table(header, rows, data)
}

func inspectDepths(ctx context.Context, opts *InspectOptions, st *store.Store, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	depths, err := st.Depths(ctx, opts.Root)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to read depths", err))
	}

	rows := make([]table.Row, 0, len(depths))
	for _, d := range depths {
		rows = append(rows, table.Row{d.Depth, d.Count})
	}
	return f.Table(table.Row{"Depth", "Count"}, rows, depths)
}

func inspectExceptions(ctx context.Context, opts *InspectOptions, st *store.Store, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	filter, ok := ignoreFilters[opts.Ignore]
	if !ok {
		return reportError(f, ErrCodeGeneric, NewExitError(ExitCommandError,
			fmt.Sprintf("invalid ignore level %q: must be one of all, real, ignored, warnings", opts.Ignore)))
	}

	recs, err := st.Exceptions(ctx, filter)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to read exceptions", err))
	}

	rows := make([]table.Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, table.Row{rec.ID, rec.NodeID, rec.Class, fmt.Sprintf("%s:%d", rec.Path, rec.Line), rec.Message})
	}
	return f.Table(table.Row{"ID", "Node", "Class", "Location", "Message"}, rows, recs)
}

func inspectMeta(ctx context.Context, opts *InspectOptions, st *store.Store, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	meta, err := st.Meta(ctx)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to read metadata", err))
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, table.Row{k, meta[k]})
	}
	return f.Table(table.Row{"Key", "Value"}, rows, meta)
}
