package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/anaphora/internal/bdd"
	"github.com/roach88/anaphora/internal/config"
	"github.com/roach88/anaphora/internal/store"
	"github.com/roach88/anaphora/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// RunReport is the result of one run command.
type RunReport struct {
	RunID      string `json:"run_id"`
	Suite      string `json:"suite"`
	Database   string `json:"database"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Ignored    int    `json:"ignored"`
	Skipped    int    `json:"skipped"`
	Exceptions int    `json:"exceptions"`
	Aborted    string `json:"aborted,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <suite.yaml>",
		Short: "Run a test suite",
		Long: `Run every block of a suite and record the results.

Settings come from --config (YAML or CUE), then flags, then ANAPHORA_*
environment variables. Without --save or --db the results stay in memory
and only the summary is printed.

Exit status is 0 when nothing failed, 1 when a test failed or the run
aborted, and 2 when the suite or configuration could not be used.

Examples:
  anaphora run suites/checkout.yaml
  anaphora run suites/checkout.yaml --save archive --module checkout
  anaphora run suites/checkout.yaml --config anaphora.cue --permissive
  ANAPHORA_SAVE=replace anaphora run suites/checkout.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, args[0], cmd)
		},
	}

	cmd.Flags().String("config", "", "configuration file (.yaml, .yml or .cue)")
	cmd.Flags().String("save", "", "save mode (replace|archive)")
	cmd.Flags().String("module", "", "database file name stem (defaults to the suite name)")
	cmd.Flags().String("db", "", "explicit database path (overrides --save)")
	cmd.Flags().Bool("permissive", false, "keep running after critical failures")
	cmd.Flags().StringSlice("stat", nil, "stats to persist (default: all)")
	for _, name := range []string{"config", "save", "module", "db", "permissive", "stat"} {
		_ = opts.v.BindPFlag(name, cmd.Flags().Lookup(name))
	}

	return cmd
}

// resolveConfig loads --config and applies flag and environment overrides.
func (o *RunOptions) resolveConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := o.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.v.IsSet("save") {
		cfg.Save = o.v.GetString("save")
	}
	if o.v.IsSet("module") {
		cfg.Module = o.v.GetString("module")
	}
	if o.v.IsSet("db") {
		cfg.Database = o.v.GetString("db")
	}
	if o.v.IsSet("permissive") {
		cfg.Permissive = o.v.GetBool("permissive")
	}
	if o.v.IsSet("stat") {
		cfg.Stats = o.v.GetStringSlice("stat")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSuite(opts *RunOptions, suitePath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.resolveConfig()
	if err != nil {
		return reportError(f, ErrCodeConfig, WrapExitError(ExitCommandError, "invalid configuration", err))
	}

	s, err := suite.Load(suitePath)
	if err != nil {
		return reportError(f, ErrCodeSuite, WrapExitError(ExitCommandError, "failed to load suite", err))
	}

	module := cfg.Module
	if module == store.DefaultModule && !opts.v.IsSet("module") {
		module = s.Name
	}
	dbPath := cfg.Database
	if dbPath == "" {
		dbPath, err = store.ResolvePath(module, cfg.Save, time.Now())
		if err != nil {
			return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to resolve database path", err))
		}
	}

	logger := opts.logger(cmd.ErrOrStderr(), cfg.SlogLevel())
	f.VerboseLog("opening database %s", dbPath)

	st, err := store.Open(dbPath)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to open database", err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	reg, err := cfg.Registry()
	if err != nil {
		return reportError(f, ErrCodeConfig, WrapExitError(ExitCommandError, "invalid stats", err))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := bdd.New(ctx, st,
		bdd.WithLogger(logger),
		bdd.WithPermissive(cfg.Permissive),
		bdd.WithRegistry(reg),
		bdd.WithTracked(cfg.Stats...),
	)
	if err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to start run", err))
	}

	runErr := suite.NewRunner(suite.WithLogger(logger)).Execute(ctx, run, s)
	if err := run.Close(); err != nil {
		return reportError(f, ErrCodeStore, WrapExitError(ExitCommandError, "failed to record run", err))
	}

	sum := run.Finish()
	report := RunReport{
		RunID:      run.ID(),
		Suite:      s.Name,
		Database:   dbPath,
		Succeeded:  sum.Succeeded,
		Failed:     sum.Failed,
		Ignored:    sum.Ignored,
		Skipped:    sum.Skipped,
		Exceptions: sum.Exceptions,
	}
	if runErr != nil {
		report.Aborted = runErr.Error()
	}

	code, exitErr := runOutcome(runErr, sum)
	if err := printRunReport(ctx, f, st, report, code, exitErr); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if exitErr == nil {
		return nil
	}
	return exitErr
}

// runOutcome maps how the run ended to an error code and exit error. Both
// are zero when nothing failed or the suite exited with status 0.
func runOutcome(runErr error, sum bdd.Summary) (string, *ExitError) {
	var exit *bdd.ExitSignal
	switch {
	case errors.As(runErr, &exit):
		if exit.Code == ExitSuccess {
			return "", nil
		}
		return ErrCodeRunAborted, WrapExitError(exit.Code, "run exited", runErr)
	case runErr != nil:
		return ErrCodeRunAborted, WrapExitError(ExitFailure, "run aborted", runErr)
	case sum.Failed > 0:
		return ErrCodeTestsFailed, NewExitError(ExitFailure, fmt.Sprintf("%d failed", sum.Failed))
	}
	return "", nil
}

func printRunReport(ctx context.Context, f *OutputFormatter, st *store.Store, report RunReport, code string, exitErr *ExitError) error {
	if f.Format == "json" {
		if exitErr != nil {
			return f.Failure(code, exitErr.Error(), report)
		}
		return f.Success(report)
	}

	header := table.Row{"Suite", "Succeeded", "Failed", "Ignored", "Skipped", "Exceptions"}
	rows := []table.Row{{report.Suite, report.Succeeded, report.Failed, report.Ignored, report.Skipped, report.Exceptions}}
	if err := f.Table(header, rows, nil); err != nil {
		return err
	}

	if report.Failed > 0 || report.Aborted != "" {
		recs, err := st.Exceptions(ctx, store.Real)
		if err != nil {
			return err
		}
		failures := make([]table.Row, 0, len(recs))
		for _, rec := range recs {
			failures = append(failures, table.Row{rec.Class, fmt.Sprintf("%s:%d", rec.Path, rec.Line), rec.Message})
		}
		if err := f.Table(table.Row{"Class", "Location", "Failure"}, failures, nil); err != nil {
			return err
		}
	}
	if report.Aborted != "" {
		fmt.Fprintf(f.Writer, "aborted: %s\n", report.Aborted)
	}
	if report.Database != store.MemoryPath {
		fmt.Fprintf(f.Writer, "database: %s\n", report.Database)
	}
	return nil
}
