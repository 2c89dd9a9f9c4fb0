package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that stand in for flags,
// e.g. ANAPHORA_FORMAT=json or ANAPHORA_SAVE=archive.
const EnvPrefix = "ANAPHORA"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// v resolves every flag, falling back to ANAPHORA_* variables.
	v *viper.Viper
}

// Verbose reports whether debug logging was requested.
func (o *RootOptions) Verbose() bool { return o.v.GetBool("verbose") }

// Format returns "json" or "text".
func (o *RootOptions) Format() string { return o.v.GetString("format") }

// formatter builds an output formatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format(),
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose(),
	}
}

// logger returns a text logger on w at level, or debug when verbose.
func (o *RootOptions) logger(w io.Writer, level slog.Level) *slog.Logger {
	if o.Verbose() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the anaphora CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: viper.New()}
	opts.v.SetEnvPrefix(EnvPrefix)
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "anaphora",
		Short: "anaphora - behavior-driven test harness",
		Long: `Run nested suites of test blocks and keep the results as a tree.

Every block is recorded with its outcome, its failures and per-node
statistics (counts and runtimes, own and aggregated over children) in a
SQLite database that the inspect commands read back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format()) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format(), ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	cmd.PersistentFlags().String("format", "text", "output format (json|text)")
	_ = opts.v.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	_ = opts.v.BindPFlag("format", cmd.PersistentFlags().Lookup("format"))

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
