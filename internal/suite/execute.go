package suite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roach88/anaphora/internal/bdd"
	"github.com/roach88/anaphora/internal/failure"
)

// Runner executes suites.
type Runner struct {
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger. Defaults to discarding output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scope is what a block inherits from its enclosing blocks.
type scope struct {
	dir     string
	env     map[string]string
	timeout time.Duration
}

func (sc scope) child(b *Block) scope {
	out := scope{dir: sc.dir, env: maps.Clone(sc.env), timeout: sc.timeout}
	if b.Dir != "" {
		if filepath.IsAbs(b.Dir) {
			out.dir = b.Dir
		} else {
			out.dir = filepath.Join(sc.dir, b.Dir)
		}
	}
	if out.env == nil {
		out.env = make(map[string]string, len(b.Env))
	}
	maps.Copy(out.env, b.Env)
	if b.timeout > 0 {
		out.timeout = b.timeout
	}
	return out
}

func (sc scope) environ() []string {
	env := os.Environ()
	for _, k := range slices.Sorted(maps.Keys(sc.env)) {
		env = append(env, k+"="+sc.env[k])
	}
	return env
}

// Execute runs every block of s as a node of run. It returns the error
// that aborted the run, if any; command failures only mark nodes failed.
func (r *Runner) Execute(ctx context.Context, run *bdd.Run, s *Suite) error {
	nouns := run.Grammar(s.Nouns()...)
	root := scope{dir: s.baseDir(), env: maps.Clone(s.Env)}

	r.logger.Info("suite started", "suite", s.Name, "path", s.Path, "blocks", len(s.Blocks))
	err := run.Execute(func(*bdd.Run) {
		for i := range s.Blocks {
			r.block(ctx, nouns, s, &s.Blocks[i], root)
		}
	})
	r.logger.Info("suite finished", "suite", s.Name, "error", err)
	return err
}

func (r *Runner) block(ctx context.Context, nouns map[string]*bdd.Noun, s *Suite, b *Block, parent scope) {
	sc := parent.child(b)

	var opts []bdd.NodeOption
	if b.Ignore != 0 {
		opts = append(opts, bdd.Ignore(b.Ignore))
	}
	for _, argv := range b.Before {
		opts = append(opts, bdd.Before(r.hook(ctx, argv, sc)))
	}
	for _, argv := range b.After {
		opts = append(opts, bdd.After(r.hook(ctx, argv, sc)))
	}

	nouns[b.Noun].Do(b.Description, func(n *bdd.Node) bdd.Result {
		if b.Skip != "" {
			return bdd.Skip(b.Skip)
		}
		if len(b.Command) > 0 {
			return r.command(ctx, n, s, b, sc)
		}
		for i := range b.Blocks {
			r.block(ctx, nouns, s, &b.Blocks[i], sc)
		}
		return bdd.OK()
	}, opts...)
}

// command runs a leaf's test command. A nonzero exit or a timeout is a
// command failure; a command that cannot start is a broken test.
func (r *Runner) command(ctx context.Context, n *bdd.Node, s *Suite, b *Block, sc scope) bdd.Result {
	res, err := r.exec(ctx, b.Command, sc, n.Output())
	if err != nil {
		return bdd.Errored(err)
	}
	if res.code != 0 {
		site := failure.Frame{Function: n.String(), Path: s.Path, Line: b.Line}
		n.CommandFailed(site, strings.Join(b.Command, " "), res.output, res.code)
	}
	return bdd.OK()
}

func (r *Runner) hook(ctx context.Context, argv []string, sc scope) bdd.Hook {
	return func(n *bdd.Node) error {
		res, err := r.exec(ctx, argv, sc, n.Output())
		if err != nil {
			return err
		}
		if res.code != 0 {
			return &HookError{Command: strings.Join(argv, " "), ExitStatus: res.code, Output: res.output}
		}
		return nil
	}
}

// HookError is a hook command that exited nonzero.
type HookError struct {
	Command    string
	ExitStatus int
	Output     string
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %q exited with status %d", e.Command, e.ExitStatus)
}

type result struct {
	output string
	code   int
}

// timedOut is the exit status reported for commands killed by their
// block's timeout.
const timedOut = -1

// exec runs argv, copying its combined output to out.
func (r *Runner) exec(ctx context.Context, argv []string, sc scope, out io.Writer) (result, error) {
	if err := ctx.Err(); err != nil {
		return result{}, err
	}

	runCtx := ctx
	if sc.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, sc.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	w := io.MultiWriter(&buf, out)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = sc.dir
	cmd.Env = sc.environ()
	cmd.Stdout = w
	cmd.Stderr = w

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		r.logger.Debug("command passed", "argv", argv, "dir", sc.dir, "elapsed", elapsed)
		return result{output: buf.String()}, nil
	case ctx.Err() != nil:
		return result{}, fmt.Errorf("run %s: %w", argv[0], ctx.Err())
	case runCtx.Err() != nil:
		fmt.Fprintf(w, "\ntimed out after %s\n", sc.timeout)
		r.logger.Debug("command timed out", "argv", argv, "timeout", sc.timeout)
		return result{output: buf.String(), code: timedOut}, nil
	case errors.As(err, &exitErr):
		r.logger.Debug("command failed", "argv", argv, "status", exitErr.ExitCode(), "elapsed", elapsed)
		return result{output: buf.String(), code: exitErr.ExitCode()}, nil
	default:
		return result{}, fmt.Errorf("run %s: %w", argv[0], err)
	}
}
