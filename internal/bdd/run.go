package bdd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/anaphora/internal/failure"
	"github.com/roach88/anaphora/internal/stats"
	"github.com/roach88/anaphora/internal/store"
)

// Clock supplies the instants runtime spans are measured with.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Run is the context of one harness run: the store it writes to, the stats
// it tracks and the stack of currently active nodes.
//
// A Run is single-threaded. Nodes execute depth-first on the goroutine that
// calls Do, and only the innermost active node may create children.
type Run struct {
	ctx        context.Context
	id         string
	store      *store.Store
	registry   *stats.Registry
	tracked    []*stats.Stat
	trackNames []string
	logger     *slog.Logger
	clock      Clock
	permissive bool
	noCapture  bool

	stack   []*Node
	roots   []*Node
	summary Summary
}

// Option configures a Run.
type Option func(*Run)

// WithLogger sets the structured logger. Defaults to discarding output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Run) {
		r.logger = logger
	}
}

// WithClock sets the clock used for runtime spans.
func WithClock(clock Clock) Option {
	return func(r *Run) {
		r.clock = clock
	}
}

// WithPermissive downgrades critical failures to non-terminal run-wide.
func WithPermissive(permissive bool) Option {
	return func(r *Run) {
		r.permissive = permissive
	}
}

// WithStdoutCapture controls whether os.Stdout is redirected into each
// node's captured output while its body runs. Enabled by default.
func WithStdoutCapture(enabled bool) Option {
	return func(r *Run) {
		r.noCapture = !enabled
	}
}

// WithRegistry sets the stat registry. Defaults to one holding the builtins.
func WithRegistry(reg *stats.Registry) Option {
	return func(r *Run) {
		r.registry = reg
	}
}

// WithTracked limits the persisted stats to names. Defaults to every
// declared stat.
func WithTracked(names ...string) Option {
	return func(r *Run) {
		r.trackNames = names
	}
}

// New starts a run writing to st. It creates the stat columns for the
// tracked stats and records the run's metadata.
func New(ctx context.Context, st *store.Store, opts ...Option) (*Run, error) {
	r := &Run{
		ctx:    ctx,
		id:     uuid.Must(uuid.NewV7()).String(),
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = stats.NewRegistry()
		stats.RegisterBuiltins(r.registry)
	}

	tracked, err := r.registry.Tracked(r.trackNames...)
	if err != nil {
		return nil, fmt.Errorf("new run: %w", err)
	}
	r.tracked = tracked

	if err := st.TrackStats(ctx, tracked); err != nil {
		return nil, fmt.Errorf("new run: %w", err)
	}

	meta := map[string]string{
		"run_id":     r.id,
		"started_at": r.clock.Now().UTC().Format(time.RFC3339Nano),
		"permissive": fmt.Sprint(r.permissive),
	}
	for k, v := range meta {
		if err := st.WriteMeta(ctx, k, v); err != nil {
			return nil, fmt.Errorf("new run: %w", err)
		}
	}

	r.logger.Info("run started", "run_id", r.id, "store", st.Path(), "tracked", len(tracked))
	return r, nil
}

// ID returns the run's UUIDv7.
func (r *Run) ID() string { return r.id }

// Store returns the store the run writes to.
func (r *Run) Store() *store.Store { return r.store }

// Registry returns the run's stat registry.
func (r *Run) Registry() *stats.Registry { return r.registry }

// Permissive reports whether critical failures are downgraded run-wide.
func (r *Run) Permissive() bool { return r.permissive }

// Current returns the innermost active node, or nil outside any node.
func (r *Run) Current() *Node {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// Depth returns the number of active nodes.
func (r *Run) Depth() int {
	return len(r.stack)
}

// Roots returns the top-level nodes created so far.
func (r *Run) Roots() []*Node {
	out := make([]*Node, len(r.roots))
	copy(out, r.roots)
	return out
}

// Root returns the first top-level node, or nil before any ran.
func (r *Run) Root() *Node {
	if len(r.roots) == 0 {
		return nil
	}
	return r.roots[0]
}

func (r *Run) push(n *Node) {
	r.stack = append(r.stack, n)
}

// pop removes n, which must be the innermost active node.
func (r *Run) pop(n *Node) {
	if len(r.stack) == 0 || r.stack[len(r.stack)-1] != n {
		panic(fmt.Sprintf("bdd: scope stack corrupted: %s is not the current node", n))
	}
	r.stack = r.stack[:len(r.stack)-1]
}

// Execute calls fn and converts a failure that aborts the run into the
// returned error: a terminal *failure.Failure, a *FatalError, or an
// *ExitSignal.
func (r *Run) Execute(fn func(r *Run)) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		switch v := rec.(type) {
		case *failure.Failure:
			err = v
		case *FatalError:
			err = v
		case *ExitSignal:
			err = v
		default:
			panic(rec)
		}
		r.summary.Aborted = err
		r.logger.Error("run aborted", "run_id", r.id, "error", err)
	}()

	fn(r)
	return nil
}

// Summary counts finalized nodes and recorded failures.
type Summary struct {
	Succeeded int
	// Failed counts failed nodes that are not ignored.
	Failed int
	// Ignored counts failed nodes with a nonzero ignore level.
	Ignored    int
	Skipped    int
	Exceptions int
	// Aborted is the error that stopped the run early, if any.
	Aborted error
}

// OK reports whether the run finished without real failures.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Aborted == nil
}

func (s *Summary) count(n *Node) {
	switch n.outcome {
	case Succeeded:
		s.Succeeded++
	case Failed:
		if n.ignore == 0 {
			s.Failed++
		} else {
			s.Ignored++
		}
	case Skipped:
		s.Skipped++
	}
	s.Exceptions += len(n.failures)
}

// Finish returns the run's summary.
func (r *Run) Finish() Summary {
	return r.summary
}

// Close records the run's end in the store's metadata. It does not close
// the store, which stays readable for reporting.
func (r *Run) Close() error {
	meta := map[string]string{
		"finished_at": r.clock.Now().UTC().Format(time.RFC3339Nano),
		"status":      "ok",
	}
	if !r.summary.OK() {
		meta["status"] = "failed"
	}
	if r.summary.Aborted != nil {
		meta["status"] = "aborted"
	}
	for k, v := range meta {
		if err := r.store.WriteMeta(r.ctx, k, v); err != nil {
			return fmt.Errorf("close run: %w", err)
		}
	}

	r.logger.Info("run finished",
		"run_id", r.id,
		"succeeded", r.summary.Succeeded,
		"failed", r.summary.Failed,
		"skipped", r.summary.Skipped,
		"exceptions", r.summary.Exceptions,
	)
	return nil
}

// FatalError aborts a run because its configuration cannot be honored:
// the store rejected a write or a tracked stat could not be computed.
type FatalError struct {
	Node string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal configuration error in %s: %v", e.Node, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ExitSignal requests immediate termination. It unwinds every active node
// without running hooks or recording anything.
type ExitSignal struct {
	Code int
}

func (e *ExitSignal) Error() string {
	return fmt.Sprintf("exit requested with status %d", e.Code)
}

// Exit terminates the run from inside a body or hook.
func Exit(code int) {
	panic(&ExitSignal{Code: code})
}
