package bdd

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/roach88/anaphora/internal/failure"
	"github.com/roach88/anaphora/internal/stats"
)

// State is a node's position in its lifecycle.
type State int

const (
	Created State = iota
	Active
	Exiting
	Finalized
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Exiting:
		return "exiting"
	case Finalized:
		return "finalized"
	default:
		return "created"
	}
}

// Body is the test code of a node.
type Body func(n *Node) Result

// NodeOption configures a single node.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	hooks  Hooks
	ignore int
	env    Env
}

// Before adds a hook that runs before the body.
func Before(h Hook) NodeOption {
	return func(c *nodeConfig) { c.hooks.Add(BeforeHooks, h) }
}

// After adds a hook that runs after the body, whatever its outcome.
func After(h Hook) NodeOption {
	return func(c *nodeConfig) { c.hooks.Add(AfterHooks, h) }
}

// Ignore sets the ignore level: 0 counts against the run, 1 is tracked but
// excluded from the run status, 2 is reported as a warning. Any nonzero
// level keeps critical failures from aborting the run.
func Ignore(level int) NodeOption {
	return func(c *nodeConfig) { c.ignore = level }
}

// WithEnv sets the name table the node protects. Nodes without one share
// their parent's.
func WithEnv(env Env) NodeOption {
	return func(c *nodeConfig) { c.env = env }
}

// Node is one execution of a test block.
type Node struct {
	run         *Run
	noun        *Noun
	id          int64
	description string
	parent      *Node
	children    []*Node

	state      State
	outcome    Outcome
	skipReason string
	ignore     int
	hooks      Hooks
	env        Env
	envBefore  envSnapshot
	failures   []*failure.Failure
	spans      map[string]time.Duration
	cache      *stats.Cache
	output     bytes.Buffer
}

func (r *Run) newNode(noun *Noun, description string, opts []NodeOption) *Node {
	var cfg nodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	n := &Node{
		run:         r,
		noun:        noun,
		description: description,
		parent:      r.Current(),
		ignore:      cfg.ignore,
		hooks:       cfg.hooks,
		env:         cfg.env,
		spans:       make(map[string]time.Duration, len(stats.Spans)),
		cache:       stats.NewCache(),
	}
	if n.env == nil {
		if n.parent != nil {
			n.env = n.parent.env
		} else {
			n.env = Env{}
		}
	}
	return n
}

// ID returns the node's row id in the store.
func (n *Node) ID() int64 { return n.id }

// Description returns the caller-supplied label.
func (n *Node) Description() string { return n.description }

// Noun returns the node's type name.
func (n *Node) Noun() string { return n.noun.name }

// Parent returns the enclosing node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the nodes created directly inside this one.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Run returns the run the node belongs to.
func (n *Node) Run() *Run { return n.run }

// State returns the node's lifecycle state.
func (n *Node) State() State { return n.state }

// Outcome returns the node's outcome so far. Failures in children mark
// their ancestors failed while they are still active.
func (n *Node) Outcome() Outcome { return n.outcome }

// SkipReason returns why the node was skipped, if it was.
func (n *Node) SkipReason() string { return n.skipReason }

// IgnoreLevel implements failure.Owner.
func (n *Node) IgnoreLevel() int { return n.ignore }

// Permissive implements failure.Owner.
func (n *Node) Permissive() bool { return n.run.permissive }

func (n *Node) String() string {
	return fmt.Sprintf("%s: %s", n.noun.name, n.description)
}

// Failures returns the failures recorded on this node.
func (n *Node) Failures() []*failure.Failure {
	out := make([]*failure.Failure, len(n.failures))
	copy(out, n.failures)
	return out
}

// Env returns the node's protected name table.
func (n *Node) Env() Env { return n.env }

// Output returns a writer whose contents are attached to failures recorded
// on this node.
func (n *Node) Output() io.Writer { return &n.output }

// Captured returns everything written to Output so far.
func (n *Node) Captured() string { return n.output.String() }

// AddHook registers a hook while the node is active. After-hooks added by
// the body still run at exit.
func (n *Node) AddHook(kind HookKind, h Hook) {
	n.hooks.Add(kind, h)
}

// Grammar returns noun constructors like Run.Grammar and also binds them
// into the node's environment under their names. Bindings that did not
// exist when the node entered disappear when it exits.
func (n *Node) Grammar(names ...string) map[string]*Noun {
	g := n.run.Grammar(names...)
	for name, noun := range g {
		n.env[name] = noun
	}
	return g
}

// Stat resolves a stat for this node, computing it at most once while the
// node is active. Values are recomputed once more at finalization, when
// the outcome and spans are final. It panics with a *stats.ResolveError if the stat is
// unknown or depends on itself.
func (n *Node) Stat(name string) float64 {
	v, err := n.cache.Resolve(n.run.registry, name, n)
	if err != nil {
		panic(err)
	}
	return v
}

// Succeeded implements stats.Node.
func (n *Node) Succeeded() bool { return n.outcome == Succeeded }

// Failed implements stats.Node.
func (n *Node) Failed() bool { return n.outcome == Failed }

// Skipped implements stats.Node.
func (n *Node) Skipped() bool { return n.outcome == Skipped }

// Elapsed implements stats.Node.
func (n *Node) Elapsed(span string) time.Duration { return n.spans[span] }

// FailureCount implements stats.Node.
func (n *Node) FailureCount() int { return len(n.failures) }

// SkipNow stops the body and marks the node skipped. After-hooks still run.
func (n *Node) SkipNow(reason string) {
	panic(failure.New(failure.KindSkipNode, n, skipCause(reason), nil))
}

type skipCause string

func (s skipCause) Error() string { return string(s) }

// CommandFailed files the failure of an external command run as this
// node's test: where it was declared, what it printed and how it exited.
func (n *Node) CommandFailed(site failure.Frame, command, output string, exitStatus int) *failure.Failure {
	f := failure.Command(n, site, command, output, exitStatus)
	n.record(f)
	n.fail()
	return f
}

// Ignore changes the ignore level while the node is active. Failures
// recorded from then on, including hook failures filed at exit, use the
// new level; failures already recorded keep theirs.
func (n *Node) Ignore(level int) {
	if level < 0 || level > 2 {
		panic(fmt.Errorf("ignore level must be 0, 1 or 2, got %d", level))
	}
	n.ignore = level
}

// hasAncestor reports whether o is one of the nodes enclosing n.
func (n *Node) hasAncestor(o failure.Owner) bool {
	for p := n.parent; p != nil; p = p.parent {
		if failure.Owner(p) == o {
			return true
		}
	}
	return false
}

// fail marks the node and its ancestors failed. The cascade stops at the
// first ignored node so ignored failures never count against the run.
func (n *Node) fail() {
	for p := n; p != nil; p = p.parent {
		p.outcome = Failed
		if p.ignore != 0 {
			break
		}
	}
}

// absorbs reports whether critical failures stay local to this node.
func (n *Node) absorbs() bool {
	return n.ignore != 0 || n.run.permissive
}

var (
	_ stats.Node    = (*Node)(nil)
	_ failure.Owner = (*Node)(nil)
)
