// Package failure defines the taxonomy of problems a test run can record.
//
// Every problem that reaches a node boundary is normalized into exactly one
// Failure with a Kind. The Kind fixes the Severity; the Severity together with
// the owning node's ignore level and the run's permissive flag decides whether
// the failure is terminal (aborts the whole run) or absorbed where it happened.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a taxonomy class.
type Kind string

const (
	// KindTestFailure is a failed assertion in a node body.
	KindTestFailure Kind = "TestFailure"

	// KindTestError is an unexpected error or panic in a node body.
	KindTestError Kind = "TestError"

	// KindHookError is a broken hook of no particular phase.
	KindHookError Kind = "HookError"

	// KindBeforeHookError is a broken before-hook.
	KindBeforeHookError Kind = "BeforeHookError"

	// KindAfterHookError is a broken after-hook.
	KindAfterHookError Kind = "AfterHookError"

	// KindSkipNode is an explicit skip request. It is control flow and is
	// never written to the store.
	KindSkipNode Kind = "SkipNode"

	// KindCommandFailure is a nonzero exit status from an external command
	// run as a test.
	KindCommandFailure Kind = "CommandFailure"
)

// Severity classifies how serious a Kind is.
type Severity int

const (
	// Benign failures are assertion-level and never abort the run.
	Benign Severity = iota
	// Critical failures abort the run unless ignored or permissive.
	Critical
)

func (s Severity) String() string {
	if s == Critical {
		return "critical"
	}
	return "benign"
}

// Severity returns the fixed severity of the kind.
func (k Kind) Severity() Severity {
	switch k {
	case KindTestError, KindHookError, KindBeforeHookError, KindAfterHookError:
		return Critical
	default:
		return Benign
	}
}

func (k Kind) problem() string {
	switch k {
	case KindTestFailure:
		return "failed assertion"
	case KindTestError:
		return "broken test body"
	case KindHookError:
		return "broken hook"
	case KindBeforeHookError:
		return "broken before hook"
	case KindAfterHookError:
		return "broken after hook"
	case KindSkipNode:
		return "was skipped"
	default:
		return "failure"
	}
}

// Owner is the node a failure is attached to.
type Owner interface {
	String() string
	// IgnoreLevel is 0 (counts), 1 (ignored) or 2 (warning).
	IgnoreLevel() int
	// Permissive reports whether the run relaxes critical failures.
	Permissive() bool
}

// Failure is a classified problem attached to exactly one node.
type Failure struct {
	Kind  Kind
	Owner Owner

	// Cause is the original error or recovered panic value.
	Cause error

	// Frames is the cause's stack, innermost first, with harness frames removed.
	Frames []Frame

	// Site is where the failure was reported when no cause stack exists.
	Site Frame

	// Output is text the node wrote while it ran.
	Output string

	// ExitStatus and Command are set for command failures only.
	ExitStatus int
	Command    string

	location *Frame
}

// New creates a failure of the given kind caused by cause.
// The frames are trimmed of harness-internal entries.
func New(kind Kind, owner Owner, cause error, frames []Frame) *Failure {
	return &Failure{
		Kind:   kind,
		Owner:  owner,
		Cause:  cause,
		Frames: Trim(frames),
	}
}

// Command creates a CommandFailure from the triple an external command
// adapter reports: where the command was declared, what it printed and how
// it exited.
func Command(owner Owner, site Frame, command, output string, exitStatus int) *Failure {
	return &Failure{
		Kind:       KindCommandFailure,
		Owner:      owner,
		Cause:      fmt.Errorf("exit status %d", exitStatus),
		Site:       site,
		Output:     output,
		ExitStatus: exitStatus,
		Command:    command,
	}
}

// Severity is shorthand for f.Kind.Severity().
func (f *Failure) Severity() Severity {
	return f.Kind.Severity()
}

// Terminal reports whether the failure must abort the run.
// Critical failures are terminal unless the owner is ignored (at any level)
// or the run is permissive. Benign failures never are.
func (f *Failure) Terminal() bool {
	if f.Severity() != Critical {
		return false
	}
	if f.Owner == nil {
		return true
	}
	return f.Owner.IgnoreLevel() == 0 && !f.Owner.Permissive()
}

// Class is the class name recorded in the store.
func (f *Failure) Class() string {
	level := 0
	if f.Owner != nil {
		level = f.Owner.IgnoreLevel()
	}
	if f.Kind == KindCommandFailure {
		switch level {
		case 2:
			return "TestWarning"
		case 1:
			return "IgnoredTestFailure"
		default:
			return string(KindTestFailure)
		}
	}
	if level == 1 {
		return "Ignored" + string(f.Kind)
	}
	return string(f.Kind)
}

// Problem is a short human description of what went wrong.
func (f *Failure) Problem() string {
	if f.Kind == KindCommandFailure {
		return fmt.Sprintf("exit status %d for %q", f.ExitStatus, f.Command)
	}
	return f.Kind.problem()
}

// Location returns the deepest user frame of the cause, or the report site.
// It is resolved on first use.
func (f *Failure) Location() Frame {
	if f.location == nil {
		loc := f.Site
		if len(f.Frames) > 0 {
			loc = f.Frames[0]
		}
		f.location = &loc
	}
	return *f.location
}

// Error formats the failure as "{class}: {problem} in {node} at {location}".
func (f *Failure) Error() string {
	owner := "<no node>"
	if f.Owner != nil {
		owner = f.Owner.String()
	}
	return fmt.Sprintf("%s: %s in %s at %s", f.Class(), f.Problem(), owner, f.Location())
}

// Unwrap returns the cause.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Traceback renders the first descriptive line of the cause followed by the
// user frames only.
func (f *Failure) Traceback() string {
	var buf strings.Builder
	if f.Cause != nil {
		first, _, _ := strings.Cut(f.Cause.Error(), "\n")
		buf.WriteString(first)
		buf.WriteByte('\n')
	}
	frames := f.Frames
	if len(frames) == 0 && f.Site.Valid() {
		frames = []Frame{f.Site}
	}
	for _, fr := range frames {
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", fr.Function, fr.Path, fr.Line)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Context is the function the failure was raised in.
func (f *Failure) Context() string {
	return f.Location().Function
}

// As extracts a *Failure from err's chain.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsTerminal returns true if err wraps a terminal failure.
func IsTerminal(err error) bool {
	f, ok := As(err)
	return ok && f.Terminal()
}

// KindOf returns the kind of the failure in err's chain, or "".
func KindOf(err error) Kind {
	if f, ok := As(err); ok {
		return f.Kind
	}
	return ""
}
