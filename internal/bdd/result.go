package bdd

import "github.com/roach88/anaphora/internal/failure"

// Outcome is the final state of a node.
type Outcome int

const (
	// Unset while a node is active, or after it finalized abnormally.
	Unset Outcome = iota
	Succeeded
	Failed
	// Skipped nodes persist no outcome.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unset"
	}
}

// stored returns the value written to the outcome column.
func (o Outcome) stored() string {
	switch o {
	case Succeeded, Failed:
		return o.String()
	default:
		return ""
	}
}

type resultKind int

const (
	resultOK resultKind = iota
	resultFailed
	resultErrored
	resultSkipped
)

// Result is what a body reports back to its node.
type Result struct {
	kind   resultKind
	err    error
	reason string
	site   failure.Frame
}

// OK reports a body that completed normally.
func OK() Result {
	return Result{kind: resultOK}
}

// Fail reports a failed expectation. It is recorded as a TestFailure.
func Fail(err error) Result {
	return Result{kind: resultFailed, err: err, site: failure.Caller(1)}
}

// Errored reports an unexpected error. It is recorded as a TestError, which
// aborts the run unless the node is ignored or the run is permissive.
func Errored(err error) Result {
	return Result{kind: resultErrored, err: err, site: failure.Caller(1)}
}

// Skip reports that the body chose not to run. The node persists no outcome.
func Skip(reason string) Result {
	return Result{kind: resultSkipped, reason: reason}
}

// IsOK reports whether r is OK.
func (r Result) IsOK() bool { return r.kind == resultOK }

// Err returns the error carried by Fail or Errored results.
func (r Result) Err() error { return r.err }

// Reason returns the reason carried by a Skip result.
func (r Result) Reason() string { return r.reason }
