// Package stats declares composable per-node statistics.
//
// A Stat is a named pure function of a node. Composite stats reuse other
// stats through Node.Stat, which resolves through the node's Cache so that
// every stat is evaluated at most once per node.
//
// Declaring a stat:
//
//	reg := stats.NewRegistry()
//	reg.Declare(stats.Stat{
//	    Name:    "hooks",
//	    Compute: func(n stats.Node) float64 { return n.Stat("before") + n.Stat("after") },
//	    Type:    stats.Real,
//	    Mode:    stats.Children,
//	})
//
// Mode decides how the store folds a node's own value together with its
// children when the node finalizes:
//
//   - All: the node and its children are independent contributions
//     (counts). Aggregate = own + children.
//   - Children: the node's own value already includes its children's
//     (elapsed time). Aggregate = children when any exist, else own.
package stats

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"
)

// Type is the SQL column type used to persist a stat.
type Type string

const (
	Integer Type = "INTEGER"
	Numeric Type = "NUMERIC"
	Real    Type = "REAL"
)

// Mode is the aggregation strategy of a stat.
type Mode string

const (
	All      Mode = "all"
	Children Mode = "children"
)

// Node is the view of a node that compute functions see.
type Node interface {
	// Stat resolves another declared stat for the same node.
	Stat(name string) float64
	Succeeded() bool
	Failed() bool
	Skipped() bool
	// Elapsed returns the duration recorded for a runtime span.
	Elapsed(span string) time.Duration
	FailureCount() int
	IgnoreLevel() int
}

// Compute evaluates a stat for one node.
type Compute func(n Node) float64

// Stat is a named, typed, memoized computation over a node.
type Stat struct {
	Name    string
	Compute Compute
	Type    Type
	Mode    Mode
}

var (
	// ErrUnknownStat is returned when a stat name was never declared.
	ErrUnknownStat = errors.New("unknown stat")

	// ErrCycle is returned when stats depend on each other in a loop.
	ErrCycle = errors.New("stat depends on itself")

	// ErrNonFinite is returned when a stat computes NaN or an infinity,
	// which no column can store.
	ErrNonFinite = errors.New("stat value is not finite")
)

// ResolveError reports a stat that could not be computed.
type ResolveError struct {
	Name string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("stat %q: %v", e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// validName matches names usable as SQL column identifiers.
var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s *Stat) validate() error {
	if !validName.MatchString(s.Name) {
		return fmt.Errorf("invalid stat name %q: must be a SQL identifier", s.Name)
	}
	if s.Compute == nil {
		return fmt.Errorf("stat %q: compute function is required", s.Name)
	}
	switch s.Type {
	case Integer, Numeric, Real:
	default:
		return fmt.Errorf("stat %q: invalid type %q: must be INTEGER, NUMERIC or REAL", s.Name, s.Type)
	}
	switch s.Mode {
	case All, Children:
	default:
		return fmt.Errorf("stat %q: invalid aggregation mode %q: must be all or children", s.Name, s.Mode)
	}
	return nil
}

// Value converts a computed value into the form stored in the stat's column.
func (s *Stat) Value(v float64) any {
	if s.Type == Integer {
		return int64(math.Round(v))
	}
	return v
}

func (s *Stat) eval(n Node) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(*ResolveError); ok {
				err = re
				return
			}
			err = &ResolveError{Name: s.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v = s.Compute(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ResolveError{Name: s.Name, Err: fmt.Errorf("%w: %v", ErrNonFinite, v)}
	}
	return v, nil
}
