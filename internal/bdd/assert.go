package bdd

import (
	"fmt"
	"strings"

	"github.com/stretchr/testify/assert"
)

// AssertionError is raised by the assertion helpers. A body that panics
// with one records a TestFailure, which never aborts the run.
type AssertionError struct {
	Message  string
	Expected any
	Actual   any
	compared bool
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	if !e.compared {
		return e.Message
	}

	var buf strings.Builder
	buf.WriteString(e.Message)
	fmt.Fprintf(&buf, "\n  Expected: %#v", e.Expected)
	fmt.Fprintf(&buf, "\n  Actual: %#v", e.Actual)
	return buf.String()
}

// Require stops the body with a TestFailure unless cond holds.
func (n *Node) Require(cond bool, msg string) {
	if !cond {
		panic(&AssertionError{Message: msg})
	}
}

// Requiref is Require with a formatted message.
func (n *Node) Requiref(cond bool, format string, args ...any) {
	if !cond {
		panic(&AssertionError{Message: fmt.Sprintf(format, args...)})
	}
}

// Equal stops the body with a TestFailure unless expected and actual are
// equal. []byte values compare by content.
func (n *Node) Equal(expected, actual any) {
	if assert.ObjectsAreEqual(expected, actual) {
		return
	}
	panic(&AssertionError{
		Message:  "values differ",
		Expected: expected,
		Actual:   actual,
		compared: true,
	})
}

// NoError stops the body with a TestFailure if err is non-nil.
func (n *Node) NoError(err error) {
	if err != nil {
		panic(&AssertionError{Message: "unexpected error: " + err.Error()})
	}
}

// Failf stops the body with a TestFailure.
func (n *Node) Failf(format string, args ...any) {
	panic(&AssertionError{Message: fmt.Sprintf(format, args...)})
}
