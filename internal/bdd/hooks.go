package bdd

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"

	"github.com/roach88/anaphora/internal/failure"
)

// Hook runs before or after a node's body.
type Hook func(n *Node) error

// HookKind selects the before or after list.
type HookKind int

const (
	BeforeHooks HookKind = iota
	AfterHooks
)

func (k HookKind) String() string {
	if k == AfterHooks {
		return "after"
	}
	return "before"
}

func (k HookKind) failureKind() failure.Kind {
	if k == AfterHooks {
		return failure.KindAfterHookError
	}
	return failure.KindBeforeHookError
}

type hookError struct {
	err    error
	frames []failure.Frame
	site   failure.Frame
}

// Hooks holds a node's ordered hook lists and the errors they raised.
// Errors never propagate out of Run; they queue until ConsumeError.
type Hooks struct {
	lists  [2][]Hook
	errors [2][]hookError
}

// Add appends hook to the list of the given kind.
func (h *Hooks) Add(kind HookKind, hook Hook) {
	h.lists[kind] = append(h.lists[kind], hook)
}

// Len returns the number of hooks of the given kind.
func (h *Hooks) Len(kind HookKind) int {
	return len(h.lists[kind])
}

// Run calls every hook of the given kind in order. A hook that returns an
// error or panics has the problem queued and the remaining hooks still run.
func (h *Hooks) Run(kind HookKind, n *Node) {
	for _, hook := range h.lists[kind] {
		h.call(kind, hook, n)
	}
}

func (h *Hooks) call(kind HookKind, hook Hook, n *Node) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if escapesHooks(rec) {
			panic(rec)
		}
		h.errors[kind] = append(h.errors[kind], hookError{
			err:    panicError(rec),
			frames: failure.Capture(0),
			site:   funcFrame(hook),
		})
	}()

	if err := hook(n); err != nil {
		h.errors[kind] = append(h.errors[kind], hookError{err: err, site: funcFrame(hook)})
	}
}

// escapesHooks reports whether a panic must unwind past the hook that
// raised it: exit signals, fatal errors and terminal failures of nodes the
// hook ran.
func escapesHooks(rec any) bool {
	switch v := rec.(type) {
	case *ExitSignal, *FatalError:
		return true
	case *failure.Failure:
		return v.Terminal()
	default:
		return false
	}
}

// Pending reports whether errors of the given kind are queued.
func (h *Hooks) Pending(kind HookKind) bool {
	return len(h.errors[kind]) > 0
}

// ConsumeError drains the queue of the given kind into a single hook
// failure owned by owner, or returns nil when nothing is queued. Every
// queued error is kept in the cause; the first one locates the failure.
func (h *Hooks) ConsumeError(kind HookKind, owner failure.Owner) *failure.Failure {
	queued := h.errors[kind]
	if len(queued) == 0 {
		return nil
	}
	h.errors[kind] = nil

	cause := queued[0].err
	if len(queued) > 1 {
		errs := make([]error, len(queued))
		for i, q := range queued {
			errs[i] = q.err
		}
		cause = errors.Join(errs...)
	}

	f := failure.New(kind.failureKind(), owner, cause, queued[0].frames)
	f.Site = queued[0].site
	return f
}

// panicError turns a recovered panic value into an error.
func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// funcFrame locates the declaration of fn.
func funcFrame(fn any) failure.Frame {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return failure.Frame{}
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return failure.Frame{}
	}
	file, line := f.FileLine(f.Entry())
	return failure.Frame{Function: f.Name(), Path: file, Line: line}
}
