package bdd

import (
	"bytes"
	"io"
	"os"

	"github.com/roach88/anaphora/internal/failure"
	"github.com/roach88/anaphora/internal/stats"
	"github.com/roach88/anaphora/internal/store"
)

// escape is how control left a guarded section: a recovered panic value,
// with the stack it was raised on, or the body's result.
type escape struct {
	value  any
	frames []failure.Frame
	result Result
}

// do runs one node through its whole lifecycle:
//
//	CREATED → ACTIVE → EXITING → FINALIZED
//
// Whatever happens in hooks or body, the node is popped and its bindings
// restored before do returns or unwinds.
func (r *Run) do(noun *Noun, description string, body Body, opts []NodeOption) Outcome {
	n := r.newNode(noun, description, opts)

	start := r.clock.Now()
	r.enter(n)
	defer r.cleanup(n)
	n.spans[stats.SpanSetup] = r.clock.Now().Sub(start)

	esc := n.activate(body)
	n.exit(esc)
	return n.outcome
}

// enter registers the node in the store and makes it current.
func (r *Run) enter(n *Node) {
	nounID, err := r.store.AddNoun(r.ctx, n.noun.name)
	if err != nil {
		panic(&FatalError{Node: n.String(), Err: err})
	}

	var parentID int64
	if n.parent != nil {
		parentID = n.parent.id
	}
	id, err := r.store.AddNode(r.ctx, n.description, parentID, nounID)
	if err != nil {
		panic(&FatalError{Node: n.String(), Err: err})
	}
	n.id = id

	if n.parent != nil {
		n.parent.children = append(n.parent.children, n)
	} else {
		r.roots = append(r.roots, n)
	}

	n.envBefore = n.env.snapshot()
	r.push(n)
	n.state = Active
	r.logger.Debug("node entered", "id", n.id, "noun", n.noun.name, "description", n.description, "depth", r.Depth())
}

// cleanup unwinds a node that did not finalize: an exit signal, a fatal
// error or runtime.Goexit passed through it.
func (r *Run) cleanup(n *Node) {
	if n.state == Finalized {
		return
	}
	n.env.restore(n.envBefore)
	n.cache.Release()
	r.pop(n)
	n.state = Finalized
	r.logger.Debug("node abandoned", "id", n.id, "description", n.description)
}

// activate runs the before-hooks and then the body. The body does not run
// when a before-hook failed and that failure is going to abort the run.
func (n *Node) activate(body Body) escape {
	clock := n.run.clock

	start := clock.Now()
	esc := n.guard(func() Result {
		n.hooks.Run(BeforeHooks, n)
		return OK()
	})
	n.spans[stats.SpanBefore] = clock.Now().Sub(start)
	if esc.value != nil {
		return esc
	}

	if n.hooks.Pending(BeforeHooks) && !n.absorbs() {
		return escape{result: OK()}
	}

	start = clock.Now()
	esc = n.runBody(body)
	n.spans[stats.SpanDuring] = clock.Now().Sub(start)
	return esc
}

// runBody calls the body with os.Stdout redirected into the node's output.
func (n *Node) runBody(body Body) escape {
	if body == nil {
		return escape{result: OK()}
	}
	if !n.run.noCapture {
		restore := n.captureStdout()
		defer restore()
	}
	return n.guard(func() Result { return body(n) })
}

// captureStdout points os.Stdout at a pipe drained into a buffer. The
// returned func restores the previous os.Stdout and appends what was
// printed to the node's output. Nested nodes stack their redirections.
func (n *Node) captureStdout() (restore func()) {
	pr, pw, err := os.Pipe()
	if err != nil {
		n.run.logger.Warn("stdout capture unavailable", "node", n.String(), "error", err)
		return func() {}
	}

	saved := os.Stdout
	os.Stdout = pw

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(&buf, pr)
	}()

	return func() {
		os.Stdout = saved
		_ = pw.Close()
		<-done
		_ = pr.Close()
		n.output.Write(buf.Bytes())
	}
}

// guard calls fn and recovers any panic into the returned escape.
// runtime.Goexit is not recoverable and keeps unwinding.
func (n *Node) guard(fn func() Result) (esc escape) {
	panicking := true
	defer func() {
		if !panicking {
			return
		}
		if rec := recover(); rec != nil {
			esc.value = rec
			esc.frames = failure.Capture(0)
		}
	}()

	esc.result = fn()
	panicking = false
	return esc
}

// exit classifies how the node ended, runs the after-hooks, records every
// failure, persists stats and pops the node. A terminal failure raised here
// or below is re-raised only after this node has finalized.
func (n *Node) exit(esc escape) {
	n.state = Exiting
	clock := n.run.clock

	skip, propagate := n.classify(esc)

	start := clock.Now()
	after := n.guard(func() Result {
		n.hooks.Run(AfterHooks, n)
		return OK()
	})
	n.spans[stats.SpanAfter] = clock.Now().Sub(start)
	if after.value != nil {
		if p := n.propagated(after.value); p != nil && overrides(propagate) {
			propagate = p
		}
	}

	start = clock.Now()
	for _, kind := range []HookKind{BeforeHooks, AfterHooks} {
		if f := n.hooks.ConsumeError(kind, n); f != nil {
			n.record(f)
			n.fail()
			if f.Terminal() && overrides(propagate) {
				propagate = f
			}
		}
	}

	switch {
	case skip:
		n.outcome = Skipped
	case n.outcome == Failed:
		// set by a failure here or in a child; never overwritten
	default:
		n.outcome = Succeeded
	}

	n.env.restore(n.envBefore)
	n.spans[stats.SpanTeardown] = clock.Now().Sub(start)

	n.finalize()

	if propagate != nil {
		panic(propagate)
	}
}

// overrides reports whether a terminal failure should replace current as
// the value re-raised after finalization. An enclosing skip gives way.
func overrides(current *failure.Failure) bool {
	return current == nil || current.Kind == failure.KindSkipNode
}

// classify turns the escape from the body into a skip request and a
// failure to re-raise, recording the node's own failure if it had one.
func (n *Node) classify(esc escape) (skip bool, propagate *failure.Failure) {
	var active *failure.Failure

	switch v := esc.value.(type) {
	case nil:
		switch esc.result.kind {
		case resultSkipped:
			skip, n.skipReason = true, esc.result.reason
		case resultFailed:
			active = failure.New(failure.KindTestFailure, n, esc.result.err, nil)
			active.Site = esc.result.site
		case resultErrored:
			active = failure.New(failure.KindTestError, n, esc.result.err, nil)
			active.Site = esc.result.site
		}
	case *ExitSignal, *FatalError:
		panic(v)
	case *AssertionError:
		active = failure.New(failure.KindTestFailure, n, v, esc.frames)
	case *failure.Failure:
		switch {
		case v.Kind == failure.KindSkipNode && v.Owner == failure.Owner(n):
			skip, n.skipReason = true, v.Cause.Error()
		case v.Kind == failure.KindSkipNode && n.hasAncestor(v.Owner):
			// an enclosing node skipped itself; this node stops with it
			skip, n.skipReason = true, v.Cause.Error()
			propagate = v
		case v.Owner == failure.Owner(n) || v.Owner == nil:
			v.Owner = n
			if len(v.Frames) == 0 {
				v.Frames = failure.Trim(esc.frames)
			}
			active = v
		default:
			// raised and recorded by a descendant
			propagate = n.propagated(v)
		}
	default:
		active = failure.New(failure.KindTestError, n, panicError(v), esc.frames)
	}

	if active != nil {
		n.record(active)
		n.fail()
		if active.Terminal() {
			propagate = active
		}
	}
	return skip, propagate
}

// propagated handles a panic that escaped hooks or a child: signals pass
// straight through, a descendant's failure marks this node failed and is
// re-raised if still terminal, anything else is a broken after-hook.
func (n *Node) propagated(v any) *failure.Failure {
	switch v := v.(type) {
	case *ExitSignal, *FatalError:
		panic(v)
	case *failure.Failure:
		n.fail()
		if v.Terminal() {
			return v
		}
		return nil
	default:
		n.hooks.errors[AfterHooks] = append(n.hooks.errors[AfterHooks], hookError{err: panicError(v)})
		return nil
	}
}

// record attaches f to the node and writes its exception row.
func (n *Node) record(f *failure.Failure) {
	if f.Output == "" {
		f.Output = n.output.String()
	}
	n.failures = append(n.failures, f)

	loc := f.Location()
	_, err := n.run.store.AddException(n.run.ctx, store.ExceptionRecord{
		Class:     f.Class(),
		Context:   f.Context(),
		Message:   f.Error(),
		Traceback: f.Traceback(),
		Output:    f.Output,
		Line:      loc.Line,
		Path:      loc.Path,
		Terminal:  f.Terminal(),
		NodeID:    n.id,
		Ignore:    n.ignore,
	})
	if err != nil {
		panic(&FatalError{Node: n.String(), Err: err})
	}

	level := n.run.logger.Info
	if f.Terminal() {
		level = n.run.logger.Warn
	}
	level("failure recorded",
		"kind", string(f.Kind),
		"class", f.Class(),
		"node", n.String(),
		"location", loc.String(),
		"terminal", f.Terminal(),
	)
}

// finalize computes every tracked stat, writes the node's final row and
// pops the node. Children have all finalized by now, so the aggregate view
// already covers them.
func (n *Node) finalize() {
	r := n.run

	// values read while the body ran predate the outcome and spans
	n.cache.Release()
	values := make(map[string]any, len(r.tracked))
	for _, s := range r.tracked {
		v, err := n.cache.Resolve(r.registry, s.Name, n)
		if err != nil {
			panic(&FatalError{Node: n.String(), Err: err})
		}
		values[s.Name] = s.Value(v)
	}

	err := r.store.UpdateNode(r.ctx, store.NodeUpdate{
		ID:      n.id,
		Values:  values,
		Outcome: n.outcome.stored(),
		Ignored: n.ignore,
	})
	if err != nil {
		panic(&FatalError{Node: n.String(), Err: err})
	}

	n.cache.Release()
	r.pop(n)
	n.state = Finalized
	r.summary.count(n)

	r.logger.Debug("node finalized",
		"id", n.id,
		"noun", n.noun.name,
		"description", n.description,
		"outcome", n.outcome.String(),
		"failures", len(n.failures),
		"during", n.spans[stats.SpanDuring],
	)
}
