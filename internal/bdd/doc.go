// Package bdd runs nested, noun-typed test blocks and records what happened
// to each of them.
//
// # Nodes
//
// Every block is a Node. A node has a noun (its type name, such as
// "feature" or "requirement"), a description, and a body. Bodies run
// depth-first on the calling goroutine; blocks opened inside a body become
// children of the node whose body opened them.
//
//	run, err := bdd.New(ctx, st)
//	g := run.Grammar("feature", "requirement")
//	err = run.Execute(func(r *bdd.Run) {
//	    g["feature"].Do("login", func(n *bdd.Node) bdd.Result {
//	        g["requirement"].Do("rejects bad passwords", func(n *bdd.Node) bdd.Result {
//	            n.Equal(401, status)
//	            return bdd.OK()
//	        })
//	        return bdd.OK()
//	    })
//	})
//
// A node moves through CREATED, ACTIVE, EXITING and FINALIZED. On exit its
// before-hook and after-hook errors are collected, its outcome is settled
// and every tracked stat is computed and written to the store. Children
// always finalize before their parent.
//
// # Failures
//
// Problems are classified by the failure package. Failed assertions
// (Fail results, AssertionError panics, command failures) are benign: the
// node and its ancestors are marked failed and execution continues with
// the next sibling. Errors (Errored results, any other panic, hook errors)
// are critical: they abort the whole run unless the node is ignored or the
// run is permissive. An aborting failure unwinds through every enclosing
// node, each of which finalizes first, and comes out of Run.Execute as an
// error.
//
// A failed outcome is never overwritten by a later success. The upward
// cascade stops at the first ignored node. Node.Ignore changes a node's
// ignore level from inside its body; failures recorded afterwards, hook
// failures at exit included, use the new level.
//
// # Environment
//
// Each node protects an Env. Names a node binds are removed when it exits;
// names that already existed keep the value the body left behind.
//
// # Skipping
//
// A body returns Skip, or calls Node.SkipNow, to stop without an outcome.
// After-hooks still run and the stored outcome is NULL. Calling SkipNow on
// an enclosing node skips every node between the caller and that node.
//
// Skipping does not undo failures already recorded on the node. An ignored
// or permissive node whose before-hook failed still runs its body; if that
// body then skips, the node itself is stored as skipped while the hook
// failure still marks its ancestors failed.
//
// # Output
//
// While a body runs, os.Stdout is redirected into the node's captured
// output (see WithStdoutCapture), alongside anything written to
// Node.Output. The captured text is attached to the node's failures.
package bdd
