package bdd_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anaphora/internal/bdd"
	"github.com/roach88/anaphora/internal/failure"
	"github.com/roach88/anaphora/internal/store"
)

func TestNestedFailureMarksAncestors(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature", "scenario", "step")

	var a, b, c *bdd.Node
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("A", func(n *bdd.Node) bdd.Result {
			a = n
			g["scenario"].Do("B", func(n *bdd.Node) bdd.Result {
				b = n
				g["step"].Do("C", func(n *bdd.Node) bdd.Result {
					c = n
					return bdd.Fail(errors.New("expected 1, got 2"))
				})
				return bdd.OK()
			})
			return bdd.OK()
		})
	})
	require.NoError(t, err, "a failed assertion never aborts the run")

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "TestFailure", recs[0].Class)
	assert.Equal(t, c.ID(), recs[0].NodeID)
	assert.False(t, recs[0].Terminal)
	assert.True(t, strings.HasPrefix(recs[0].Traceback, "expected 1, got 2"))

	for _, n := range []*bdd.Node{a, b, c} {
		assert.Equal(t, bdd.Failed, n.Outcome(), n.String())
		assert.Equal(t, bdd.Finalized, n.State(), n.String())
		assert.Equal(t, store.OutcomeFailed, row(t, st, n).Outcome, n.String())
	}
	assert.Empty(t, a.Failures(), "only the failing node owns the failure")

	ra := row(t, st, a)
	assert.Equal(t, float64(1), ra.Stats["failed"])
	assert.Equal(t, float64(2), ra.Children["failed"], "B and C below A")
	assert.Equal(t, float64(1), ra.Children["exceptions"])
	assert.NotContains(t, row(t, st, c).Children, "failed", "leaf has no child aggregate")
}

func TestBeforeHookErrorAbortsRun(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature")

	ioErr := errors.New("read fixture: input/output error")
	var bodyRan, afterRan, siblingRan bool

	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("loads fixture", func(n *bdd.Node) bdd.Result {
			bodyRan = true
			return bdd.OK()
		},
			bdd.Before(func(*bdd.Node) error { return ioErr }),
			bdd.After(func(*bdd.Node) error { afterRan = true; return nil }),
		)
		g["feature"].Do("next", func(n *bdd.Node) bdd.Result {
			siblingRan = true
			return bdd.OK()
		})
	})

	require.Error(t, err)
	assert.Equal(t, failure.KindBeforeHookError, failure.KindOf(err))
	assert.ErrorIs(t, err, ioErr)
	assert.True(t, failure.IsTerminal(err))

	assert.False(t, bodyRan, "body must not run after a broken before-hook")
	assert.True(t, afterRan, "after-hooks still run")
	assert.False(t, siblingRan)

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "BeforeHookError", recs[0].Class)
	assert.True(t, recs[0].Terminal)

	sum := r.Finish()
	assert.Equal(t, err, sum.Aborted)
	assert.False(t, sum.OK())
}

func TestIgnoredBeforeHookErrorRunsBody(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature")

	var bodyRan bool
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("flaky setup", func(n *bdd.Node) bdd.Result {
			bodyRan = true
			return bdd.OK()
		},
			bdd.Ignore(1),
			bdd.Before(func(*bdd.Node) error { return errors.New("no network") }),
		)
	})
	require.NoError(t, err)
	assert.True(t, bodyRan)

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "IgnoredBeforeHookError", recs[0].Class)
	assert.False(t, recs[0].Terminal)
}

func TestMultipleHookErrorsReportedTogether(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature")

	first := errors.New("close db")
	second := errors.New("remove tempdir")

	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("cleanup", ok,
			bdd.After(func(*bdd.Node) error { return first }),
			bdd.After(func(*bdd.Node) error { panic(second) }),
		)
	})

	require.Error(t, err)
	assert.Equal(t, failure.KindAfterHookError, failure.KindOf(err))
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Len(t, exceptions(t, st), 1, "one failure per hook kind")
}

func TestEnvironmentProtection(t *testing.T) {
	r, _ := newRun(t)
	g := r.Grammar("feature", "scenario")

	env := bdd.Env{"user": "alice"}
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("binds names", func(n *bdd.Node) bdd.Result {
			n.Env()["session"] = "s-1"
			n.Env()["user"] = "bob"

			g["scenario"].Do("nested", func(n *bdd.Node) bdd.Result {
				n.Env()["token"] = "t-1"
				return bdd.OK()
			})
			_, hasToken := n.Env()["token"]
			n.Require(!hasToken, "child binding leaked")
			n.Equal("s-1", n.Env()["session"])
			return bdd.OK()
		}, bdd.WithEnv(env))
	})
	require.NoError(t, err)

	assert.NotContains(t, env, "session", "additions are removed")
	assert.Equal(t, "bob", env["user"], "modifications survive")
}

func TestGrammarBindingsAreScoped(t *testing.T) {
	r, _ := newRun(t)
	env := bdd.Env{}

	err := r.Execute(func(*bdd.Run) {
		r.Noun("suite").Do("root", func(n *bdd.Node) bdd.Result {
			g := n.Grammar("requirement")
			n.Require(env["requirement"] == g["requirement"], "noun not bound")
			return bdd.OK()
		}, bdd.WithEnv(env))
	})
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestChildrenFinalizeBeforeParent(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature", "scenario")

	var children []*bdd.Node
	var seen []bdd.State
	var persisted []bool

	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("parent", func(n *bdd.Node) bdd.Result {
			for i := range 3 {
				g["scenario"].Do(fmt.Sprintf("child %d", i), ok)
			}
			children = n.Children()
			return bdd.OK()
		}, bdd.After(func(n *bdd.Node) error {
			for _, c := range n.Children() {
				seen = append(seen, c.State())
				persisted = append(persisted, row(t, st, c).Finalized)
			}
			return nil
		}))
	})
	require.NoError(t, err)

	require.Len(t, children, 3)
	assert.Equal(t, []bdd.State{bdd.Finalized, bdd.Finalized, bdd.Finalized}, seen)
	assert.Equal(t, []bool{true, true, true}, persisted)

	parent := r.Root()
	rp := row(t, st, parent)
	assert.Equal(t, float64(3), rp.Children["succeeded"])
	assert.True(t, rp.Finalized)
}

func TestTerminalFailureStopsSiblings(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature", "scenario")

	var ran []string
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("root", func(n *bdd.Node) bdd.Result {
			g["scenario"].Do("broken", func(n *bdd.Node) bdd.Result {
				ran = append(ran, "broken")
				panic("nil map write")
			})
			ran = append(ran, "after broken")
			g["scenario"].Do("never", func(n *bdd.Node) bdd.Result {
				ran = append(ran, "never")
				return bdd.OK()
			})
			return bdd.OK()
		})
	})

	require.Error(t, err)
	assert.Equal(t, failure.KindTestError, failure.KindOf(err))
	assert.Contains(t, err.Error(), "scenario: broken")
	assert.Equal(t, []string{"broken"}, ran)
	assert.Nil(t, r.Current(), "every node popped")

	root := r.Root()
	assert.Equal(t, bdd.Failed, root.Outcome())
	rr := row(t, st, root)
	assert.True(t, rr.Finalized, "enclosing node finalizes before the failure leaves it")
	assert.Equal(t, store.OutcomeFailed, rr.Outcome)

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "TestError", recs[0].Class)
	assert.True(t, recs[0].Terminal)
}

func TestCriticalFailureAbsorbed(t *testing.T) {
	tests := []struct {
		name       string
		opts       []bdd.Option
		nodeOpts   []bdd.NodeOption
		wantClass  string
		wantParent bdd.Outcome
	}{
		{
			name:       "permissive run",
			opts:       []bdd.Option{bdd.WithPermissive(true)},
			wantClass:  "TestError",
			wantParent: bdd.Failed,
		},
		{
			name:       "ignored node",
			nodeOpts:   []bdd.NodeOption{bdd.Ignore(1)},
			wantClass:  "IgnoredTestError",
			wantParent: bdd.Succeeded,
		},
		{
			name:       "warning node",
			nodeOpts:   []bdd.NodeOption{bdd.Ignore(2)},
			wantClass:  "TestError",
			wantParent: bdd.Succeeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st := newRun(t, tt.opts...)
			g := r.Grammar("feature", "scenario")

			var siblingRan bool
			err := r.Execute(func(*bdd.Run) {
				g["feature"].Do("root", func(n *bdd.Node) bdd.Result {
					g["scenario"].Do("broken", func(n *bdd.Node) bdd.Result {
						return bdd.Errored(errors.New("connection refused"))
					}, tt.nodeOpts...)
					g["scenario"].Do("sibling", func(n *bdd.Node) bdd.Result {
						siblingRan = true
						return bdd.OK()
					})
					return bdd.OK()
				})
			})
			require.NoError(t, err)
			assert.True(t, siblingRan)

			recs := exceptions(t, st)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantClass, recs[0].Class)
			assert.False(t, recs[0].Terminal)
			assert.Equal(t, tt.wantParent, r.Root().Outcome())
		})
	}
}

func TestFailedOutcomeIsSticky(t *testing.T) {
	r, _ := newRun(t)
	g := r.Grammar("feature", "scenario")

	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("root", func(n *bdd.Node) bdd.Result {
			g["scenario"].Do("fails", func(n *bdd.Node) bdd.Result {
				return bdd.Fail(errors.New("nope"))
			})
			g["scenario"].Do("passes", ok)
			return bdd.OK()
		})
	})
	require.NoError(t, err)

	root := r.Root()
	assert.Equal(t, bdd.Failed, root.Outcome(), "a later success never clears a failure")
	kids := root.Children()
	require.Len(t, kids, 2)
	assert.Equal(t, bdd.Succeeded, kids[1].Outcome())
}

func TestSkip(t *testing.T) {
	t.Run("result", func(t *testing.T) {
		r, st := newRun(t)
		var n *bdd.Node
		require.NoError(t, r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("later", func(node *bdd.Node) bdd.Result {
				n = node
				return bdd.Skip("not implemented")
			})
		}))

		assert.Equal(t, bdd.Skipped, n.Outcome())
		assert.Equal(t, "not implemented", n.SkipReason())
		rec := row(t, st, n)
		assert.Empty(t, rec.Outcome, "skipped nodes store NULL")
		assert.Equal(t, float64(1), rec.Stats["skipped"])
		assert.Empty(t, exceptions(t, st))
	})

	t.Run("skip now", func(t *testing.T) {
		r, st := newRun(t)
		var n *bdd.Node
		var afterRan, rest bool
		require.NoError(t, r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("windows only", func(node *bdd.Node) bdd.Result {
				n = node
				node.SkipNow("requires windows")
				rest = true
				return bdd.OK()
			}, bdd.After(func(*bdd.Node) error { afterRan = true; return nil }))
		}))

		assert.False(t, rest)
		assert.True(t, afterRan)
		assert.Equal(t, bdd.Skipped, n.Outcome())
		assert.Equal(t, "requires windows", n.SkipReason())
		assert.Empty(t, row(t, st, n).Outcome)
		assert.Equal(t, 1, r.Finish().Skipped)
	})
}

func TestCommandFailed(t *testing.T) {
	r, st := newRun(t)

	site := failure.Frame{Function: "suite", Path: "suites/login.yaml", Line: 12}
	var f *failure.Failure
	require.NoError(t, r.Execute(func(*bdd.Run) {
		r.Noun("requirement").Do("exit zero", func(n *bdd.Node) bdd.Result {
			f = n.CommandFailed(site, "./check.sh", "checking...\nFAIL\n", 2)
			return bdd.OK()
		})
	}))

	require.NotNil(t, f)
	assert.Equal(t, 2, f.ExitStatus)
	assert.Equal(t, bdd.Failed, r.Root().Outcome())

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "TestFailure", recs[0].Class)
	assert.Equal(t, "checking...\nFAIL\n", recs[0].Output)
	assert.Equal(t, "suites/login.yaml", recs[0].Path)
	assert.Equal(t, 12, recs[0].Line)
	assert.False(t, recs[0].Terminal)
}

func TestOutputAttachedToFailure(t *testing.T) {
	r, st := newRun(t)

	require.NoError(t, r.Execute(func(*bdd.Run) {
		r.Noun("feature").Do("chatty", func(n *bdd.Node) bdd.Result {
			fmt.Fprintln(n.Output(), "request: GET /health")
			return bdd.Fail(errors.New("status 503"))
		})
	}))

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "request: GET /health\n", recs[0].Output)
	assert.Equal(t, "request: GET /health\n", r.Root().Captured())
}

func TestAssertionPanicIsTestFailure(t *testing.T) {
	r, st := newRun(t)

	require.NoError(t, r.Execute(func(*bdd.Run) {
		r.Noun("feature").Do("compares", func(n *bdd.Node) bdd.Result {
			n.Equal(200, 404)
			return bdd.OK()
		})
	}))

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "TestFailure", recs[0].Class)
	assert.True(t, strings.HasPrefix(recs[0].Traceback, "values differ"))
	assert.True(t, strings.HasSuffix(recs[0].Path, "exec_test.go"), "located in the body, got %s", recs[0].Path)
	assert.NotContains(t, recs[0].Traceback, "internal/bdd.", "harness frames trimmed")
}

func TestExitUnwindsEverything(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature", "scenario")
	env := bdd.Env{}

	var afterRan bool
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("root", func(n *bdd.Node) bdd.Result {
			n.Env()["temp"] = true
			g["scenario"].Do("quits", func(n *bdd.Node) bdd.Result {
				bdd.Exit(3)
				return bdd.OK()
			})
			return bdd.OK()
		}, bdd.WithEnv(env), bdd.After(func(*bdd.Node) error { afterRan = true; return nil }))
	})

	var exit *bdd.ExitSignal
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.Code)
	assert.False(t, afterRan, "exit skips hooks")
	assert.Nil(t, r.Current())
	assert.Empty(t, env, "bindings restored on exit")
	assert.Empty(t, exceptions(t, st))
	assert.Equal(t, bdd.Finalized, r.Root().State())
}

func TestGoexitPopsNodes(t *testing.T) {
	r, _ := newRun(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("outer", func(n *bdd.Node) bdd.Result {
				r.Noun("scenario").Do("inner", func(n *bdd.Node) bdd.Result {
					runtime.Goexit()
					return bdd.OK()
				})
				return bdd.OK()
			})
		})
	}()
	<-done

	assert.Nil(t, r.Current())
	assert.Equal(t, 0, r.Depth())
}

func TestSummaryAndClose(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature", "scenario")

	require.NoError(t, r.Execute(func(*bdd.Run) {
		g["feature"].Do("root", func(n *bdd.Node) bdd.Result {
			g["scenario"].Do("pass", ok)
			g["scenario"].Do("fail", func(*bdd.Node) bdd.Result { return bdd.Fail(errors.New("x")) })
			g["scenario"].Do("skip", func(*bdd.Node) bdd.Result { return bdd.Skip("later") })
			g["scenario"].Do("ignored", func(*bdd.Node) bdd.Result { return bdd.Fail(errors.New("y")) }, bdd.Ignore(1))
			return bdd.OK()
		})
	}))

	sum := r.Finish()
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed, "fail and root")
	assert.Equal(t, 1, sum.Ignored)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Exceptions)
	assert.False(t, sum.OK())

	require.NoError(t, r.Close())
	meta, err := st.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "failed", meta["status"])
	assert.Equal(t, r.ID(), meta["run_id"])
	assert.NotEmpty(t, meta["finished_at"])
}

func TestJoinedBeforeHookErrors(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature")

	noDB := errors.New("connect db")
	noCache := errors.New("connect cache")

	var bodyRan bool
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("needs services", func(*bdd.Node) bdd.Result {
			bodyRan = true
			return bdd.OK()
		},
			bdd.Before(func(*bdd.Node) error { return noDB }),
			bdd.Before(func(*bdd.Node) error { panic(noCache) }),
		)
	})

	require.Error(t, err)
	assert.False(t, bodyRan)
	assert.Equal(t, failure.KindBeforeHookError, failure.KindOf(err))
	assert.ErrorIs(t, err, noDB)
	assert.ErrorIs(t, err, noCache)

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Message, "connect db")
	assert.Contains(t, recs[0].Message, "connect cache")
}

func TestIgnoreFromBody(t *testing.T) {
	tests := []struct {
		name    string
		level   int
		wantErr bool
		class   string
	}{
		{name: "raised in body", level: 1, class: "IgnoredAfterHookError"},
		{name: "left at zero", level: 0, wantErr: true, class: "AfterHookError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st := newRun(t)

			g := r.Grammar("feature", "step")

			var parent, n *bdd.Node
			err := r.Execute(func(*bdd.Run) {
				g["feature"].Do("storage", func(p *bdd.Node) bdd.Result {
					parent = p
					g["step"].Do("teardown is flaky", func(node *bdd.Node) bdd.Result {
						n = node
						node.Ignore(tt.level)
						return bdd.OK()
					}, bdd.After(func(*bdd.Node) error { return errors.New("unmount failed") }))
					return bdd.OK()
				})
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, failure.IsTerminal(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, r.Finish().Ignored)
				assert.Zero(t, r.Finish().Failed)
				assert.Equal(t, bdd.Succeeded, parent.Outcome(), "ignored failures stop the cascade")
			}

			assert.Equal(t, bdd.Failed, n.Outcome())
			recs := exceptions(t, st)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.class, recs[0].Class)
			assert.Equal(t, tt.wantErr, recs[0].Terminal)
			assert.Equal(t, tt.level, recs[0].Ignore)
		})
	}

	t.Run("invalid level", func(t *testing.T) {
		r, _ := newRun(t)
		require.NoError(t, r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("bad level", func(node *bdd.Node) bdd.Result {
				assert.Panics(t, func() { node.Ignore(3) })
				return bdd.OK()
			})
		}))
	})
}

func TestSkipEnclosingNode(t *testing.T) {
	r, st := newRun(t)
	g := r.Grammar("feature", "scenario", "step")

	var feature, scenario, step *bdd.Node
	var afterStep bool
	err := r.Execute(func(*bdd.Run) {
		g["feature"].Do("linux only", func(f *bdd.Node) bdd.Result {
			feature = f
			g["scenario"].Do("mounts", func(s *bdd.Node) bdd.Result {
				scenario = s
				g["step"].Do("detects platform", func(n *bdd.Node) bdd.Result {
					step = n
					f.SkipNow("not on this platform")
					return bdd.OK()
				})
				afterStep = true
				return bdd.OK()
			})
			return bdd.OK()
		})
	})

	require.NoError(t, err)
	assert.False(t, afterStep)
	for _, n := range []*bdd.Node{feature, scenario, step} {
		assert.Equal(t, bdd.Skipped, n.Outcome(), n.String())
		assert.Equal(t, "not on this platform", n.SkipReason(), n.String())
		assert.Empty(t, row(t, st, n).Outcome, n.String())
	}
	assert.Empty(t, exceptions(t, st))
	assert.Equal(t, 3, r.Finish().Skipped)
	assert.Zero(t, r.Finish().Failed)
}

func TestBodyStdoutCaptured(t *testing.T) {
	t.Run("attached to failure", func(t *testing.T) {
		r, st := newRun(t)
		require.NoError(t, r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("prints", func(n *bdd.Node) bdd.Result {
				fmt.Fprintln(n.Output(), "direct")
				fmt.Println("hello from body")
				return bdd.Fail(errors.New("boom"))
			})
		}))

		recs := exceptions(t, st)
		require.Len(t, recs, 1)
		assert.Equal(t, "direct\nhello from body\n", recs[0].Output)
		assert.Equal(t, "direct\nhello from body\n", r.Root().Captured())
	})

	t.Run("nested nodes keep their own", func(t *testing.T) {
		r, _ := newRun(t)
		var outer, inner *bdd.Node
		require.NoError(t, r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("outer", func(n *bdd.Node) bdd.Result {
				outer = n
				fmt.Println("outer before")
				r.Noun("step").Do("inner", func(n *bdd.Node) bdd.Result {
					inner = n
					fmt.Println("inner")
					return bdd.OK()
				})
				fmt.Println("outer after")
				return bdd.OK()
			})
		}))

		assert.Equal(t, "inner\n", inner.Captured())
		assert.Equal(t, "outer before\nouter after\n", outer.Captured())
	})

	t.Run("disabled", func(t *testing.T) {
		r, _ := newRun(t, bdd.WithStdoutCapture(false))
		saved := os.Stdout
		require.NoError(t, r.Execute(func(*bdd.Run) {
			r.Noun("feature").Do("leaves stdout alone", func(*bdd.Node) bdd.Result {
				assert.Same(t, saved, os.Stdout)
				return bdd.OK()
			})
		}))
		assert.Empty(t, r.Root().Captured())
	})
}

func TestSkipAfterAbsorbedHookFailure(t *testing.T) {
	r, st := newRun(t, bdd.WithPermissive(true))
	g := r.Grammar("feature", "step")

	var feature, step *bdd.Node
	require.NoError(t, r.Execute(func(*bdd.Run) {
		g["feature"].Do("fixtures", func(f *bdd.Node) bdd.Result {
			feature = f
			g["step"].Do("needs fixture", func(n *bdd.Node) bdd.Result {
				step = n
				return bdd.Skip("fixture unavailable")
			}, bdd.Before(func(*bdd.Node) error { return errors.New("copy fixture") }))
			return bdd.OK()
		})
	}))

	assert.Equal(t, bdd.Skipped, step.Outcome())
	assert.Equal(t, "fixture unavailable", step.SkipReason())
	assert.Equal(t, bdd.Failed, feature.Outcome(), "the recorded hook failure still cascades")

	recs := exceptions(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, "BeforeHookError", recs[0].Class)
	assert.False(t, recs[0].Terminal)

	sum := r.Finish()
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)
}
