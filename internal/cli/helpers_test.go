package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/anaphora/internal/bdd"
	"github.com/roach88/anaphora/internal/store"
	"github.com/roach88/anaphora/internal/testutil"
)

// execute runs the root command with args and returns what it wrote to
// stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// fixtureDB records a small run on disk:
//
//	feature: login
//	  requirement: accepts valid password  (succeeds)
//	  requirement: rejects bad password    (fails)
//	feature: logout                        (skipped)
func fixtureDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")
	st, err := store.Open(path)
	require.NoError(t, err)

	run, err := bdd.New(context.Background(), st,
		bdd.WithClock(testutil.NewStepClock(time.Millisecond)),
		bdd.WithTracked("succeeded", "failed", "exceptions"),
	)
	require.NoError(t, err)

	g := run.Grammar("feature", "requirement")
	require.NoError(t, run.Execute(func(*bdd.Run) {
		g["feature"].Do("login", func(*bdd.Node) bdd.Result {
			g["requirement"].Do("accepts valid password", func(*bdd.Node) bdd.Result { return bdd.OK() })
			g["requirement"].Do("rejects bad password", func(*bdd.Node) bdd.Result {
				return bdd.Fail(errors.New("login accepted a bad password"))
			})
			return bdd.OK()
		})
		g["feature"].Do("logout", func(*bdd.Node) bdd.Result { return bdd.Skip("not written") })
	}))
	require.NoError(t, run.Close())
	require.NoError(t, st.Close())
	return path
}
