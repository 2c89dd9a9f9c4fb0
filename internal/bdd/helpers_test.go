package bdd_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/anaphora/internal/bdd"
	"github.com/roach88/anaphora/internal/store"
	"github.com/roach88/anaphora/internal/testutil"
)

// newRun starts a run on a fresh in-memory store with a one-second step
// clock. Extra options apply after the clock.
func newRun(t *testing.T, opts ...bdd.Option) (*bdd.Run, *store.Store) {
	t.Helper()

	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	opts = append([]bdd.Option{bdd.WithClock(testutil.NewStepClock(time.Second))}, opts...)
	r, err := bdd.New(context.Background(), st, opts...)
	require.NoError(t, err)
	return r, st
}

// row reads back a persisted node.
func row(t *testing.T, st *store.Store, n *bdd.Node) store.NodeRow {
	t.Helper()
	r, err := st.Node(context.Background(), n.ID())
	require.NoError(t, err)
	return r
}

// exceptions returns every recorded exception.
func exceptions(t *testing.T, st *store.Store) []store.ExceptionRecord {
	t.Helper()
	recs, err := st.Exceptions(context.Background(), store.AnyIgnore)
	require.NoError(t, err)
	return recs
}

// ok is a body that does nothing.
func ok(*bdd.Node) bdd.Result { return bdd.OK() }
