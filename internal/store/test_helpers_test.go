package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/anaphora/internal/stats"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testStats are a count ("all") and a duration-like ("children") stat.
func testStats() []*stats.Stat {
	noop := func(stats.Node) float64 { return 0 }
	return []*stats.Stat{
		{Name: "count", Type: stats.Integer, Mode: stats.All, Compute: noop},
		{Name: "elapsed", Type: stats.Real, Mode: stats.Children, Compute: noop},
	}
}

// createTrackedStore creates an in-memory store tracking testStats.
func createTrackedStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.TrackStats(context.Background(), testStats()); err != nil {
		t.Fatalf("TrackStats() failed: %v", err)
	}
	return s
}

// addTestNode inserts a node with the given noun and parent.
func addTestNode(t *testing.T, s *Store, noun, description string, parentID int64) int64 {
	t.Helper()
	ctx := context.Background()
	nounID, err := s.AddNoun(ctx, noun)
	if err != nil {
		t.Fatalf("AddNoun() failed: %v", err)
	}
	id, err := s.AddNode(ctx, description, parentID, nounID)
	if err != nil {
		t.Fatalf("AddNode() failed: %v", err)
	}
	return id
}

// finalizeTestNode finalizes a node with own values for testStats.
func finalizeTestNode(t *testing.T, s *Store, id int64, count int64, elapsed float64, outcome string) {
	t.Helper()
	err := s.UpdateNode(context.Background(), NodeUpdate{
		ID:      id,
		Values:  map[string]any{"count": count, "elapsed": elapsed},
		Outcome: outcome,
	})
	if err != nil {
		t.Fatalf("UpdateNode(%d) failed: %v", id, err)
	}
}
