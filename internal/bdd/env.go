package bdd

// Env is a mutable name table shared by a node and its descendants.
// Names a node adds are removed when it exits; names that existed before
// it entered keep whatever value the body left them with.
type Env map[string]any

type envSnapshot map[string]struct{}

func (e Env) snapshot() envSnapshot {
	keys := make(envSnapshot, len(e))
	for k := range e {
		keys[k] = struct{}{}
	}
	return keys
}

// restore deletes every key added since the snapshot was taken.
func (e Env) restore(before envSnapshot) {
	for k := range e {
		if _, existed := before[k]; !existed {
			delete(e, k)
		}
	}
}
