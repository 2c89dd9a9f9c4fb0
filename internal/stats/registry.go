package stats

import "fmt"

// Registry maps stat names to declarations.
// A run owns one registry; Reset clears it between independent runs.
type Registry struct {
	stats map[string]*Stat
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stats: make(map[string]*Stat)}
}

// Declare registers s. Type defaults to Numeric and Mode to All.
// Redeclaring a name replaces the earlier declaration but keeps its position.
func (r *Registry) Declare(s Stat) error {
	if s.Type == "" {
		s.Type = Numeric
	}
	if s.Mode == "" {
		s.Mode = All
	}
	if err := s.validate(); err != nil {
		return err
	}
	if _, exists := r.stats[s.Name]; !exists {
		r.order = append(r.order, s.Name)
	}
	r.stats[s.Name] = &s
	return nil
}

// MustDeclare is Declare for package-level setup; it panics on error.
func (r *Registry) MustDeclare(s Stat) {
	if err := r.Declare(s); err != nil {
		panic(err)
	}
}

// Lookup returns the stat declared under name.
func (r *Registry) Lookup(name string) (*Stat, bool) {
	s, ok := r.stats[name]
	return s, ok
}

// Names returns declared names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of declared stats.
func (r *Registry) Len() int {
	return len(r.order)
}

// Tracked returns the stats to persist. With no names, every declared stat
// is tracked in declaration order.
func (r *Registry) Tracked(names ...string) ([]*Stat, error) {
	if len(names) == 0 {
		names = r.order
	}
	out := make([]*Stat, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		s, ok := r.stats[name]
		if !ok {
			return nil, fmt.Errorf("track %q: %w", name, ErrUnknownStat)
		}
		out = append(out, s)
	}
	return out, nil
}

// Reset forgets every declaration.
func (r *Registry) Reset() {
	r.stats = make(map[string]*Stat)
	r.order = nil
}
