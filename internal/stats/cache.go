package stats

// Cache memoizes stat values for a single node.
// The node owns its cache and releases it when it finalizes.
type Cache struct {
	values map[string]float64
	active map[string]bool
	hits   int
	misses int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		values: make(map[string]float64),
		active: make(map[string]bool),
	}
}

// Resolve returns the cached value of name for n, computing it on first use.
// Composite stats re-enter Resolve through n.Stat; a stat that is reached
// again while it is still being computed yields ErrCycle.
func (c *Cache) Resolve(reg *Registry, name string, n Node) (float64, error) {
	if v, ok := c.values[name]; ok {
		c.hits++
		return v, nil
	}

	s, ok := reg.Lookup(name)
	if !ok {
		return 0, &ResolveError{Name: name, Err: ErrUnknownStat}
	}
	if c.active[name] {
		return 0, &ResolveError{Name: name, Err: ErrCycle}
	}

	c.active[name] = true
	defer delete(c.active, name)

	v, err := s.eval(n)
	if err != nil {
		return 0, err
	}
	c.values[name] = v
	c.misses++
	return v, nil
}

// Cached reports whether name already has a value.
func (c *Cache) Cached(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Hits is the number of lookups answered from the cache.
func (c *Cache) Hits() int { return c.hits }

// Misses is the number of stats actually computed.
func (c *Cache) Misses() int { return c.misses }

// Release drops every cached value.
func (c *Cache) Release() {
	c.values = make(map[string]float64)
	c.active = make(map[string]bool)
}
