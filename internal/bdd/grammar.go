package bdd

// Noun constructs nodes of one named type.
type Noun struct {
	run      *Run
	name     string
	defaults []NodeOption
}

// Noun returns a constructor for nodes of type name. opts apply to every
// node it creates, before the options given to Do.
func (r *Run) Noun(name string, opts ...NodeOption) *Noun {
	return &Noun{run: r, name: name, defaults: opts}
}

// Grammar returns one constructor per name:
//
//	g := run.Grammar("feature", "requirement")
//	g["feature"].Do("login", func(n *bdd.Node) bdd.Result { ... })
func (r *Run) Grammar(names ...string) map[string]*Noun {
	g := make(map[string]*Noun, len(names))
	for _, name := range names {
		g[name] = r.Noun(name)
	}
	return g
}

// Name returns the noun's type name.
func (n *Noun) Name() string { return n.name }

// Do runs body as a new node of this type. The node's parent is the run's
// current node. Do returns once the node has finalized.
//
// A terminal failure in the node, or in any node below it, is not returned:
// it unwinds through every enclosing node and out of Run.Execute.
func (n *Noun) Do(description string, body Body, opts ...NodeOption) Outcome {
	all := make([]NodeOption, 0, len(n.defaults)+len(opts))
	all = append(all, n.defaults...)
	all = append(all, opts...)
	return n.run.do(n, description, body, all)
}
