package stats

// Runtime span names recorded for every node.
const (
	SpanSetup    = "setup"
	SpanBefore   = "before"
	SpanDuring   = "during"
	SpanAfter    = "after"
	SpanTeardown = "teardown"
)

// Spans lists the runtime spans in the order a node passes through them.
var Spans = []string{SpanSetup, SpanBefore, SpanDuring, SpanAfter, SpanTeardown}

func boolStat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func spanStat(span string) Compute {
	return func(n Node) float64 {
		return n.Elapsed(span).Seconds()
	}
}

// Builtins returns the stats every run tracks unless configured otherwise.
func Builtins() []Stat {
	out := []Stat{
		{Name: "succeeded", Type: Integer, Mode: All, Compute: func(n Node) float64 { return boolStat(n.Succeeded()) }},
		{Name: "failed", Type: Integer, Mode: All, Compute: func(n Node) float64 { return boolStat(n.Failed()) }},
		{Name: "skipped", Type: Integer, Mode: All, Compute: func(n Node) float64 { return boolStat(n.Skipped()) }},
		{Name: "exceptions", Type: Integer, Mode: All, Compute: func(n Node) float64 { return float64(n.FailureCount()) }},
	}
	for _, span := range Spans {
		out = append(out, Stat{Name: span, Type: Real, Mode: Children, Compute: spanStat(span)})
	}
	out = append(out,
		Stat{
			Name: "hooks", Type: Real, Mode: Children,
			Compute: func(n Node) float64 { return n.Stat(SpanBefore) + n.Stat(SpanAfter) },
		},
		Stat{
			Name: "runtime", Type: Real, Mode: Children,
			Compute: func(n Node) float64 {
				return n.Stat("hooks") + n.Stat(SpanSetup) + n.Stat(SpanDuring) + n.Stat(SpanTeardown)
			},
		},
	)
	return out
}

// RegisterBuiltins declares every builtin stat in reg.
func RegisterBuiltins(reg *Registry) {
	for _, s := range Builtins() {
		reg.MustDeclare(s)
	}
}
