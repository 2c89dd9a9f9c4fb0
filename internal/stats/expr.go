package stats

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expr builds a derived stat from an expression over other stats, e.g.
//
//	stat("succeeded") / (stat("succeeded") + stat("failed"))
//
// The expression is compiled once here; compile errors are returned
// immediately rather than at first evaluation.
func Expr(name, source string, typ Type, mode Mode) (Stat, error) {
	compileEnv := map[string]any{
		"stat": func(string) float64 { return 0 },
	}
	program, err := expr.Compile(source, expr.Env(compileEnv), expr.AsFloat64())
	if err != nil {
		return Stat{}, fmt.Errorf("compile stat %q: %w", name, err)
	}

	return Stat{
		Name:    name,
		Type:    typ,
		Mode:    mode,
		Compute: exprCompute(name, program),
	}, nil
}

func exprCompute(name string, program *vm.Program) Compute {
	return func(n Node) float64 {
		out, err := expr.Run(program, map[string]any{"stat": n.Stat})
		if err != nil {
			panic(&ResolveError{Name: name, Err: err})
		}
		switch v := out.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		default:
			panic(&ResolveError{Name: name, Err: fmt.Errorf("expression returned %T", out)})
		}
	}
}
