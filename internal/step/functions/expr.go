package functions

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/soochol/cdp/internal/event"
)

// Expr is an in-process expression-evaluation step function, the
// in-process analogue of the processor-bridged jq/jsonnet functions — an
// `expr-lang/expr` program runs over each event's data (bound as `data`)
// and the resulting value becomes the derived event's data, named per
// ResultName (spec.md §4.F.3 "Function").
type Expr struct {
	ResultName string
	program    *vm.Program
}

func (*Expr) Name() string { return "expr" }

// NewExpr compiles expression once at step construction.
func NewExpr(expression, resultName string) (*Expr, error) {
	program, err := expr.Compile(expression, expr.Env(map[string]any{"data": nil}))
	if err != nil {
		return nil, fmt.Errorf("expr: compile %q: %w", expression, err)
	}
	return &Expr{ResultName: resultName, program: program}, nil
}

// Apply runs the compiled expression against each event's data,
// independently, deriving one output event per input event whose trace
// extends from that source (flatmap mode semantics, spec.md §4.F.3).
func (f *Expr) Apply(batch []event.Event) ([]event.Event, error) {
	out := make([]event.Event, 0, len(batch))
	for _, ev := range batch {
		result, err := expr.Run(f.program, map[string]any{"data": ev.Data()})
		if err != nil {
			return nil, fmt.Errorf("expr: evaluate: %w", err)
		}
		derived, err := event.New(f.ResultName, result, ev.Trace())
		if err != nil {
			return nil, fmt.Errorf("expr: %w", err)
		}
		out = append(out, derived)
	}
	return out, nil
}
