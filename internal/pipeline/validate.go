package pipeline

import (
	"context"
	"fmt"

	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/dag"
	"github.com/soochol/cdp/internal/step"
)

// Validate implements the second half of spec.md §4.I
// "makePipelineTemplate": per-function option construction (deep
// validation — building a function IS validating its options, the same
// way NewKeepWhen's schema compile or NewExpr's expr.Compile double as
// validation) and eager DAG construction so a cyclic or dangling-reference
// template fails at validation time rather than at first event. Factories
// are constructed under bridge.WithDryRun so this never pays for a
// function's side effects — no processor bridge is actually spawned and
// no file is actually created — only its option shape is checked
// (spec.md §4.I "validated... to surface graph errors eagerly" without
// running the pipeline).
func Validate(t *Template, reg *Registry) error {
	if _, ok := reg.Inputs[t.Input.Form]; !ok {
		return fmt.Errorf("pipeline template: unknown input form %q", t.Input.Form)
	}

	dryRun := bridge.WithDryRun(context.Background())

	nodes := make([]dag.NodeDef, 0, len(t.Steps))
	for _, name := range t.Order {
		def := t.Steps[name]
		nodes = append(nodes, def.NodeDef)

		factory, ok := reg.Functions[def.FunctionKind]
		if !ok {
			return fmt.Errorf("pipeline template: step %q: unknown function %q", name, def.FunctionKind)
		}
		fn, err := factory(dryRun, nil, def.FunctionOptions)
		if err != nil {
			return fmt.Errorf("pipeline template: step %q: %w", name, err)
		}
		if c, ok := fn.(interface{ Close() }); ok {
			c.Close()
		}

		cfg := step.Config{
			Name:        name,
			Pattern:     def.Pattern,
			PatternMode: def.PatternMode,
			WindowMode:  def.WindowMode,
			Window:      def.Window,
			Function:    fn,
		}
		if err := step.Validate(cfg); err != nil {
			return err
		}
	}

	if _, err := dag.Build(nodes); err != nil {
		return err
	}
	return nil
}
