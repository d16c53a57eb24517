package pipeline

import (
	"context"
	"fmt"

	"github.com/soochol/cdp/internal/adapter"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/step"
	"github.com/soochol/cdp/internal/step/functions"
)

// FunctionFactory builds a step.Function from a flatmap/reduce function
// kind's decoded options (spec.md §4.I "Per-function schemas are invoked
// for deep validation"): constructing the function IS the validation —
// an invalid option set fails here rather than through a separate schema
// pass.
type FunctionFactory func(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error)

// Registry resolves a step's `flatmap`/`reduce` function kind, plus the
// `input` form, to their factories. Built-ins first, then bridged
// processors, then the adapter package's send-* sinks and input forms.
type Registry struct {
	Functions map[string]FunctionFactory
	Inputs    adapter.InputRegistry
}

// DefaultRegistry wires every built-in function (spec.md §8 scenarios
// 2-6), the jq/jsonnet processor bridge (spec.md §9 "Processor bridge
// parity"), and the adapter package's concrete input forms and send-*
// sinks (spec.md §6).
func DefaultRegistry() *Registry {
	sinks := adapter.DefaultSinks()
	r := &Registry{
		Functions: map[string]FunctionFactory{
			"keep-n":       keepNFactory,
			"deduplicate":  deduplicateFactory,
			"rename":       renameFactory,
			"keep-when":    keepWhenFactory,
			"expr":         exprFactory,
			"jq-expr":      jqFactory,
			"jsonnet-expr": jsonnetFactory,
		},
		Inputs: adapter.DefaultInputs(),
	}
	for kind, sink := range sinks {
		r.Functions[kind] = adaptSink(sink)
	}
	return r
}

func adaptSink(sink adapter.SinkFactory) FunctionFactory {
	return func(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error) {
		return sink(ctx, breg, options)
	}
}

func keepNFactory(_ context.Context, _ *bridge.Registry, options map[string]any) (step.Function, error) {
	n, err := optInt(options, "n")
	if err != nil {
		return nil, fmt.Errorf("keep-n: %w", err)
	}
	if err := functions.ValidateKeepN(n); err != nil {
		return nil, err
	}
	return functions.KeepN{N: n}, nil
}

func deduplicateFactory(_ context.Context, _ *bridge.Registry, options map[string]any) (step.Function, error) {
	return functions.Deduplicate{
		ConsiderName:  optBool(options, "consider-name"),
		ConsiderData:  optBool(options, "consider-data"),
		ConsiderTrace: optBool(options, "consider-trace"),
	}, nil
}

func renameFactory(_ context.Context, _ *bridge.Registry, options map[string]any) (step.Function, error) {
	r := functions.Rename{
		Replace: optString(options, "replace"),
		Prepend: optString(options, "prepend"),
		Append:  optString(options, "append"),
	}
	if err := functions.ValidateRename(r, "sample.name"); err != nil {
		return nil, err
	}
	return r, nil
}

func keepWhenFactory(_ context.Context, _ *bridge.Registry, options map[string]any) (step.Function, error) {
	schemaDoc, ok := options["schema"]
	if !ok {
		return nil, fmt.Errorf("keep-when: %q option is required", "schema")
	}
	return functions.NewKeepWhen(schemaDoc)
}

func exprFactory(_ context.Context, _ *bridge.Registry, options map[string]any) (step.Function, error) {
	expression := optString(options, "expr")
	if expression == "" {
		return nil, fmt.Errorf("expr: %q option is required", "expr")
	}
	resultName := optString(options, "result-name")
	if resultName == "" {
		resultName = "expr"
	}
	return functions.NewExpr(expression, resultName)
}

func jqFactory(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error) {
	expression := optString(options, "expr")
	if expression == "" {
		return nil, fmt.Errorf("jq-expr: %q option is required", "expr")
	}
	resultName := optString(options, "result-name")
	if resultName == "" {
		resultName = "jq-expr"
	}
	return functions.NewJQ(ctx, breg, expression, resultName)
}

func jsonnetFactory(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error) {
	expression := optString(options, "expr")
	if expression == "" {
		return nil, fmt.Errorf("jsonnet-expr: %q option is required", "expr")
	}
	resultName := optString(options, "result-name")
	if resultName == "" {
		resultName = "jsonnet-expr"
	}
	return functions.NewJsonnet(ctx, breg, expression, resultName)
}

func optInt(options map[string]any, key string) (int, error) {
	v, ok := options[key]
	if !ok {
		return 0, fmt.Errorf("%q option is required", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%q must be a number, got %T", key, v)
	}
}

func optBool(options map[string]any, key string) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func optString(options map[string]any, key string) string {
	if v, ok := options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
