// Package pipeline implements the Pipeline API from spec.md §4.I:
// template validation (makePipelineTemplate) and runtime wiring
// (runPipeline), generalizing the teacher's workflow-definition parser
// (internal/upal/workflow.go's YAML-to-struct decode plus
// internal/dag.Build) from a fixed node-type union to the step template's
// pattern/window/function shape.
package pipeline

import (
	"fmt"

	"github.com/soochol/cdp/internal/dag"
	"github.com/soochol/cdp/internal/pattern"
	"github.com/soochol/cdp/internal/step"
	"github.com/soochol/cdp/internal/window"
)

// InputDef is the parsed `input: {<form>: <options>}` root key (spec.md
// §6): exactly one form key, with its options passed through untyped for
// the adapter factory to interpret.
type InputDef struct {
	Form    string
	Options map[string]any
}

// StepDef is one parsed entry of the template's `steps` map (spec.md §6
// "StepDef fields"). NodeDef.Name is the step's name, NodeDef.After its
// dependencies, straight from the DAG's own vocabulary.
type StepDef struct {
	dag.NodeDef

	Pattern     pattern.Pattern
	PatternMode step.PatternMode

	HasWindow bool
	Window    window.Bounds

	WindowMode      window.Mode
	FunctionKind    string
	FunctionOptions map[string]any
}

// Template is a fully validated pipeline document (spec.md §4.I
// "makePipelineTemplate").
type Template struct {
	Name  string
	Input InputDef
	Steps map[string]StepDef

	// Order lists the step names in the order Parse visited them while
	// ranging over the steps map. Go map iteration is unordered, so this
	// is not the declaration order and can differ between runs.
	Order []string
}

// recognisedStepKeys are the only keys a StepDef object may carry;
// anything else is rejected (spec.md §4.I "extra keys within recognised
// objects are rejected").
var recognisedStepKeys = map[string]struct{}{
	"after":      {},
	"match/pass": {},
	"match/drop": {},
	"window":     {},
	"flatmap":    {},
	"reduce":     {},
}

// Parse validates raw's structure per spec.md §4.I and §6 and returns a
// Template. It does not instantiate a DAG or any function factory —
// callers validate those eagerly via Validate.
func Parse(raw map[string]any) (*Template, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("pipeline template: %q is required and must be a non-empty string", "name")
	}

	inputRaw, ok := raw["input"].(map[string]any)
	if !ok || len(inputRaw) == 0 {
		return nil, fmt.Errorf("pipeline template: %q is required and must have exactly one key", "input")
	}
	if len(inputRaw) != 1 {
		return nil, fmt.Errorf("pipeline template: %q must have exactly one key, got %d", "input", len(inputRaw))
	}
	var input InputDef
	for form, opts := range inputRaw {
		input.Form = form
		optMap, ok := opts.(map[string]any)
		if opts != nil && !ok {
			return nil, fmt.Errorf("pipeline template: input %q options must be an object", form)
		}
		input.Options = optMap
	}

	t := &Template{Name: name, Input: input, Steps: make(map[string]StepDef)}

	stepsRaw, ok := raw["steps"]
	if !ok || stepsRaw == nil {
		return t, nil
	}
	stepsMap, ok := stepsRaw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("pipeline template: %q must be an object", "steps")
	}
	for stepName, defRaw := range stepsMap {
		defMap, ok := defRaw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("pipeline template: step %q must be an object", stepName)
		}
		def, err := parseStepDef(stepName, defMap)
		if err != nil {
			return nil, err
		}
		t.Steps[stepName] = def
		t.Order = append(t.Order, stepName)
	}
	return t, nil
}

func parseStepDef(name string, raw map[string]any) (StepDef, error) {
	for key := range raw {
		if _, ok := recognisedStepKeys[key]; !ok {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: unrecognised key %q", name, key)
		}
	}

	def := StepDef{NodeDef: dag.NodeDef{Name: name}}

	if afterRaw, ok := raw["after"]; ok {
		after, err := parseStringList(afterRaw)
		if err != nil {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: after: %w", name, err)
		}
		def.After = after
	}

	_, hasPass := raw["match/pass"]
	_, hasDrop := raw["match/drop"]
	if hasPass && hasDrop {
		return StepDef{}, fmt.Errorf("pipeline template: step %q: at most one of match/pass or match/drop", name)
	}
	switch {
	case hasPass:
		p, err := parsePattern(raw["match/pass"])
		if err != nil {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: match/pass: %w", name, err)
		}
		def.Pattern = p
		def.PatternMode = step.ModePass
	case hasDrop:
		p, err := parsePattern(raw["match/drop"])
		if err != nil {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: match/drop: %w", name, err)
		}
		def.Pattern = p
		def.PatternMode = step.ModeDrop
	default:
		def.PatternMode = step.ModeNone
	}
	if def.PatternMode != step.ModeNone {
		if err := pattern.Validate(def.Pattern); err != nil {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: %w", name, err)
		}
	}

	if windowRaw, ok := raw["window"]; ok {
		bounds, err := parseWindow(windowRaw)
		if err != nil {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: window: %w", name, err)
		}
		def.HasWindow = true
		def.Window = bounds
	}

	flatmapRaw, hasFlatmap := raw["flatmap"]
	reduceRaw, hasReduce := raw["reduce"]
	if hasFlatmap == hasReduce {
		return StepDef{}, fmt.Errorf("pipeline template: step %q: exactly one of flatmap or reduce is required", name)
	}
	var functionRaw any
	if hasFlatmap {
		def.WindowMode = window.Flatmap
		functionRaw = flatmapRaw
	} else {
		def.WindowMode = window.Reduce
		functionRaw = reduceRaw
	}
	fnMap, ok := functionRaw.(map[string]any)
	if !ok || len(fnMap) != 1 {
		return StepDef{}, fmt.Errorf("pipeline template: step %q: function must be an object with exactly one key", name)
	}
	for kind, opts := range fnMap {
		def.FunctionKind = kind
		optMap, ok := opts.(map[string]any)
		if opts != nil && !ok {
			return StepDef{}, fmt.Errorf("pipeline template: step %q: function %q options must be an object", name, kind)
		}
		def.FunctionOptions = optMap
	}

	return def, nil
}

func parseStringList(raw any) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", raw)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string element, got %T", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// parsePattern decodes the recursive pattern shape (spec.md §3): either a
// literal string, or a single-key object `{and|or|not: [...]}`.
func parsePattern(raw any) (pattern.Pattern, error) {
	switch v := raw.(type) {
	case string:
		return pattern.Lit(v), nil
	case map[string]any:
		if len(v) != 1 {
			return pattern.Pattern{}, fmt.Errorf("combinator object must have exactly one key")
		}
		for kind, operands := range v {
			list, ok := operands.([]any)
			if !ok {
				return pattern.Pattern{}, fmt.Errorf("%q operands must be a list", kind)
			}
			subs := make([]pattern.Pattern, 0, len(list))
			for _, o := range list {
				sub, err := parsePattern(o)
				if err != nil {
					return pattern.Pattern{}, err
				}
				subs = append(subs, sub)
			}
			switch kind {
			case "and":
				return pattern.And(subs...), nil
			case "or":
				return pattern.Or(subs...), nil
			case "not":
				if len(subs) != 1 {
					return pattern.Pattern{}, fmt.Errorf("not requires exactly one operand")
				}
				return pattern.Not(subs[0]), nil
			default:
				return pattern.Pattern{}, fmt.Errorf("unknown pattern combinator %q", kind)
			}
		}
	}
	return pattern.Pattern{}, fmt.Errorf("pattern must be a string or a combinator object, got %T", raw)
}

// parseWindow decodes `{events: int|digit-string >= 1, seconds: number|digit-string > 0}`.
func parseWindow(raw any) (window.Bounds, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return window.Bounds{}, fmt.Errorf("must be an object")
	}
	var b window.Bounds
	if v, ok := m["events"]; ok {
		n, err := asInt(v)
		if err != nil {
			return window.Bounds{}, fmt.Errorf("events: %w", err)
		}
		if n < 1 {
			return window.Bounds{}, fmt.Errorf("events must be >= 1, got %d", n)
		}
		b.Events = n
	}
	if v, ok := m["seconds"]; ok {
		f, err := asFloat(v)
		if err != nil {
			return window.Bounds{}, fmt.Errorf("seconds: %w", err)
		}
		if f <= 0 {
			return window.Bounds{}, fmt.Errorf("seconds must be > 0, got %v", f)
		}
		b.Seconds = f
	}
	if b.Events == 0 && b.Seconds == 0 {
		return window.Bounds{}, fmt.Errorf("at least one of events or seconds is required")
	}
	return b, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		var out int
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return 0, fmt.Errorf("not a digit string: %q", n)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("expected int or digit-string, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		var out float64
		if _, err := fmt.Sscanf(n, "%g", &out); err != nil {
			return 0, fmt.Errorf("not a numeric string: %q", n)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("expected number or digit-string, got %T", v)
	}
}
