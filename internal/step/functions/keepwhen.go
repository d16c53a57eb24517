// Package functions implements the built-in step functions from spec.md
// §4.F: keep-n, keep-when (JSON Schema), deduplicate, rename, and the
// expr-lang-based expression function. Processor-bridged (jq/jsonnet) and
// sink (send-*) functions live alongside these, wired the same way.
package functions

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/soochol/cdp/internal/event"
)

// KeepWhen is the flatmap-mode "keep-when" built-in: it filters out events
// whose data fails validation against the configured JSON Schema (spec.md
// §8 scenario 3).
type KeepWhen struct {
	schema *jsonschema.Schema
}

func (*KeepWhen) Name() string { return "keep-when" }

// NewKeepWhen compiles schemaDoc (a decoded JSON Schema document, e.g.
// `{"type": "object"}`) once at step construction, matching the pattern
// used for payload validation elsewhere in the pack.
func NewKeepWhen(schemaDoc any) (*KeepWhen, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("keep-when.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("keep-when: add schema resource: %w", err)
	}
	schema, err := c.Compile("keep-when.json")
	if err != nil {
		return nil, fmt.Errorf("keep-when: compile schema: %w", err)
	}
	return &KeepWhen{schema: schema}, nil
}

func (k *KeepWhen) Apply(batch []event.Event) ([]event.Event, error) {
	var out []event.Event
	for _, ev := range batch {
		doc, err := roundTripJSON(ev.Data())
		if err != nil {
			return nil, fmt.Errorf("keep-when: %w", err)
		}
		if err := k.schema.Validate(doc); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// roundTripJSON normalizes a Go value into the plain map/slice/scalar
// shape jsonschema.Validate expects, the same way the payload validator
// round-trips through encoding/json before calling Validate.
func roundTripJSON(v any) (any, error) {
	enc, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(enc, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
