// Package adapter implements the input/output adapter contracts from
// spec.md §6: "make(params, options) → (Channel<never,Event>, DonePromise)"
// for inputs, "make(params, options) → Channel<Event[], Event>" for step
// functions (sinks forward their batch unchanged while side-effecting).
// Concrete adapters cover the forms spec.md §8's scenarios exercise
// directly (generator, stdin/stdout, file, HTTP); AMQP/MQTT/Redis/a
// polling HTTP server are boundary-only, per SPEC_FULL.md §6.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/step"
)

// InputFactory builds a produce-only channel plus a done signal that
// closes when the source ends from external causes (spec.md §6 "Input
// form adapter contract"). options is the decoded per-form options
// object from the template's `input: {<form>: <options>}`. gate is the
// process-wide backpressure supervisor (nil when none is wired, e.g. in
// tests); while it reports the gate up, an input must refuse or pause
// ingestion rather than keep pulling (spec.md §4.H).
type InputFactory func(ctx context.Context, reg *queue.Registry, parser event.Parser, gate *backpressure.Supervisor, options map[string]any) (*queue.Channel[event.Event], <-chan struct{}, error)

// gated reports whether gate is non-nil and currently up.
func gated(gate *backpressure.Supervisor) bool {
	return gate != nil && gate.Gated()
}

// waitForGate blocks a pull-based adapter's loop while the backpressure
// gate is up, polling at a short fixed interval, and returns false if ctx
// is cancelled first. A nil gate never blocks.
func waitForGate(ctx context.Context, gate *backpressure.Supervisor) bool {
	if gate == nil {
		return true
	}
	for gate.Gated() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return true
}

// SinkFactory builds a step.Function from a sink's decoded options
// (spec.md §6 "Step function adapter contract"): sinks forward their
// input unchanged while performing one external side effect per event. A
// sink whose options carry a `jq-expr`/`jsonnet-expr` pre-transform (spec.md
// §8 scenario 1) spawns a processor bridge via breg instead, and is
// terminal (its batch is consumed, nothing forwards downstream).
type SinkFactory func(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error)

// InputRegistry maps an input form name to its factory.
type InputRegistry map[string]InputFactory

// SinkRegistry maps a send-* function name to its factory.
type SinkRegistry map[string]SinkFactory

// DefaultInputs returns the built-in input forms.
func DefaultInputs() InputRegistry {
	return InputRegistry{
		"generator": GeneratorInput,
		"stdin":     StdinInput,
		"file":      FileInput,
		"poll-http": PollHTTPInput,
	}
}

// DefaultSinks returns the built-in send-* step functions.
func DefaultSinks() SinkRegistry {
	return SinkRegistry{
		"send-stdout": StdoutSink,
		"send-file":   FileSink,
		"send-http":   HTTPSink,
	}
}

func optString(options map[string]any, key, def string) string {
	if v, ok := options[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func optFloat(options map[string]any, key string, def float64) float64 {
	if v, ok := options[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func optInt(options map[string]any, key string, def int) int {
	if v, ok := options[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

func optBool(options map[string]any, key string, def bool) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func invalidOption(adapterName, key string, v any) error {
	return fmt.Errorf("adapter %q: invalid option %q: %v", adapterName, key, v)
}
