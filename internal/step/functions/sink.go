package functions

import (
	"fmt"

	"github.com/soochol/cdp/internal/event"
)

// Effect is the external side effect a sink function performs per event
// (e.g. write an NDJSON line to stdout, POST to an HTTP endpoint).
type Effect func(ev event.Event) error

// Sink wraps Effect as a step Function implementing spec.md §4.F.4
// "Sink-with-pass-through": every event in the batch is sent to Effect and
// the unchanged batch is forwarded downstream. A failing Effect call is
// logged by the caller (via the returned error, which drops the whole
// batch per the step's "function raised" policy) rather than silently
// swallowed, since send-* functions are usually the terminal step.
type Sink struct {
	kind    string
	effect  Effect
	closeFn func()
}

// NewSink names the sink by its send-* kind (e.g. "send-stdout",
// "send-http") for logging and metrics. closeFn, if given, releases a
// resource the sink owns (e.g. an open file) when the pipeline shuts down.
func NewSink(kind string, effect Effect, closeFn ...func()) *Sink {
	s := &Sink{kind: kind, effect: effect}
	if len(closeFn) > 0 {
		s.closeFn = closeFn[0]
	}
	return s
}

func (s *Sink) Name() string { return s.kind }

// Close releases closeFn, if any. Safe to call on a sink with none.
func (s *Sink) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

func (s *Sink) Apply(batch []event.Event) ([]event.Event, error) {
	for _, ev := range batch {
		if err := s.effect(ev); err != nil {
			return nil, fmt.Errorf("%s: %w", s.kind, err)
		}
	}
	return batch, nil
}
