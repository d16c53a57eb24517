package event

import (
	"testing"
	"time"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewEventParserAppendsTracePoint(t *testing.T) {
	parser := NewEventParser("pipe", "sig", fixedNow(time.Unix(100, 0)))
	ev, err := parser(Serialized{Name: "a.b", Data: 1})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	trace := ev.Trace()
	if len(trace) != 1 {
		t.Fatalf("expected 1 trace point, got %d", len(trace))
	}
	if trace[0].I != 100 || trace[0].P != "pipe" || trace[0].H != "sig" {
		t.Fatalf("unexpected trace point: %+v", trace[0])
	}
}

func TestNewEventParserRejectsInvalidName(t *testing.T) {
	parser := NewEventParser("pipe", "sig", fixedNow(time.Unix(0, 0)))
	if _, err := parser(Serialized{Name: ""}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestOldEventParserRequiresTrace(t *testing.T) {
	parser := OldEventParser()
	if _, err := parser(Serialized{Name: "a"}); err != ErrEmptyTrace {
		t.Fatalf("expected ErrEmptyTrace, got %v", err)
	}
}

func TestOldEventParserDoesNotAppend(t *testing.T) {
	parser := OldEventParser()
	trace := []TracePoint{{I: 1, P: "p", H: "h"}}
	ev, err := parser(Serialized{Name: "a", Trace: trace})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ev.Trace()) != 1 {
		t.Fatalf("expected trace unchanged, got %d points", len(ev.Trace()))
	}
}

func TestParseVectorFlattensNestedArrays(t *testing.T) {
	parser := OldEventParser()
	trace := []TracePoint{{I: 1, P: "p", H: "h"}}
	raw := []any{
		map[string]any{"n": "a", "t": toAnySlice(trace)},
		[]any{
			map[string]any{"n": "b", "t": toAnySlice(trace)},
			map[string]any{"n": "", "t": toAnySlice(trace)}, // invalid, dropped
		},
	}
	events := ParseVector(raw, func(leaf any) (Event, error) {
		m := leaf.(map[string]any)
		name, _ := m["n"].(string)
		return parser(Serialized{Name: name, Trace: trace})
	})
	if len(events) != 2 {
		t.Fatalf("expected 2 events (one dropped), got %d", len(events))
	}
}

func toAnySlice(trace []TracePoint) []any {
	out := make([]any, len(trace))
	for i, tp := range trace {
		out[i] = tp
	}
	return out
}
