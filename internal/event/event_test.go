package event

import (
	"encoding/json"
	"testing"
)

func TestNewRejectsEmptyName(t *testing.T) {
	if _, err := New("", 1, []TracePoint{{I: 1, P: "p", H: "h"}}); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestWithDataRecomputesSignature(t *testing.T) {
	trace := []TracePoint{{I: 1, P: "p", H: "h"}}
	ev, err := New("a.b", 1, trace)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ev2 := ev.WithData(2)
	if ev.Signature() == ev2.Signature() {
		t.Fatalf("expected different signature after data change")
	}
	if ev2.Name() != ev.Name() {
		t.Fatalf("name should be preserved")
	}
}

func TestWithNamePreservesTrace(t *testing.T) {
	trace := []TracePoint{{I: 1, P: "p", H: "h"}}
	ev, _ := New("a.b", 1, trace)
	renamed := ev.WithName("c.d")
	if len(renamed.Trace()) != 1 || renamed.Trace()[0] != trace[0] {
		t.Fatalf("trace not preserved across rename")
	}
}

func TestTimestampFromLatestTracePoint(t *testing.T) {
	trace := []TracePoint{{I: 1, P: "p1", H: "h1"}, {I: 42, P: "p2", H: "h2"}}
	ev, _ := New("a", nil, trace)
	if ev.Timestamp() != 42 {
		t.Fatalf("expected timestamp 42, got %d", ev.Timestamp())
	}
}

func TestRoundTripJSON(t *testing.T) {
	trace := []TracePoint{{I: 1, P: "p", H: "h"}}
	ev, _ := New("a.b.c", map[string]any{"x": 1.0}, trace)

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var s Serialized
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	back, err := New(s.Name, s.Data, s.Trace)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if back.Signature() != ev.Signature() {
		t.Fatalf("round trip changed signature: %s != %s", back.Signature(), ev.Signature())
	}
}

func TestIsValidName(t *testing.T) {
	cases := map[string]bool{
		"foo":         true,
		"foo.bar":     true,
		"":            false,
		".foo":        false,
		"foo.":        false,
		"foo..bar":    false,
	}
	for name, want := range cases {
		if got := IsValidName(name); got != want {
			t.Errorf("IsValidName(%q) = %v, want %v", name, got, want)
		}
	}
}
