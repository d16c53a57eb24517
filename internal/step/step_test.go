package step

import (
	"testing"
	"time"

	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/pattern"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/window"
)

type identityFunc struct{}

func (identityFunc) Name() string { return "identity" }
func (identityFunc) Apply(batch []event.Event) ([]event.Event, error) { return batch, nil }

type countFunc struct{}

func (countFunc) Name() string { return "count" }
func (countFunc) Apply(batch []event.Event) ([]event.Event, error) {
	ev, err := event.New("count", len(batch), batch[0].Trace())
	if err != nil {
		return nil, err
	}
	return []event.Event{ev}, nil
}

func mustEvent(t *testing.T, name string) event.Event {
	t.Helper()
	ev, err := event.New(name, nil, []event.TracePoint{{I: 1, P: "p", H: "h"}})
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev
}

func collectN(t *testing.T, ch *queue.Channel[event.Event], n int, timeout time.Duration) []event.Event {
	t.Helper()
	var got []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Receive(func(ev event.Event) bool {
			got = append(got, ev)
			return len(got) < n
		})
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out, got %d of %d", len(got), n)
	}
	return got
}

func TestStepWithoutPatternAlwaysRunsFunction(t *testing.T) {
	cfg := Config{
		Name:       "s1",
		WindowMode: window.Reduce,
		Window:     window.Bounds{Events: 1},
		Function:   countFunc{},
	}
	s := New(cfg, nil, nil)
	defer s.Close()

	s.Channel().Send(mustEvent(t, "a"))
	got := collectN(t, s.Channel(), 1, time.Second)
	if len(got) != 1 || got[0].Name() != "count" {
		t.Fatalf("expected a count event, got %v", got)
	}
}

func TestStepPassModeSkipsFunctionOnNonMatch(t *testing.T) {
	cfg := Config{
		Name:        "s2",
		Pattern:     pattern.Lit("wanted.*"),
		PatternMode: ModePass,
		WindowMode:  window.Reduce,
		Window:      window.Bounds{Events: 1},
		Function:    countFunc{},
	}
	s := New(cfg, nil, nil)
	defer s.Close()

	s.Channel().Send(mustEvent(t, "other.thing"))
	got := collectN(t, s.Channel(), 1, time.Second)
	if len(got) != 1 || got[0].Name() != "other.thing" {
		t.Fatalf("expected pass-through of unmatched event, got %v", got)
	}
}

func TestStepDropModeSkipsFunctionOnMatch(t *testing.T) {
	cfg := Config{
		Name:        "s3",
		Pattern:     pattern.Lit("skip.*"),
		PatternMode: ModeDrop,
		WindowMode:  window.Flatmap,
		Window:      window.Bounds{Events: 5},
		Function:    identityFunc{},
	}
	s := New(cfg, nil, nil)
	defer s.Close()

	s.Channel().Send(mustEvent(t, "skip.me"))
	got := collectN(t, s.Channel(), 1, time.Second)
	if len(got) != 1 || got[0].Name() != "skip.me" {
		t.Fatalf("expected drop-mode match to pass through untouched, got %v", got)
	}
}

func TestValidateRequiresFunction(t *testing.T) {
	if err := Validate(Config{Name: "x"}); err == nil {
		t.Fatal("expected error for missing function")
	}
}

func TestValidateRejectsEmptyName(t *testing.T) {
	if err := Validate(Config{Function: identityFunc{}}); err == nil {
		t.Fatal("expected error for empty name")
	}
}
