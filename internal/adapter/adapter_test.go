package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
)

func testParser(s event.Serialized) (event.Event, error) {
	trace := append([]event.TracePoint(nil), s.Trace...)
	trace = append(trace, event.TracePoint{I: 1, P: "test", H: "h"})
	return event.New(s.Name, s.Data, trace)
}

func TestGeneratorInputEmitsTicksUntilClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _, err := GeneratorInput(ctx, queue.NewRegistry(), testParser, nil, map[string]any{"seconds": 0.01, "name": "tick"})
	if err != nil {
		t.Fatalf("GeneratorInput: %v", err)
	}
	if ch.Send(event.Event{}) {
		t.Fatal("expected Send to always refuse on a produce-only channel")
	}

	count := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Receive(func(ev event.Event) bool {
			count++
			return count < 3
		})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for generator ticks")
	}
	if count < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", count)
	}
	ch.Close()
}

func TestGeneratorInputSkipsTicksWhileGated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queueReg := queue.NewRegistry()
	held := queue.New[int]("held", queueReg)
	held.Push(1) // depth 1 trips the QueuedEvents threshold below

	gate := backpressure.New(backpressure.Thresholds{IntervalSeconds: 60, QueuedEvents: 1}, queueReg)
	if err := gate.Start(); err != nil {
		t.Fatalf("gate.Start: %v", err)
	}
	defer gate.Stop()
	if !gate.Gated() {
		t.Fatal("expected the gate to be up after a tripped sample")
	}

	ch, _, err := GeneratorInput(ctx, queueReg, testParser, gate, map[string]any{"seconds": 0.01, "name": "tick"})
	if err != nil {
		t.Fatalf("GeneratorInput: %v", err)
	}

	received := false
	go ch.Receive(func(event.Event) bool {
		received = true
		return false
	})
	time.Sleep(100 * time.Millisecond)
	if received {
		t.Fatal("expected no ticks to be emitted while the backpressure gate is up")
	}
	ch.Close()
}

func TestGeneratorInputRejectsMissingSeconds(t *testing.T) {
	_, _, err := GeneratorInput(context.Background(), nil, testParser, nil, map[string]any{})
	if err == nil {
		t.Fatal("expected error for missing seconds option")
	}
}

func TestStdoutSinkWritesNDJSONLines(t *testing.T) {
	var buf bytes.Buffer
	fn, err := newTransformingSink(context.Background(), nil, "send-stdout", &buf, map[string]any{})
	if err != nil {
		t.Fatalf("newTransformingSink: %v", err)
	}
	ev, _ := event.New("a", 1, []event.TracePoint{{I: 1, P: "p", H: "h"}})
	out, err := fn.Apply([]event.Event{ev})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected pass-through of 1 event, got %d", len(out))
	}
	var decoded event.Serialized
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode written line: %v", err)
	}
	if decoded.Name != "a" {
		t.Fatalf("unexpected name %q", decoded.Name)
	}
}

func TestHTTPSinkRetries503ThenSurfacesLastError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fn, err := HTTPSink(context.Background(), nil, map[string]any{
		"url": srv.URL, "maxRetries": 2, "backoffFactorS": 0.001,
	})
	if err != nil {
		t.Fatalf("HTTPSink: %v", err)
	}
	ev, _ := event.New("a", 1, []event.TracePoint{{I: 1, P: "p", H: "h"}})
	_, err = fn.Apply([]event.Event{ev})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected maxRetries+1 = 3 attempts, got %d", attempts)
	}
}

func TestHTTPSinkSurfaces400Immediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	fn, err := HTTPSink(context.Background(), nil, map[string]any{
		"url": srv.URL, "maxRetries": 3, "backoffFactorS": 0.001,
	})
	if err != nil {
		t.Fatalf("HTTPSink: %v", err)
	}
	ev, _ := event.New("a", 1, []event.TracePoint{{I: 1, P: "p", H: "h"}})
	_, err = fn.Apply([]event.Event{ev})
	if err == nil {
		t.Fatal("expected error surfaced for 400")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestHTTPSinkSucceedsOnSecondAttempt(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fn, err := HTTPSink(context.Background(), nil, map[string]any{
		"url": srv.URL, "maxRetries": 3, "backoffFactorS": 0.001,
	})
	if err != nil {
		t.Fatalf("HTTPSink: %v", err)
	}
	ev, _ := event.New("a", 1, []event.TracePoint{{I: 1, P: "p", H: "h"}})
	_, err = fn.Apply([]event.Event{ev})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}
