package backpressure

import (
	"testing"

	"github.com/soochol/cdp/internal/queue"
)

func TestSupervisorTripsOnQueuedEventsThreshold(t *testing.T) {
	reg := queue.NewRegistry()
	q := queue.New[int]("q", reg)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}

	s := New(Thresholds{QueuedEvents: 3}, reg)
	s.sample()
	if !s.Gated() {
		t.Fatal("expected gate to trip when queued events exceed threshold")
	}
}

func TestSupervisorClearWhenUnderThreshold(t *testing.T) {
	reg := queue.NewRegistry()
	q := queue.New[int]("q", reg)
	q.Push(1)

	s := New(Thresholds{QueuedEvents: 100}, reg)
	s.sample()
	if s.Gated() {
		t.Fatal("expected gate to stay down when under threshold")
	}
}

func TestSupervisorWithNoThresholdsNeverTrips(t *testing.T) {
	s := New(Thresholds{}, nil)
	s.sample()
	if s.Gated() {
		t.Fatal("expected gate to stay down with no configured thresholds")
	}
}
