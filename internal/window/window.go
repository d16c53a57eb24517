// Package window implements the sliding and tumbling windowing layer from
// spec.md §4.F: group events into size- and time-bounded batches ahead of
// a step's transformation function.
package window

import (
	"time"

	"github.com/soochol/cdp/internal/event"
)

// Bounds caps a window by event count, elapsed time, or both. A zero value
// means that bound is disabled; at least one of the two must be positive
// for a window to ever close on its own (enforced at template validation,
// not here).
type Bounds struct {
	Events  int
	Seconds float64
}

// Mode selects sliding (Flatmap) vs tumbling (Reduce) windowing.
type Mode int

const (
	Flatmap Mode = iota
	Reduce
)

// Window groups events pushed via Push into batches emitted on Batches,
// following the bound whichever is reached first. Close flushes any
// partial state per Mode and stops the timer goroutine.
type Window struct {
	mode    Mode
	bounds  Bounds
	batches chan []event.Event

	timer   *time.Timer
	timerCh chan struct{}

	buf []event.Event

	closed  bool
	closeCh chan struct{}
}

// New constructs a Window. bounds.Events <= 0 means unbounded by count;
// bounds.Seconds <= 0 means unbounded by time. A windowMaxSize of 1 (per
// spec.md §4.F edge case) ignores the time bound and emits every event
// immediately as a one-element batch.
func New(mode Mode, bounds Bounds) *Window {
	w := &Window{
		mode:    mode,
		bounds:  bounds,
		batches: make(chan []event.Event, 16),
		closeCh: make(chan struct{}),
	}
	if bounds.Events == 1 {
		w.bounds.Seconds = 0
	}
	if w.bounds.Seconds > 0 {
		w.armTimer()
	}
	return w
}

func (w *Window) armTimer() {
	w.timer = time.NewTimer(time.Duration(w.bounds.Seconds * float64(time.Second)))
	w.timerCh = make(chan struct{})
	go func() {
		select {
		case <-w.timer.C:
			close(w.timerCh)
		case <-w.closeCh:
			w.timer.Stop()
		}
	}()
}

// Push adds ev to the window, emitting batches to Batches as bounds are
// crossed. For Flatmap (sliding) mode every push emits a batch; for Reduce
// (tumbling) mode a batch is only emitted when a bound is reached.
func (w *Window) Push(ev event.Event) {
	select {
	case <-w.timerCh:
		w.flushReduce()
		if w.bounds.Seconds > 0 {
			w.armTimer()
		}
	default:
	}

	switch w.mode {
	case Flatmap:
		w.pushSliding(ev)
	case Reduce:
		w.pushTumbling(ev)
	}
}

func (w *Window) pushSliding(ev event.Event) {
	w.buf = append(w.buf, ev)
	if w.bounds.Events > 0 && len(w.buf) > w.bounds.Events {
		w.buf = w.buf[len(w.buf)-w.bounds.Events:]
	}
	batch := make([]event.Event, len(w.buf))
	copy(batch, w.buf)
	w.batches <- batch
}

func (w *Window) pushTumbling(ev event.Event) {
	w.buf = append(w.buf, ev)
	if w.bounds.Events > 0 && len(w.buf) >= w.bounds.Events {
		w.flushReduce()
		if w.bounds.Seconds > 0 {
			w.timer.Reset(time.Duration(w.bounds.Seconds * float64(time.Second)))
		}
	}
}

func (w *Window) flushReduce() {
	if len(w.buf) == 0 {
		return
	}
	batch := w.buf
	w.buf = nil
	w.batches <- batch
}

// Batches is the channel of emitted batches, in order.
func (w *Window) Batches() <-chan []event.Event { return w.batches }

// Close flushes terminal state per mode and stops the timer. For Reduce
// (tumbling) mode, any partial batch is flushed. For Flatmap (sliding)
// mode, the natural tail is emitted: the last full batch is truncated on
// its right edge into successive shorter batches down to a single
// element; per the resolved Open Question (spec.md §9), the terminal
// *empty* batch is not emitted. Safe to call once.
func (w *Window) Close() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.closeCh)
	switch w.mode {
	case Reduce:
		w.flushReduce()
	case Flatmap:
		for len(w.buf) > 1 {
			w.buf = w.buf[1:]
			batch := make([]event.Event, len(w.buf))
			copy(batch, w.buf)
			w.batches <- batch
		}
	}
	close(w.batches)
}
