// Package step implements the step lifecycle from spec.md §4.F: a channel
// that composes a pattern filter, a window, and a transformation function
// into a single Event-in/Event-out channel.
package step

import (
	"fmt"
	"log/slog"

	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/pattern"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/window"
)

// PatternMode selects which events reach the function. With ModePass only
// matching events do; with ModeDrop only non-matching events do. In both
// modes the events kept from the function pass through untouched. ModeNone
// means no pattern was configured: every event reaches the function.
type PatternMode int

const (
	ModeNone PatternMode = iota
	ModePass
	ModeDrop
)

// Function transforms a batch of events into zero or more output events.
// Sinks implement Function by forwarding the batch unchanged while
// side-effecting externally (spec.md §4.F.4); non-sinks derive new events.
type Function interface {
	// Apply consumes one batch and returns the events to emit.
	Apply(batch []event.Event) ([]event.Event, error)
	// Name identifies the function kind for logging and metrics.
	Name() string
}

// Config holds one step's derived configuration (spec.md §3 "Step").
type Config struct {
	Name        string
	Pattern     pattern.Pattern
	PatternMode PatternMode
	WindowMode  window.Mode
	Window      window.Bounds
	Function    Function
}

// Step is a running Event-in/Event-out channel built from a Config.
type Step struct {
	name string
	ch   *queue.Channel[event.Event]

	reg  *queue.Registry
	in   *queue.Queue[event.Event]
	w    *window.Window
	done chan struct{}

	metric func(flow string)
}

// MetricHook is called with "in", "out", or "dropped" whenever the step
// observes events of that flow, for step_events_total{step,flow}.
type MetricHook func(stepName, flow string)

// New builds a running step channel. metric may be nil.
func New(cfg Config, reg *queue.Registry, metric MetricHook) *Step {
	in := queue.New[event.Event](cfg.Name, reg)
	w := window.New(cfg.WindowMode, cfg.Window)

	s := &Step{name: cfg.Name, reg: reg, in: in, w: w, done: make(chan struct{})}
	if metric != nil {
		s.metric = func(flow string) { metric(cfg.Name, flow) }
	} else {
		s.metric = func(string) {}
	}

	out := queue.New[event.Event](cfg.Name+"-out", reg)
	passthrough := make(chan event.Event, 64)

	go s.filterAndWindow(cfg, passthrough)
	go func() {
		defer close(s.done)
		s.runFunction(cfg, out, passthrough)
	}()

	outCh := queue.NewQueueChannel(out)
	s.ch = queue.Custom(
		func(vs ...event.Event) bool {
			ok := true
			for _, v := range vs {
				s.metric("in")
				if !in.Push(v) {
					ok = false
				}
			}
			return ok
		},
		outCh.Receive,
		func() {
			in.Close()
			<-in.Drained()
			<-s.done
			outCh.Close()
		},
	)
	return s
}

// filterAndWindow reads every incoming event, applies the pattern filter,
// and either forwards it untouched (pass-through) or feeds it to the
// window. It closes passthrough and the window when the input drains.
func (s *Step) filterAndWindow(cfg Config, passthrough chan<- event.Event) {
	defer close(passthrough)
	defer s.w.Close()

	for {
		ev, ok := s.in.Receive()
		if !ok {
			return
		}
		if cfg.PatternMode != ModeNone {
			matched := pattern.Match(ev.Name(), cfg.Pattern)
			skip := (cfg.PatternMode == ModePass && !matched) ||
				(cfg.PatternMode == ModeDrop && matched)
			if skip {
				passthrough <- ev
				continue
			}
		}
		s.w.Push(ev)
	}
}

// runFunction drains window batches, applies the function, and pushes the
// results (plus any pass-through events) to out in the order observed.
func (s *Step) runFunction(cfg Config, out *queue.Queue[event.Event], passthrough <-chan event.Event) {
	defer out.Close()

	batches := s.w.Batches()
	for batches != nil || passthrough != nil {
		select {
		case batch, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			results, err := cfg.Function.Apply(batch)
			if err != nil {
				slog.Warn("step: function raised, dropping batch",
					"step", s.name, "function", cfg.Function.Name(), "err", err)
				continue
			}
			for _, r := range results {
				s.metric("out")
				if !out.Push(r) {
					s.metric("dropped")
				}
			}
		case ev, ok := <-passthrough:
			if !ok {
				passthrough = nil
				continue
			}
			s.metric("out")
			if !out.Push(ev) {
				s.metric("dropped")
			}
		}
	}
}

// Channel exposes the step as a Channel[Event].
func (s *Step) Channel() *queue.Channel[event.Event] { return s.ch }

// Close closes the step's input and awaits its full drain, per spec.md's
// ownership rule: a step owns its windowing state and (if applicable) its
// processor bridge, released in reverse order of acquisition.
func (s *Step) Close() {
	s.ch.Close()
}

// Validate checks a Config against the per-template constraints from
// spec.md §4.I: the name is non-empty, a function is mandatory, and a
// configured pattern is valid. That at most one of pass/drop is given is
// checked when the template is parsed, not here.
func Validate(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("step: name must not be empty")
	}
	if cfg.Function == nil {
		return fmt.Errorf("step %q: exactly one function (flatmap or reduce) is required", cfg.Name)
	}
	if cfg.PatternMode != ModeNone {
		if err := pattern.Validate(cfg.Pattern); err != nil {
			return fmt.Errorf("step %q: invalid pattern: %w", cfg.Name, err)
		}
	}
	return nil
}
