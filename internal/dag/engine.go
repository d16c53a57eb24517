package dag

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
)

// busEntry is one (sourceId, Event) tuple on the bus queue (spec.md §4.G.4,
// GLOSSARY "Bus").
type busEntry struct {
	source string
	ev     event.Event
}

// StepChannel is the subset of step.Step the engine depends on, kept
// narrow so the engine package does not import step (which would create
// an import cycle, since steps are built from DAG-shaped configuration).
type StepChannel interface {
	Channel() *queue.Channel[event.Event]
	Close()
}

// DeadLetterHandler receives every event whose push was refused, at
// shutdown (spec.md §4.G.4 Shutdown step 4).
type DeadLetterHandler func(source string, ev event.Event)

// MetricHook observes one bus-level event by flow ("in", "out", "dead").
type MetricHook func(flow string)

// Engine wires a DAG of steps to the bus dispatcher and owns coordinated
// shutdown (spec.md §4.G "Execution" and "Shutdown").
type Engine struct {
	graph *DAG
	steps map[string]StepChannel

	bus *queue.Queue[busEntry]

	drainGrace time.Duration
	deadLetter DeadLetterHandler
	metric     MetricHook

	dead   []busEntry
	deadMu sync.Mutex

	wg sync.WaitGroup
}

// New constructs an Engine. steps must contain exactly the DAG's step
// names. drainGrace is the per-round pause the shutdown sequence waits
// for in-flight events to propagate (spec.md §4.G.3).
func New(graph *DAG, steps map[string]StepChannel, reg *queue.Registry, drainGrace time.Duration, deadLetter DeadLetterHandler, metric MetricHook) *Engine {
	if metric == nil {
		metric = func(string) {}
	}
	e := &Engine{
		graph:      graph,
		steps:      steps,
		bus:        queue.New[busEntry]("bus", reg),
		drainGrace: drainGrace,
		deadLetter: deadLetter,
		metric:     metric,
	}
	for name, s := range steps {
		name, s := name, s
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			s.Channel().Receive(func(ev event.Event) bool {
				e.bus.Push(busEntry{source: name, ev: ev})
				return true
			})
		}()
	}
	e.wg.Add(1)
	go e.dispatch()
	return e
}

// FeedInput pushes ev onto the bus as if it arrived from $input, the way
// spec.md §4.G.4 step 4 describes feeding the input into the bus.
func (e *Engine) FeedInput(ev event.Event) bool {
	return e.bus.Push(busEntry{source: InputNode, ev: ev})
}

// dispatch drains the bus and fans each event out to every dependent
// step's input queue, per spec.md §4.G.5.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		entry, ok := e.bus.Receive()
		if !ok {
			return
		}
		e.metric("in")
		for _, target := range e.graph.Children(entry.source) {
			step, ok := e.steps[target]
			if !ok {
				continue
			}
			if step.Channel().Send(entry.ev) {
				e.metric("out")
			} else {
				e.metric("dead")
				e.recordDead(target, entry.ev)
			}
		}
	}
}

func (e *Engine) recordDead(source string, ev event.Event) {
	e.deadMu.Lock()
	e.dead = append(e.dead, busEntry{source: source, ev: ev})
	e.deadMu.Unlock()
	slog.Warn("dag: event refused by closed step, recorded as dead", "step", source, "event", ev.Name())
}

// Close performs the coordinated reverse-topological shutdown from spec.md
// §4.G "Shutdown": repeatedly peel steps whose dependents are all already
// closed, close them, await drain, and pause drainGrace between rounds;
// then close the bus and invoke the dead-letter handler.
func (e *Engine) Close() {
	closedSteps := make(map[string]struct{})
	remaining := make(map[string]struct{}, len(e.steps))
	for name := range e.steps {
		remaining[name] = struct{}{}
	}

	for len(remaining) > 0 {
		var round []string
		for name := range remaining {
			if e.allDependentsClosed(name, closedSteps) {
				round = append(round, name)
			}
		}
		if len(round) == 0 {
			// No progress is possible (should not happen for a validated
			// DAG); close everything left to avoid hanging forever.
			for name := range remaining {
				round = append(round, name)
			}
		}

		g := new(errgroup.Group)
		for _, name := range round {
			name := name
			g.Go(func() error {
				e.steps[name].Close()
				return nil
			})
		}
		g.Wait()

		for _, name := range round {
			closedSteps[name] = struct{}{}
			delete(remaining, name)
		}
		if len(remaining) > 0 && e.drainGrace > 0 {
			time.Sleep(e.drainGrace)
		}
	}

	e.bus.Close()
	<-e.bus.Drained()
	e.wg.Wait()

	if e.deadLetter != nil {
		e.deadMu.Lock()
		dead := e.dead
		e.deadMu.Unlock()
		for _, d := range dead {
			e.deadLetter(d.source, d.ev)
		}
	}
}

// allDependentsClosed reports whether every direct dependent of name has
// already been closed — name has no dependents left to feed, so it is
// safe to close (spec.md's leaves-first peeling order).
func (e *Engine) allDependentsClosed(name string, closed map[string]struct{}) bool {
	for _, child := range e.graph.Children(name) {
		if _, ok := e.steps[child]; !ok {
			continue // child is not a step (shouldn't happen for validated graphs)
		}
		if _, done := closed[child]; !done {
			return false
		}
	}
	return true
}
