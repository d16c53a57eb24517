package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/dag"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/metrics"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/step"
)

// RunOptions supplies everything runPipeline needs besides the template
// itself: the resolved function/input registry, the shared queue and
// bridge registries the rest of the process already tracks, and the
// cross-cutting collaborators (dead-letter handler, metrics, backpressure
// supervisor) a running pipeline reports into.
type RunOptions struct {
	Registry       *Registry
	QueueRegistry  *queue.Registry
	BridgeRegistry *bridge.Registry
	DrainGrace     time.Duration
	DeadLetter     dag.DeadLetterHandler
	Metrics        *metrics.Metrics
	Supervisor     *backpressure.Supervisor

	// Signature identifies this template for TracePoint.H; defaults to a
	// sha1 of the template name when empty.
	Signature string
	// Now stubs time for tests; defaults to time.Now.
	Now func() time.Time
}

// Pipeline is a running instance of a Template: the wired input adapter,
// step channels, and DAG engine from spec.md §4.I "runPipeline".
type Pipeline struct {
	engine  *dag.Engine
	inputCh *queue.Channel[event.Event]
	cancel  context.CancelFunc

	supervisor *backpressure.Supervisor
	closers    []closer

	feedDone chan struct{}
	allDone  chan struct{}
	stopOnce sync.Once
}

type closer interface{ Close() }

// Run implements spec.md §4.I "runPipeline(template) → (donePromise,
// stopThunk)": it wires the input channel to the bus, builds each step's
// channel, starts the dispatcher, and returns the running Pipeline. Errors
// returned here are the same construction errors Validate would have
// caught; Run does not re-run structural validation, it performs it.
func Run(ctx context.Context, t *Template, opts RunOptions) (*Pipeline, error) {
	runCtx, cancel := context.WithCancel(ctx)

	nodes := make([]dag.NodeDef, 0, len(t.Steps))
	for _, name := range t.Order {
		nodes = append(nodes, t.Steps[name].NodeDef)
	}
	graph, err := dag.Build(nodes)
	if err != nil {
		cancel()
		return nil, err
	}

	var closers []closer
	steps := make(map[string]dag.StepChannel, len(t.Steps))
	for _, name := range t.Order {
		def := t.Steps[name]
		factory, ok := opts.Registry.Functions[def.FunctionKind]
		if !ok {
			cancel()
			return nil, fmt.Errorf("pipeline: step %q: unknown function %q", name, def.FunctionKind)
		}
		fn, err := factory(runCtx, opts.BridgeRegistry, def.FunctionOptions)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("pipeline: step %q: %w", name, err)
		}
		if c, ok := fn.(closer); ok {
			closers = append(closers, c)
		}

		cfg := step.Config{
			Name:        name,
			Pattern:     def.Pattern,
			PatternMode: def.PatternMode,
			WindowMode:  def.WindowMode,
			Window:      def.Window,
			Function:    fn,
		}
		if err := step.Validate(cfg); err != nil {
			cancel()
			return nil, fmt.Errorf("pipeline: step %q: %w", name, err)
		}

		var metricHook step.MetricHook
		if opts.Metrics != nil {
			metricHook = opts.Metrics.StepFlow
		}
		steps[name] = step.New(cfg, opts.QueueRegistry, metricHook)
	}

	inputFactory, ok := opts.Registry.Inputs[t.Input.Form]
	if !ok {
		cancel()
		return nil, fmt.Errorf("pipeline: unknown input form %q", t.Input.Form)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	signature := opts.Signature
	if signature == "" {
		signature = defaultSignature(t.Name)
	}
	parser := event.NewEventParser(t.Name, signature, now)

	inputCh, inputDone, err := inputFactory(runCtx, opts.QueueRegistry, parser, opts.Supervisor, t.Input.Options)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pipeline: input %q: %w", t.Input.Form, err)
	}

	var busMetric dag.MetricHook
	if opts.Metrics != nil {
		busMetric = opts.Metrics.BusFlow
	}
	engine := dag.New(graph, steps, opts.QueueRegistry, opts.DrainGrace, opts.DeadLetter, busMetric)

	p := &Pipeline{
		engine:     engine,
		inputCh:    inputCh,
		cancel:     cancel,
		supervisor: opts.Supervisor,
		closers:    closers,
		feedDone:   make(chan struct{}),
		allDone:    make(chan struct{}),
	}

	go func() {
		defer close(p.feedDone)
		inputCh.Receive(func(ev event.Event) bool {
			return engine.FeedInput(ev)
		})
	}()

	go func() {
		select {
		case <-inputDone:
			p.Stop()
		case <-p.allDone:
		}
	}()

	go func() {
		defer close(p.allDone)
		<-p.feedDone
		engine.Close()
		for _, c := range p.closers {
			c.Close()
		}
		if p.supervisor != nil {
			p.supervisor.Stop()
		}
	}()

	return p, nil
}

// Stop closes the top-level input channel and cancels the pipeline's
// context, beginning the reverse-topological shutdown spec.md §4.I
// describes. Safe to call more than once and from any goroutine.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.inputCh.Close()
		p.cancel()
	})
}

// Done reports when the pipeline has fully shut down: the input channel
// drained, every step closed in dependency order, and bridged function
// processes released.
func (p *Pipeline) Done() <-chan struct{} { return p.allDone }

func defaultSignature(name string) string {
	sum := sha1.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}
