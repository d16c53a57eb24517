package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/decoder"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/step"
	"github.com/soochol/cdp/internal/step/functions"
)

// StdinInput decodes newline-delimited Serialized JSON from the process's
// standard input (spec.md §6 "Wire formats" default encoding). While gate
// reports the backpressure gate up, StdinInput pauses before handing the
// next decoded line onward (spec.md §4.H "pull-based adapters pause
// ingestion").
func StdinInput(ctx context.Context, reg *queue.Registry, parser event.Parser, gate *backpressure.Supervisor, options map[string]any) (*queue.Channel[event.Event], <-chan struct{}, error) {
	out := queue.New[event.Event]("stdin", reg)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer out.Close()
		decoder.Decode(os.Stdin, decoder.Options{Parse: decoder.JSONLine}, func(v any) bool {
			if !waitForGate(ctx, gate) {
				return false
			}
			select {
			case <-ctx.Done():
				return false
			default:
			}
			sv, err := toSerialized(v)
			if err != nil {
				slog.Warn("stdin: dropping unparsable line", "err", err)
				return true
			}
			ev, err := parser(sv)
			if err != nil {
				slog.Warn("stdin: dropping invalid event", "err", err)
				return true
			}
			return out.Push(ev)
		})
	}()

	ch := queue.NewQueueChannel(out)
	return queue.Wrap(ch, produceOnly[event.Event]), done, nil
}

// StdoutSink writes each event's serialized wire form as one NDJSON line
// to standard output (spec.md §6 default encoding). When options carries
// `jq-expr` or `jsonnet-expr` (spec.md §8 scenario 1), the whole batch's
// data values are fed through that processor as a single array value and
// the processor's single response is the line written instead — the sink
// becomes terminal, matching scenario 1's "one stdout line per batch".
func StdoutSink(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error) {
	return newTransformingSink(ctx, breg, "send-stdout", os.Stdout, options)
}

func newTransformingSink(ctx context.Context, breg *bridge.Registry, kind string, w writer, options map[string]any) (step.Function, error) {
	enc := json.NewEncoder(w)
	var mu sync.Mutex
	write := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(v)
	}

	// closeWriter releases w on shutdown if it owns a closable resource
	// (a file, for send-file); os.Stdout's Close() error signature doesn't
	// match this narrower assertion, so it is never closed here.
	closeWriter := func() {
		if c, ok := w.(interface{ Close() }); ok {
			c.Close()
		}
	}

	if exprStr := optString(options, "jq-expr", ""); exprStr != "" {
		b, err := bridge.Spawn(ctx, "jq", []string{"--unbuffered", "-c", exprStr}, breg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return &batchBridgedSink{kind: kind, b: b, write: write, closeWriter: closeWriter}, nil
	}
	if exprStr := optString(options, "jsonnet-expr", ""); exprStr != "" {
		b, err := bridge.Spawn(ctx, "jsonnet", []string{"-e", exprStr}, breg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return &batchBridgedSink{kind: kind, b: b, write: write, closeWriter: closeWriter}, nil
	}

	return functions.NewSink(kind, func(ev event.Event) error {
		return write(event.ToSerialized(ev))
	}, closeWriter), nil
}

// writer is the subset of io.Writer a sink needs, kept narrow so tests can
// substitute a bytes.Buffer without pulling in os.File.
type writer interface {
	Write(p []byte) (int, error)
}

// batchBridgedSink feeds a whole batch's data values through a processor
// bridge as one array value and writes back the single response,
// consuming the batch (spec.md §8 scenario 1).
type batchBridgedSink struct {
	kind        string
	b           *bridge.Bridge
	write       func(v any) error
	closeWriter func()
}

func (s *batchBridgedSink) Name() string { return s.kind }

func (s *batchBridgedSink) Apply(batch []event.Event) ([]event.Event, error) {
	if !s.b.Healthy() {
		return nil, fmt.Errorf("%s: processor bridge is unhealthy", s.kind)
	}
	data := make([]any, len(batch))
	for i, ev := range batch {
		data[i] = ev.Data()
	}
	ch := s.b.Channel()
	ch.Send(data)

	var result any
	received := false
	ch.Receive(func(v any) bool {
		result = v
		received = true
		return false
	})
	if !received {
		return nil, fmt.Errorf("%s: no response from processor bridge", s.kind)
	}
	return nil, s.write(result)
}

// Close releases the underlying child process and the writer, if owned.
func (s *batchBridgedSink) Close() {
	s.b.Close()
	if s.closeWriter != nil {
		s.closeWriter()
	}
}

// toSerialized normalizes a decoder-yielded value (typically
// map[string]any) into the {n,d,t} wire shape via a JSON round-trip.
func toSerialized(v any) (event.Serialized, error) {
	enc, err := json.Marshal(v)
	if err != nil {
		return event.Serialized{}, err
	}
	var s event.Serialized
	if err := json.Unmarshal(enc, &s); err != nil {
		return event.Serialized{}, err
	}
	return s, nil
}
