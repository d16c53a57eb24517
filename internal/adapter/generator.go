package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
)

// GeneratorInput emits one event per tick at the configured interval
// (spec.md §8 scenario 1: `generator {seconds: 0.1}`). options: `seconds`
// (required, > 0), `name` (default "tick"). While gate is up, a tick is
// skipped entirely rather than queued (spec.md §4.H "pull-based adapters
// skip a polling tick").
func GeneratorInput(ctx context.Context, reg *queue.Registry, parser event.Parser, gate *backpressure.Supervisor, options map[string]any) (*queue.Channel[event.Event], <-chan struct{}, error) {
	seconds := optFloat(options, "seconds", 0)
	if seconds <= 0 {
		return nil, nil, invalidOption("generator", "seconds", options["seconds"])
	}
	name := optString(options, "name", "tick")

	out := queue.New[event.Event]("generator", reg)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer out.Close()
		ticker := time.NewTicker(time.Duration(seconds * float64(time.Second)))
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if gated(gate) {
					continue
				}
				ev, err := parser(event.Serialized{Name: name, Data: n})
				n++
				if err != nil {
					slog.Warn("generator: dropping invalid tick event", "err", err)
					continue
				}
				if !out.Push(ev) {
					return
				}
			}
		}
	}()

	ch := queue.NewQueueChannel(out)
	return queue.Wrap(ch, produceOnly[event.Event]), done, nil
}

// produceOnly is the Send override for every input adapter channel: spec.md
// §6 "The channel only produces; send returns false."
func produceOnly[T any](vs ...T) bool { return false }
