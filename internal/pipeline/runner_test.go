package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/queue"
)

func TestRunWiresGeneratorIntoSinkAndStopsCleanly(t *testing.T) {
	tpl := mustParse(t, map[string]any{
		"name":  "run-smoke",
		"input": map[string]any{"generator": map[string]any{"seconds": 0.01, "name": "tick"}},
		"steps": map[string]any{
			"out": map[string]any{
				"window":  map[string]any{"events": 1},
				"flatmap": map[string]any{"send-stdout": map[string]any{}},
			},
		},
	})

	reg := DefaultRegistry()
	if err := Validate(tpl, reg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	opts := RunOptions{
		Registry:       reg,
		QueueRegistry:  queue.NewRegistry(),
		BridgeRegistry: bridge.NewRegistry(),
		DrainGrace:     time.Millisecond,
	}

	p, err := Run(context.Background(), tpl, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	p.Stop()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not shut down in time")
	}

	// Stop is idempotent.
	p.Stop()
}

func TestRunRejectsUnknownInputForm(t *testing.T) {
	tpl := mustParse(t, map[string]any{
		"name":  "p",
		"input": map[string]any{"carrier-pigeon": map[string]any{}},
	})

	opts := RunOptions{
		Registry:       DefaultRegistry(),
		QueueRegistry:  queue.NewRegistry(),
		BridgeRegistry: bridge.NewRegistry(),
	}
	if _, err := Run(context.Background(), tpl, opts); err == nil {
		t.Fatal("expected an error for an unknown input form")
	}
}
