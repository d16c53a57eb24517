package functions

import (
	"context"
	"fmt"

	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/event"
)

// Bridged is a processor-bridged function (jq-expr or jsonnet-expr,
// spec.md §9 "Processor bridge parity"): it feeds each batch's data
// through an external child process one value at a time and parses
// whatever the child emits back as new data for a derived event. The two
// backends share this implementation; only the spawned command differs
// (see NewJQ / NewJsonnet). jq-expr and jsonnet-expr are mutually
// exclusive on the same step.
type Bridged struct {
	kind       string
	resultName string
	b          *bridge.Bridge
}

func (f *Bridged) Name() string { return f.kind }

// NewJQ spawns `jq --unbuffered -c <expr>` as a Bridged function.
func NewJQ(ctx context.Context, reg *bridge.Registry, exprStr, resultName string) (*Bridged, error) {
	return newBridged(ctx, reg, "jq-expr", resultName, "jq", []string{"--unbuffered", "-c", exprStr})
}

// NewJsonnet spawns an external jsonnet processor reading one JSON value
// per stdin line, under the same contract as NewJQ.
func NewJsonnet(ctx context.Context, reg *bridge.Registry, exprStr, resultName string) (*Bridged, error) {
	return newBridged(ctx, reg, "jsonnet-expr", resultName, "jsonnet", []string{"-e", exprStr})
}

func newBridged(ctx context.Context, reg *bridge.Registry, kind, resultName, program string, args []string) (*Bridged, error) {
	b, err := bridge.Spawn(ctx, program, args, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return &Bridged{kind: kind, resultName: resultName, b: b}, nil
}

// Apply feeds every event's data to the child process and collects the
// child's response for each, in order, one derived event per response.
// Per-line errors in the child drop that input's output without tearing
// down the bridge (spec.md §4.E invariant).
func (f *Bridged) Apply(batch []event.Event) ([]event.Event, error) {
	if !f.b.Healthy() {
		return nil, fmt.Errorf("%s: processor bridge is unhealthy", f.kind)
	}
	ch := f.b.Channel()
	out := make([]event.Event, 0, len(batch))
	for _, ev := range batch {
		ch.Send(ev.Data())
	}
	received := 0
	ch.Receive(func(v any) bool {
		derived, err := event.New(f.resultName, v, batch[min(received, len(batch)-1)].Trace())
		received++
		if err == nil {
			out = append(out, derived)
		}
		return received < len(batch)
	})
	return out, nil
}

// Close releases the underlying child process.
func (f *Bridged) Close() { f.b.Close() }
