package functions

import (
	"fmt"

	"github.com/soochol/cdp/internal/event"
)

// KeepN is the flatmap-mode "keep-n" built-in (spec.md §8 scenario 4): it
// emits a single derived event whose data is the first min(n, len(batch))
// elements of the batch's data values.
type KeepN struct {
	N int
}

func (KeepN) Name() string { return "keep-n" }

// Apply collects up to N data values from batch into one array-valued
// event, inheriting the trace of the batch's last event.
func (k KeepN) Apply(batch []event.Event) ([]event.Event, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	n := k.N
	if n > len(batch) {
		n = len(batch)
	}
	data := make([]any, n)
	for i := 0; i < n; i++ {
		data[i] = batch[i].Data()
	}
	ev, err := event.New("keep-n", data, batch[len(batch)-1].Trace())
	if err != nil {
		return nil, fmt.Errorf("keep-n: %w", err)
	}
	return []event.Event{ev}, nil
}

// ValidateKeepN enforces the per-function option rule (spec.md §7
// "Validation error"): N must be a positive integer.
func ValidateKeepN(n int) error {
	if n <= 0 {
		return fmt.Errorf("keep-n: n must be >= 1, got %d", n)
	}
	return nil
}
