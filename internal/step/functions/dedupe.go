package functions

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"

	"github.com/soochol/cdp/internal/event"
)

// Deduplicate is the flatmap-mode "deduplicate" built-in (spec.md §4.F):
// it collapses events in a batch that share a key computed from whichever
// of name/data/trace are configured to be considered. When all three are
// false, every event in the batch collapses to a single survivor.
type Deduplicate struct {
	ConsiderName  bool
	ConsiderData  bool
	ConsiderTrace bool
}

func (Deduplicate) Name() string { return "deduplicate" }

func (d Deduplicate) Apply(batch []event.Event) ([]event.Event, error) {
	seen := make(map[string]struct{}, len(batch))
	var out []event.Event
	for _, ev := range batch {
		key, err := d.keyOf(ev)
		if err != nil {
			return nil, fmt.Errorf("deduplicate: %w", err)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out, nil
}

func (d Deduplicate) keyOf(ev event.Event) (string, error) {
	h := sha1.New()
	wrote := false
	if d.ConsiderName {
		h.Write([]byte(ev.Name()))
		wrote = true
	}
	if d.ConsiderData {
		enc, err := json.Marshal(ev.Data())
		if err != nil {
			return "", err
		}
		h.Write(enc)
		wrote = true
	}
	if d.ConsiderTrace {
		enc, err := json.Marshal(ev.Trace())
		if err != nil {
			return "", err
		}
		h.Write(enc)
		wrote = true
	}
	if !wrote {
		return "*", nil
	}
	return string(h.Sum(nil)), nil
}
