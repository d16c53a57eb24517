// Package event implements the CDP event model: entity, trace vector,
// signature, and the wire-level serialized form (spec.md §3, §4.C).
package event

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrEmptyName rejects the empty-name event invariant.
var ErrEmptyName = errors.New("event: name must be a non-empty dotted identifier")

// ErrEmptyTrace rejects events with no provenance.
var ErrEmptyTrace = errors.New("event: trace must be non-empty")

// TracePoint is a single provenance record appended when an event enters a
// pipeline from an input (spec.md §3).
type TracePoint struct {
	I int64  `json:"i"` // unix seconds
	P string `json:"p"` // pipeline name
	H string `json:"h"` // pipeline signature
}

// Event is an immutable record flowing through the pipeline DAG.
type Event struct {
	name      string
	data      any
	trace     []TracePoint
	signature string
}

// New constructs an Event from its three identity fields and computes the
// signature. Returns ErrEmptyName if name is empty.
func New(name string, data any, trace []TracePoint) (Event, error) {
	if name == "" {
		return Event{}, ErrEmptyName
	}
	traceCopy := append([]TracePoint(nil), trace...)
	return Event{
		name:      name,
		data:      data,
		trace:     traceCopy,
		signature: signOf(name, data, traceCopy),
	}, nil
}

// Name returns the event's dotted identifier.
func (e Event) Name() string { return e.name }

// Data returns the event's payload.
func (e Event) Data() any { return e.data }

// Trace returns a copy of the event's trace vector.
func (e Event) Trace() []TracePoint {
	return append([]TracePoint(nil), e.trace...)
}

// Signature returns the SHA-1 hex digest over (name, data, trace).
func (e Event) Signature() string { return e.signature }

// Timestamp returns the unix-seconds of the latest trace point, or 0 if the
// trace is empty (should not happen for a valid event).
func (e Event) Timestamp() int64 {
	if len(e.trace) == 0 {
		return 0
	}
	return e.trace[len(e.trace)-1].I
}

// WithData clones the event with new data, recomputing the signature. The
// trace is preserved unchanged — internal transformations never rewrite
// trace points.
func (e Event) WithData(data any) Event {
	return Event{
		name:      e.name,
		data:      data,
		trace:     e.Trace(),
		signature: signOf(e.name, data, e.trace),
	}
}

// WithName clones the event with a new name, recomputing the signature.
func (e Event) WithName(name string) Event {
	return Event{
		name:      name,
		data:      e.data,
		trace:     e.Trace(),
		signature: signOf(name, e.data, e.trace),
	}
}

// WithTrace clones the event with an extended trace, recomputing the
// signature. Used when an event enters a pipeline from an input.
func (e Event) WithTrace(trace []TracePoint) Event {
	traceCopy := append([]TracePoint(nil), trace...)
	return Event{
		name:      e.name,
		data:      e.data,
		trace:     traceCopy,
		signature: signOf(e.name, e.data, traceCopy),
	}
}

func signOf(name string, data any, trace []TracePoint) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00", name)
	encData, err := json.Marshal(data)
	if err != nil {
		// Best-effort: an unmarshalable payload still produces a stable
		// signature from its Go string form rather than failing event
		// construction.
		fmt.Fprintf(h, "%v\x00", data)
	} else {
		h.Write(encData)
		h.Write([]byte{0})
	}
	for _, tp := range trace {
		fmt.Fprintf(h, "%d\x00%s\x00%s\x00", tp.I, tp.P, tp.H)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsValidName reports whether name is a valid non-empty dotted identifier:
// every word is non-empty and contains no whitespace or dot characters.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, word := range strings.Split(name, ".") {
		if word == "" || strings.IndexFunc(word, unicode.IsSpace) >= 0 {
			return false
		}
	}
	return true
}
