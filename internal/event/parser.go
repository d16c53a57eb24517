package event

import (
	"fmt"
	"log/slog"
	"time"
)

// Parser turns a Serialized event into an Event, or reports an error that
// the caller should log and drop rather than propagate (spec.md §4.C).
type Parser func(Serialized) (Event, error)

// NewEventParser builds a parser used by input adapters: it appends a new
// trace point stamped with the arrival timestamp, pipeline name, and
// pipeline signature, and requires a valid event name.
func NewEventParser(pipelineName, pipelineSignature string, now func() time.Time) Parser {
	return func(s Serialized) (Event, error) {
		if !IsValidName(s.Name) {
			return Event{}, fmt.Errorf("new-event parser: invalid name %q", s.Name)
		}
		trace := append([]TracePoint(nil), s.Trace...)
		trace = append(trace, TracePoint{
			I: now().Unix(),
			P: pipelineName,
			H: pipelineSignature,
		})
		return New(s.Name, s.Data, trace)
	}
}

// OldEventParser builds a parser used when reading events produced by this
// or another pipeline: it requires a non-empty trace and never appends.
func OldEventParser() Parser {
	return func(s Serialized) (Event, error) {
		if !IsValidName(s.Name) {
			return Event{}, fmt.Errorf("old-event parser: invalid name %q", s.Name)
		}
		if len(s.Trace) == 0 {
			return Event{}, ErrEmptyTrace
		}
		return New(s.Name, s.Data, s.Trace)
	}
}

// ParseVector flattens arbitrary nesting of slices in raw and applies parse
// to each leaf. A leaf that fails to parse is dropped with a warning so one
// bad element cannot discard the whole batch.
func ParseVector(raw any, parse func(any) (Event, error)) []Event {
	var out []Event
	flattenInto(raw, parse, &out)
	return out
}

func flattenInto(raw any, parse func(any) (Event, error), out *[]Event) {
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			flattenInto(item, parse, out)
		}
	case nil:
		return
	default:
		ev, err := parse(v)
		if err != nil {
			slog.Warn("event: dropping unparsable element", "err", err)
			return
		}
		*out = append(*out, ev)
	}
}
