package event

import "encoding/json"

// Serialized is the wire form: {n, d?, t?} (spec.md §3).
type Serialized struct {
	Name  string       `json:"n"`
	Data  any          `json:"d,omitempty"`
	Trace []TracePoint `json:"t,omitempty"`
}

// ToSerialized converts an Event to its wire form.
func ToSerialized(e Event) Serialized {
	return Serialized{
		Name:  e.Name(),
		Data:  e.Data(),
		Trace: e.Trace(),
	}
}

// MarshalJSON renders the event as its serialized wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToSerialized(e))
}
