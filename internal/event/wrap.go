package event

// Wrap is a directive that frames raw bytes from a stream into a well-formed
// Serialized event before parsing (spec.md §3). A nil Wrap means the stream
// already carries Serialized JSON values.
type Wrap struct {
	Name string `yaml:"name" json:"name"`
	Raw  bool   `yaml:"raw,omitempty" json:"raw,omitempty"`
}

// Apply frames a decoded line value as {n: w.Name, d: value}. When Raw is
// true, the caller is expected to have already bypassed JSON parsing of the
// payload (line-delimited bytes passed through as a string) — Apply itself
// only performs the renaming, the bypass happens in the stream decoder's
// parseLine selection.
func (w Wrap) Apply(value any) Serialized {
	return Serialized{Name: w.Name, Data: value}
}
