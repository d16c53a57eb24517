package functions

import (
	"fmt"

	"github.com/soochol/cdp/internal/event"
)

// Rename is the flatmap-mode "rename" built-in (spec.md §4.F). Exactly one
// of Replace or Prepend/Append is meaningful; validity of the resulting
// name is enforced at template validation, not here (spec.md §4.F).
type Rename struct {
	Replace string
	Prepend string
	Append  string
}

func (Rename) Name() string { return "rename" }

func (r Rename) Apply(batch []event.Event) ([]event.Event, error) {
	out := make([]event.Event, len(batch))
	for i, ev := range batch {
		out[i] = ev.WithName(r.newName(ev.Name()))
	}
	return out, nil
}

func (r Rename) newName(old string) string {
	if r.Replace != "" {
		return r.Replace
	}
	return r.Prepend + old + r.Append
}

// ValidateRename enforces the resulting name is a valid event name, per
// spec.md §4.F "Validity of the resulting name ... is enforced at
// template validation".
func ValidateRename(r Rename, sampleName string) error {
	result := r.newName(sampleName)
	if !event.IsValidName(result) {
		return fmt.Errorf("rename: result %q is not a valid event name", result)
	}
	return nil
}
