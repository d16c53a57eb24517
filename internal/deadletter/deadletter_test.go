package deadletter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/soochol/cdp/internal/event"
)

func testEvent(t *testing.T) event.Event {
	t.Helper()
	ev, err := event.New("a.b", map[string]any{"x": 1}, []event.TracePoint{{I: 1, P: "p", H: "h"}})
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev
}

func TestFileHandlerWritesNDJSONRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.ndjson")
	h, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	h("step-a", testEvent(t))

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var record struct {
		Step string `json:"step"`
		Name string `json:"n"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(contents), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Step != "step-a" || record.Name != "a.b" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestNewFallsBackToStdoutForUnrecognisedTarget(t *testing.T) {
	h := New("carrier-pigeon://nope")
	if h == nil {
		t.Fatal("expected a non-nil fallback handler")
	}
	h("step-a", testEvent(t)) // must not panic
}

func TestNewDefaultsToStdout(t *testing.T) {
	h := New("")
	if h == nil {
		t.Fatal("expected a non-nil default handler")
	}
	h("step-a", testEvent(t))
}
