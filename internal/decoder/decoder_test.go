package decoder

import (
	"strings"
	"testing"
)

func decodeAll(t *testing.T, input string, opts Options) []any {
	t.Helper()
	var got []any
	Decode(strings.NewReader(input), opts, func(v any) bool {
		got = append(got, v)
		return true
	})
	return got
}

func TestDecodeSplitsOnLFAndCR(t *testing.T) {
	got := decodeAll(t, "\"a\"\n\"b\"\r\"c\"\r\n\"d\"", Options{})
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("item %d: got %v, want %v", i, got[i], w)
		}
	}
}

func TestDecodeDropsUnparsableLines(t *testing.T) {
	got := decodeAll(t, "{\"a\":1}\nnot json\n{\"b\":2}", Options{})
	if len(got) != 2 {
		t.Fatalf("expected 2 decoded values, got %d: %v", len(got), got)
	}
}

func TestDecodeSkipsEmptyRegions(t *testing.T) {
	got := decodeAll(t, "\"a\"\n\n\"b\"", Options{})
	if len(got) != 2 {
		t.Fatalf("expected empty region skipped, got %v", got)
	}
}

func TestDecodeReparsesTrailingFragment(t *testing.T) {
	got := decodeAll(t, "\"a\"\n\"b\"", Options{}) // no trailing newline
	if len(got) != 2 {
		t.Fatalf("expected trailing fragment reparsed, got %v", got)
	}
}

func TestDecodeOversizeLineDroppedStreamContinues(t *testing.T) {
	// spec.md §8 scenario 9: a 32-byte buffer cap in test configuration.
	input := `{"hello":"world"}` + "\n" +
		`{"goodbye":"world", "this":"will be dropped because it exceeds 32 bytes..."}` + "\n" +
		`{"what":"just happened?"}`

	got := decodeAll(t, input, Options{MaxLineBytes: 32})
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving values, got %d: %v", len(got), got)
	}
	first, ok := got[0].(map[string]any)
	if !ok || first["hello"] != "world" {
		t.Fatalf("unexpected first value: %v", got[0])
	}
	second, ok := got[1].(map[string]any)
	if !ok || second["what"] != "just happened?" {
		t.Fatalf("unexpected second value: %v", got[1])
	}
}

func TestDecodeMaxTotalBytesEmitsSyntheticEnd(t *testing.T) {
	got := decodeAll(t, "\"a\"\n\"b\"\n\"c\"\n", Options{MaxTotalBytes: 4})
	if len(got) == 0 {
		t.Fatal("expected at least the synthetic end event")
	}
	last := got[len(got)-1]
	if _, ok := last.(EndOfStream); !ok {
		t.Fatalf("expected last value to be EndOfStream, got %T", last)
	}
}

func TestIdentityLineNeverFails(t *testing.T) {
	got := decodeAll(t, "not json at all\nneither is this", Options{Parse: IdentityLine})
	if len(got) != 2 {
		t.Fatalf("expected both lines decoded as strings, got %v", got)
	}
	if got[0] != "not json at all" {
		t.Fatalf("unexpected value: %v", got[0])
	}
}
