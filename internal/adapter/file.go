package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/step"
)

// FileInput tails a newline-delimited JSON file (spec.md §1 "file tail").
// options: `path` (required), `fromStart` (default true), `pollSeconds`
// (default 0.5) — the interval re-checked for appended data once the
// reader hits EOF. While gate is up, FileInput pauses before reading the
// next line rather than keep tailing (spec.md §4.H).
func FileInput(ctx context.Context, reg *queue.Registry, parser event.Parser, gate *backpressure.Supervisor, options map[string]any) (*queue.Channel[event.Event], <-chan struct{}, error) {
	path := optString(options, "path", "")
	if path == "" {
		return nil, nil, invalidOption("file", "path", options["path"])
	}
	fromStart := optBool(options, "fromStart", true)
	pollSeconds := optFloat(options, "pollSeconds", 0.5)

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("file input: open %q: %w", path, err)
	}
	if !fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("file input: seek %q: %w", path, err)
		}
	}

	out := queue.New[event.Event]("file-"+path, reg)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer out.Close()
		defer f.Close()

		r := bufio.NewReader(f)
		ticker := time.NewTicker(time.Duration(pollSeconds * float64(time.Second)))
		defer ticker.Stop()

		for {
			if !waitForGate(ctx, gate) {
				return
			}
			line, readErr := r.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var s event.Serialized
				if jerr := json.Unmarshal(bytes.TrimRight(line, "\r\n"), &s); jerr != nil {
					slog.Warn("file input: dropping unparsable line", "path", path, "err", jerr)
				} else if ev, perr := parser(s); perr != nil {
					slog.Warn("file input: dropping invalid event", "path", path, "err", perr)
				} else if !out.Push(ev) {
					return
				}
			}
			if readErr != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}
		}
	}()

	ch := queue.NewQueueChannel(out)
	return queue.Wrap(ch, produceOnly[event.Event]), done, nil
}

// FileSink appends each event's serialized wire form as one NDJSON line
// to path, creating it if absent. Under bridge.WithDryRun (pipeline
// validation), FileSink checks only that path is set and the jq-expr/
// jsonnet-expr option shape is valid — it never creates or opens path, per
// spec.md §4.I "validation must not perform the step's side effect."
func FileSink(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error) {
	path := optString(options, "path", "")
	if path == "" {
		return nil, invalidOption("send-file", "path", options["path"])
	}
	if bridge.IsDryRun(ctx) {
		return newTransformingSink(ctx, breg, "send-file", io.Discard, options)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("send-file: open %q: %w", path, err)
	}
	return newTransformingSink(ctx, breg, "send-file", &closingWriter{f: f}, options)
}

// closingWriter keeps the underlying *os.File reachable for Close without
// widening the writer interface the transforming sink depends on.
type closingWriter struct {
	f  *os.File
	mu sync.Mutex
}

func (w *closingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Write(p)
}

// Close releases the underlying file descriptor.
func (w *closingWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.f.Close()
}
