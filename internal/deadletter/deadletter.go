// Package deadletter implements the dead-letter handler invoked at DAG
// engine shutdown (spec.md §4.G "Shutdown" step 4, §7 "Dead event"): every
// event whose push was refused because its downstream step had already
// closed is handed to the configured backend.
package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/soochol/cdp/internal/event"
)

// Handler receives one dead event at a time, the same signature the DAG
// engine's DeadLetterHandler expects (source step name, the event).
type Handler func(source string, ev event.Event)

// New builds a Handler from a DEAD_LETTER_TARGET configuration value
// (spec.md §6): "stdout" (default), "file:<path>", or
// "postgres://<dsn>". Unrecognised targets fall back to stdout with a
// warning rather than failing construction — a malformed dead-letter
// target should not prevent the pipeline that needs it from running.
func New(target string) Handler {
	switch {
	case target == "" || target == "stdout":
		return Stdout()
	case strings.HasPrefix(target, "file:"):
		h, err := File(strings.TrimPrefix(target, "file:"))
		if err != nil {
			slog.Error("deadletter: falling back to stdout", "target", target, "err", err)
			return Stdout()
		}
		return h
	case strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://"):
		h, err := Postgres(context.Background(), target)
		if err != nil {
			slog.Error("deadletter: falling back to stdout", "target", target, "err", err)
			return Stdout()
		}
		return h
	default:
		slog.Warn("deadletter: unrecognised target, using stdout", "target", target)
		return Stdout()
	}
}

// Stdout logs each dead event as a structured warning, the simplest
// backend and the spec's default.
func Stdout() Handler {
	return func(source string, ev event.Event) {
		slog.Warn("deadletter: event dropped", "step", source, "event", ev.Name(), "signature", ev.Signature())
	}
}

// File appends each dead event's serialized wire form, plus the
// refusing step name, as one NDJSON line to path.
func File(path string) (Handler, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open %q: %w", path, err)
	}
	enc := json.NewEncoder(f)
	return func(source string, ev event.Event) {
		record := struct {
			Step string `json:"step"`
			event.Serialized
		}{Step: source, Serialized: event.ToSerialized(ev)}
		if err := enc.Encode(record); err != nil {
			slog.Error("deadletter: failed to write record", "path", path, "err", err)
		}
	}, nil
}

// Postgres inserts each dead event into a `dead_letters` table, created
// if absent, following the teacher's migrate-then-ExecContext idiom
// (internal/db.DB.Migrate / internal/db.DB).
func Postgres(ctx context.Context, dsn string) (Handler, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open database: %w", err)
	}
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("deadletter: ping database: %w", err)
	}
	if _, err := pool.ExecContext(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("deadletter: migrate: %w", err)
	}

	return func(source string, ev event.Event) {
		data, err := json.Marshal(ev.Data())
		if err != nil {
			slog.Error("deadletter: failed to encode data", "err", err)
			return
		}
		trace, err := json.Marshal(ev.Trace())
		if err != nil {
			slog.Error("deadletter: failed to encode trace", "err", err)
			return
		}
		_, err = pool.ExecContext(ctx, insertSQL, source, ev.Name(), data, trace, ev.Signature())
		if err != nil {
			slog.Error("deadletter: insert failed", "err", err)
		}
	}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id          BIGSERIAL PRIMARY KEY,
	step        TEXT NOT NULL,
	event_name  TEXT NOT NULL,
	data        JSONB,
	trace       JSONB,
	signature   TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const insertSQL = `INSERT INTO dead_letters (step, event_name, data, trace, signature) VALUES ($1, $2, $3, $4, $5)`
