package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/event"
	"github.com/soochol/cdp/internal/queue"
	"github.com/soochol/cdp/internal/step"
	"github.com/soochol/cdp/internal/step/functions"
)

// httpRetryPolicy bounds doWithRetry's backoff: the delay before retry
// number attempt+1 is backoffFactor seconds * 2^attempt (see
// sleepBackoff), applied here per spec.md §8 scenario 8.
type httpRetryPolicy struct {
	maxRetries    int
	backoffFactor float64
}

// doWithRetry performs one request per attempt (build constructs a fresh
// *http.Request each time, since a Request's body reader cannot be
// replayed) and retries 5xx responses and transport errors up to
// maxRetries times with exponential backoff. A 4xx response surfaces
// immediately — spec.md §8 scenario 8: "On status 400, it emits one
// attempt and surfaces immediately."
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error), policy httpRetryPolicy) (*http.Response, []byte, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		attempts++
		req, err := build()
		if err != nil {
			return nil, nil, attempts, err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if attempt == policy.maxRetries {
				break
			}
			sleepBackoff(ctx, policy.backoffFactor, attempt)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("http: status %d", resp.StatusCode)
			if attempt == policy.maxRetries {
				return resp, body, attempts, lastErr
			}
			slog.Warn("http: retrying after server error", "status", resp.StatusCode, "attempt", attempt+1)
			sleepBackoff(ctx, policy.backoffFactor, attempt)
			continue
		case resp.StatusCode >= 400:
			return resp, body, attempts, fmt.Errorf("http: status %d", resp.StatusCode)
		default:
			return resp, body, attempts, nil
		}
	}
	return nil, nil, attempts, lastErr
}

func sleepBackoff(ctx context.Context, factor float64, attempt int) {
	delay := time.Duration(factor * math.Pow(2, float64(attempt)) * float64(time.Second))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// HTTPSink POSTs each event's serialized wire form to options["url"],
// retrying 5xx responses per httpRetryPolicy (spec.md §8 scenario 8).
// options: `url` (required), `method` (default POST), `timeoutMS`
// (default 10000), `maxRetries` (default 3), `backoffFactorS` (default
// 0.5).
func HTTPSink(ctx context.Context, breg *bridge.Registry, options map[string]any) (step.Function, error) {
	url := optString(options, "url", "")
	if url == "" {
		return nil, invalidOption("send-http", "url", options["url"])
	}
	method := optString(options, "method", http.MethodPost)
	client := &http.Client{Timeout: time.Duration(optInt(options, "timeoutMS", 10_000)) * time.Millisecond}
	policy := httpRetryPolicy{
		maxRetries:    optInt(options, "maxRetries", 3),
		backoffFactor: optFloat(options, "backoffFactorS", 0.5),
	}

	return functions.NewSink("send-http", func(ev event.Event) error {
		body, err := json.Marshal(event.ToSerialized(ev))
		if err != nil {
			return fmt.Errorf("send-http: encode: %w", err)
		}
		_, _, _, err = doWithRetry(ctx, client, func() (*http.Request, error) {
			return http.NewRequest(method, url, bytes.NewReader(body))
		}, policy)
		return err
	}), nil
}

// PollHTTPInput issues a GET to options["url"] at the configured
// interval, parsing the response body as one Serialized event per poll.
// Same retry policy as HTTPSink; a request that ultimately fails is
// logged and skipped rather than torn down, per spec.md §7 "Transient I/O
// error" (a maximum retry count bounds retries, thereafter the error
// surfaces — here, is logged and the poll tick is dropped). Being a
// ticker-driven poll, it is pull-based like generator: while gate is up a
// poll tick is skipped rather than issued (spec.md §4.H).
func PollHTTPInput(ctx context.Context, reg *queue.Registry, parser event.Parser, gate *backpressure.Supervisor, options map[string]any) (*queue.Channel[event.Event], <-chan struct{}, error) {
	url := optString(options, "url", "")
	if url == "" {
		return nil, nil, invalidOption("poll-http", "url", options["url"])
	}
	seconds := optFloat(options, "seconds", 1)
	client := &http.Client{Timeout: time.Duration(optInt(options, "timeoutMS", 10_000)) * time.Millisecond}
	policy := httpRetryPolicy{
		maxRetries:    optInt(options, "maxRetries", 3),
		backoffFactor: optFloat(options, "backoffFactorS", 0.5),
	}

	out := queue.New[event.Event]("poll-http", reg)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer out.Close()
		ticker := time.NewTicker(time.Duration(seconds * float64(time.Second)))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if gated(gate) {
					continue
				}
				_, body, _, err := doWithRetry(ctx, client, func() (*http.Request, error) {
					return http.NewRequest(http.MethodGet, url, nil)
				}, policy)
				if err != nil {
					slog.Warn("poll-http: request failed", "err", err)
					continue
				}
				var s event.Serialized
				if jerr := json.Unmarshal(body, &s); jerr != nil {
					slog.Warn("poll-http: dropping unparsable response", "err", jerr)
					continue
				}
				ev, perr := parser(s)
				if perr != nil {
					slog.Warn("poll-http: dropping invalid event", "err", perr)
					continue
				}
				if !out.Push(ev) {
					return
				}
			}
		}
	}()

	ch := queue.NewQueueChannel(out)
	return queue.Wrap(ch, produceOnly[event.Event]), done, nil
}
