// Command cdp runs a single composable data pipeline document (spec.md
// §6 CLI): `cdp [-e|--environment] [-t|--test] <pipelinefile>`.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/soochol/cdp/internal/api"
	"github.com/soochol/cdp/internal/backpressure"
	"github.com/soochol/cdp/internal/bridge"
	"github.com/soochol/cdp/internal/config"
	"github.com/soochol/cdp/internal/deadletter"
	"github.com/soochol/cdp/internal/metrics"
	"github.com/soochol/cdp/internal/pipeline"
	"github.com/soochol/cdp/internal/queue"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("cdp", flag.ContinueOnError)
	var substitute, testOnly bool
	fs.BoolVar(&substitute, "e", false, "substitute ${VAR} references in the pipeline document from the environment")
	fs.BoolVar(&substitute, "environment", false, "alias for -e")
	fs.BoolVar(&testOnly, "t", false, "validate the pipeline document without running it")
	fs.BoolVar(&testOnly, "test", false, "alias for -t")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: cdp [-e|--environment] [-t|--test] <pipelinefile>")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 1
	}

	path := fs.Arg(0)
	if path == "" {
		fs.Usage()
		return 1
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	raw, err := loadDocument(path, substitute)
	if err != nil {
		slog.Error("cdp: failed to load pipeline document", "path", path, "err", err)
		return 1
	}

	tpl, err := pipeline.Parse(raw)
	if err != nil {
		slog.Error("cdp: invalid pipeline template", "err", err)
		return 1
	}

	registry := pipeline.DefaultRegistry()
	if err := pipeline.Validate(tpl, registry); err != nil {
		slog.Error("cdp: pipeline template failed validation", "err", err)
		return 1
	}
	if testOnly {
		slog.Info("cdp: pipeline template is valid", "name", tpl.Name)
		return 0
	}

	return runPipeline(tpl, registry, cfg)
}

// runPipeline wires the cross-cutting collaborators (shared queue/bridge
// registries, metrics, backpressure supervisor, dead-letter handler) and
// runs the template to completion, per spec.md §4.I / §6.
func runPipeline(tpl *pipeline.Template, registry *pipeline.Registry, cfg *config.Config) int {
	runID := uuid.New().String()
	slog := slog.With("run_id", runID, "pipeline", tpl.Name)

	m := metrics.New(cfg.MetricsPrefix)

	queueReg := queue.NewRegistry()
	bridgeReg := bridge.NewRegistry()

	supervisor := backpressure.New(backpressure.Thresholds{
		IntervalSeconds: cfg.BackpressureIntervalS,
		RSSBytes:        cfg.BackpressureRSS,
		HeapTotalBytes:  cfg.BackpressureHeapTotal,
		HeapUsedBytes:   cfg.BackpressureHeapUsed,
		QueuedEvents:    cfg.BackpressureQueuedEvents,
	}, queueReg)
	if err := supervisor.Start(); err != nil {
		slog.Error("cdp: backpressure supervisor failed to start", "err", err)
		return 1
	}
	go reportBackpressure(supervisor, queueReg, m, time.Duration(cfg.BackpressureIntervalS*float64(time.Second)))

	go serveControlPlane(registry, m, cfg)

	opts := pipeline.RunOptions{
		Registry:       registry,
		QueueRegistry:  queueReg,
		BridgeRegistry: bridgeReg,
		DrainGrace:     time.Duration(cfg.QueueDrainGracePeriodS * float64(time.Second)),
		DeadLetter:     deadletter.New(cfg.DeadLetterTarget),
		Metrics:        m,
		Supervisor:     supervisor,
	}

	p, err := pipeline.Run(context.Background(), tpl, opts)
	if err != nil {
		slog.Error("cdp: pipeline failed to start", "name", tpl.Name, "err", err)
		return 1
	}
	slog.Info("cdp: pipeline running", "name", tpl.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		slog.Info("cdp: signal received, stopping pipeline", "signal", sig.String())
		p.Stop()
	case <-p.Done():
	}

	select {
	case <-p.Done():
	case <-time.After(30 * time.Second):
		slog.Warn("cdp: pipeline shutdown did not complete within the grace window")
	}

	slog.Info("cdp: pipeline stopped", "name", tpl.Name)
	return 0
}

// reportBackpressure samples the gate and queue depth on the same
// interval the supervisor itself uses, so the metrics surface matches
// what just gated or released the pipeline.
func reportBackpressure(s *backpressure.Supervisor, reg *queue.Registry, m *metrics.Metrics, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		m.SetBackpressure(s.Gated())
		m.SetQueuedEvents(reg.TotalDepth())
	}
}

// serveControlPlane runs the health/metrics/validate HTTP server from
// spec.md §6 for the lifetime of the process. Listen failures are logged,
// not fatal — the pipeline itself keeps running without its control
// plane reachable.
func serveControlPlane(registry *pipeline.Registry, m *metrics.Metrics, cfg *config.Config) {
	srv := api.NewServer(registry)
	metricsHandler := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
	handler := srv.Handler(cfg.HTTPServerHealthPath, cfg.HTTPServerMetricsPath, metricsHandler)

	addr := fmt.Sprintf(":%d", cfg.HTTPServerPort)
	slog.Info("cdp: control plane listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("cdp: control plane server stopped", "err", err)
	}
}

func setupLogging(level config.LogLevel) {
	var slogLevel slog.Level
	switch level {
	case config.LogDebug:
		slogLevel = slog.LevelDebug
	case config.LogWarn:
		slogLevel = slog.LevelWarn
	case config.LogError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
}

// loadDocument reads path as YAML into an untyped tree and, if substitute
// is set, replaces every ${VAR} reference in a string leaf with the
// matching environment variable (spec.md §6 "-e substitutes ${VAR} in the
// parsed document").
func loadDocument(path string, substitute bool) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if substitute {
		substituteEnv(doc)
	}
	return doc, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func substituteEnv(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			v[k] = substituteEnv(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = substituteEnv(child)
		}
		return v
	case string:
		return envRefPattern.ReplaceAllStringFunc(v, func(ref string) string {
			name := envRefPattern.FindStringSubmatch(ref)[1]
			return os.Getenv(name)
		})
	default:
		return v
	}
}
