// Package backpressure implements the process-wide gate from spec.md
// §4.H: periodic sampling of memory and queue-depth metrics, raising a
// boolean gate that input adapters observe before ingesting.
package backpressure

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/cdp/internal/queue"
)

// Thresholds configures which predicates trip the gate. Zero disables the
// corresponding check.
type Thresholds struct {
	IntervalSeconds float64
	RSSBytes        uint64
	HeapTotalBytes  uint64
	HeapUsedBytes   uint64
	QueuedEvents    int
}

// Supervisor re-evaluates Thresholds at Interval, raising or lowering a
// process-wide gate (spec.md §4.H). Any configured predicate tripping
// raises the gate; it drops only when every predicate is back under
// threshold.
type Supervisor struct {
	thresholds Thresholds
	registry   *queue.Registry
	gate       atomic.Bool

	cr      *cron.Cron
	entryID cron.EntryID
}

// New constructs a Supervisor; call Start to arm the periodic sampler.
func New(thresholds Thresholds, registry *queue.Registry) *Supervisor {
	if thresholds.IntervalSeconds <= 0 {
		thresholds.IntervalSeconds = 1
	}
	return &Supervisor{
		thresholds: thresholds,
		registry:   registry,
		cr:         cron.New(cron.WithSeconds()),
	}
}

// Start arms the periodic sampling task using robfig/cron's "@every"
// spec, the same scheduling primitive the teacher's cron scheduler uses
// for periodic work.
func (s *Supervisor) Start() error {
	spec := "@every " + formatSeconds(s.thresholds.IntervalSeconds) + "s"
	id, err := s.cr.AddFunc(spec, s.sample)
	if err != nil {
		return err
	}
	s.entryID = id
	s.cr.Start()
	s.sample()
	return nil
}

// Stop cancels the periodic task (spec.md §4.H "Cancellation": the
// supervisor's periodic task is cancelled before the exposition endpoint
// is closed).
func (s *Supervisor) Stop() {
	s.cr.Remove(s.entryID)
	ctx := s.cr.Stop()
	<-ctx.Done()
}

// Gated reports whether ingestion should currently pause.
func (s *Supervisor) Gated() bool { return s.gate.Load() }

func (s *Supervisor) sample() {
	tripped := false

	if s.thresholds.RSSBytes > 0 || s.thresholds.HeapTotalBytes > 0 || s.thresholds.HeapUsedBytes > 0 {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		if s.thresholds.RSSBytes > 0 && mem.Sys >= s.thresholds.RSSBytes {
			tripped = true
		}
		if s.thresholds.HeapTotalBytes > 0 && mem.HeapSys >= s.thresholds.HeapTotalBytes {
			tripped = true
		}
		if s.thresholds.HeapUsedBytes > 0 && mem.HeapAlloc >= s.thresholds.HeapUsedBytes {
			tripped = true
		}
	}

	if s.thresholds.QueuedEvents > 0 && s.registry != nil {
		if s.registry.TotalDepth() >= s.thresholds.QueuedEvents {
			tripped = true
		}
	}

	s.gate.Store(tripped)
}

func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	secs := d / time.Second
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(int64(secs), 10)
}
