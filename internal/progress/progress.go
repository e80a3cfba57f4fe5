// Package progress tracks per-run crawl progress and fans updates out to
// sinks.
package progress

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/logging"
	"github.com/shelfwatch/crawler/internal/telemetry"
)

// ItemResult is the terminal outcome of one work item.
type ItemResult struct {
	OutletID     string
	CategorySlug string
	Completed    bool
	Pages        int
	Products     int
	Err          error
}

// Snapshot is a point-in-time view of a run's progress.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	InFlight  []string  `json:"in_flight"`
	Products  int       `json:"products"`
	StartedAt time.Time `json:"started_at"`
}

// Sink consumes progress events. Implementations must be safe for concurrent
// use.
type Sink interface {
	ItemStarted(runID, outletID, categorySlug string)
	ItemFinished(runID string, result ItemResult)
}

// Tracker maintains a mutex-guarded snapshot and notifies sinks on every
// transition. The zero total means the tracker is idle.
type Tracker struct {
	mu       sync.Mutex
	snapshot Snapshot
	inflight map[string]struct{}
	sinks    []Sink
}

// NewTracker builds a tracker fanning out to the given sinks.
func NewTracker(sinks ...Sink) *Tracker {
	return &Tracker{
		inflight: make(map[string]struct{}),
		sinks:    sinks,
	}
}

// StartRun resets the tracker for a new run of total items.
func (t *Tracker) StartRun(runID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot = Snapshot{
		RunID:     runID,
		Total:     total,
		StartedAt: time.Now().UTC(),
	}
	t.inflight = make(map[string]struct{})
}

// ItemStarted records an item entering in_progress.
func (t *Tracker) ItemStarted(outletID, categorySlug string) {
	t.mu.Lock()
	t.inflight[outletID+" "+categorySlug] = struct{}{}
	runID := t.snapshot.RunID
	t.mu.Unlock()

	for _, s := range t.sinks {
		s.ItemStarted(runID, outletID, categorySlug)
	}
}

// ItemFinished records an item's terminal outcome.
func (t *Tracker) ItemFinished(result ItemResult) {
	t.mu.Lock()
	delete(t.inflight, result.OutletID+" "+result.CategorySlug)
	if result.Completed {
		t.snapshot.Completed++
		t.snapshot.Products += result.Products
	} else {
		t.snapshot.Failed++
	}
	runID := t.snapshot.RunID
	t.mu.Unlock()

	for _, s := range t.sinks {
		s.ItemFinished(runID, result)
	}
}

// Current returns a copy of the live snapshot.
func (t *Tracker) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snapshot
	snap.InFlight = make([]string, 0, len(t.inflight))
	for key := range t.inflight {
		snap.InFlight = append(snap.InFlight, key)
	}
	sort.Strings(snap.InFlight)
	return snap
}

// LogSink writes progress events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a logging sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.Component(logger, "progress")}
}

// ItemStarted implements Sink.
func (s *LogSink) ItemStarted(runID, outletID, categorySlug string) {
	s.logger.Info("item started",
		zap.String("run_id", runID),
		zap.String("outlet", outletID),
		zap.String("category", categorySlug),
	)
}

// ItemFinished implements Sink.
func (s *LogSink) ItemFinished(runID string, result ItemResult) {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.String("outlet", result.OutletID),
		zap.String("category", result.CategorySlug),
		zap.Int("pages", result.Pages),
		zap.Int("products", result.Products),
	}
	if result.Completed {
		s.logger.Info("item completed", fields...)
		return
	}
	s.logger.Warn("item failed", append(fields, zap.Error(result.Err))...)
}

// MetricsSink counts item outcomes in Prometheus.
type MetricsSink struct{}

// ItemStarted implements Sink.
func (MetricsSink) ItemStarted(string, string, string) {}

// ItemFinished implements Sink.
func (MetricsSink) ItemFinished(_ string, result ItemResult) {
	if result.Completed {
		telemetry.CountWorkItem("completed")
		return
	}
	telemetry.CountWorkItem("failed")
}
