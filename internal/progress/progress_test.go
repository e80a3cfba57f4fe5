package progress

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu       sync.Mutex
	started  []string
	finished []ItemResult
}

func (s *recordingSink) ItemStarted(_, outletID, categorySlug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, outletID+" "+categorySlug)
}

func (s *recordingSink) ItemFinished(_ string, result ItemResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, result)
}

func TestTrackerCountsOutcomes(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewTracker(sink)
	tracker.StartRun("run-1", 3)

	tracker.ItemStarted("o1", "food/dairy")
	tracker.ItemFinished(ItemResult{OutletID: "o1", CategorySlug: "food/dairy", Completed: true, Pages: 2, Products: 40})

	tracker.ItemStarted("o1", "food/bakery")
	tracker.ItemFinished(ItemResult{OutletID: "o1", CategorySlug: "food/bakery", Err: errors.New("boom")})

	snap := tracker.Current()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 40, snap.Products)
	assert.Empty(t, snap.InFlight)

	require.Len(t, sink.started, 2)
	require.Len(t, sink.finished, 2)
	assert.True(t, sink.finished[0].Completed)
	assert.False(t, sink.finished[1].Completed)
}

func TestTrackerInFlight(t *testing.T) {
	tracker := NewTracker()
	tracker.StartRun("run-1", 2)

	tracker.ItemStarted("o2", "food/dairy")
	tracker.ItemStarted("o1", "food/dairy")

	snap := tracker.Current()
	assert.Equal(t, []string{"o1 food/dairy", "o2 food/dairy"}, snap.InFlight)

	tracker.ItemFinished(ItemResult{OutletID: "o2", CategorySlug: "food/dairy", Completed: true})
	snap = tracker.Current()
	assert.Equal(t, []string{"o1 food/dairy"}, snap.InFlight)
}

func TestStartRunResets(t *testing.T) {
	tracker := NewTracker()
	tracker.StartRun("run-1", 1)
	tracker.ItemStarted("o1", "food/dairy")
	tracker.ItemFinished(ItemResult{OutletID: "o1", CategorySlug: "food/dairy", Completed: true, Products: 5})

	tracker.StartRun("run-2", 4)

	snap := tracker.Current()
	assert.Equal(t, "run-2", snap.RunID)
	assert.Equal(t, 4, snap.Total)
	assert.Zero(t, snap.Completed)
	assert.Zero(t, snap.Products)
	assert.Empty(t, snap.InFlight)
}

func TestLogSinkDoesNotPanic(t *testing.T) {
	sink := NewLogSink(zap.NewNop())
	sink.ItemStarted("run-1", "o1", "food/dairy")
	sink.ItemFinished("run-1", ItemResult{OutletID: "o1", CategorySlug: "food/dairy", Completed: true})
	sink.ItemFinished("run-1", ItemResult{OutletID: "o1", CategorySlug: "food/dairy", Err: errors.New("boom")})
}
