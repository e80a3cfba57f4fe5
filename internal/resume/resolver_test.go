package resume

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/crawler/internal/store"
)

type fakeLedger struct {
	runs   map[string]store.Run
	latest *store.Run
	items  map[string][]store.WorkItem
}

func (f *fakeLedger) RunByID(_ context.Context, runID string) (store.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return store.Run{}, store.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeLedger) LatestInProgressRun(_ context.Context) (*store.Run, error) {
	return f.latest, nil
}

func (f *fakeLedger) WorkItems(_ context.Context, runID string) ([]store.WorkItem, error) {
	return f.items[runID], nil
}

func item(outlet, slug string, status store.ItemStatus) store.WorkItem {
	return store.WorkItem{RunID: "run-1", OutletID: outlet, CategorySlug: slug, Status: status}
}

func TestResolveFreshWhenNoRunInProgress(t *testing.T) {
	r := New(&fakeLedger{})

	res, err := r.Resolve(context.Background(), "", []string{"o1"}, []string{"food/dairy"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, res.Outcome)
	assert.Nil(t, res.Run)
	assert.Empty(t, res.Items)
}

func TestResolveExplicitRunNotFound(t *testing.T) {
	r := New(&fakeLedger{runs: map[string]store.Run{}})

	_, err := r.Resolve(context.Background(), "missing", nil, nil)

	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestResolveCompletedRunIsFatal(t *testing.T) {
	ledger := &fakeLedger{
		runs: map[string]store.Run{
			"run-1": {ID: "run-1", Status: store.RunCompleted},
		},
	}
	r := New(ledger)

	_, err := r.Resolve(context.Background(), "run-1", nil, nil)

	assert.ErrorIs(t, err, ErrRunCompleted)
}

func TestResolvePicksLatestInProgressRun(t *testing.T) {
	run := store.Run{ID: "run-1", Status: store.RunInProgress}
	ledger := &fakeLedger{
		latest: &run,
		items: map[string][]store.WorkItem{
			"run-1": {
				item("o1", "food/dairy", store.ItemPending),
				item("o1", "food/bakery", store.ItemCompleted),
				item("o2", "food/dairy", store.ItemFailed),
			},
		},
	}
	r := New(ledger)

	res, err := r.Resolve(context.Background(), "", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, OutcomeResume, res.Outcome)
	require.NotNil(t, res.Run)
	assert.Equal(t, "run-1", res.Run.ID)
	// Completed items are never re-executed; pending and failed both are.
	require.Len(t, res.Items, 2)
	assert.Equal(t, store.ItemPending, res.Items[0].Status)
	assert.Equal(t, store.ItemFailed, res.Items[1].Status)
}

func TestResolveIntersectsWithSelection(t *testing.T) {
	run := store.Run{ID: "run-1", Status: store.RunInProgress}
	ledger := &fakeLedger{
		runs: map[string]store.Run{"run-1": run},
		items: map[string][]store.WorkItem{
			"run-1": {
				item("o1", "food/dairy", store.ItemPending),
				item("o1", "food/bakery", store.ItemPending),
				item("o2", "food/dairy", store.ItemPending),
				item("o2", "food/bakery", store.ItemFailed),
			},
		},
	}
	r := New(ledger)

	res, err := r.Resolve(context.Background(), "run-1", []string{"o2"}, []string{"food/bakery"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeResume, res.Outcome)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "o2", res.Items[0].OutletID)
	assert.Equal(t, "food/bakery", res.Items[0].CategorySlug)
}

func TestResolveAlreadyComplete(t *testing.T) {
	run := store.Run{ID: "run-1", Status: store.RunInProgress}
	ledger := &fakeLedger{
		runs: map[string]store.Run{"run-1": run},
		items: map[string][]store.WorkItem{
			"run-1": {
				item("o1", "food/dairy", store.ItemCompleted),
				item("o2", "food/dairy", store.ItemInProgress),
			},
		},
	}
	r := New(ledger)

	res, err := r.Resolve(context.Background(), "run-1", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyComplete, res.Outcome)
	require.NotNil(t, res.Run)
	assert.Empty(t, res.Items)
}
