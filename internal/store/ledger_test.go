package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRun_FullCrossProductPending(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx,
		[]string{"outlet-1", "outlet-2"},
		[]string{"food/dairy", "food/bakery", "household/cleaning"},
	)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, RunInProgress, run.Status)
	require.Nil(t, run.CompletedAt)

	items, err := s.WorkItems(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 6)
	for _, item := range items {
		require.Equal(t, ItemPending, item.Status)
		require.Zero(t, item.LastPage)
		require.Zero(t, item.ProductCount)
		require.Empty(t, item.Error)
	}
}

func TestCreateRun_RequiresSelection(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateRun(ctx, nil, []string{"food/dairy"})
	require.Error(t, err)
	_, err = s.CreateRun(ctx, []string{"outlet-1"}, nil)
	require.Error(t, err)
}

func TestUpdateWorkItem_Transitions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"outlet-1"}, []string{"food/dairy"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateWorkItem(ctx, run.ID, "outlet-1", "food/dairy",
		WorkItemUpdate{Status: ItemInProgress}))

	pages := 7
	count := 310
	require.NoError(t, s.UpdateWorkItem(ctx, run.ID, "outlet-1", "food/dairy",
		WorkItemUpdate{Status: ItemCompleted, LastPage: &pages, ProductCount: &count}))

	items, err := s.WorkItems(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, ItemCompleted, items[0].Status)
	require.Equal(t, 7, items[0].LastPage)
	require.Equal(t, 310, items[0].ProductCount)
}

func TestUpdateWorkItem_PartialUpdatePreservesFields(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"outlet-1"}, []string{"food/dairy"})
	require.NoError(t, err)

	pages := 3
	require.NoError(t, s.UpdateWorkItem(ctx, run.ID, "outlet-1", "food/dairy",
		WorkItemUpdate{Status: ItemInProgress, LastPage: &pages}))

	errText := "upstream status 503"
	require.NoError(t, s.UpdateWorkItem(ctx, run.ID, "outlet-1", "food/dairy",
		WorkItemUpdate{Status: ItemFailed, Error: &errText}))

	items, err := s.WorkItems(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, ItemFailed, items[0].Status)
	require.Equal(t, 3, items[0].LastPage, "last_page must survive a later partial update")
	require.Equal(t, errText, items[0].Error)
}

func TestUpdateWorkItem_UnknownTripleFails(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"outlet-1"}, []string{"food/dairy"})
	require.NoError(t, err)

	err = s.UpdateWorkItem(ctx, run.ID, "outlet-9", "food/dairy",
		WorkItemUpdate{Status: ItemInProgress})
	require.Error(t, err)
}

func TestCompleteRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"outlet-1"}, []string{"food/dairy"})
	require.NoError(t, err)

	require.NoError(t, s.CompleteRun(ctx, run.ID))

	got, err := s.RunByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	require.ErrorIs(t, s.CompleteRun(ctx, "no-such-run"), ErrRunNotFound)
}

func TestRunByID_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.RunByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestLatestInProgressRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestInProgressRun(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	first, err := s.CreateRun(ctx, []string{"outlet-1"}, []string{"food/dairy"})
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, first.ID))

	second, err := s.CreateRun(ctx, []string{"outlet-1"}, []string{"food/dairy"})
	require.NoError(t, err)

	latest, err = s.LatestInProgressRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, second.ID, latest.ID)
}
