// Package resume computes the pending/failed subset of a checkpointed run to
// re-execute.
package resume

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfwatch/crawler/internal/store"
)

// ErrRunCompleted is returned when resume is requested for a run that already
// finished; the caller must start a fresh run instead.
var ErrRunCompleted = errors.New("run already completed")

// Ledger is the slice of the checkpoint ledger the resolver reads.
type Ledger interface {
	RunByID(ctx context.Context, runID string) (store.Run, error)
	LatestInProgressRun(ctx context.Context) (*store.Run, error)
	WorkItems(ctx context.Context, runID string) ([]store.WorkItem, error)
}

// Outcome distinguishes the possible resolution results.
type Outcome int

const (
	// OutcomeFresh means no in_progress run exists; the caller should
	// create a new run covering everything selected.
	OutcomeFresh Outcome = iota
	// OutcomeResume means the returned items should be re-executed.
	OutcomeResume
	// OutcomeAlreadyComplete means the run exists but no selected item is
	// pending or failed.
	OutcomeAlreadyComplete
)

// Resolution is the computed work set for a crawl invocation.
type Resolution struct {
	Outcome Outcome
	Run     *store.Run
	Items   []store.WorkItem
}

// Resolver reads the ledger to decide what a resuming crawl must redo.
type Resolver struct {
	ledger Ledger
}

// New builds a Resolver over the given ledger.
func New(ledger Ledger) *Resolver {
	return &Resolver{ledger: ledger}
}

// Resolve finds the target run (explicit runID, or the most recent
// in_progress run when runID is empty) and intersects the caller's selected
// outlets/categories with its work items in {pending, failed}.
//
// A missing run or an already-completed run is fatal and reported as an
// error. The absence of any in_progress run is not an error: it resolves to
// OutcomeFresh so the caller creates a new run.
func (r *Resolver) Resolve(ctx context.Context, runID string, outletIDs, categorySlugs []string) (Resolution, error) {
	var run store.Run
	if runID != "" {
		found, err := r.ledger.RunByID(ctx, runID)
		if err != nil {
			return Resolution{}, err
		}
		run = found
	} else {
		latest, err := r.ledger.LatestInProgressRun(ctx)
		if err != nil {
			return Resolution{}, err
		}
		if latest == nil {
			return Resolution{Outcome: OutcomeFresh}, nil
		}
		run = *latest
	}

	if run.Status == store.RunCompleted {
		return Resolution{}, fmt.Errorf("run %s: %w", run.ID, ErrRunCompleted)
	}

	items, err := r.ledger.WorkItems(ctx, run.ID)
	if err != nil {
		return Resolution{}, err
	}

	selectedOutlets := toSet(outletIDs)
	selectedSlugs := toSet(categorySlugs)

	var todo []store.WorkItem
	for _, item := range items {
		if item.Status != store.ItemPending && item.Status != store.ItemFailed {
			continue
		}
		if len(selectedOutlets) > 0 && !selectedOutlets[item.OutletID] {
			continue
		}
		if len(selectedSlugs) > 0 && !selectedSlugs[item.CategorySlug] {
			continue
		}
		todo = append(todo, item)
	}

	if len(todo) == 0 {
		return Resolution{Outcome: OutcomeAlreadyComplete, Run: &run}, nil
	}
	return Resolution{Outcome: OutcomeResume, Run: &run, Items: todo}, nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
