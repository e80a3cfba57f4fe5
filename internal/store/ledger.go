package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the ledger.
const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
)

// ItemStatus is the lifecycle state of one work item.
type ItemStatus string

// Work item status values persisted in the ledger. completed is terminal;
// pending and failed are both eligible for resume.
const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// Run is one end-to-end crawl attempt spanning many work items.
type Run struct {
	ID          string     `db:"id" json:"id"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Status      RunStatus  `db:"status" json:"status"`
}

// WorkItem is one (run, outlet, category) unit of crawl progress.
type WorkItem struct {
	ID           int64      `db:"id" json:"id"`
	RunID        string     `db:"run_id" json:"run_id"`
	OutletID     string     `db:"outlet_id" json:"outlet_id"`
	CategorySlug string     `db:"category_slug" json:"category_slug"`
	Status       ItemStatus `db:"status" json:"status"`
	LastPage     int        `db:"last_page" json:"last_page"`
	ProductCount int        `db:"product_count" json:"product_count"`
	Error        string     `db:"error" json:"error,omitempty"`
}

// WorkItemUpdate carries the per-item fields written as a crawl progresses.
// Nil pointer fields leave the stored value untouched.
type WorkItemUpdate struct {
	Status       ItemStatus
	LastPage     *int
	ProductCount *int
	Error        *string
}

// CreateRun inserts one in_progress Run and, in the same transaction, one
// pending WorkItem per (outlet, category) pair.
func (s *Store) CreateRun(ctx context.Context, outletIDs, categorySlugs []string) (Run, error) {
	if len(outletIDs) == 0 || len(categorySlugs) == 0 {
		return Run{}, fmt.Errorf("create run: at least one outlet and one category required")
	}

	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    RunInProgress,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin create run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRun = `INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertRun, run.ID, run.StartedAt, run.Status); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	const insertItem = `
		INSERT INTO work_items (run_id, outlet_id, category_slug, status)
		VALUES (?, ?, ?, ?)`
	for _, outletID := range outletIDs {
		for _, slug := range categorySlugs {
			if _, err := tx.ExecContext(ctx, insertItem, run.ID, outletID, slug, ItemPending); err != nil {
				return Run{}, fmt.Errorf("insert work item (%s, %s): %w", outletID, slug, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit create run: %w", err)
	}
	return run, nil
}

// UpdateWorkItem updates the single row keyed by (run, outlet, category). It
// is callable repeatedly as a crawl progresses.
func (s *Store) UpdateWorkItem(ctx context.Context, runID, outletID, categorySlug string, upd WorkItemUpdate) error {
	const q = `
		UPDATE work_items SET
			status = ?,
			last_page = COALESCE(?, last_page),
			product_count = COALESCE(?, product_count),
			error = COALESCE(?, error)
		WHERE run_id = ? AND outlet_id = ? AND category_slug = ?`
	res, err := s.db.ExecContext(ctx, q,
		upd.Status, upd.LastPage, upd.ProductCount, upd.Error,
		runID, outletID, categorySlug,
	)
	if err != nil {
		return fmt.Errorf("update work item (%s, %s): %w", outletID, categorySlug, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work item rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("work item (%s, %s, %s) does not exist", runID, outletID, categorySlug)
	}
	return nil
}

// CompleteRun marks the run completed and stamps its completion time. The
// orchestrator calls it only once every work item has reached a terminal
// state; the ledger itself does not enforce that convention.
func (s *Store) CompleteRun(ctx context.Context, runID string) error {
	const q = `UPDATE runs SET status = ?, completed_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, RunCompleted, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete run rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RunByID fetches one run, returning ErrRunNotFound when absent.
func (s *Store) RunByID(ctx context.Context, runID string) (Run, error) {
	var run Run
	const q = `SELECT * FROM runs WHERE id = ?`
	if err := s.db.GetContext(ctx, &run, q, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// LatestInProgressRun returns the most recently started in_progress run, or
// nil when no run is resumable.
func (s *Store) LatestInProgressRun(ctx context.Context) (*Run, error) {
	var run Run
	const q = `SELECT * FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &run, q, RunInProgress); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest in-progress run: %w", err)
	}
	return &run, nil
}

// WorkItems lists every work item of a run in insertion order.
func (s *Store) WorkItems(ctx context.Context, runID string) ([]WorkItem, error) {
	var items []WorkItem
	const q = `SELECT * FROM work_items WHERE run_id = ? ORDER BY id`
	if err := s.db.SelectContext(ctx, &items, q, runID); err != nil {
		return nil, fmt.Errorf("list work items for %s: %w", runID, err)
	}
	return items, nil
}
