// Package orchestrator drives a crawl run: a bounded worker pool pulls work
// items, fetches catalog pages through the reliability wrapper, persists the
// results, and checkpoints every item in the ledger.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shelfwatch/crawler/internal/catalog"
	"github.com/shelfwatch/crawler/internal/logging"
	"github.com/shelfwatch/crawler/internal/progress"
	"github.com/shelfwatch/crawler/internal/reliability"
	"github.com/shelfwatch/crawler/internal/store"
	"github.com/shelfwatch/crawler/internal/telemetry"
	"github.com/shelfwatch/crawler/internal/upstream"
)

// Fetcher is the upstream page collaborator.
type Fetcher interface {
	FetchPage(ctx context.Context, outletID, category0, category1 string, page int) (upstream.Page, error)
}

// Config sizes the orchestrator.
type Config struct {
	Workers  int
	PageSize int
}

// Orchestrator executes the work items of one run.
type Orchestrator struct {
	cfg     Config
	store   *store.Store
	exec    *reliability.Executor
	fetcher Fetcher
	tracker *progress.Tracker
	logger  *zap.Logger

	now func() time.Time
}

// New builds an orchestrator. Workers defaults to 1, page size to 50.
func New(cfg Config, st *store.Store, exec *reliability.Executor, fetcher Fetcher, tracker *progress.Tracker, logger *zap.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		exec:    exec,
		fetcher: fetcher,
		tracker: tracker,
		logger:  logging.Component(logger, "orchestrator"),
		now:     time.Now,
	}
}

// Run crawls every given work item. Item failures are recorded in the ledger
// and never abort the run; the run is marked completed only when every item
// finished and the context was not canceled, so an interrupted run stays
// resumable.
func (o *Orchestrator) Run(ctx context.Context, run store.Run, items []store.WorkItem) error {
	o.tracker.StartRun(run.ID, len(items))
	o.logger.Info("run starting",
		zap.String("run_id", run.ID),
		zap.Int("items", len(items)),
		zap.Int("workers", o.cfg.Workers),
	)

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.processItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		o.logger.Warn("run interrupted, leaving it resumable", zap.String("run_id", run.ID))
		return err
	}

	if err := o.store.CompleteRun(ctx, run.ID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	snap := o.tracker.Current()
	o.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.Int("completed", snap.Completed),
		zap.Int("failed", snap.Failed),
		zap.Int("products", snap.Products),
	)
	return nil
}

func (o *Orchestrator) processItem(ctx context.Context, item store.WorkItem) {
	o.tracker.ItemStarted(item.OutletID, item.CategorySlug)
	if err := o.store.UpdateWorkItem(ctx, item.RunID, item.OutletID, item.CategorySlug, store.WorkItemUpdate{
		Status: store.ItemInProgress,
	}); err != nil {
		o.finishItem(ctx, item, progress.ItemResult{
			OutletID:     item.OutletID,
			CategorySlug: item.CategorySlug,
			Err:          fmt.Errorf("mark in_progress: %w", err),
		})
		return
	}

	result := o.crawlItem(ctx, item)
	o.finishItem(ctx, item, result)
}

// crawlItem pages through one (outlet, category) listing and persists all of
// it in a single transaction.
func (o *Orchestrator) crawlItem(ctx context.Context, item store.WorkItem) progress.ItemResult {
	result := progress.ItemResult{OutletID: item.OutletID, CategorySlug: item.CategorySlug}
	category0, category1 := splitSlug(item.CategorySlug)
	scrapedAt := o.now().UTC()

	var (
		products  []catalog.Product
		snapshots []catalog.PriceSnapshot
	)
	for page := 1; ; page++ {
		var fetched upstream.Page
		op := fmt.Sprintf("fetch %s %s p%d", item.OutletID, item.CategorySlug, page)
		err := o.exec.Execute(ctx, op, func(ctx context.Context) error {
			var fetchErr error
			fetched, fetchErr = o.fetcher.FetchPage(ctx, item.OutletID, category0, category1, page)
			return fetchErr
		})
		if err != nil {
			result.Err = fmt.Errorf("page %d: %w", page, err)
			return result
		}
		telemetry.CountPageFetched()
		result.Pages = page

		for _, raw := range fetched.Records {
			product, snapshot, err := catalog.ParseRecord(raw, item.OutletID, scrapedAt)
			if err != nil {
				result.Err = fmt.Errorf("page %d record %q: %w", page, raw.ID, err)
				return result
			}
			products = append(products, product)
			snapshots = append(snapshots, snapshot)
		}

		// A short page ends the listing even when has_more lies.
		if !fetched.HasMore || len(fetched.Records) < o.cfg.PageSize {
			break
		}
	}

	if err := o.store.SaveBatch(ctx, products, snapshots); err != nil {
		result.Err = fmt.Errorf("save batch: %w", err)
		return result
	}
	result.Completed = true
	result.Products = len(products)
	return result
}

// finishItem writes the terminal ledger row and reports progress. Ledger
// writes use a detached context so an interrupted crawl still records where
// it stopped.
func (o *Orchestrator) finishItem(ctx context.Context, item store.WorkItem, result progress.ItemResult) {
	writeCtx := context.WithoutCancel(ctx)

	upd := store.WorkItemUpdate{
		LastPage:     &result.Pages,
		ProductCount: &result.Products,
	}
	if result.Completed {
		upd.Status = store.ItemCompleted
		// Clear error text left by a failed attempt in an earlier run.
		empty := ""
		upd.Error = &empty
	} else {
		upd.Status = store.ItemFailed
		msg := result.Err.Error()
		upd.Error = &msg
	}

	if err := o.store.UpdateWorkItem(writeCtx, item.RunID, item.OutletID, item.CategorySlug, upd); err != nil {
		o.logger.Error("ledger update failed",
			zap.String("run_id", item.RunID),
			zap.String("outlet", item.OutletID),
			zap.String("category", item.CategorySlug),
			zap.Error(err),
		)
	}
	o.tracker.ItemFinished(result)
}

func splitSlug(slug string) (string, string) {
	category0, category1, _ := strings.Cut(slug, "/")
	return category0, category1
}
