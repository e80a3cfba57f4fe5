package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/config"
	"github.com/shelfwatch/crawler/internal/orchestrator"
	"github.com/shelfwatch/crawler/internal/progress"
	"github.com/shelfwatch/crawler/internal/reliability"
	"github.com/shelfwatch/crawler/internal/resume"
	"github.com/shelfwatch/crawler/internal/status"
	"github.com/shelfwatch/crawler/internal/store"
	"github.com/shelfwatch/crawler/internal/taxonomy"
	"github.com/shelfwatch/crawler/internal/upstream"
	"github.com/shelfwatch/crawler/internal/upstream/headless"
)

type crawlFlags struct {
	resume     bool
	runID      string
	outlets    []string
	categories []string
}

func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts a catalog crawl",
		Long: `Crawls the configured outlets and categories, persisting a price snapshot
per product. With --resume (or --run) the latest interrupted run is picked
up where it stopped: completed work items are skipped, pending and failed
ones are redone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.resume, "resume", false, "resume the most recent interrupted run")
	cmd.Flags().StringVar(&flags.runID, "run", "", "resume a specific run id")
	cmd.Flags().StringSliceVar(&flags.outlets, "outlets", nil, "outlet ids to crawl (overrides config)")
	cmd.Flags().StringSliceVar(&flags.categories, "categories", nil, "category slugs to crawl (overrides config)")
	return cmd
}

func runCrawl(cmd *cobra.Command, flags *crawlFlags) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	outletIDs := cfg.Crawler.Outlets
	if len(flags.outlets) > 0 {
		outletIDs = flags.outlets
	}
	if len(outletIDs) == 0 {
		return errors.New("no outlets selected: set crawler.outlets or pass --outlets")
	}

	slugs, err := selectCategories(cfg, flags.categories)
	if err != nil {
		return err
	}

	client, closeClient, err := buildUpstreamClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	syncOutlets(ctx, client, st, outletIDs, logger)

	run, items, err := resolveWork(ctx, st, flags, outletIDs, slugs, logger)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		logger.Info("nothing to crawl", zap.String("run_id", run.ID))
		return nil
	}

	exec := buildExecutor(cfg, logger)
	tracker := progress.NewTracker(progress.NewLogSink(logger), progress.MetricsSink{})

	if cfg.Server.Enabled {
		srv := status.NewServer(tracker, st, exec, logger)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			if err := srv.Serve(ctx, addr); err != nil {
				logger.Warn("status server stopped", zap.Error(err))
			}
		}()
	}

	orch := orchestrator.New(orchestrator.Config{
		Workers:  cfg.Crawler.Concurrency,
		PageSize: cfg.Crawler.PageSize,
	}, st, exec, client, tracker, logger)

	if err := orch.Run(ctx, run, items); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("crawl interrupted, resume with --resume", zap.String("run_id", run.ID))
			return nil
		}
		return err
	}

	if result, err := st.Checkpoint(context.Background()); err != nil {
		logger.Warn("wal checkpoint failed", zap.Error(err))
	} else {
		logger.Info("wal checkpoint",
			zap.Int("log_pages", result.LogPages),
			zap.Int("moved_pages", result.MovedPages),
		)
	}
	return nil
}

// selectCategories resolves the crawl's category slugs against the taxonomy,
// so unknown slugs fail before any run is created.
func selectCategories(cfg config.Config, override []string) ([]string, error) {
	tree, err := taxonomy.Load(cfg.Crawler.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	selection := cfg.Crawler.Categories
	if len(override) > 0 {
		selection = override
	}
	categories, err := tree.Select(selection)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, len(categories))
	for i, c := range categories {
		slugs[i] = c.Slug
	}
	return slugs, nil
}

func buildUpstreamClient(cfg config.Config, logger *zap.Logger) (*upstream.Client, func(), error) {
	var (
		tokens  upstream.TokenSource
		cleanup = func() {}
	)
	if cfg.Upstream.HeadlessToken {
		src, err := headless.New(headless.Config{
			StorefrontURL:     cfg.Upstream.StorefrontURL,
			UserAgent:         cfg.Upstream.UserAgent,
			NavigationTimeout: cfg.Upstream.NavTimeout(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init token source: %w", err)
		}
		tokens = src
		cleanup = src.Close
	} else {
		tokens = upstream.StaticTokenSource(cfg.Upstream.Token)
	}

	client, err := upstream.NewClient(upstream.ClientConfig{
		BaseURL:          cfg.Upstream.BaseURL,
		UserAgent:        cfg.Upstream.UserAgent,
		PageSize:         cfg.Crawler.PageSize,
		RequestTimeout:   cfg.Upstream.RequestTimeout(),
		OperationTimeout: cfg.Upstream.OpTimeout(),
	}, tokens, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, cleanup, nil
}

// buildExecutor assembles the shared reliability stack. One executor serves
// every worker so the rate budget and breaker state are global to the crawl.
func buildExecutor(cfg config.Config, logger *zap.Logger) *reliability.Executor {
	limiter := reliability.NewLimiter(reliability.LimiterConfig{
		RequestsPerMinute: cfg.Rate.RequestsPerMinute,
		MinDelay:          cfg.Rate.MinDelay(),
		MaxDelay:          cfg.Rate.MaxDelay(),
		Jitter:            cfg.Rate.Jitter(),
	})
	breaker := reliability.NewBreaker(reliability.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout(),
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
	})
	retrier := reliability.NewRetrier(reliability.RetryConfig{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay(),
		MaxDelay:     cfg.Retry.MaxDelay(),
		Multiplier:   cfg.Retry.BackoffMultiplier,
	}, reliability.DefaultRetryable, logger)
	return reliability.NewExecutor(limiter, breaker, retrier, logger)
}

// syncOutlets refreshes stored outlet metadata for the selected outlets.
// Failures are logged and ignored: stale metadata never blocks a crawl.
func syncOutlets(ctx context.Context, client *upstream.Client, st *store.Store, outletIDs []string, logger *zap.Logger) {
	outlets, err := client.FetchOutlets(ctx)
	if err != nil {
		logger.Warn("outlet metadata sync failed", zap.Error(err))
		return
	}
	selected := make(map[string]bool, len(outletIDs))
	for _, id := range outletIDs {
		selected[id] = true
	}
	for _, outlet := range outlets {
		if !selected[outlet.ID] {
			continue
		}
		if err := st.UpsertOutlet(ctx, outlet); err != nil {
			logger.Warn("outlet upsert failed", zap.String("outlet", outlet.ID), zap.Error(err))
		}
	}
}

// resolveWork decides between resuming an existing run and creating a fresh
// one.
func resolveWork(ctx context.Context, st *store.Store, flags *crawlFlags, outletIDs, slugs []string, logger *zap.Logger) (store.Run, []store.WorkItem, error) {
	if flags.resume || flags.runID != "" {
		resolution, err := resume.New(st).Resolve(ctx, flags.runID, outletIDs, slugs)
		if err != nil {
			return store.Run{}, nil, err
		}
		switch resolution.Outcome {
		case resume.OutcomeResume:
			logger.Info("resuming run",
				zap.String("run_id", resolution.Run.ID),
				zap.Int("items", len(resolution.Items)),
			)
			return *resolution.Run, resolution.Items, nil
		case resume.OutcomeAlreadyComplete:
			logger.Info("run has no pending or failed items", zap.String("run_id", resolution.Run.ID))
			return *resolution.Run, nil, nil
		case resume.OutcomeFresh:
			logger.Info("no run in progress, starting fresh")
		}
	}

	run, err := st.CreateRun(ctx, outletIDs, slugs)
	if err != nil {
		return store.Run{}, nil, err
	}
	items, err := st.WorkItems(ctx, run.ID)
	if err != nil {
		return store.Run{}, nil, err
	}
	logger.Info("created run",
		zap.String("run_id", run.ID),
		zap.Int("items", len(items)),
	)
	return run, items, nil
}
