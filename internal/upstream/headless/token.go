// Package headless acquires API tokens by driving the storefront in a
// browser.
package headless

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/logging"
)

// tokenScript reads the API token the storefront exposes after its bootstrap
// script runs. Checked locations, in order: the app config object, then local
// storage.
const tokenScript = `(() => {
	if (window.__APP_CONFIG__ && window.__APP_CONFIG__.apiToken) {
		return window.__APP_CONFIG__.apiToken;
	}
	return window.localStorage.getItem("api_token") || "";
})()`

// Config controls the headless token source.
type Config struct {
	StorefrontURL     string
	UserAgent         string
	NavigationTimeout time.Duration
}

// TokenSource extracts API tokens from the storefront page. Each Token call
// opens a fresh tab; the browser allocator is shared and released by Close.
type TokenSource struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a headless token source backed by chromedp.
func New(cfg Config, logger *zap.Logger) (*TokenSource, error) {
	if cfg.StorefrontURL == "" {
		return nil, fmt.Errorf("storefront URL is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &TokenSource{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logging.Component(logger, "headless"),
	}, nil
}

// Close cancels the allocator context.
func (s *TokenSource) Close() {
	s.allocCancel()
}

// Token navigates to the storefront, waits for the page to settle, and reads
// the token out of the rendered page state.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	// Tie the tab to the caller's context so cancellation propagates.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	start := time.Now()
	var token string
	actions := []chromedp.Action{
		s.userAgentAction(),
		chromedp.Navigate(s.cfg.StorefrontURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(tokenScript, &token),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("storefront exposed no token at %s", s.cfg.StorefrontURL)
	}

	s.logger.Info("token extracted",
		zap.Duration("duration", time.Since(start)),
		zap.Int("token_length", len(token)),
	)
	return token, nil
}

func (s *TokenSource) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}
