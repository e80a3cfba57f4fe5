// Package upstream talks to the catalog API: paginated product listings per
// outlet and category, and outlet metadata.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/catalog"
	"github.com/shelfwatch/crawler/internal/logging"
)

// ErrAuthExpired reports that the bearer token was rejected even after a
// refresh. It is never retried.
var ErrAuthExpired = errors.New("upstream auth expired")

// StatusError is a non-2xx response from the catalog API. 5xx-class codes are
// transient; 4xx-class codes fail the call immediately.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d (%s) for %s", e.Code, http.StatusText(e.Code), e.URL)
}

// Retryable classifies the status for the retry layer.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}

// TokenSource produces a fresh API token. Implementations may drive a
// headless browser; calls are serialized by the client.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token, for configuration-supplied
// credentials and tests.
type StaticTokenSource string

// Token implements TokenSource.
func (s StaticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no static token configured")
	}
	return string(s), nil
}

// Page is one page of raw catalog records.
type Page struct {
	Records []catalog.RawProduct
	HasMore bool
}

// ClientConfig controls the catalog API client.
type ClientConfig struct {
	BaseURL          string
	UserAgent        string
	PageSize         int
	RequestTimeout   time.Duration
	OperationTimeout time.Duration
}

// Client fetches catalog pages. The token is guarded by a mutex: on an auth
// rejection exactly one caller refreshes while the rest reuse its result, and
// the failed request is retried once with the new token.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	tokens TokenSource
	logger *zap.Logger

	mu    sync.Mutex
	token string
}

// NewClient builds a catalog API client over the given token source.
func NewClient(cfg ClientConfig, tokens TokenSource, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		tokens: tokens,
		logger: logging.Component(logger, "upstream"),
	}, nil
}

type pageResponse struct {
	Products []catalog.RawProduct `json:"products"`
	HasMore  bool                 `json:"has_more"`
}

// FetchPage retrieves one page of products for an outlet and category path.
// category1 may be empty for department-level listings. Pages are numbered
// from 1.
func (c *Client) FetchPage(ctx context.Context, outletID, category0, category1 string, page int) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	endpoint, err := c.pageURL(outletID, category0, category1, page)
	if err != nil {
		return Page{}, err
	}

	var resp pageResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return Page{}, err
	}
	return Page{Records: resp.Products, HasMore: resp.HasMore}, nil
}

type outletsResponse struct {
	Outlets []catalog.Outlet `json:"outlets"`
}

// FetchOutlets retrieves the upstream's store-location metadata.
func (c *Client) FetchOutlets(ctx context.Context) ([]catalog.Outlet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1", "outlets")
	if err != nil {
		return nil, fmt.Errorf("build outlets URL: %w", err)
	}

	var resp outletsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Outlets, nil
}

func (c *Client) pageURL(outletID, category0, category1 string, page int) (string, error) {
	parts := []string{"v1", "outlets", outletID, "categories", category0}
	if category1 != "" {
		parts = append(parts, category1)
	}
	parts = append(parts, "products")
	endpoint, err := url.JoinPath(c.cfg.BaseURL, parts...)
	if err != nil {
		return "", fmt.Errorf("build page URL: %w", err)
	}
	query := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(c.cfg.PageSize)},
	}
	return endpoint + "?" + query.Encode(), nil
}

// getJSON performs an authenticated GET. On a 401 it refreshes the token and
// retries the request once; a second rejection surfaces ErrAuthExpired.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	token, err := c.currentToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	err = c.doJSON(ctx, endpoint, token, out)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		return err
	}

	c.logger.Info("token rejected, refreshing", zap.String("url", endpoint))
	fresh, refreshErr := c.refreshToken(ctx, token)
	if refreshErr != nil {
		return fmt.Errorf("refresh token: %w", refreshErr)
	}

	err = c.doJSON(ctx, endpoint, fresh, out)
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, endpoint, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// currentToken returns the cached token, priming it from the source on first
// use.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// refreshToken replaces a stale token. Callers racing on the same stale value
// block on the mutex; whoever wins refreshes, the rest see the new token and
// skip their own refresh.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != stale {
		return c.token, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}
