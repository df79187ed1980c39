package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const userAgent = "mortality-etl/1.0 (+https://github.com/couchcryptid/mortality-etl)"

var (
	// ErrLocalFileMissing is returned, without retrying, when a local source path does not exist.
	ErrLocalFileMissing = errors.New("local source file not found")
	// ErrStatus is wrapped by errors for non-200 HTTP responses.
	ErrStatus = errors.New("unexpected HTTP status")
)

// Options configures retries and timeouts.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
}

// DefaultOptions are three attempts with backoff starting at one second.
var DefaultOptions = Options{
	MaxAttempts: 3,
	Backoff:     time.Second,
	MaxBackoff:  30 * time.Second,
	Timeout:     60 * time.Second,
}

// Client retrieves source tables over HTTP or from the local filesystem.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a fetch client. Zero option fields take DefaultOptions values.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultOptions.Backoff
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = max(DefaultOptions.MaxBackoff, opts.Backoff)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

// Fetch retrieves the table at location on behalf of the named source.
// Remote locations are retried with exponential backoff; local paths are read once.
func (c *Client) Fetch(ctx context.Context, name, location string) (source.Table, error) {
	start := time.Now()
	var (
		t   source.Table
		err error
	)
	if isRemote(location) {
		t, err = c.fetchRemote(ctx, name, location)
	} else {
		t, err = c.readLocal(name, location)
	}
	if err != nil {
		return source.Table{}, err
	}
	c.metrics.FetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	c.logger.Info("source retrieved", "source", name, "rows", t.Len(), "columns", len(t.Header))
	return t, nil
}

func (c *Client) fetchRemote(ctx context.Context, name, rawURL string) (source.Table, error) {
	backoff := c.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		t, err := c.doRequest(ctx, rawURL)
		if err == nil {
			c.metrics.FetchAttempts.WithLabelValues(name, "success").Inc()
			return t, nil
		}
		c.metrics.FetchAttempts.WithLabelValues(name, "error").Inc()
		lastErr = err
		if ctx.Err() != nil {
			return source.Table{}, ctx.Err()
		}
		if !retryable(err) || attempt == c.opts.MaxAttempts {
			break
		}
		c.logger.Warn("source fetch failed, retrying",
			"source", name, "attempt", attempt, "max_attempts", c.opts.MaxAttempts,
			"backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return source.Table{}, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, c.opts.MaxBackoff)
	}
	return source.Table{}, fmt.Errorf("fetch %s: %w", name, lastErr)
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (source.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return source.Table{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/csv,application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return source.Table{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return source.Table{}, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if isSpreadsheet(rawURL) {
		return readXLSX(resp.Body)
	}
	return readCSV(resp.Body)
}

func (c *Client) readLocal(name, path string) (source.Table, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		c.metrics.FetchAttempts.WithLabelValues(name, "error").Inc()
		wd, _ := os.Getwd()
		return source.Table{}, fmt.Errorf("%w: %s (working directory %s); place the file there or set its path in the configuration",
			ErrLocalFileMissing, path, wd)
	}
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues(name, "error").Inc()
		return source.Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var t source.Table
	if isSpreadsheet(path) {
		t, err = readXLSX(f)
	} else {
		t, err = readCSV(f)
	}
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues(name, "error").Inc()
		return source.Table{}, fmt.Errorf("read %s: %w", path, err)
	}
	c.metrics.FetchAttempts.WithLabelValues(name, "success").Inc()
	return t, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrStatus }

// retryable reports whether another attempt could succeed. Client errors
// other than 408 and 429 are permanent.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusRequestTimeout || se.code == http.StatusTooManyRequests
	}
	return true
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func isSpreadsheet(location string) bool {
	if i := strings.IndexAny(location, "?#"); i >= 0 && isRemote(location) {
		location = location[:i]
	}
	return strings.EqualFold(filepath.Ext(location), ".xlsx")
}
