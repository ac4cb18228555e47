// Package fetch downloads subtitle payloads with bounded retries.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/metrics"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Fetcher performs GET requests with a per-attempt timeout and exponential
// backoff between attempts.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	baseDelay  time.Duration
	wait       func(context.Context, time.Duration) error
	metrics    *metrics.Metrics
}

// Option customizes the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithTimeout bounds each attempt. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithBaseDelay sets the delay after the first failed attempt; later delays
// double.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.baseDelay = d
		}
	}
}

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
// Cancellation is still checked once the sleeper returns.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(f *Fetcher) {
		if sleeper != nil {
			f.wait = func(ctx context.Context, d time.Duration) error {
				sleeper(d)
				return ctx.Err()
			}
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		baseDelay:  DefaultBaseDelay,
		wait:       sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchWithRetry returns the response body of url. It makes up to
// maxRetries attempts (DefaultMaxRetries when maxRetries <= 0), sleeping
// baseDelay*2^(n-1) after failed attempt n except the last. The returned
// error is an apperr.ErrFetch carrying the attempt count and last cause.
func (f *Fetcher) FetchWithRetry(ctx context.Context, url string, maxRetries int) (string, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attempts = attempt
		body, err := f.attempt(ctx, url)
		f.metrics.ObserveFetchAttempt(err)
		if err == nil {
			return body, nil
		}
		lastErr = err
		log.Warn("Subtitle fetch attempt %d/%d failed: %v", attempt, maxRetries, err)

		if ctx.Err() != nil {
			break
		}
		if attempt < maxRetries {
			if err := f.wait(ctx, f.baseDelay*time.Duration(1<<(attempt-1))); err != nil {
				break
			}
		}
	}

	return "", apperr.NewWithCause(apperr.ErrFetch,
		fmt.Sprintf("subtitle download failed after %d attempts: %v", attempts, lastErr), lastErr).
		WithContext("attempts", attempts)
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) attempt(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
