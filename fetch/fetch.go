// Package fetch downloads URLs to local files with a fixed retry policy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the number of additional attempts after the first failure.
	DefaultRetries = 3
	// DefaultRetryWait is the pause between attempts.
	DefaultRetryWait = 2 * time.Second
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "ghinstall/1.0"
)

// Fetcher retrieves the content of a URL into a file on disk.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

type httpFetcher struct {
	client    *http.Client
	retries   int
	retryWait time.Duration
	userAgent string
}

var _ Fetcher = (*httpFetcher)(nil)

type Opt func(*httpFetcher)

func WithClient(c *http.Client) Opt {
	return func(f *httpFetcher) {
		f.client = c
	}
}

func WithRetries(n int) Opt {
	return func(f *httpFetcher) {
		f.retries = n
	}
}

func WithRetryWait(d time.Duration) Opt {
	return func(f *httpFetcher) {
		f.retryWait = d
	}
}

func WithUserAgent(ua string) Opt {
	return func(f *httpFetcher) {
		f.userAgent = ua
	}
}

func NewFetcher(opts ...Opt) Fetcher {
	f := &httpFetcher{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		retries:   DefaultRetries,
		retryWait: DefaultRetryWait,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url to destPath, retrying failed attempts with a constant
// wait between them. The destination only exists once the transfer completed.
func (f *httpFetcher) Fetch(ctx context.Context, url, destPath string) error {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			select {
			case <-time.After(f.retryWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := f.fetchOnce(ctx, url, destPath)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("download failed after %d retries: %w", f.retries, lastErr)
}

func (f *httpFetcher) fetchOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}
