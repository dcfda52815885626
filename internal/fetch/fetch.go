// Package fetch retrieves remote reference-audio blobs over HTTP and
// materializes them as temporary files.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout bounds a single fetch attempt.
const DefaultTimeout = 30 * time.Second

const (
	// Some sample hosts reject requests without a browser-like agent.
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	tempFilePattern = "chatterbox-fetch-*"
)

// Fetcher performs single-attempt, timed HTTP downloads.
type Fetcher struct {
	httpClient *http.Client
}

// New creates a Fetcher. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch downloads url and writes the body verbatim to a fresh temporary
// file, returning its path. Any non-2xx status or transport error is a
// definitive failure; there is no retry. The caller owns the returned file
// and must remove it.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch of %s returned status: %s", url, resp.Status)
	}

	return writeBodyToTemp(resp.Body)
}

func writeBodyToTemp(body io.Reader) (string, error) {
	tempFile, err := os.CreateTemp("", tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	_, copyErr := io.Copy(tempFile, body)
	closeErr := tempFile.Close()

	if copyErr != nil {
		_ = os.Remove(tempFile.Name())

		return "", fmt.Errorf("failed to write fetched data: %w", copyErr)
	}

	if closeErr != nil {
		_ = os.Remove(tempFile.Name())

		return "", fmt.Errorf("failed to close fetched file: %w", closeErr)
	}

	return tempFile.Name(), nil
}
