package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBytes bounds a single download.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// HTTPFetcher downloads http(s) references.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher returns a fetcher with a traced transport.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: invalid request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, downloadFailed(fmt.Sprintf("Failed to download PDF: %s", resp.Status), nil).
			WithContext("status_code", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: reading body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, downloadFailed(fmt.Sprintf("Failed to download PDF: file exceeds %d bytes", f.maxBytes), nil)
	}
	return data, nil
}
