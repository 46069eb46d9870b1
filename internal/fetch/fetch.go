// Package fetch retrieves source documents for the delivery pipeline. HTTP
// URLs are fetched with a single GET and no retry; s3:// URLs are resolved
// against the catalog object store.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetcher retrieves the raw bytes of a source document.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}

// HTTPFetcher performs a single GET with timeout and size guards.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher. Zero values fall back to 30s / 50 MiB.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		maxBytes: maxBytes,
	}
}

// Fetch GETs the URL once. A non-2xx status or transport error yields a
// *fetch.Error; the caller treats that as fatal.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Source: sourceURL, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &Error{Source: sourceURL, Err: fmt.Errorf("document exceeds %d bytes", f.maxBytes)}
	}
	return data, nil
}

// Router dispatches to a fetcher based on the URL scheme. Object store URLs
// (s3://bucket/key) go to the object fetcher when one is configured.
type Router struct {
	HTTP   Fetcher
	Object Fetcher
}

// Fetch picks the fetcher for the source URL.
func (r *Router) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return r.HTTP.Fetch(ctx, sourceURL)
	case "s3":
		if r.Object == nil {
			return nil, &Error{Source: sourceURL, Err: fmt.Errorf("object store not configured")}
		}
		return r.Object.Fetch(ctx, sourceURL)
	default:
		return nil, &Error{Source: sourceURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}
