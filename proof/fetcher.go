package proof

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultFetchTimeout bounds a whole fetch, including reading the body.
const DefaultFetchTimeout = 60 * time.Second

// Fetcher retrieves the content behind a locator. Callers close the returned
// reader.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// HTTPFetcher fetches locators with HTTP GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests, body reads included, are
// bounded by timeout. A non-positive timeout selects DefaultFetchTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// NewHTTPFetcherWithClient uses client as is.
func NewHTTPFetcherWithClient(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch issues the GET request. Transport failures and non-2xx statuses are
// reported as *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &FetchError{Locator: locator, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
