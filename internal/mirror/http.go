package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/me/seqflow/pkg/model"
)

// HTTPFetcher fetches http:// and https:// locators. Transient failures
// (5xx, connection errors) are retried with backoff by the underlying
// client before being surfaced as retryable fetch errors.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with retry defaults suited to
// large sequence-file transfers.
func NewHTTPFetcher() *HTTPFetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 15 * time.Second
	rc.Logger = nil
	return &HTTPFetcher{client: rc.StandardClient()}
}

// Fetch streams the locator's content to destPath.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return &FetchError{Locator: locator, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return model.NewNotFoundError("remote file", locator)
	case resp.StatusCode >= 500:
		return &FetchError{Locator: locator, Transient: true,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	default:
		return &FetchError{Locator: locator,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	return nil
}
