// Package feed fetches top-of-book quotes from public market-data endpoints
// and assembles the cross-venue quote set for an asset.
package feed

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// restClient is the shared GET-and-read helper used by every venue adapter.
type restClient struct {
	baseURL    string
	httpClient *http.Client
}

func newRESTClient(baseURL string, timeout time.Duration) restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return restClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// doGet performs a GET request against baseURL+path and returns the body.
func (c restClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "arbagent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, c.baseURL+path, body); err != nil {
		return nil, err
	}
	return body, nil
}

// StatusError is a non-2xx answer from an upstream market-data API. It wraps
// no domain sentinel; an upstream 404 or 429 is a failed scan.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream HTTP %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// RateLimited reports whether the upstream asked us to back off.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// checkHTTPStatus maps a non-2xx response to a *StatusError.
func checkHTTPStatus(statusCode int, url string, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	return &StatusError{StatusCode: statusCode, URL: url, Body: bodyStr}
}

// parsePrice accepts the string or numeric price encodings used by exchange
// APIs. An empty value parses as zero; NaN and infinities are rejected.
func parsePrice(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		f = x
	case string:
		if x == "" {
			return 0, nil
		}
		var err error
		f, err = strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("parse price %q: %w", x, err)
		}
	default:
		return 0, fmt.Errorf("unexpected price type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse price: non-finite value %v", v)
	}
	return f, nil
}
