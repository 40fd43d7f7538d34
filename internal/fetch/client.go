package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/clbanning/mxj/v2"
)

const maxAttempts = 5

// Client is a retrying HTTP caller shared by the ERP and vendor fetchers.
type Client struct {
	httpClient *http.Client
	limiter    *RateLimiter
	attempts   int
}

func NewClient(httpClient *http.Client, requestsPerSecond, attempts int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if attempts <= 0 {
		attempts = maxAttempts
	}
	return &Client{
		httpClient: httpClient,
		limiter:    NewRateLimiter(requestsPerSecond),
		attempts:   attempts,
	}
}

// Do sends the request and returns the response body. Retryable statuses are
// retried with jittered exponential backoff; other non-2xx statuses fail
// immediately.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		c.limiter.WaitTurn()

		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", url, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request %s: %w", url, err)
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response from %s: %w", url, err)
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("request %s: status %d", url, resp.StatusCode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("request %s: status %d: %s", url, resp.StatusCode, truncate(payload, 200))
		}
		return payload, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.attempts, lastErr)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// DecodeBody parses a vendor response body as a generic tree. XML vendors go
// through mxj so attribute and element trees look like decoded JSON.
func DecodeBody(payload []byte, vendorType string) (map[string]any, error) {
	if vendorType == "xml" {
		mv, err := mxj.NewMapXml(payload)
		if err != nil {
			return nil, fmt.Errorf("decode xml response: %w", err)
		}
		return map[string]any(mv), nil
	}

	var tree map[string]any
	if err := json.Unmarshal(payload, &tree); err != nil {
		return nil, fmt.Errorf("decode json response: %w", err)
	}
	return tree, nil
}
