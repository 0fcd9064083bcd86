package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Header values the mobile app presents; the cache-control pair asks
// the server for uncached state.
const (
	appVersion = "3.2.3"
	userAgent  = "kumocloud/1122 CFNetwork/3860.200.71 Darwin/25.1.0"
)

// Client sends one HTTP request per call: no retries, no status-code
// errors. A non-nil error means the transport itself failed (DNS,
// connect, timeout). Auth policy lives a layer up.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client rooted at baseURL with a fixed request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Send issues one request and returns the status code and body bytes.
// body, when non-nil, is JSON-encoded. extra headers are applied after
// the defaults and may override them.
func (c *Client) Send(ctx context.Context, method, path string, extra http.Header, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	applyDefaultHeaders(req.Header)
	for key, values := range extra {
		req.Header[key] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// applyDefaultHeaders sets the headers every API call carries.
func applyDefaultHeaders(h http.Header) {
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set("x-app-version", appVersion)
	h.Set("app-env", "prd")
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("x-allow-cache", "false")
}
