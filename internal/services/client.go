package services

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

const (
	// DefaultTimeout bounds every outbound third-party call.
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second

	// maxErrorBodyBytes caps how much of an error response is kept as detail.
	maxErrorBodyBytes = 2048
)

// NewHTTPClient creates an HTTP client with the standard transport tuning.
// A zero timeout falls back to DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}
}

// client is the shared JSON-over-HTTP plumbing the per-service adapters
// build on.
type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newClient(httpClient *http.Client, baseURL, apiKey string) client {
	return client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// postJSON sends a JSON request and decodes a JSON object response.
// It returns the decoded body and the HTTP status code; a transport-level
// failure (including timeouts) is returned as an error.
func (c client) postJSON(ctx context.Context, path string, body any) (map[string]any, int, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

// getJSON sends a GET request and decodes a JSON object response.
func (c client) getJSON(ctx context.Context, path string) (map[string]any, int, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

func (c client) doJSON(ctx context.Context, method, path string, body any) (map[string]any, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	var decoded map[string]any
	if len(data) > 0 {
		// Error responses are not always JSON; keep the raw text as detail.
		if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil {
			decoded = map[string]any{"raw": truncate(string(data), maxErrorBodyBytes)}
		}
	}

	return decoded, resp.StatusCode, nil
}

// outcome classifies a completed HTTP exchange into the closed outcome set.
// Rate limits are recognized from HTTP 429 and from known body signatures,
// since not every provider uses the status code.
func outcome(payload map[string]any, status int, err error) Outcome {
	if err != nil {
		return Failed(err.Error())
	}

	detail := errorDetail(payload, status)

	if status == http.StatusTooManyRequests || isRateLimitSignature(detail) {
		if detail == "" {
			detail = "rate limit exceeded"
		}
		return RateLimited(detail)
	}

	if status >= 400 {
		if detail == "" {
			detail = fmt.Sprintf("http %d", status)
		}
		return Failed(detail)
	}

	return Success(payload)
}

// errorDetail pulls the best available error description out of a duck-typed
// response body.
func errorDetail(payload map[string]any, status int) string {
	if payload == nil {
		if status >= 400 {
			return fmt.Sprintf("http %d", status)
		}
		return ""
	}

	for _, key := range []string{"error", "message", "detail"} {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}

	if raw, ok := payload["raw"].(string); ok && status >= 400 {
		return raw
	}
	return ""
}

// rateLimitSignatures are body phrases providers use for throttling
// responses that arrive without a 429 status.
var rateLimitSignatures = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"quota exceeded",
}

func isRateLimitSignature(detail string) bool {
	lower := strings.ToLower(detail)
	for _, sig := range rateLimitSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
