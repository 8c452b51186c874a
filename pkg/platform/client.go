// Package platform provides a minimal JSON client for the remote platform's
// REST API: token exchange, blueprints, webhooks, and the integration
// resource. All calls go through one bearer-authenticated round trip helper
// with a fixed per-call timeout; response shapes are returned as generic
// documents because the API wraps some payloads and not others.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/portside/portside/pkg/telemetry"
)

const (
	// DefaultTimeout is the per-call budget for remote operations.
	DefaultTimeout = 30 * time.Second

	// successThreshold is the first status code treated as a failure.
	successThreshold = 300

	// apiVersionPath is appended to the configured base URL.
	apiVersionPath = "/v1"

	// maxResponseBody bounds how much of a response body is read.
	maxResponseBody = 1 << 20
)

// Config holds the settings for a platform API client.
type Config struct {
	// BaseURL is the platform API base URL, without the version path.
	BaseURL string

	// Token is an optional pre-acquired bearer token. Most callers leave it
	// empty and call Authenticate instead.
	Token string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// Client is a bearer-authenticated JSON client for the platform API.
// It is not safe for concurrent use while Authenticate is in flight;
// reconciliation runs are strictly sequential, so this never comes up.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
}

// NewClient creates a platform API client. The metrics collector may be nil.
func NewClient(cfg Config, logger zerolog.Logger, metrics *telemetry.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "portside"
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/") + apiVersionPath,
		token:     cfg.Token,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger.With().Str("component", "platform").Logger(),
		metrics: metrics,
	}
}

// BaseURL returns the versioned API base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken replaces the bearer token used for subsequent calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// do performs one JSON round trip against the platform API. A response with
// status >= 300 is returned as *APIError; success bodies are decoded into out
// when out is non-nil. The resource and operation labels feed metrics only.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, resource, operation string) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s %s request: %w", method, path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	timer := telemetry.NewTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordRequest(resource, operation, "error", timer.Duration())
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.recordRequest(resource, operation, "error", timer.Duration())
		return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}

	c.recordRequest(resource, operation, strconv.Itoa(resp.StatusCode), timer.Duration())

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("Platform API call")

	if resp.StatusCode >= successThreshold {
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}

	return nil
}

func (c *Client) recordRequest(resource, operation, status string, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordAPIRequest(resource, operation, status, duration)
}
