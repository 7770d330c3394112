// Package go2rtc is an HTTP client for a go2rtc media engine. It registers
// camera streams and exchanges SDP offers for answers; the bridge never
// touches media itself.
package go2rtc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

const (
	// DefaultBaseURL is where go2rtc serves its API out of the box
	DefaultBaseURL = "http://localhost:1984"

	// DefaultTimeout bounds every request
	DefaultTimeout = 5 * time.Second

	// maxAnswerSize caps the SDP answer read from the engine
	maxAnswerSize = 1 << 20
)

// Client talks to the go2rtc API
type Client struct {
	// BaseURL is the API root, e.g. "http://localhost:1984"
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	logger *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(l)
	}
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterStream adds or replaces the stream id with source sourceURI.
// go2rtc treats PUT as an upsert, so repeating the call is safe.
func (c *Client) RegisterStream(ctx context.Context, id, sourceURI string) error {
	q := url.Values{}
	q.Set("name", id)
	q.Set("src", sourceURI)

	resp, err := c.do(ctx, http.MethodPut, "/api/streams", q, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("register stream %s: %w", id, err)
	}
	c.logger.Debug("stream registered", zap.String("stream", id))
	return nil
}

// Negotiate posts an SDP offer for stream id and returns the answer SDP
func (c *Client) Negotiate(ctx context.Context, id, offerSDP string) (string, error) {
	q := url.Values{}
	q.Set("src", id)

	resp, err := c.do(ctx, http.MethodPost, "/api/webrtc", q, strings.NewReader(offerSDP), "application/sdp")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("negotiate %s: %w", id, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return "", fmt.Errorf("%w: read answer: %v", domain.ErrUpstreamUnavailable, err)
	}
	answer := string(body)
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer for %s", domain.ErrUpstreamUnavailable, id)
	}
	return answer, nil
}

// RemoveStream deletes the stream id. A stream that does not exist is not
// an error.
func (c *Client) RemoveStream(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("src", id)

	resp, err := c.do(ctx, http.MethodDelete, "/api/streams", q, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("remove stream %s: %w", id, err)
	}
	return nil
}

// Healthy reports whether the API root answers 200
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/api", nil, nil, "")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrUpstreamUnavailable, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.Debug("engine request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamUnavailable, method, path, err)
	}
	return resp, nil
}

// checkStatus maps any non-2xx status to ErrUpstreamUnavailable
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, bytes.TrimSpace(snippet))
}
