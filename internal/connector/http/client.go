package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy int

const (
	// BackoffFixed waits RetryDelay before every retry.
	BackoffFixed BackoffStrategy = iota
	// BackoffExponential doubles RetryDelay on every retry.
	BackoffExponential
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ClientConfig configures the HTTP client behavior.
type ClientConfig struct {
	// BaseURL is the base URL for all requests.
	BaseURL string

	// Auth configures authentication.
	Auth AuthConfig

	// Timeout for individual requests (default: 60s).
	Timeout time.Duration

	// MaxRetries for failed requests (default: 3).
	MaxRetries int

	// RetryDelay between attempts (default: 30s).
	RetryDelay time.Duration

	// Backoff strategy (default: fixed).
	Backoff BackoffStrategy

	// CoolDown is waited once after the last failed attempt.
	CoolDown time.Duration

	// RateLimit requests per second. Zero disables the limiter.
	RateLimit float64

	// RateBurst maximum burst size (default: 1).
	RateBurst int

	// Headers to add to all requests.
	Headers map[string]string

	// UserAgent string (default: "meno-sync/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper

	// Sleep replaces the blocking wait used for backoff and pacing (for tests).
	Sleep SleepFunc

	// Logger receives retry and exhaustion messages.
	Logger log.FieldLogger
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Backoff:    BackoffFixed,
		CoolDown:   3 * time.Second,
		UserAgent:  "meno-sync/1.0",
		Headers:    make(map[string]string),
	}
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// Client is a paced, rate-limited, retry-capable HTTP client.
//
// The attempt counter lives in each Do call, so concurrent or nested calls never
// share retry state.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	sleep       SleepFunc
	logger      log.FieldLogger
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 30 * time.Second
	}
	if config.RateBurst == 0 {
		config.RateBurst = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = "meno-sync/1.0"
	}
	if config.Auth == nil {
		config.Auth = NoAuth{}
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		sleep:  config.Sleep,
		logger: config.Logger,
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.logger == nil {
		c.logger = log.StandardLogger()
	}
	if config.RateLimit > 0 {
		c.rateLimiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() *ClientConfig {
	return c.config
}

// Sleep waits for d using the configured sleep function.
func (c *Client) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return c.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// Request represents an HTTP request to be made. Body is kept as bytes so the
// same request can be replayed on retry.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// =============================================================================
// CLIENT METHODS
// =============================================================================

// Do executes a request with rate limiting and retry.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	logger := c.logger.WithFields(log.Fields{
		"method": req.Method,
		"path":   req.Path,
	})

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			logger.WithError(lastErr).Warnf("Request failed, trying again in %s", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "rate limiter")
			}
		}

		attempts++
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		if !isRetryable(err) {
			return resp, err
		}
	}

	logger.WithError(lastErr).Error("Request failed too many times")
	if c.config.CoolDown > 0 {
		if err := c.sleep(ctx, c.config.CoolDown); err != nil {
			return nil, err
		}
	}
	return nil, &RetryError{Attempts: attempts, Err: lastErr}
}

func (c *Client) backoff(attempt int) time.Duration {
	if c.config.Backoff == BackoffExponential {
		return time.Duration(1<<uint(attempt-1)) * c.config.RetryDelay
	}
	return c.config.RetryDelay
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	// Build URL
	fullURL := c.config.BaseURL
	if req.Path != "" {
		fullURL = strings.TrimSuffix(fullURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	}
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	c.config.Auth.Apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	if resp.StatusCode >= 400 {
		return response, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(data),
		}
	}

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	req, err := NewJSONRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Query = query
	return c.Do(ctx, req)
}

// Patch performs a PATCH request with JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	req, err := NewJSONRequest(http.MethodPatch, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// NewJSONRequest builds a request carrying body encoded as JSON.
func NewJSONRequest(method, path string, body any) (*Request, error) {
	req := &Request{
		Method: method,
		Path:   path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal body")
		}
		req.Body = data
	}
	return req, nil
}
