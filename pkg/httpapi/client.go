// Package httpapi is the shared HTTP transport for talking to the Traffical
// platform: bearer authentication, JSON encoding, typed errors and retries
// with exponential backoff on transient failures.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/telemetry"
	"github.com/traffical/traffical-go/pkg/version"
)

// DefaultBaseURL is the production platform endpoint.
const DefaultBaseURL = "https://api.traffical.io"

// RetryConfig controls retries of transient failures.
type RetryConfig struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig retries three times starting at 200ms.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// Client issues authenticated JSON requests against the platform.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	http      *http.Client
	userAgent string
	retry     RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. It is wrapped with
// OpenTelemetry instrumentation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = telemetry.HTTPClient(hc)
	}
}

// WithUserAgent sets the component name sent in User-Agent.
func WithUserAgent(component string) Option {
	return func(c *Client) {
		c.userAgent = version.UserAgent(component)
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a Client. An empty baseURL selects DefaultBaseURL.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base URL %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:   u,
		apiKey:    apiKey,
		http:      telemetry.HTTPClient(nil),
		userAgent: version.UserAgent(version.SDKName),
		retry:     DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Response carries the status and headers of a completed call. The body has
// already been decoded into the out argument of Do.
type Response struct {
	StatusCode int
	Header     http.Header
}

// Do sends req, retrying transient failures, and decodes a 2xx JSON body into
// out when out is non-nil. 304 Not Modified is returned without error.
func (c *Client) Do(ctx context.Context, req Request, out any) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
	}

	var result *Response
	attempts := c.retry.Attempts
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			resp, err := c.once(ctx, req, payload, out)
			if err != nil {
				return err
			}
			result = resp
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.retry.InitialDelay),
		retry.MaxDelay(c.retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("attempt", n+1).
				WithField("path", req.Path).
				Warn("retrying platform request")
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) once(ctx context.Context, req Request, payload []byte, out any) (*Response, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + req.Path
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.Path)
	}
	defer resp.Body.Close()

	result := &Response{StatusCode: resp.StatusCode, Header: resp.Header}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return result, nil
	case resp.StatusCode >= 400:
		return nil, decodeAPIError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, errors.Wrapf(err, "failed to decode response from %s", req.Path)
		}
	}
	return result, nil
}

// IsTransient reports whether err is worth retrying: network failures,
// 5xx and 429 responses. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
