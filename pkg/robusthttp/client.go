// Package robusthttp builds outbound HTTP clients for talking to the platform.
//
// Clients are stdlib [http.Client] values backed by hashicorp retryablehttp
// and an OpenTelemetry-instrumented pooled transport. Retries are off unless
// requested with [WithMaxRetries].
package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultTimeout = 10 * time.Second

// LeveledSlog adapts slog to the retryablehttp logger interface.
type LeveledSlog struct {
	inner *slog.Logger
}

// intermediate failures are expected when retrying, so ERROR is logged as WARN
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type settings struct {
	retry     *retryablehttp.Client
	timeout   time.Duration
	userAgent string
}

type Option func(*settings)

// WithMaxRetries sets how many times a failed request is retried. Zero disables retries.
func WithMaxRetries(maxRetries int) Option {
	return func(s *settings) {
		s.retry.RetryMax = maxRetries
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(s *settings) {
		s.retry.RetryWaitMin = waitMin
		s.retry.RetryWaitMax = waitMax
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.retry.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	}
}

// WithTransport replaces the pooled transport. Tracing is not added to a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(s *settings) {
		s.retry.HTTPClient.Transport = transport
	}
}

// WithTimeout bounds each request, including any retries.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

// WithUserAgent sets a User-Agent header on requests that lack one.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		s.userAgent = ua
	}
}

// NewClient returns an HTTP client with a pooled, traced transport, a
// request timeout (DefaultTimeout unless overridden) and no retries unless
// configured.
func NewClient(options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 0
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: slog.Default().With("subsystem", "RobustHTTPClient")})
	retryClient.CheckRetry = DefaultRetryPolicy
	// hand the final response back to the caller instead of a generic "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	s := settings{
		retry:   retryClient,
		timeout: DefaultTimeout,
	}
	for _, option := range options {
		option(&s)
	}

	client := retryClient.StandardClient()
	client.Timeout = s.timeout
	if s.userAgent != "" {
		client.Transport = &userAgentTransport{inner: client.Transport, userAgent: s.userAgent}
	}
	return client
}

// DefaultRetryPolicy wraps retryablehttp.DefaultRetryPolicy, treating
// `429 Too Many Requests` as final so the caller sees the rate limit.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type userAgentTransport struct {
	inner     http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.inner.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.inner.RoundTrip(req)
}
