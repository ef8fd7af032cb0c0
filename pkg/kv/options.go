package kv

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acapella/kv_sdk_go/internal/httpx"
	"github.com/acapella/kv_sdk_go/internal/kvapi"
)

// RetryPolicy controls transport-level retries. Store statuses (408, 409,
// 410, 412) are never retried unless RetryIf says otherwise.
type RetryPolicy = httpx.RetryPolicy

// DefaultRetryPolicy is the transport's default retry configuration.
var DefaultRetryPolicy = httpx.DefaultRetryPolicy

// Option configures a Session.
type Option func(*options)

type options struct {
	httpOpts []httpx.Option
	prefix   string
	logger   *zap.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		prefix: kvapi.DefaultPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithHTTPClient(h))
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(h http.Header) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithHeaders(h))
	}
}

// WithRetryPolicy overrides the transport retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithRetryPolicy(p))
	}
}

// WithTimeout sets the per-attempt timeout of ordinary requests. Long-polls
// size their own deadline from the wait window.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithTimeout(d))
	}
}

// WithRateLimit throttles outbound requests.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithRateLimit(rps, burst))
	}
}

// WithLogger sets the logger used by the session and its transport.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAPIPrefix overrides the route prefix ("/v2" by default).
func WithAPIPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = strings.TrimRight(prefix, "/")
	}
}
