// Package server exposes a kv.Backend over the store's HTTP wire contract.
// The sandbox serves the in-memory mock with it and the SDK's tests run the
// HTTP backend against it end to end.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"go.uber.org/zap"

	"github.com/acapella/kv_sdk_go/internal/httpx"
	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

// maxBodyBytes caps value payloads.
const maxBodyBytes = 8 << 20

// Server routes wire requests to a backend.
type Server struct {
	backend  kv.Backend
	logger   *zap.Logger
	rd       *render.Render
	registry *prometheus.Registry
	metrics  *metrics
	prefix   string
	extra    []func(http.Handler) http.Handler
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPrefix overrides the route prefix ("/v2" by default).
func WithPrefix(prefix string) Option {
	return func(s *Server) {
		s.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithRegistry registers the server's collectors on reg instead of a
// private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithMiddleware appends middleware that runs in front of the API routes
// (after logging and metrics).
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.extra = append(s.extra, mw...)
	}
}

// New builds a Server over backend.
func New(backend kv.Backend, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		logger:  zap.NewNop(),
		rd:      render.New(render.Options{UnEscapeHTML: true}),
		prefix:  kvapi.DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry returns the registry holding the server's collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(escapedRoutePath)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.rd.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	api := func(r chi.Router) {
		r.Use(s.extra...)

		r.Route("/kv/keys/{key}", func(r chi.Router) {
			r.Get("/", s.getEntry)
			r.Put("/", s.putEntry)
			r.Get("/version", s.getVersion)
		})

		r.Post("/tx", s.beginTransaction)
		r.Post("/tx/{index}/{action}", s.transactionAction)

		r.Route("/dt/trees/{tree}", func(r chi.Router) {
			r.Get("/range", s.rangeCursors)
			r.Get("/cursors/{key}", s.getCursor)
			r.Put("/cursors/{key}", s.putCursor)
			r.Get("/cursors/{key}/{direction}", s.navigateCursor)
		})
	}
	if s.prefix == "" {
		r.Group(api)
	} else {
		r.Route(s.prefix, api)
	}
	return r
}

// escapedRoutePath makes chi match against the escaped path so encoded key
// segments reach the handlers intact whatever characters they hold.
func escapedRoutePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath == "" {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs every request and records its metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)
		s.metrics.observe(r.Method, route, status, elapsed)
		s.logger.Debug("request",
			zap.String("request-id", r.Header.Get(httpx.RequestIDHeader)),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.EscapedPath()),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed))
	})
}
