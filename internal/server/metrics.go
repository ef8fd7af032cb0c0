package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kv",
				Subsystem: "sandbox",
				Name:      "requests_total",
				Help:      "Counter of handled requests.",
			}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kv",
				Subsystem: "sandbox",
				Name:      "request_duration_seconds",
				Help:      "Bucketed histogram of request handling time (s).",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *metrics) observe(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
