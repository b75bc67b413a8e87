// Package metrics exposes Prometheus counters for parsing and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "armlog"

// Collector owns a private registry so several collectors can coexist in
// one process.
type Collector struct {
	registry *prometheus.Registry

	parses        *prometheus.CounterVec
	parseDuration prometheus.Histogram
	episodes      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Experiment logs parsed, by experiment kind and outcome.",
		}, []string{"kind", "status"}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing and materializing one log.",
			Buckets:   prometheus.DefBuckets,
		}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_parsed_total",
			Help:      "Episodes parsed from imported logs.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	c.registry.MustRegister(
		c.parses,
		c.parseDuration,
		c.episodes,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
	)
	return c
}

// ObserveParse records one import attempt. kind is "none" when the log did
// not parse far enough to tell.
func (c *Collector) ObserveParse(kind string, episodes int, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.parses.WithLabelValues(kind, status).Inc()
	c.parseDuration.Observe(elapsed.Seconds())
	if err == nil && episodes > 0 {
		c.episodes.WithLabelValues(kind).Add(float64(episodes))
	}
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
