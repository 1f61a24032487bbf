// Package metrics holds the Prometheus collectors of the page server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RendersTotal    *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	PageCache       *prometheus.CounterVec
	UpstreamTotal   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "The total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "The HTTP request latencies in seconds",
			},
			[]string{"method", "endpoint"},
		),
		RendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_renders_total",
				Help: "Server-side renders by result",
			},
			[]string{"result"},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "page_render_duration_seconds",
				Help:    "Time to warm, render and compose a page",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		),
		PageCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_cache_requests_total",
				Help: "Rendered page cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Requests sent to the upstream APIs",
			},
			[]string{"code", "method"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "upstream_request_duration_seconds",
				Help: "Upstream API latencies in seconds",
			},
			[]string{"code", "method"},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal, m.RequestDuration,
		m.RendersTotal, m.RenderDuration,
		m.PageCache,
		m.UpstreamTotal, m.UpstreamLatency,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CollectHTTPMetrics records count and latency per route pattern.
func (m *Metrics) CollectHTTPMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// The error handler writes the status, so run it before reading.
			if err := next(c); err != nil {
				c.Error(err)
			}

			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)

			m.RequestsTotal.WithLabelValues(method, path, status).Inc()
			m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// InstrumentTransport counts and times upstream calls made through next.
func (m *Metrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(m.UpstreamTotal,
		promhttp.InstrumentRoundTripperDuration(m.UpstreamLatency, next))
}

func (m *Metrics) ObserveRender(result string, d time.Duration) {
	m.RendersTotal.WithLabelValues(result).Inc()
	m.RenderDuration.WithLabelValues(result).Observe(d.Seconds())
}
