// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Export item outcomes.
const (
	ExportIncluded = "included"
	ExportSkipped  = "skipped"
)

// Metrics is safe to use through a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	exportItems      *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photopick_http_request_duration_seconds",
		Help:    "Duration of inbound HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	tokenRefreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photopick_token_refreshes_total",
		Help: "OAuth access token refresh attempts by provider and result",
	}, []string{"provider", "result"})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photopick_upstream_request_duration_seconds",
		Help:    "Duration of requests to photo providers in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30},
	}, []string{"provider", "code", "method"})

	exportItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photopick_export_items_total",
		Help: "Photos processed by archive export, by outcome",
	}, []string{"result"})

	registry.MustRegister(
		requestDuration,
		tokenRefreshes,
		upstreamDuration,
		exportItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		tokenRefreshes:   tokenRefreshes,
		upstreamDuration: upstreamDuration,
		exportItems:      exportItems,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Middleware records request durations labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveTokenRefresh(provider string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tokenRefreshes.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ObserveExportItem(result string) {
	if m == nil {
		return
	}
	m.exportItems.WithLabelValues(result).Inc()
}

// InstrumentClient returns a copy of client whose transport records upstream latency for provider.
func (m *Metrics) InstrumentClient(provider string, client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	if m == nil {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	observer := m.upstreamDuration.MustCurryWith(prometheus.Labels{"provider": provider})
	instrumented := *client
	instrumented.Transport = promhttp.InstrumentRoundTripperDuration(observer, base)
	return &instrumented
}
