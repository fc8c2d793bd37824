// Package observability exposes Prometheus metrics for upstream calls and relayed streams.
package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lingogate/internal/pkg/llmclient"
)

// Frame kinds counted by ObserveFrame.
const (
	FrameDelta   = "delta"
	FramePrelude = "prelude"
	FrameError   = "error"
	FrameDone    = "done"
	FrameBytes   = "bytes"
)

// Metrics holds the gateway's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	streamFrames     *prometheus.CounterVec
	serviceRequests  *prometheus.CounterVec
}

// NewMetrics registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		upstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingogate_upstream_requests_total",
			Help: "Upstream provider calls by provider, endpoint and HTTP status.",
		}, []string{"provider", "endpoint", "status"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingogate_upstream_request_duration_seconds",
			Help:    "Upstream call latency; time to response headers for streams.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider", "endpoint"}),
		streamFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingogate_stream_frames_total",
			Help: "Frames written to clients by relayed streams.",
		}, []string{"service", "kind"}),
		serviceRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingogate_service_requests_total",
			Help: "Requests dispatched by the service router.",
		}, []string{"service", "mode"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns llmclient hooks that record every upstream call.
func (m *Metrics) Hooks() llmclient.Hooks {
	if m == nil {
		return llmclient.Hooks{}
	}
	return llmclient.Hooks{
		OnRequestEnd: func(_ context.Context, info llmclient.RequestInfo) {
			status := "error"
			if info.StatusCode != 0 {
				status = strconv.Itoa(info.StatusCode)
			}
			m.upstreamRequests.WithLabelValues(info.Provider, info.Endpoint, status).Inc()
			m.upstreamDuration.WithLabelValues(info.Provider, info.Endpoint).Observe(info.Duration.Seconds())
		},
	}
}

// ObserveFrame counts one frame of the given kind relayed for service.
func (m *Metrics) ObserveFrame(service, kind string) {
	if m == nil {
		return
	}
	m.streamFrames.WithLabelValues(service, kind).Inc()
}

// ObserveService counts one routed request.
func (m *Metrics) ObserveService(service, mode string) {
	if m == nil {
		return
	}
	m.serviceRequests.WithLabelValues(service, mode).Inc()
}
