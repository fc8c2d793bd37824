package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/internal/pkg/llmclient"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFrame("openai-chat", FrameDelta)
		m.ObserveService("openai-chat", "sse")
		hooks := m.Hooks()
		assert.Nil(t, hooks.OnRequestEnd)
	})
	assert.NotNil(t, m.Handler())
}

func TestHooksRecordUpstreamCalls(t *testing.T) {
	m := NewMetrics()
	hooks := m.Hooks()

	hooks.OnRequestEnd(context.Background(), llmclient.RequestInfo{
		Provider: "openai", Endpoint: "/chat/completions", StatusCode: 200, Duration: 150 * time.Millisecond,
	})
	hooks.OnRequestEnd(context.Background(), llmclient.RequestInfo{
		Provider: "openai", Endpoint: "/chat/completions", Err: errors.New("dial"), Duration: time.Millisecond,
	})

	assert.InDelta(t, 1, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("openai", "/chat/completions", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("openai", "/chat/completions", "error")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.upstreamDuration))
}

func TestObserveFramesAndServices(t *testing.T) {
	m := NewMetrics()
	m.ObserveFrame("claude-chat", FrameDelta)
	m.ObserveFrame("claude-chat", FrameDelta)
	m.ObserveFrame("claude-chat", FrameDone)
	m.ObserveService("claude-chat", "sse")

	assert.InDelta(t, 2, testutil.ToFloat64(m.streamFrames.WithLabelValues("claude-chat", FrameDelta)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.streamFrames.WithLabelValues("claude-chat", FrameDone)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.serviceRequests.WithLabelValues("claude-chat", "sse")), 0)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveService("analysis", "batch")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `lingogate_service_requests_total{mode="batch",service="analysis"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
