package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/internal/core"
	"lingogate/internal/usage"
)

type fakeUsage struct {
	mu      sync.Mutex
	entries []*usage.Entry

	totals []usage.ServiceTotals
	err    error
	since  time.Time
}

func (f *fakeUsage) Record(e *usage.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeUsage) Close() error { return nil }

func (f *fakeUsage) Summarize(_ context.Context, since time.Time) ([]usage.ServiceTotals, error) {
	f.since = since
	return f.totals, f.err
}

func TestUsageRecordedForBatchChat(t *testing.T) {
	rec := &fakeUsage{}
	chat := &fakeChat{result: &core.ChatResult{
		ID:       "msg_1",
		Provider: "anthropic",
		Model:    "claude-3-5-haiku-latest",
		Content:  "Salut",
		Usage:    &core.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
	}}

	resp := post(t, Backends{ClaudeChat: chat, Usage: rec}, "/api/claude-chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "claude-chat", e.Service)
	assert.Equal(t, "anthropic", e.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", e.Model)
	assert.Equal(t, "msg_1", e.ResponseID)
	assert.Equal(t, 6, e.TotalTokens)
	assert.False(t, e.Streamed)
	assert.Equal(t, resp.Header().Get("X-Request-ID"), e.RequestID)
}

func TestUsageRecordedForStreamedChat(t *testing.T) {
	rec := &fakeUsage{}
	stream := &fakeStream{deltas: []core.ChatDelta{
		{Content: "Bon"},
		{Usage: &core.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}},
	}}

	resp := post(t, Backends{OpenAIChat: &fakeChat{stream: stream}, Usage: rec}, "/api/openai-chat", `{"message":"hi","model":"gpt-4o"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, stream.closed)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "openai-chat", rec.entries[0].Service)
	assert.Equal(t, "openai", rec.entries[0].Provider)
	assert.Equal(t, "gpt-4o", rec.entries[0].Model)
	assert.True(t, rec.entries[0].Streamed)
}

func TestUsageNotRecordedWithoutUpstreamUsage(t *testing.T) {
	rec := &fakeUsage{}
	chat := &fakeChat{result: &core.ChatResult{Provider: "openai", Content: `{"score":3}`}}

	resp := post(t, Backends{OpenAIChat: chat, Usage: rec}, "/api/analysis", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, rec.entries)
}

func TestUsageSummary(t *testing.T) {
	report := &fakeUsage{totals: []usage.ServiceTotals{
		{Service: "claude-chat", Provider: "anthropic", Requests: 2, InputTokens: 11, OutputTokens: 6, TotalTokens: 17},
	}}
	srv := New(Backends{UsageReport: report}, &Config{Logger: discardLogger()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/usage?days=7", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Contains(t, rec.Body.String(), `"days":7`)
	assert.Contains(t, rec.Body.String(), `"services":[{"service":"claude-chat","provider":"anthropic","requests":2,"inputTokens":11,"outputTokens":6,"totalTokens":17}]`)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), report.since, time.Minute)
}

func TestUsageSummary_Errors(t *testing.T) {
	tests := []struct {
		name     string
		backends Backends
		target   string
		status   int
		body     string
	}{
		{"not configured", Backends{}, "/admin/usage", http.StatusInternalServerError, `{"error":"usage tracking is not configured"}`},
		{"days not a number", Backends{UsageReport: &fakeUsage{}}, "/admin/usage?days=week", http.StatusBadRequest, `{"error":"days must be an integer between 1 and 365"}`},
		{"days out of range", Backends{UsageReport: &fakeUsage{}}, "/admin/usage?days=0", http.StatusBadRequest, `{"error":"days must be an integer between 1 and 365"}`},
		{"store failure", Backends{UsageReport: &fakeUsage{err: errors.New("disk I/O error")}}, "/admin/usage", http.StatusInternalServerError, `{"error":"an unexpected error occurred"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(tt.backends, &Config{Logger: discardLogger()})
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestUsageSummary_RequiresMasterKey(t *testing.T) {
	srv := New(Backends{UsageReport: &fakeUsage{}}, &Config{MasterKey: "k", Logger: discardLogger()})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/usage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
