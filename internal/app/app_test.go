package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", BodySizeLimit: "1M"},
		HTTP:   config.HTTPConfig{Timeout: 5, ResponseHeaderTimeout: 5},
		OpenAI: config.OpenAIConfig{PollIntervalMs: 10},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, quietLogger())
	require.Error(t, err)
}

func TestNew_SQLiteSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = ":memory:"

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := do(t, a.Handler(), http.MethodPost, "/api/insert-user", `{"userId":"u1","score":4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inserted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inserted))
	require.NotEmpty(t, inserted.ID)

	rec = do(t, a.Handler(), http.MethodPost, "/api/update-user", `{"id":"`+inserted.ID+`","transcript":"Bonjour"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestNew_StorageDisabled(t *testing.T) {
	a, err := New(context.Background(), testConfig(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := do(t, a.Handler(), http.MethodPost, "/api/insert-user", `{"userId":"u1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"sessions store is not configured"}`, rec.Body.String())
}

func TestNew_UnknownStorageType(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "mongodb"

	_, err := New(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

func TestMissingCredentialsFailAtFirstUse(t *testing.T) {
	a, err := New(context.Background(), testConfig(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	tests := []struct {
		service string
		body    string
		want    string
	}{
		{"openai-chat", `{"message":"hi"}`, "openai is not configured"},
		{"mistral-chat", `{"message":"hi"}`, "mistral is not configured"},
		{"claude-chat", `{"message":"hi"}`, "anthropic is not configured"},
		{"openai-tts", `{"text":"hi"}`, "openai is not configured"},
		{"elevenlabs", `{"text":"hi"}`, "elevenlabs is not configured"},
		{"azure-tts", `{"text":"hi"}`, "azure is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			rec := do(t, a.Handler(), http.MethodPost, "/api/"+tt.service, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.want+`"}`, rec.Body.String())
		})
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(), quietLogger())
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNew_UsageTracking(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = ":memory:"
	cfg.Usage = config.UsageConfig{Enabled: true, BufferSize: 10, FlushInterval: 1, RetentionDays: 7}

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := do(t, a.Handler(), http.MethodGet, "/admin/usage", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"services":[]`)
}

func TestNew_UsageWithoutStorageIsIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Usage.Enabled = true

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := do(t, a.Handler(), http.MethodGet, "/admin/usage", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"usage tracking is not configured"}`, rec.Body.String())
}
