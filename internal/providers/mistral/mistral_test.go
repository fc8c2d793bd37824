package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/internal/core"
	"lingogate/internal/providers"
)

func TestStreamChatRaw_PassesBytesThrough(t *testing.T) {
	upstream := "data: {\"choices\":[{\"delta\":{\"content\":\"Sal\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"ut\"}}]}\n\ndata: [DONE]\n\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer mk", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		assert.Equal(t, defaultModel, body.Model)
		assert.Len(t, body.Messages, 1)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, upstream)
	}))
	defer server.Close()

	p := New(Config{APIKey: "mk", BaseURL: server.URL}, providers.ProviderOptions{})
	body, err := p.StreamChatRaw(context.Background(), &core.ChatRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, upstream, string(got))
}

func TestStreamChatRaw_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid model: nope"}`))
	}))
	defer server.Close()

	p := New(Config{APIKey: "mk", BaseURL: server.URL}, providers.ProviderOptions{})
	_, err := p.StreamChatRaw(context.Background(), &core.ChatRequest{Model: "nope", Message: "hi"})

	var gwErr *core.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.HTTPStatusCode())
	assert.Equal(t, "Invalid model: nope", gwErr.Message)
}

func TestStreamChatRaw_NotConfigured(t *testing.T) {
	p := New(Config{}, providers.ProviderOptions{})
	_, err := p.StreamChatRaw(context.Background(), &core.ChatRequest{Message: "hi"})

	var gwErr *core.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, core.ErrorTypeConfiguration, gwErr.Type)
	assert.Equal(t, "mistral is not configured", gwErr.Message)
}
