// Package mistral provides Mistral API integration. Streams are relayed to
// the client byte for byte.
package mistral

import (
	"context"
	"io"
	"net/http"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
	"lingogate/internal/providers"
)

const (
	providerName = "mistral"

	defaultBaseURL = "https://api.mistral.ai/v1"
	defaultModel   = "mistral-small-latest"
)

// Config holds the Mistral settings the adapter needs.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements core.RawChatProvider for Mistral
type Provider struct {
	client *llmclient.Client
	apiKey string
	model  string
}

// New creates a new Mistral provider.
func New(cfg Config, opts providers.ProviderOptions) *Provider {
	p := &Provider{apiKey: cfg.APIKey, model: cfg.Model}
	if p.model == "" {
		p.model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, providers.ClientConfig(providerName, baseURL, opts), p.setHeaders)
	return p
}

// SetBaseURL allows configuring a custom base URL for the provider
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
}

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []core.Message `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
}

// StreamChatRaw opens a streamed chat completion and returns the upstream
// body untouched. The caller must close it.
func (p *Provider) StreamChatRaw(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	if err := providers.RequireCredential(providerName, p.apiKey); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	return p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body: chatRequest{
			Model:       model,
			Messages:    req.AllMessages(),
			Stream:      true,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	})
}
