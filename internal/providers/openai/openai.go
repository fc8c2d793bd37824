// Package openai provides OpenAI API integration: chat completions, the
// Assistants API, text-to-speech and transcription.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
	"lingogate/internal/providers"
)

const (
	providerName = "openai"

	defaultBaseURL      = "https://api.openai.com/v1"
	defaultChatModel    = "gpt-4o-mini"
	defaultPollInterval = time.Second
)

// Config holds the OpenAI settings the adapter needs.
type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	AssistantID string
	// PollInterval is the delay between assistant run status checks.
	PollInterval time.Duration
}

// Provider implements the chat, assistant, speech and transcription adapters for OpenAI
type Provider struct {
	client       *llmclient.Client
	apiKey       string
	chatModel    string
	assistantID  string
	pollInterval time.Duration
}

// New creates a new OpenAI provider.
func New(cfg Config, opts providers.ProviderOptions) *Provider {
	p := &Provider{
		apiKey:       cfg.APIKey,
		chatModel:    cfg.ChatModel,
		assistantID:  cfg.AssistantID,
		pollInterval: cfg.PollInterval,
	}
	if p.chatModel == "" {
		p.chatModel = defaultChatModel
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
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

// setHeaders sets the required headers for OpenAI API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	// OpenAI rejects non-ASCII or overlong X-Client-Request-Id values with a 400.
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

// isValidClientRequestID checks if the request ID is valid for OpenAI's X-Client-Request-Id header.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

func (p *Provider) requireKey() error {
	return providers.RequireCredential(providerName, p.apiKey)
}

// isOSeriesModel reports whether the model is an o-series reasoning model
// (o1, o3, o4) that takes max_completion_tokens and rejects temperature.
func isOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatCompletionRequest is the JSON body sent to /chat/completions.
type chatCompletionRequest struct {
	Model               string          `json:"model"`
	Messages            []core.Message  `json:"messages"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *streamOptions  `json:"stream_options,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *chatUsage) toCore() *core.Usage {
	if u == nil {
		return nil
	}
	return &core.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// buildChatRequest maps a gateway request onto the wire format, adapting
// parameters for reasoning models.
func (p *Provider) buildChatRequest(req *core.ChatRequest, stream bool) *chatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.chatModel
	}
	body := &chatCompletionRequest{
		Model:    model,
		Messages: req.AllMessages(),
		Stream:   stream,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if isOSeriesModel(model) {
		body.MaxCompletionTokens = req.MaxTokens
	} else {
		body.Temperature = req.Temperature
		body.MaxTokens = req.MaxTokens
	}
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

// ChatCompletion sends a chat completion request to OpenAI
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResult, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     p.buildChatRequest(req, false),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError(providerName, http.StatusBadGateway, "upstream returned no choices", nil)
	}

	return &core.ChatResult{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: providerName,
		Content:  resp.Choices[0].Message.Content,
		Usage:    resp.Usage.toCore(),
	}, nil
}

// StreamChat opens a streamed chat completion and decodes it into deltas.
func (p *Provider) StreamChat(ctx context.Context, req *core.ChatRequest) (core.ChatStream, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}

	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     p.buildChatRequest(req, true),
		Headers:  map[string]string{"Accept": "text/event-stream"},
	})
	if err != nil {
		return nil, err
	}
	return newChatStream(body), nil
}
