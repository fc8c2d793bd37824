// Package anthropic provides Anthropic Messages API integration.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
	"lingogate/internal/providers"
)

const (
	providerName = "anthropic"

	defaultBaseURL      = "https://api.anthropic.com/v1"
	defaultModel        = "claude-3-5-sonnet-latest"
	defaultMaxTokens    = 1024
	anthropicAPIVersion = "2023-06-01"
)

// Config holds the Anthropic settings the adapter needs.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements core.ChatProvider for Anthropic
type Provider struct {
	client *llmclient.Client
	apiKey string
	model  string
}

// New creates a new Anthropic provider.
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

// setHeaders sets the required headers for Anthropic API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

// anthropicRequest represents the Anthropic API request format
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u anthropicUsage) toCore() *core.Usage {
	return &core.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

// convertToAnthropicRequest lifts system turns into the top-level system
// field, which is the only place the Messages API accepts them.
func (p *Provider) convertToAnthropicRequest(req *core.ChatRequest, stream bool) *anthropicRequest {
	out := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if out.Model == "" {
		out.Model = p.model
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		out.MaxTokens = *req.MaxTokens
	}

	msgs := req.AllMessages()
	out.Messages = make([]anthropicMessage, 0, len(msgs))
	var system []string
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// ChatCompletion sends a messages request to Anthropic
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResult, error) {
	if err := providers.RequireCredential(providerName, p.apiKey); err != nil {
		return nil, err
	}

	var resp anthropicResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     p.convertToAnthropicRequest(req, false),
	}, &resp)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return &core.ChatResult{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: providerName,
		Content:  text.String(),
		Usage:    resp.Usage.toCore(),
	}, nil
}

// StreamChat opens a streamed messages request and decodes it into deltas.
func (p *Provider) StreamChat(ctx context.Context, req *core.ChatRequest) (core.ChatStream, error) {
	if err := providers.RequireCredential(providerName, p.apiKey); err != nil {
		return nil, err
	}

	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     p.convertToAnthropicRequest(req, true),
		Headers:  map[string]string{"Accept": "text/event-stream"},
	})
	if err != nil {
		return nil, err
	}
	return newStreamConverter(body), nil
}

// anthropicStreamEvent represents a streaming event from Anthropic
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// streamConverter turns Anthropic message events into deltas. Input tokens
// arrive on message_start and output tokens on message_delta; the combined
// usage is emitted once the message stops.
type streamConverter struct {
	body      io.ReadCloser
	events    *llmclient.EventReader
	closeOnce sync.Once
	usage     anthropicUsage
	done      bool
}

func newStreamConverter(body io.ReadCloser) *streamConverter {
	return &streamConverter{body: body, events: llmclient.NewEventReader(body)}
}

func (sc *streamConverter) Recv() (core.ChatDelta, error) {
	if sc.done {
		return core.ChatDelta{}, io.EOF
	}
	for {
		ev, err := sc.events.Next()
		if err != nil {
			sc.done = true
			if errors.Is(err, io.EOF) {
				return core.ChatDelta{}, io.EOF
			}
			return core.ChatDelta{}, core.NewProviderError(providerName, http.StatusBadGateway, "stream interrupted", err)
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal(ev.Data, &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				sc.usage.InputTokens = event.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				return core.ChatDelta{Content: event.Delta.Text}, nil
			}
		case "message_delta":
			if event.Usage != nil {
				sc.usage.OutputTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			sc.done = true
			return core.ChatDelta{Usage: sc.usage.toCore()}, nil
		case "error":
			sc.done = true
			msg := "stream error"
			if event.Error != nil && event.Error.Message != "" {
				msg = event.Error.Message
			}
			return core.ChatDelta{}, core.NewProviderError(providerName, http.StatusBadGateway, msg, nil)
		}
	}
}

func (sc *streamConverter) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		err = sc.body.Close()
	})
	return err
}
