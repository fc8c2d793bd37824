package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
)

// assistantsBetaHeader opts into the v2 Assistants API.
var assistantsBetaHeader = map[string]string{"OpenAI-Beta": "assistants=v2"}

const runFailedMessage = "Assistant run failed"

// Run statuses. Only the first three are non-terminal.
const (
	runQueued     = "queued"
	runInProgress = "in_progress"
	runCancelling = "cancelling"
	runCompleted  = "completed"
)

// isTerminalRun reports whether polling can stop. requires_action is treated
// as terminal: the gateway never submits tool outputs, so the run would stall.
func isTerminalRun(status string) bool {
	switch status {
	case runQueued, runInProgress, runCancelling:
		return false
	}
	return true
}

type threadMessage struct {
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

type createThreadRequest struct {
	Messages []threadMessage `json:"messages"`
}

type thread struct {
	ID string `json:"id"`
}

type createRunRequest struct {
	AssistantID            string `json:"assistant_id"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
	Model                  string `json:"model,omitempty"`
	Stream                 bool   `json:"stream,omitempty"`
}

type run struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Status    string     `json:"status"`
	Usage     *chatUsage `json:"usage"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageContent struct {
	Type string `json:"type"`
	Text *struct {
		Value string `json:"value"`
	} `json:"text"`
}

type messageList struct {
	Data []struct {
		Role    string           `json:"role"`
		Content []messageContent `json:"content"`
	} `json:"data"`
}

// splitInstructions separates system messages, which the Assistants API only
// accepts as run instructions, from the conversational turns.
func splitInstructions(msgs []core.Message) (string, []threadMessage) {
	var instructions []string
	turns := make([]threadMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			instructions = append(instructions, m.Content)
			continue
		}
		turns = append(turns, threadMessage{Role: m.Role, Content: m.Content})
	}
	return strings.Join(instructions, "\n\n"), turns
}

func (p *Provider) resolveAssistant(req *core.ChatRequest) (string, error) {
	if req.AssistantID != "" {
		return req.AssistantID, nil
	}
	if p.assistantID == "" {
		return "", core.NewConfigurationError("openai assistant")
	}
	return p.assistantID, nil
}

// prepareThread creates a thread from the turns, or appends them to an existing one.
func (p *Provider) prepareThread(ctx context.Context, threadID string, turns []threadMessage) (string, error) {
	if threadID == "" {
		if len(turns) == 0 {
			return "", core.NewInvalidRequestError("messages are required to start a conversation", nil)
		}
		var t thread
		err := p.client.Do(ctx, llmclient.Request{
			Method:   http.MethodPost,
			Endpoint: "/threads",
			Body:     createThreadRequest{Messages: turns},
			Headers:  assistantsBetaHeader,
		}, &t)
		if err != nil {
			return "", err
		}
		return t.ID, nil
	}

	for _, m := range turns {
		err := p.client.Do(ctx, llmclient.Request{
			Method:   http.MethodPost,
			Endpoint: "/threads/" + url.PathEscape(threadID) + "/messages",
			Body:     m,
			Headers:  assistantsBetaHeader,
		}, nil)
		if err != nil {
			return "", err
		}
	}
	return threadID, nil
}

func (p *Provider) startConversation(ctx context.Context, req *core.ChatRequest) (threadID, assistantID, instructions string, err error) {
	if err = p.requireKey(); err != nil {
		return "", "", "", err
	}
	if assistantID, err = p.resolveAssistant(req); err != nil {
		return "", "", "", err
	}
	instructions, turns := splitInstructions(req.AllMessages())
	threadID, err = p.prepareThread(ctx, req.ThreadID, turns)
	return threadID, assistantID, instructions, err
}

// RunAssistant appends the request to a thread, starts a run and polls it
// once per interval until it reaches a terminal status. Only a completed run
// yields a result; any other terminal status fails with the status as detail.
func (p *Provider) RunAssistant(ctx context.Context, req *core.ChatRequest) (*core.ChatResult, error) {
	threadID, assistantID, instructions, err := p.startConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	var r run
	err = p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/threads/" + url.PathEscape(threadID) + "/runs",
		Body:     createRunRequest{AssistantID: assistantID, AdditionalInstructions: instructions, Model: req.Model},
		Headers:  assistantsBetaHeader,
	}, &r)
	if err != nil {
		return nil, err
	}

	final, err := p.waitForRun(ctx, threadID, &r)
	if err != nil {
		return nil, err
	}
	if final.Status != runCompleted {
		return nil, core.NewUpstreamJobError(providerName, runFailedMessage, final.Status)
	}

	content, err := p.latestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, err
	}

	return &core.ChatResult{
		Provider: providerName,
		Content:  content,
		Usage:    final.Usage.toCore(),
		ThreadID: threadID,
		RunID:    final.ID,
	}, nil
}

// waitForRun polls the run status at the provider's poll interval.
func (p *Provider) waitForRun(ctx context.Context, threadID string, r *run) (*run, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	endpoint := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(r.ID)
	for !isTerminalRun(r.Status) {
		select {
		case <-ctx.Done():
			return nil, core.NewProviderError(providerName, http.StatusGatewayTimeout, "assistant run polling stopped", ctx.Err())
		case <-ticker.C:
		}

		var next run
		if err := p.client.Do(ctx, llmclient.Request{
			Method:   http.MethodGet,
			Endpoint: endpoint,
			Headers:  assistantsBetaHeader,
		}, &next); err != nil {
			return nil, err
		}
		r = &next
	}
	return r, nil
}

// latestAssistantMessage returns the text of the newest message in the thread.
func (p *Provider) latestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var list messageList
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/threads/" + url.PathEscape(threadID) + "/messages?limit=1&order=desc",
		Headers:  assistantsBetaHeader,
	}, &list)
	if err != nil {
		return "", err
	}
	if len(list.Data) == 0 || list.Data[0].Role != string(core.RoleAssistant) {
		return "", core.NewProviderError(providerName, http.StatusBadGateway, "assistant returned no message", nil)
	}
	return joinText(list.Data[0].Content), nil
}

func joinText(parts []messageContent) string {
	var b strings.Builder
	for _, c := range parts {
		if c.Type == "text" && c.Text != nil {
			b.WriteString(c.Text.Value)
		}
	}
	return b.String()
}

// StreamAssistant appends the request to a thread and streams the run's text.
// The thread id is returned so the caller can hand it to the client first.
func (p *Provider) StreamAssistant(ctx context.Context, req *core.ChatRequest) (string, core.ChatStream, error) {
	threadID, assistantID, instructions, err := p.startConversation(ctx, req)
	if err != nil {
		return "", nil, err
	}

	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/threads/" + url.PathEscape(threadID) + "/runs",
		Body: createRunRequest{
			AssistantID:            assistantID,
			AdditionalInstructions: instructions,
			Model:                  req.Model,
			Stream:                 true,
		},
		Headers: map[string]string{"OpenAI-Beta": "assistants=v2", "Accept": "text/event-stream"},
	})
	if err != nil {
		return "", nil, err
	}
	return threadID, newAssistantStream(body), nil
}

type messageDeltaEvent struct {
	Delta struct {
		Content []messageContent `json:"content"`
	} `json:"delta"`
}

// assistantStream decodes Assistants run events into deltas.
type assistantStream struct {
	body      io.ReadCloser
	events    *llmclient.EventReader
	closeOnce sync.Once
	done      bool
}

func newAssistantStream(body io.ReadCloser) *assistantStream {
	return &assistantStream{body: body, events: llmclient.NewEventReader(body)}
}

func (s *assistantStream) Recv() (core.ChatDelta, error) {
	if s.done {
		return core.ChatDelta{}, io.EOF
	}
	for {
		ev, err := s.events.Next()
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return core.ChatDelta{}, io.EOF
			}
			return core.ChatDelta{}, core.NewProviderError(providerName, http.StatusBadGateway, "stream interrupted", err)
		}

		switch ev.Name {
		case "thread.message.delta":
			var md messageDeltaEvent
			if err := json.Unmarshal(ev.Data, &md); err != nil {
				continue
			}
			if text := joinText(md.Delta.Content); text != "" {
				return core.ChatDelta{Content: text}, nil
			}
		case "thread.run.completed":
			var r run
			if err := json.Unmarshal(ev.Data, &r); err == nil && r.Usage != nil {
				return core.ChatDelta{Usage: r.Usage.toCore()}, nil
			}
		case "thread.run.failed", "thread.run.cancelled", "thread.run.expired",
			"thread.run.incomplete", "thread.run.requires_action":
			s.done = true
			status := strings.TrimPrefix(ev.Name, "thread.run.")
			var r run
			if err := json.Unmarshal(ev.Data, &r); err == nil && r.Status != "" {
				status = r.Status
			}
			return core.ChatDelta{}, core.NewUpstreamJobError(providerName, runFailedMessage, status)
		case "error":
			s.done = true
			msg := "assistant stream error"
			var e struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(ev.Data, &e); err == nil && e.Message != "" {
				msg = e.Message
			}
			return core.ChatDelta{}, core.NewProviderError(providerName, http.StatusBadGateway, msg, nil)
		case "done":
			s.done = true
			return core.ChatDelta{}, io.EOF
		}
	}
}

func (s *assistantStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
