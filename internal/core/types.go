package core

import "strings"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles upstream providers accept.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single message in the chat
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the incoming chat request for every chat-shaped service.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"maxTokens,omitempty"`

	// Message is a single user turn, accepted as shorthand for Messages.
	Message string `json:"message,omitempty"`
	// ThreadID continues an upstream conversation instead of starting a new one.
	ThreadID    string `json:"threadId,omitempty"`
	AssistantID string `json:"assistantId,omitempty"`

	// JSONResponse asks the upstream for a JSON object answer. Set by the router, never by clients.
	JSONResponse bool `json:"-"`
}

// AllMessages returns Messages followed by the Message shorthand, if any.
func (r *ChatRequest) AllMessages() []Message {
	if strings.TrimSpace(r.Message) == "" {
		return r.Messages
	}
	out := make([]Message, 0, len(r.Messages)+1)
	out = append(out, r.Messages...)
	return append(out, Message{Role: RoleUser, Content: r.Message})
}

// Validate checks roles and, for a new conversation, that there is something to send.
func (r *ChatRequest) Validate() error {
	msgs := r.AllMessages()
	if len(msgs) == 0 && r.ThreadID == "" {
		return NewInvalidRequestError("messages are required", nil)
	}
	for _, m := range msgs {
		if !m.Role.Valid() {
			return NewInvalidRequestError("invalid message role: "+string(m.Role), nil)
		}
	}
	return nil
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatDelta is one incremental unit of generated text. Usage is set only on
// the delta that carries terminal statistics.
type ChatDelta struct {
	Content string
	Usage   *Usage
}

// ChatResult is the batch answer of any chat-shaped service.
type ChatResult struct {
	ID       string `json:"id,omitempty"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider"`
	Content  string `json:"content"`
	Usage    *Usage `json:"usage,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`
}
