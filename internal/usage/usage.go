// Package usage records the token consumption of chat services.
// Records are buffered in memory and written in batches to the same
// relational database as the sessions sink.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lingogate/internal/core"
)

// Entry is one chat call's token usage.
type Entry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	Service  string `json:"service"`
	Provider string `json:"provider"`
	// Model is the model the client asked for; empty means the provider default.
	Model string `json:"model"`
	// ResponseID is the upstream's id for the completion, when it sent one.
	ResponseID string `json:"response_id,omitempty"`
	Streamed   bool   `json:"streamed"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewEntry builds an entry for u, or returns nil when the upstream reported no usage.
func NewEntry(ctx context.Context, service, provider, model string, u *core.Usage) *Entry {
	if u == nil {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return &Entry{
		ID:           uuid.NewString(),
		RequestID:    core.GetRequestID(ctx),
		Timestamp:    time.Now().UTC(),
		Service:      service,
		Provider:     provider,
		Model:        model,
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  total,
	}
}

// ServiceTotals aggregates the entries of one service and provider.
type ServiceTotals struct {
	Service      string `json:"service"`
	Provider     string `json:"provider"`
	Requests     int    `json:"requests"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	TotalTokens  int64  `json:"totalTokens"`
}

// Reader aggregates stored entries.
type Reader interface {
	// Summarize returns per-service totals for entries at or after since,
	// ordered by service then provider.
	Summarize(ctx context.Context, since time.Time) ([]ServiceTotals, error)
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	Reader
	// WriteBatch inserts entries; an entry whose id already exists is skipped.
	WriteBatch(ctx context.Context, entries []*Entry) error
	// Close stops background work. The database connection is not closed.
	Close() error
}

// Config holds usage recording configuration
type Config struct {
	// BufferSize is the number of entries queued before new ones are dropped
	BufferSize int
	// FlushInterval is how often queued entries are written
	FlushInterval time.Duration
	// RetentionDays is how long entries are kept (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with the defaults used when a field is unset.
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
