// Package sessions records practice sessions (transcript, score, analysis)
// in the relational sink behind the insert-user and update-user services.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lingogate/internal/core"
	"lingogate/internal/storage"
)

// ErrNotFound is returned by Update when no session has the given id.
var ErrNotFound = errors.New("session not found")

// NewSession is the body of an insert-user request.
type NewSession struct {
	UserID      string          `json:"userId"`
	Transcript  *string         `json:"transcript,omitempty"`
	Score       *float64        `json:"score,omitempty"`
	Analysis    json.RawMessage `json:"analysis,omitempty"`
	ElapsedTime *float64        `json:"elapsedTime,omitempty"`
}

// Validate requires a user id.
func (s *NewSession) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return core.NewInvalidRequestError("userId is required", nil)
	}
	return nil
}

// SessionUpdate is the body of an update-user request. Absent fields keep
// their stored value.
type SessionUpdate struct {
	ID          string          `json:"id"`
	Transcript  *string         `json:"transcript,omitempty"`
	Score       *float64        `json:"score,omitempty"`
	Analysis    json.RawMessage `json:"analysis,omitempty"`
	ElapsedTime *float64        `json:"elapsedTime,omitempty"`
}

// Validate requires a well-formed id and at least one field to change.
func (u *SessionUpdate) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return core.NewInvalidRequestError("id is required", nil)
	}
	if _, err := uuid.Parse(u.ID); err != nil {
		return core.NewInvalidRequestError("id is not a valid session id", err)
	}
	if u.Transcript == nil && u.Score == nil && u.Analysis == nil && u.ElapsedTime == nil {
		return core.NewInvalidRequestError("nothing to update", nil)
	}
	return nil
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Insert stores a new session and returns its generated id.
	Insert(ctx context.Context, s *NewSession) (string, error)
	// Update changes the fields set on u, or returns ErrNotFound.
	Update(ctx context.Context, u *SessionUpdate) error
	Close() error
}

// NewStore creates the Store matching the storage backend.
func NewStore(store storage.Storage) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB())
	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		return NewPostgreSQLStore(pool)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// rawText turns an optional JSON value into the text stored in the analysis column.
// A JSON string is stored unquoted.
func rawText(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	text := string(raw)
	return &text
}

// DisabledStore is used when no database is configured. Every call fails
// with a configuration error so the gateway still starts without a sink.
type DisabledStore struct{}

func (DisabledStore) Insert(context.Context, *NewSession) (string, error) {
	return "", core.NewConfigurationError("sessions store")
}

func (DisabledStore) Update(context.Context, *SessionUpdate) error {
	return core.NewConfigurationError("sessions store")
}

func (DisabledStore) Close() error { return nil }
