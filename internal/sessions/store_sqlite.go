package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the user_sessions table if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			transcript TEXT,
			score REAL,
			analysis TEXT,
			elapsed_time REAL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create user_sessions table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id)"); err != nil {
		return nil, fmt.Errorf("failed to create user_sessions index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, n *NewSession) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, transcript, score, analysis, elapsed_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, n.UserID, n.Transcript, n.Score, rawText(n.Analysis), n.ElapsedTime, now, now)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, u *SessionUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions SET
			transcript = COALESCE(?, transcript),
			score = COALESCE(?, score),
			analysis = COALESCE(?, analysis),
			elapsed_time = COALESCE(?, elapsed_time),
			updated_at = ?
		WHERE id = ?
	`, u.Transcript, u.Score, rawText(u.Analysis), u.ElapsedTime, time.Now().UTC(), u.ID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", u.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", u.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; the connection belongs to storage.Storage.
func (s *SQLiteStore) Close() error {
	return nil
}
