package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the user_sessions table if it doesn't exist.
func NewPostgreSQLStore(pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_sessions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			transcript TEXT,
			score DOUBLE PRECISION,
			analysis TEXT,
			elapsed_time DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create user_sessions table: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id)"); err != nil {
		return nil, fmt.Errorf("failed to create user_sessions index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

func (s *PostgreSQLStore) Insert(ctx context.Context, n *NewSession) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, transcript, score, analysis, elapsed_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, n.UserID, n.Transcript, n.Score, rawText(n.Analysis), n.ElapsedTime, now, now)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (s *PostgreSQLStore) Update(ctx context.Context, u *SessionUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_sessions SET
			transcript = COALESCE($2, transcript),
			score = COALESCE($3, score),
			analysis = COALESCE($4, analysis),
			elapsed_time = COALESCE($5, elapsed_time),
			updated_at = $6
		WHERE id = $1
	`, u.ID, u.Transcript, u.Score, rawText(u.Analysis), u.ElapsedTime, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; the pool belongs to storage.Storage.
func (s *PostgreSQLStore) Close() error {
	return nil
}
