package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewPostgreSQLStore creates the chat_usage table and its indexes if they
// don't exist and starts the retention loop.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_usage (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			service TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			response_id TEXT NOT NULL DEFAULT '',
			streamed BOOLEAN NOT NULL DEFAULT FALSE,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_usage table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_timestamp ON chat_usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_service ON chat_usage(service)",
	} {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	s := &PostgreSQLStore{pool: pool, retentionDays: retentionDays, stop: make(chan struct{})}
	if retentionDays > 0 {
		go runRetention(s.stop, retentionInterval, s.prune)
	}
	return s, nil
}

// WriteBatch queues every insert on one pgx.Batch and sends it in a single round trip.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO chat_usage (id, request_id, timestamp, service, provider, model,
				response_id, streamed, input_tokens, output_tokens, total_tokens)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, e.RequestID, e.Timestamp, e.Service, e.Provider, e.Model,
			e.ResponseID, e.Streamed, e.InputTokens, e.OutputTokens, e.TotalTokens)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert %d usage entries: %w", len(entries), err)
	}
	return nil
}

func (s *PostgreSQLStore) Summarize(ctx context.Context, since time.Time) ([]ServiceTotals, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service, provider, COUNT(*),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM chat_usage
		WHERE timestamp >= $1
		GROUP BY service, provider
		ORDER BY service, provider
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	totals := []ServiceTotals{}
	for rows.Next() {
		var t ServiceTotals
		if err := rows.Scan(&t.Service, &t.Provider, &t.Requests, &t.InputTokens, &t.OutputTokens, &t.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Close stops the retention loop. The pool belongs to storage.Storage.
func (s *PostgreSQLStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *PostgreSQLStore) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := s.pool.Exec(ctx, "DELETE FROM chat_usage WHERE timestamp < $1",
		retentionCutoff(time.Now(), s.retentionDays))
	if err != nil {
		slog.Error("failed to prune usage entries", "error", err)
		return
	}
	if res.RowsAffected() > 0 {
		slog.Info("pruned usage entries", "deleted", res.RowsAffected())
	}
}
