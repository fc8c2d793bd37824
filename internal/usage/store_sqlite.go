package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite accepts at most 999 bound parameters per statement.
const (
	sqliteMaxParams   = 999
	columnsPerEntry   = 12
	sqliteMaxPerBatch = sqliteMaxParams / columnsPerEntry
)

// sqliteTimeLayout is fixed-width so that text comparison orders timestamps.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewSQLiteStore creates the chat_usage table and its indexes if they don't
// exist and starts the retention loop.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_usage (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			service TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			response_id TEXT NOT NULL DEFAULT '',
			streamed INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_usage table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_timestamp ON chat_usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_service ON chat_usage(service)",
	} {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	s := &SQLiteStore{db: db, retentionDays: retentionDays, stop: make(chan struct{})}
	if retentionDays > 0 {
		go runRetention(s.stop, retentionInterval, s.prune)
	}
	return s, nil
}

// WriteBatch inserts entries in chunks that stay under SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	now := time.Now().UTC().Format(sqliteTimeLayout)

	for start := 0; start < len(entries); start += sqliteMaxPerBatch {
		chunk := entries[start:min(start+sqliteMaxPerBatch, len(entries))]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*columnsPerEntry)
		for i, e := range chunk {
			placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args,
				e.ID,
				e.RequestID,
				e.Timestamp.UTC().Format(sqliteTimeLayout),
				e.Service,
				e.Provider,
				e.Model,
				e.ResponseID,
				e.Streamed,
				e.InputTokens,
				e.OutputTokens,
				e.TotalTokens,
				now,
			)
		}

		query := `INSERT OR IGNORE INTO chat_usage (id, request_id, timestamp, service, provider, model,
			response_id, streamed, input_tokens, output_tokens, total_tokens, created_at) VALUES ` +
			strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert usage batch at %d: %w", start, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Summarize(ctx context.Context, since time.Time) ([]ServiceTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service, provider, COUNT(*),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM chat_usage
		WHERE timestamp >= ?
		GROUP BY service, provider
		ORDER BY service, provider
	`, since.UTC().Format(sqliteTimeLayout))
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

// Close stops the retention loop. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *SQLiteStore) prune() {
	cutoff := retentionCutoff(time.Now().UTC(), s.retentionDays).Format(sqliteTimeLayout)
	res, err := s.db.Exec("DELETE FROM chat_usage WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to prune usage entries", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Info("pruned usage entries", "deleted", n)
	}
}
