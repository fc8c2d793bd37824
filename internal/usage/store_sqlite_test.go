package usage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/internal/storage"
)

func newSQLiteStore(t *testing.T, retentionDays int) (Store, storage.Storage) {
	t.Helper()
	st, err := storage.NewSQLite(storage.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	store, err := NewStore(st, retentionDays)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, st
}

func TestSQLiteStore_WriteAndSummarize(t *testing.T) {
	store, _ := newSQLiteStore(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []*Entry{
		{ID: "1", Timestamp: now, Service: "claude-chat", Provider: "anthropic", InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		{ID: "2", Timestamp: now, Service: "claude-chat", Provider: "anthropic", InputTokens: 1, OutputTokens: 1, TotalTokens: 2, Streamed: true},
		{ID: "3", Timestamp: now, Service: "analysis", Provider: "openai", InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
		{ID: "old", Timestamp: now.AddDate(0, 0, -30), Service: "analysis", Provider: "openai", TotalTokens: 9999},
	}
	require.NoError(t, store.WriteBatch(ctx, entries))
	require.NoError(t, store.WriteBatch(ctx, entries[:1]), "duplicate ids are ignored")

	totals, err := store.Summarize(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []ServiceTotals{
		{Service: "analysis", Provider: "openai", Requests: 1, InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
		{Service: "claude-chat", Provider: "anthropic", Requests: 2, InputTokens: 11, OutputTokens: 6, TotalTokens: 17},
	}, totals)

	all, err := store.Summarize(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Requests)
}

func TestSQLiteStore_EmptySummary(t *testing.T) {
	store, _ := newSQLiteStore(t, 0)
	totals, err := store.Summarize(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, totals)
	assert.Empty(t, totals)
}

func TestSQLiteStore_LargeBatchIsChunked(t *testing.T) {
	store, st := newSQLiteStore(t, 0)
	ctx := context.Background()

	entries := make([]*Entry, 3*sqliteMaxPerBatch+7)
	for i := range entries {
		entries[i] = &Entry{ID: fmt.Sprintf("e-%d", i), Timestamp: time.Now(), Service: "openai-chat", Provider: "openai", TotalTokens: 1}
	}
	require.NoError(t, store.WriteBatch(ctx, entries))

	var n int
	require.NoError(t, st.SQLiteDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_usage").Scan(&n))
	assert.Equal(t, len(entries), n)
}

func TestSQLiteStore_RetentionPrunes(t *testing.T) {
	store, st := newSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.WriteBatch(ctx, []*Entry{
		{ID: "fresh", Timestamp: time.Now(), Service: "analysis", Provider: "openai"},
		{ID: "stale", Timestamp: time.Now().AddDate(0, 0, -10), Service: "analysis", Provider: "openai"},
	}))

	sq := store.(*SQLiteStore)
	sq.retentionDays = 7
	sq.prune()

	var ids []string
	rows, err := st.SQLiteDB().QueryContext(ctx, "SELECT id FROM chat_usage")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestNewStore_UnknownType(t *testing.T) {
	_, err := NewStore(fakeStorage{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

type fakeStorage struct{}

func (fakeStorage) Type() string                  { return "mongodb" }
func (fakeStorage) SQLiteDB() *sql.DB             { return nil }
func (fakeStorage) PostgreSQLPool() *pgxpool.Pool { return nil }
func (fakeStorage) Close() error                  { return nil }
