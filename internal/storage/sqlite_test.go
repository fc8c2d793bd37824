package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "test.db")})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	db := store.SQLiteDB()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS test_sessions (id TEXT PRIMARY KEY, transcript TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	const goroutines = 8
	const insertsPerGoroutine = 25

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < insertsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := db.ExecContext(ctx, `INSERT INTO test_sessions (id, transcript) VALUES (?, ?)`,
					fmt.Sprintf("%d-%d", id, j), "bonjour")
				cancel()
				if err != nil {
					errs <- fmt.Errorf("goroutine %d insert %d: %w", id, j, err)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM test_sessions").Scan(&count); err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != goroutines*insertsPerGoroutine {
		t.Errorf("got %d rows, want %d", count, goroutines*insertsPerGoroutine)
	}
}

func TestSQLiteInMemory(t *testing.T) {
	store, err := New(context.Background(), Config{Type: TypeSQLite, SQLite: SQLiteConfig{Path: ":memory:"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	if store.Type() != TypeSQLite {
		t.Errorf("Type() = %q, want %q", store.Type(), TypeSQLite)
	}
	if store.PostgreSQLPool() != nil {
		t.Error("PostgreSQLPool() should be nil for sqlite")
	}
	if _, err := store.SQLiteDB().Exec(`CREATE TABLE t (x INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.SQLiteDB().Exec(`INSERT INTO t VALUES (1)`); err != nil {
		t.Fatalf("insert on same in-memory database: %v", err)
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(context.Background(), Config{Type: "mongodb"}); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}

func TestNewPostgreSQL_RequiresURL(t *testing.T) {
	if _, err := NewPostgreSQL(context.Background(), PostgreSQLConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
