package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "lumi-test.db"))
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMigrationsCreateSchema(t *testing.T) {
	st := setupTestStore(t)

	for _, table := range []string{"conversation_memories", "store_meta", "schema_migrations"} {
		var name string
		err := st.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lumi-test.db")

	st, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	if _, err := st.DB().Exec(
		"INSERT INTO conversation_memories (user_id, user_message, assistant_response, embedding, timestamp) VALUES (?, ?, ?, ?, ?)",
		"u1", "hello", "hi", "[]", "2026-08-28T00:00:00Z",
	); err != nil {
		t.Fatalf("insert: %v", err)
	}
	st.Close()

	// Reopening must not re-run migrations or lose data.
	st, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	var n int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM conversation_memories").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after reopen, got %d", n)
	}
}

func TestHealthy(t *testing.T) {
	st := setupTestStore(t)
	if !st.Healthy(context.Background()) {
		t.Error("expected fresh store to be healthy")
	}
}

func TestReconnect(t *testing.T) {
	st := setupTestStore(t)

	if err := st.Reconnect(); err != nil {
		t.Fatalf("Reconnect(): %v", err)
	}
	if !st.Healthy(context.Background()) {
		t.Error("expected store to be healthy after reconnect")
	}
}

func TestConcurrentReconnectIsSafe(t *testing.T) {
	st := setupTestStore(t)

	// Simulate connectivity loss, then have several request goroutines
	// hit the reconnect path at once while others read the handle.
	st.DB().Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.Reconnect(); err != nil {
				t.Errorf("Reconnect(): %v", err)
				return
			}
			var one int
			if err := st.DB().QueryRow("SELECT 1").Scan(&one); err != nil {
				t.Errorf("query after reconnect: %v", err)
			}
		}()
	}
	wg.Wait()

	if !st.Healthy(context.Background()) {
		t.Error("expected store to be healthy after concurrent reconnects")
	}
}

func TestReconnectLeavesHealthyHandleAlone(t *testing.T) {
	st := setupTestStore(t)

	before := st.DB()
	if err := st.Reconnect(); err != nil {
		t.Fatalf("Reconnect(): %v", err)
	}
	if st.DB() != before {
		t.Error("expected a reachable handle to survive Reconnect unswapped")
	}
}

func TestReset(t *testing.T) {
	st := setupTestStore(t)

	if _, err := st.DB().Exec(
		"INSERT INTO conversation_memories (user_id, user_message, assistant_response, embedding, timestamp) VALUES (?, ?, ?, ?, ?)",
		"u1", "hello", "hi", "[]", "2026-08-28T00:00:00Z",
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := st.Reset(); err != nil {
		t.Fatalf("Reset(): %v", err)
	}

	var n int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM conversation_memories").Scan(&n); err != nil {
		t.Fatalf("count after reset: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table after reset, got %d rows", n)
	}
}
