// Package store provides SQLite database access for Lumi.
//
// Opening a store runs all pending schema migrations, so EnsureSchema is
// implicit in New and safe to repeat on every startup: migrations are
// versioned, additive, and skipped once applied. The destructive Reset
// path exists for dev/test databases only and is never called from the
// normal startup sequence.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the database connection. It is safe for concurrent use:
// the handle may be swapped by Reconnect while request goroutines are
// reading it, so every access goes through the mutex.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// New opens (or creates) the SQLite database at dbPath and applies all
// pending migrations. Calling New again after a transient failure is safe:
// a failed open closes the handle before returning.
func New(dbPath string) (*Store, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: dbPath}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	return s, nil
}

// open configures a raw connection with the pragmas Lumi relies on.
func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite is single-writer by design. A single shared connection lets
	// database/sql serialize concurrent request handlers instead of having
	// them fight over the write lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set pragma: %w", err)
		}
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// DB returns the underlying database handle for package-level queries.
// Callers must not retain the handle across a failure: Reconnect may
// swap it for a fresh one.
func (s *Store) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Healthy performs a trivial round-trip query and reports whether the
// store is reachable. It has no side effects.
func (s *Store) Healthy(ctx context.Context) bool {
	var one int
	return s.DB().QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil
}

// Reconnect closes and reopens the underlying connection. Used by the
// memory layer's one-reconnect-then-fail policy on connectivity loss.
// Migrations are not re-run: the schema survived the connection.
//
// Concurrent callers serialize on the write lock; whoever arrives after
// the handle has already been restored finds it answering pings and
// leaves it alone instead of tearing it down again.
func (s *Store) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.Ping() == nil {
		return nil
	}

	s.db.Close()
	db, err := open(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// Reset drops all Lumi tables and re-runs migrations from scratch.
// Destructive; dev/test only, guarded by the caller.
func (s *Store) Reset() error {
	drops := []string{
		"DROP TABLE IF EXISTS conversation_memories",
		"DROP TABLE IF EXISTS store_meta",
		"DROP TABLE IF EXISTS schema_migrations",
	}
	db := s.DB()
	for _, stmt := range drops {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: reset: %w", err)
		}
	}
	return s.runMigrations()
}

// runMigrations applies every embedded migration newer than the recorded
// schema version, each inside its own transaction.
func (s *Store) runMigrations() error {
	db := s.DB()
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		// "0001_conversation_memories.sql" → version 1.
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			version, time.Now(), description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}

		slog.Info("applied migration", "version", fmt.Sprintf("%04d", version), "description", description)
	}

	return nil
}
