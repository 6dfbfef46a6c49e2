// Package store provides SQLite-backed persistence for crawled items,
// users, and request logs. The connection is an explicitly owned,
// injected resource: callers open it once, pass it down, and close it
// when they are done.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aluiziolira/go-bookstore-crawler/config"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the database handle and its query helpers.
type Store struct {
	db *sql.DB
}

// Open acquires the database handle with bounded connect retries and a
// fixed delay between attempts, then applies pragmas and the schema.
// The retry loop covers the common deployment race where the volume or
// sidecar holding the database becomes available shortly after boot.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := ensureDataDir(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectRetries; attempt++ {
		db, err := sql.Open("sqlite3", cfg.DBPath)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				store := &Store{db: db}
				if err := store.init(ctx); err != nil {
					db.Close()
					return nil, err
				}
				if attempt > 1 {
					slog.Info("database ready", slog.Int("attempt", attempt))
				}
				return store, nil
			}
			db.Close()
		}
		lastErr = err

		slog.Warn("database unavailable, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.ConnectRetries),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectRetryDelay):
		}
	}
	return nil, fmt.Errorf("open database after %d attempts: %w", cfg.ConnectRetries, lastErr)
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("pragma foreign_keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the raw handle for repositories layered on the same store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports connection health.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func ensureDataDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
