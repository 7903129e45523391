// Package db provides database connection helpers, schema migration, and small data access helpers.
// The relay keeps all its bookkeeping (followed users, live feed, emote catalogs) in a single
// local sqlite file next to the embedding client's data.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // cgo-free sqlite driver registered as 'sqlite'
)

// Connect opens the local sqlite store at path, creating parent directories as needed.
// An empty path falls back to DB_PATH or ./data/rt.db.
func Connect(path string) (*sql.DB, error) {
	if path == "" {
		path = os.Getenv("DB_PATH")
	}
	if path == "" {
		path = filepath.Join("data", "rt.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	dbx, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite handles one writer at a time; serialize access at the pool level
	// instead of surfacing SQLITE_BUSY to callers.
	dbx.SetMaxOpenConns(1)
	return dbx, nil
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, dbx *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			platform TEXT NOT NULL,
			id TEXT,
			username TEXT NOT NULL,
			avatar BLOB,
			PRIMARY KEY (platform, username)
		)`,
		`CREATE TABLE IF NOT EXISTS feeds (
			platform TEXT NOT NULL,
			username TEXT NOT NULL,
			started_at TEXT,
			PRIMARY KEY (platform, username)
		)`,
		`CREATE TABLE IF NOT EXISTS feed_videos (
			id TEXT NOT NULL PRIMARY KEY,
			username TEXT NOT NULL,
			title TEXT,
			thumbnail TEXT,
			published_at TEXT,
			view_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS emotes (
			username TEXT NOT NULL,
			name TEXT NOT NULL,
			url TEXT,
			width INTEGER,
			height INTEGER,
			PRIMARY KEY (username, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emotes_username ON emotes(username)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_videos_username ON feed_videos(username)`,
	}
	for i, s := range stmts {
		if _, err := dbx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
