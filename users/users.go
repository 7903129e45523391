// Package users manages the followed-channel list in the local sqlite store.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Platforms a followed user can belong to.
const (
	PlatformTwitch  = "twitch"
	PlatformYouTube = "youtube"
)

// ErrNotFound is returned when a followed user does not exist.
var ErrNotFound = errors.New("users: not found")

// User is one followed channel. Avatar is the raw image blob served to the
// UI; JSON encoding renders it base64.
type User struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   []byte `json:"avatar,omitempty"`
}

// Store is the sqlite-backed user list.
type Store struct {
	db *sql.DB
}

func NewStore(dbx *sql.DB) *Store {
	return &Store{db: dbx}
}

// List returns all followed users ordered by platform then username.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, COALESCE(id, ''), username, avatar FROM users ORDER BY platform, username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Platform, &u.ID, &u.Username, &u.Avatar); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Usernames returns the usernames followed on one platform.
func (s *Store) Usernames(ctx context.Context, platform string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username FROM users WHERE platform = ? ORDER BY username`, platform)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Get fetches one followed user.
func (s *Store) Get(ctx context.Context, platform, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT platform, COALESCE(id, ''), username, avatar FROM users WHERE platform = ? AND username = ?`,
		platform, username).Scan(&u.Platform, &u.ID, &u.Username, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Add upserts a followed user.
func (s *Store) Add(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (platform, id, username, avatar) VALUES (?, ?, ?, ?)
		 ON CONFLICT(platform, username) DO UPDATE SET id = excluded.id, avatar = excluded.avatar`,
		u.Platform, u.ID, u.Username, u.Avatar)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

// Remove deletes a followed user and everything hanging off it: feed entries,
// cached videos, and stored emotes.
func (s *Store) Remove(ctx context.Context, platform, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE platform = ? AND username = ?`, platform, username)
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE platform = ? AND username = ?`, platform, username); err != nil {
		return fmt.Errorf("remove feed entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_videos WHERE username = ?`, username); err != nil {
		return fmt.Errorf("remove feed videos: %w", err)
	}
	if platform == PlatformTwitch {
		if _, err := tx.ExecContext(ctx, `DELETE FROM emotes WHERE username = ?`, username); err != nil {
			return fmt.Errorf("remove emotes: %w", err)
		}
	}
	return tx.Commit()
}
