// Package feeds maintains the "what is on right now" view for the UI: which
// followed Twitch channels are live, and recent uploads from followed YouTube
// channels. State lives in sqlite and is rebuilt by a periodic refresh job.
package feeds

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/own-c/rt/telemetry"
	"github.com/own-c/rt/twitchapi"
	"github.com/own-c/rt/users"
	"github.com/own-c/rt/youtubeapi"
)

// TwitchLive is the live-status lookup the feed needs from the Twitch client.
type TwitchLive interface {
	LiveNow(ctx context.Context, logins []string) (map[string]twitchapi.LiveStream, error)
}

// Uploads lists recent uploads for a secondary-platform channel.
type Uploads interface {
	Enabled() bool
	RecentUploads(ctx context.Context, channelID, username string, max int64) ([]youtubeapi.Video, error)
}

// Entry is one live channel in the feed.
type Entry struct {
	Platform  string    `json:"platform"`
	Username  string    `json:"username"`
	StartedAt time.Time `json:"started_at"`
}

// Feed is the snapshot served to the UI.
type Feed struct {
	Live   []Entry            `json:"live"`
	Videos []youtubeapi.Video `json:"videos"`
}

const uploadsPerChannel = 5

// Service refreshes and serves the feed.
type Service struct {
	DB      *sql.DB
	Users   *users.Store
	Twitch  TwitchLive
	YouTube Uploads
}

// Snapshot reads the current feed from the store.
func (s *Service) Snapshot(ctx context.Context) (*Feed, error) {
	feed := &Feed{Live: []Entry{}, Videos: []youtubeapi.Video{}}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT platform, username, COALESCE(started_at, '') FROM feeds ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		var started string
		if err := rows.Scan(&e.Platform, &e.Username, &started); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			e.StartedAt = t
		}
		feed.Live = append(feed.Live, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := s.DB.QueryContext(ctx,
		`SELECT id, username, COALESCE(title, ''), COALESCE(thumbnail, ''), COALESCE(published_at, ''), view_count
		 FROM feed_videos ORDER BY published_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("read feed videos: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v youtubeapi.Video
		var published string
		if err := vrows.Scan(&v.ID, &v.Username, &v.Title, &v.Thumbnail, &published, &v.ViewCount); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			v.PublishedAt = t
		}
		feed.Videos = append(feed.Videos, v)
	}
	return feed, vrows.Err()
}

// Refresh rebuilds the feed from upstream. Per-platform failures degrade:
// the other platform's half still refreshes.
func (s *Service) Refresh(ctx context.Context) error {
	var firstErr error
	if err := s.refreshLive(ctx); err != nil {
		slog.Warn("live feed refresh failed", slog.Any("err", err))
		firstErr = err
	}
	if s.YouTube != nil && s.YouTube.Enabled() {
		if err := s.refreshUploads(ctx); err != nil {
			slog.Warn("uploads refresh failed", slog.Any("err", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) refreshLive(ctx context.Context) error {
	logins, err := s.Users.Usernames(ctx, users.PlatformTwitch)
	if err != nil {
		return err
	}
	live, err := s.Twitch.LiveNow(ctx, logins)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE platform = ?`, users.PlatformTwitch); err != nil {
		return fmt.Errorf("clear live feed: %w", err)
	}
	for _, stream := range live {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feeds (platform, username, started_at) VALUES (?, ?, ?)`,
			users.PlatformTwitch, stream.Username, stream.StartedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("store live entry: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Service) refreshUploads(ctx context.Context) error {
	all, err := s.Users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range all {
		if u.Platform != users.PlatformYouTube || u.ID == "" {
			continue
		}
		videos, err := s.YouTube.RecentUploads(ctx, u.ID, u.Username, uploadsPerChannel)
		if err != nil {
			slog.Warn("uploads fetch failed", slog.String("username", u.Username), slog.Any("err", err))
			continue
		}
		if err := s.replaceVideos(ctx, u.Username, videos); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) replaceVideos(ctx context.Context, username string, videos []youtubeapi.Video) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_videos WHERE username = ?`, username); err != nil {
		return fmt.Errorf("clear videos: %w", err)
	}
	for _, v := range videos {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feed_videos (id, username, title, thumbnail, published_at, view_count)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET title = excluded.title, view_count = excluded.view_count`,
			v.ID, username, v.Title, v.Thumbnail, v.PublishedAt.UTC().Format(time.RFC3339), v.ViewCount); err != nil {
			return fmt.Errorf("store video: %w", err)
		}
	}
	return tx.Commit()
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	log := telemetry.LoggerWithCorr(ctx)
	log.Info("feed refresher starting", slog.Duration("interval", interval))

	if err := s.Refresh(ctx); err != nil {
		log.Warn("initial feed refresh failed", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("feed refresher stopping")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Warn("feed refresh failed", slog.Any("err", err))
			}
		}
	}
}
