// Package youtubeapi wraps the YouTube Data API for the relay's secondary
// platform support: resolving a channel by handle and listing its recent
// uploads for the feed. Access is read-only with an API key; without a key
// the whole package stays disabled.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("youtubeapi: no api key configured")

// Video is one recent upload of a followed channel.
type Video struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Title       string    `json:"title"`
	Thumbnail   string    `json:"thumbnail"`
	PublishedAt time.Time `json:"published_at"`
	ViewCount   uint64    `json:"view_count"`
}

// Service is a lazy API-key client for the Data API.
type Service struct {
	apiKey string
	opts   []option.ClientOption

	mu  sync.Mutex
	svc *yt.Service
}

// New builds a service; extra options (endpoint, http client) are for tests.
func New(apiKey string, opts ...option.ClientOption) *Service {
	return &Service{apiKey: apiKey, opts: opts}
}

// Enabled reports whether an API key is configured.
func (s *Service) Enabled() bool { return s.apiKey != "" }

func (s *Service) client(ctx context.Context) (*yt.Service, error) {
	if s.apiKey == "" {
		return nil, ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc != nil {
		return s.svc, nil
	}
	opts := append([]option.ClientOption{option.WithAPIKey(s.apiKey)}, s.opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	s.svc = svc
	return svc, nil
}

// ResolveChannel resolves a channel by handle (with or without a leading @),
// falling back to legacy usernames.
func (s *Service) ResolveChannel(ctx context.Context, name string) (id, title, avatarURL string, err error) {
	svc, err := s.client(ctx)
	if err != nil {
		return "", "", "", err
	}
	handle := strings.TrimPrefix(strings.TrimSpace(name), "@")
	if handle == "" {
		return "", "", "", errors.New("youtubeapi: empty channel name")
	}

	resp, err := svc.Channels.List([]string{"snippet"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return "", "", "", fmt.Errorf("resolve channel %q: %w", handle, err)
	}
	if len(resp.Items) == 0 {
		resp, err = svc.Channels.List([]string{"snippet"}).ForUsername(handle).Context(ctx).Do()
		if err != nil {
			return "", "", "", fmt.Errorf("resolve channel %q: %w", handle, err)
		}
	}
	if len(resp.Items) == 0 {
		return "", "", "", fmt.Errorf("youtubeapi: channel %q not found", name)
	}

	ch := resp.Items[0]
	if ch.Snippet != nil {
		title = ch.Snippet.Title
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
			avatarURL = ch.Snippet.Thumbnails.Default.Url
		}
	}
	return ch.Id, title, avatarURL, nil
}

// RecentUploads lists a channel's newest uploads with view counts.
func (s *Service) RecentUploads(ctx context.Context, channelID, username string, max int64) ([]Video, error) {
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}

	chResp, err := svc.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	if len(chResp.Items) == 0 || chResp.Items[0].ContentDetails == nil {
		return nil, fmt.Errorf("youtubeapi: channel %s has no uploads playlist", channelID)
	}
	playlistID := chResp.Items[0].ContentDetails.RelatedPlaylists.Uploads

	items, err := svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch uploads playlist: %w", err)
	}

	videos := make([]Video, 0, len(items.Items))
	ids := make([]string, 0, len(items.Items))
	for _, item := range items.Items {
		if item.ContentDetails == nil || item.Snippet == nil {
			continue
		}
		v := Video{
			ID:       item.ContentDetails.VideoId,
			Username: username,
			Title:    item.Snippet.Title,
		}
		if t, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
			v.PublishedAt = t
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Medium != nil {
			v.Thumbnail = item.Snippet.Thumbnails.Medium.Url
		}
		videos = append(videos, v)
		ids = append(ids, v.ID)
	}
	if len(ids) == 0 {
		return videos, nil
	}

	stats, err := svc.Videos.List([]string{"statistics"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch video statistics: %w", err)
	}
	counts := make(map[string]uint64, len(stats.Items))
	for _, item := range stats.Items {
		if item.Statistics != nil {
			counts[item.Id] = item.Statistics.ViewCount
		}
	}
	for i := range videos {
		videos[i].ViewCount = counts[videos[i].ID]
	}
	return videos, nil
}
