package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/own-c/rt/emotes"
	"github.com/own-c/rt/twitchapi"
)

// TwitchLookup is the subset of the Twitch client the service needs.
type TwitchLookup interface {
	FetchUser(ctx context.Context, login string) (*twitchapi.User, error)
	FetchAvatar(ctx context.Context, url string) ([]byte, error)
}

// ChannelResolver resolves a secondary-platform channel by handle or name.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, name string) (id, title, avatarURL string, err error)
}

// EmoteRefresher rebuilds a channel's emote catalog, seeded with the
// channel's own subscription emotes.
type EmoteRefresher interface {
	Refresh(ctx context.Context, channel, twitchID string, seed map[string]emotes.Emote) (map[string]emotes.Emote, error)
	Forget(ctx context.Context, channel string) error
}

// Service layers platform lookups on top of the store: following a channel
// fetches its profile and primes the emote catalog.
type Service struct {
	Store   *Store
	Twitch  TwitchLookup
	YouTube ChannelResolver
	Emotes  EmoteRefresher
}

// Follow adds a channel to the followed list. For Twitch this resolves the
// profile and refreshes the emote catalog; a failed emote refresh only logs,
// the follow itself still succeeds.
func (s *Service) Follow(ctx context.Context, platform, username string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, errors.New("users: empty username")
	}
	switch platform {
	case PlatformTwitch:
		return s.followTwitch(ctx, username)
	case PlatformYouTube:
		return s.followYouTube(ctx, username)
	default:
		return nil, fmt.Errorf("users: unknown platform %q", platform)
	}
}

func (s *Service) followTwitch(ctx context.Context, username string) (*User, error) {
	profile, err := s.Twitch.FetchUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve twitch user: %w", err)
	}
	avatar, err := s.Twitch.FetchAvatar(ctx, profile.AvatarURL)
	if err != nil {
		slog.Warn("avatar fetch failed", slog.String("username", username), slog.Any("err", err))
	}

	u := User{Platform: PlatformTwitch, ID: profile.ID, Username: username, Avatar: avatar}
	if err := s.Store.Add(ctx, u); err != nil {
		return nil, err
	}

	if s.Emotes != nil {
		if _, err := s.Emotes.Refresh(ctx, username, profile.ID, profile.Emotes); err != nil {
			slog.Warn("emote refresh failed", slog.String("username", username), slog.Any("err", err))
		}
	}
	return &u, nil
}

func (s *Service) followYouTube(ctx context.Context, name string) (*User, error) {
	if s.YouTube == nil {
		return nil, errors.New("users: youtube support not configured")
	}
	id, title, avatarURL, err := s.YouTube.ResolveChannel(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve youtube channel: %w", err)
	}
	var avatar []byte
	if s.Twitch != nil {
		// Plain image download, the Twitch client's fetcher works for any URL.
		if avatar, err = s.Twitch.FetchAvatar(ctx, avatarURL); err != nil {
			slog.Warn("avatar fetch failed", slog.String("username", name), slog.Any("err", err))
		}
	}
	u := User{Platform: PlatformYouTube, ID: id, Username: title, Avatar: avatar}
	if u.Username == "" {
		u.Username = name
	}
	if err := s.Store.Add(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Unfollow removes a channel and drops its cached emote table.
func (s *Service) Unfollow(ctx context.Context, platform, username string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := s.Store.Remove(ctx, platform, username); err != nil {
		return err
	}
	if platform == PlatformTwitch && s.Emotes != nil {
		if err := s.Emotes.Forget(ctx, username); err != nil {
			slog.Warn("emote cleanup failed", slog.String("username", username), slog.Any("err", err))
		}
	}
	return nil
}
