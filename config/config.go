// Package config loads environment variables and provides a typed Config used across the relay.
// It applies sensible defaults so the binary can run locally with minimal setup; the only
// hard requirement is a writable data directory for the local sqlite store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Local API surface the embedding client talks to
	HTTPAddr  string
	ProxyBase string

	// Upstream Twitch endpoints
	GQLEndpoint  string
	ChatEndpoint string
	UsherBase    string
	ClientID     string

	// Emote catalogs
	SevenTVBase   string
	BetterTTVBase string

	// Storage
	DataDir string
	DBPath  string

	// Feed refresh
	FeedRefreshInterval time.Duration

	// YouTube (optional secondary platform)
	YTAPIKey string
}

// Load reads environment variables and applies defaults. Missing optional
// variables disable features (e.g. the YouTube feed), they never fail Load.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:3030"
	}
	cfg.ProxyBase = os.Getenv("PROXY_BASE")
	if cfg.ProxyBase == "" {
		cfg.ProxyBase = "http://" + cfg.HTTPAddr
	}

	cfg.GQLEndpoint = os.Getenv("TWITCH_GQL_ENDPOINT")
	if cfg.GQLEndpoint == "" {
		cfg.GQLEndpoint = "https://gql.twitch.tv/gql"
	}
	cfg.ChatEndpoint = os.Getenv("TWITCH_CHAT_ENDPOINT")
	if cfg.ChatEndpoint == "" {
		cfg.ChatEndpoint = "wss://irc-ws.chat.twitch.tv"
	}
	cfg.UsherBase = os.Getenv("TWITCH_USHER_BASE")
	if cfg.UsherBase == "" {
		cfg.UsherBase = "https://usher.ttvnw.net/api/channel/hls"
	}
	cfg.ClientID = os.Getenv("TWITCH_CLIENT_ID")
	if cfg.ClientID == "" {
		// Public web player client id; the relay only performs anonymous calls.
		cfg.ClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
	}

	cfg.SevenTVBase = os.Getenv("SEVENTV_API_BASE")
	if cfg.SevenTVBase == "" {
		cfg.SevenTVBase = "https://7tv.io/v3"
	}
	cfg.BetterTTVBase = os.Getenv("BETTERTTV_API_BASE")
	if cfg.BetterTTVBase == "" {
		cfg.BetterTTVBase = "https://api.betterttv.net/3"
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.DBPath = os.Getenv("DB_PATH")
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "rt.db")
	}

	cfg.FeedRefreshInterval = 2 * time.Minute
	if v := os.Getenv("FEED_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_REFRESH_INTERVAL: %w", err)
		}
		if d > 0 {
			cfg.FeedRefreshInterval = d
		}
	}

	cfg.YTAPIKey = os.Getenv("YT_API_KEY")

	return cfg, nil
}

// YouTubeEnabled reports whether the optional YouTube feed integration is configured.
func (c *Config) YouTubeEnabled() bool {
	return c.YTAPIKey != ""
}
