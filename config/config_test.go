package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PROXY_BASE", "")
	t.Setenv("DB_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:3030" {
		t.Errorf("HTTPAddr = %q, want local default", cfg.HTTPAddr)
	}
	if cfg.ProxyBase != "http://127.0.0.1:3030" {
		t.Errorf("ProxyBase = %q, want derived from HTTP_ADDR", cfg.ProxyBase)
	}
	if cfg.GQLEndpoint == "" || cfg.ChatEndpoint == "" || cfg.UsherBase == "" {
		t.Errorf("expected upstream endpoint defaults, got %+v", cfg)
	}
	if cfg.DBPath == "" {
		t.Errorf("expected default db path under data dir")
	}
	if cfg.FeedRefreshInterval != 2*time.Minute {
		t.Errorf("FeedRefreshInterval = %v, want 2m default", cfg.FeedRefreshInterval)
	}
}

func TestProxyBaseFollowsAddr(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:4040")
	t.Setenv("PROXY_BASE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ProxyBase != "http://127.0.0.1:4040" {
		t.Errorf("ProxyBase = %q, want http://127.0.0.1:4040", cfg.ProxyBase)
	}
}

func TestInvalidFeedInterval(t *testing.T) {
	t.Setenv("FEED_REFRESH_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid FEED_REFRESH_INTERVAL")
	}
}

func TestYouTubeEnabled(t *testing.T) {
	t.Setenv("YT_API_KEY", "")
	cfg, _ := Load()
	if cfg.YouTubeEnabled() {
		t.Errorf("expected YouTube disabled without YT_API_KEY")
	}
	t.Setenv("YT_API_KEY", "key")
	cfg, _ = Load()
	if !cfg.YouTubeEnabled() {
		t.Errorf("expected YouTube enabled with YT_API_KEY")
	}
}
