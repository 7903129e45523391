package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/own-c/rt/chat"
	"github.com/own-c/rt/feeds"
	"github.com/own-c/rt/proxy"
	"github.com/own-c/rt/telemetry"
	"github.com/own-c/rt/users"
)

// PlaybackAPI resolves signed playlist URLs for the player.
type PlaybackAPI interface {
	PlaybackURL(ctx context.Context, channel string, backup bool) (string, error)
}

// Handlers carries the wired services behind the HTTP surface.
type Handlers struct {
	DB       *sql.DB
	Proxy    *proxy.Proxy
	Relay    *chat.Relay
	Users    *users.Service
	Feeds    *feeds.Service
	Playback PlaybackAPI
	Events   *EventHub
}

// HandleProxy serves GET /proxy?session=<key>&url=<encoded>: the rewritten
// manifest or raw media bytes.
func (h *Handlers) HandleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	session := r.URL.Query().Get("session")

	res, err := h.Proxy.FetchAndRewrite(r.Context(), session, target)
	if err != nil {
		if errors.Is(err, proxy.ErrNoURL) {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Warn("proxy fetch failed",
			slog.String("session", session), slog.Any("err", err))
		http.Error(w, "upstream fetch failed", http.StatusInternalServerError)
		return
	}

	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	if _, err := w.Write(res.Body); err != nil {
		slog.Warn("proxy response write failed", slog.Any("err", err))
	}
}

// HandlePlayback serves GET /playback/{channel}?backup=1: the signed playlist
// URL the player should load (through the proxy).
func (h *Handlers) HandlePlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	channel := strings.Trim(strings.TrimPrefix(r.URL.Path, "/playback/"), "/")
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}
	backup := r.URL.Query().Get("backup") == "1"

	// A fresh playback request starts a clean mitigation episode.
	h.Proxy.Reset(channel)

	playbackURL, err := h.Playback.PlaybackURL(r.Context(), channel, backup)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("playback resolution failed",
			slog.String("channel", channel), slog.Any("err", err))
		http.Error(w, "playback resolution failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel": channel, "url": playbackURL})
}
