package server

import (
	"log/slog"
	"net/http"

	"github.com/own-c/rt/telemetry"
)

// HandleFeed serves GET /feed: the current live/uploads snapshot.
func (h *Handlers) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	feed, err := h.Feeds.Snapshot(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("feed snapshot failed", slog.Any("err", err))
		http.Error(w, "failed to read feed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// HandleFeedRefresh serves POST /feed/refresh: an on-demand rebuild ahead of
// the periodic job.
func (h *Handlers) HandleFeedRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Feeds.Refresh(r.Context()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("feed refresh failed", slog.Any("err", err))
		http.Error(w, "refresh failed", http.StatusBadGateway)
		return
	}
	feed, err := h.Feeds.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "failed to read feed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}
