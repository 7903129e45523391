package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/own-c/rt/telemetry"
	"github.com/own-c/rt/users"
)

// HandleUsers serves the followed-channel list: GET lists, POST follows,
// DELETE unfollows.
func (h *Handlers) HandleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.Users.Store.List(r.Context())
		if err != nil {
			http.Error(w, "failed to list users", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []users.User{}
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var req struct {
			Platform string `json:"platform"`
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Platform == "" {
			req.Platform = users.PlatformTwitch
		}
		u, err := h.Users.Follow(r.Context(), req.Platform, req.Username)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("follow failed",
				slog.String("platform", req.Platform), slog.String("username", req.Username), slog.Any("err", err))
			http.Error(w, "follow failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, u)

	case http.MethodDelete:
		platform := r.URL.Query().Get("platform")
		if platform == "" {
			platform = users.PlatformTwitch
		}
		username := r.URL.Query().Get("username")
		if username == "" {
			http.Error(w, "missing username", http.StatusBadRequest)
			return
		}
		if err := h.Users.Unfollow(r.Context(), platform, username); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, "unfollow failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
