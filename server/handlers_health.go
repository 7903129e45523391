package server

import (
	"context"
	"net/http"
	"time"
)

// HandleHealthz is a liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz is a readiness probe: the store must answer. Chat being down
// is reported but does not gate readiness, the relay restarts it on its own.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{"status": "ok"}
	status := http.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		body["status"] = "degraded"
		body["db"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	body["chat_connected"] = h.Relay != nil && h.Relay.Connected()
	writeJSON(w, status, body)
}
