package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HandleChatSSE serves GET /chat/{channel}: joins the channel upstream and
// streams parsed chat messages as server-sent events.
func (h *Handlers) HandleChatSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	channel := strings.Trim(strings.TrimPrefix(r.URL.Path, "/chat/"), "/")
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if h.Relay == nil || !h.Relay.Connected() {
		http.Error(w, "chat connection is down", http.StatusServiceUnavailable)
		return
	}
	if err := h.Relay.Join(r.Context(), channel); err != nil {
		http.Error(w, "chat connection is down", http.StatusServiceUnavailable)
		return
	}

	sub, unsub := h.Relay.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Relay.Done():
			return
		case msg, open := <-sub:
			if !open {
				return
			}
			if err := writeSSE(w, msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE emits one event frame.
func writeSSE(w http.ResponseWriter, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
