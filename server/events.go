package server

import (
	"net/http"
	"sync"
	"time"
)

// StreamEvent is one proxy mode change pushed to the UI.
type StreamEvent struct {
	Session string    `json:"session"`
	Mode    string    `json:"mode"`
	At      time.Time `json:"at"`
}

// EventHub fans proxy notifications out to /events subscribers. It satisfies
// the proxy's NotifySink; publishing never blocks, slow subscribers drop.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan StreamEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan StreamEvent]struct{})}
}

// StreamMode implements proxy.NotifySink.
func (h *EventHub) StreamMode(session, mode string) {
	ev := StreamEvent{Session: session, Mode: mode, At: time.Now().UTC()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (h *EventHub) subscribe() (chan StreamEvent, func()) {
	ch := make(chan StreamEvent, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// HandleEvents serves GET /events as a server-sent event stream of mode
// changes.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, unsub := h.Events.subscribe()
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
		case ev := <-sub:
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
