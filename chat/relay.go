package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/own-c/rt/emotes"
	"github.com/own-c/rt/telemetry"
)

const (
	// DefaultEndpoint is the anonymous Twitch IRC gateway.
	DefaultEndpoint = "wss://irc-ws.chat.twitch.tv"

	subscriberBuffer = 64
	dialTimeout      = 10 * time.Second

	// selfPingDelay is how long after a server PING the relay probes the
	// connection itself. The server pings roughly every five minutes, so a
	// dead link is noticed within a minute instead.
	selfPingDelay = 60 * time.Second
)

// ErrNotConnected is returned by operations that need a live upstream link.
var ErrNotConnected = errors.New("chat: not connected")

// EmoteSource resolves the emote table for a channel. *emotes.Catalog
// satisfies it.
type EmoteSource interface {
	Lookup(ctx context.Context, channel string) map[string]emotes.Emote
}

// Relay owns the single upstream IRC connection and fans parsed messages out
// to subscribers. It never reconnects on its own: when the connection dies
// the Done channel closes and the caller decides whether to Start a new one.
type Relay struct {
	endpoint string
	emotes   EmoteSource
	pingWait time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	running  bool
	channel  string
	table    map[string]emotes.Emote
	subs     map[chan ChatMessage]struct{}
	outbound chan string
	done     chan struct{}
	cancel   context.CancelFunc
}

// NewRelay builds a relay against the given gateway. An empty endpoint uses
// DefaultEndpoint; src may be nil, in which case messages carry no emotes.
func NewRelay(endpoint string, src EmoteSource) *Relay {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Relay{
		endpoint: endpoint,
		emotes:   src,
		pingWait: selfPingDelay,
		subs:     make(map[chan ChatMessage]struct{}),
	}
}

// Start dials the gateway, performs the anonymous handshake, and spawns the
// connection loop. It fails if the relay is already running.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("chat: relay already running")
	}
	r.mu.Unlock()

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, r.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial chat gateway: %w", err)
	}

	handshake := []string{
		"CAP REQ :twitch.tv/tags",
		"PASS SCHMOOPIIE",
		fmt.Sprintf("NICK justinfan%d", rand.Intn(90_000)+10_000),
	}
	for _, line := range handshake {
		if err := conn.Write(dialCtx, websocket.MessageText, []byte(line)); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "handshake failed")
			return fmt.Errorf("chat handshake: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.conn = conn
	r.running = true
	r.channel = ""
	r.table = nil
	r.outbound = make(chan string, 16)
	r.done = make(chan struct{})
	r.cancel = cancel
	r.mu.Unlock()

	telemetry.UpdateChatConnected(true)
	go r.run(loopCtx, conn)
	return nil
}

// run is the single connection loop: it serializes all writes and dispatches
// all reads until the connection or the context dies.
func (r *Relay) run(ctx context.Context, conn *websocket.Conn) {
	defer r.teardown(conn)

	frames := make(chan string, 32)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- string(data):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				slog.Warn("chat connection lost", slog.Any("err", err))
			}
			return
		case frame := <-frames:
			for _, line := range strings.Split(frame, "\r\n") {
				if line == "" {
					continue
				}
				if !r.handleLine(ctx, conn, line) {
					return
				}
			}
		case cmd := <-r.outbound:
			if err := conn.Write(ctx, websocket.MessageText, []byte(cmd)); err != nil {
				slog.Warn("chat write failed", slog.Any("err", err))
				return
			}
		}
	}
}

// handleLine processes one IRC line. It returns false when the connection
// should be torn down.
func (r *Relay) handleLine(ctx context.Context, conn *websocket.Conn, line string) bool {
	telemetry.ChatLinesReceived.Inc()

	if strings.HasPrefix(line, "PING") {
		telemetry.ChatKeepAlives.Inc()
		if err := conn.Write(ctx, websocket.MessageText, []byte("PONG :tmi.twitch.tv")); err != nil {
			slog.Warn("chat pong failed", slog.Any("err", err))
			return false
		}
		// One probe per server ping. If the link is dead by then the
		// write error ends the loop.
		time.AfterFunc(r.pingWait, func() {
			r.trySend("PING :tmi.twitch.tv")
		})
		return true
	}

	msg, ok := ParseLine(line, r.currentTable())
	if !ok {
		return true
	}
	r.broadcast(msg)
	return true
}

func (r *Relay) broadcast(msg ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs {
		select {
		case sub <- msg:
			telemetry.ChatMessagesSent.Inc()
		default:
			telemetry.ChatLinesDropped.Inc()
		}
	}
}

// Join switches the upstream subscription to a new channel, leaving the
// previous one first. Channel names are matched case-insensitively.
func (r *Relay) Join(ctx context.Context, channel string) error {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return errors.New("chat: empty channel")
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotConnected
	}
	prev := r.channel
	r.channel = channel
	outbound, done := r.outbound, r.done
	r.mu.Unlock()

	if prev == channel {
		return nil
	}

	var table map[string]emotes.Emote
	if r.emotes != nil {
		table = r.emotes.Lookup(ctx, channel)
	}
	r.mu.Lock()
	r.table = table
	r.mu.Unlock()

	cmds := make([]string, 0, 2)
	if prev != "" {
		cmds = append(cmds, "PART #"+prev)
	}
	cmds = append(cmds, "JOIN #"+channel)
	for _, cmd := range cmds {
		select {
		case outbound <- cmd:
		case <-done:
			return ErrNotConnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a consumer of parsed messages. Slow consumers lose
// messages rather than stalling the connection loop. The returned function
// removes the subscription and closes the channel.
func (r *Relay) Subscribe() (<-chan ChatMessage, func()) {
	ch := make(chan ChatMessage, subscriberBuffer)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	telemetry.SetChatSubscribers(len(r.subs))
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			telemetry.SetChatSubscribers(len(r.subs))
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Connected reports whether the upstream connection loop is alive.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Channel returns the currently joined channel, or "" when none.
func (r *Relay) Channel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}

// Done returns a channel closed when the connection loop exits. It is nil
// before the first Start.
func (r *Relay) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Close tears the connection down and waits for the loop to exit.
func (r *Relay) Close() {
	r.mu.Lock()
	cancel, done, running := r.cancel, r.done, r.running
	r.mu.Unlock()
	if !running {
		return
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Relay) currentTable() map[string]emotes.Emote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table
}

// trySend queues a command without blocking; a full queue on a wedged
// connection just drops the probe.
func (r *Relay) trySend(cmd string) {
	r.mu.Lock()
	outbound, running := r.outbound, r.running
	r.mu.Unlock()
	if !running {
		return
	}
	select {
	case outbound <- cmd:
	default:
	}
}

func (r *Relay) teardown(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "")
	r.mu.Lock()
	r.running = false
	r.conn = nil
	done := r.done
	r.mu.Unlock()
	telemetry.UpdateChatConnected(false)
	if done != nil {
		close(done)
	}
}
