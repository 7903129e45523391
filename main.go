// Command rt is the local relay the desktop client embeds. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the local sqlite store and runs idempotent migrations.
//   - Holds one persistent anonymous connection to the Twitch chat gateway
//     and restarts it with backoff when it drops.
//   - Exposes the local HTTP surface: manifest proxy, chat/event streams,
//     followed users, feed, playback resolution, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/own-c/rt/chat"
	"github.com/own-c/rt/config"
	"github.com/own-c/rt/db"
	"github.com/own-c/rt/emotes"
	"github.com/own-c/rt/feeds"
	"github.com/own-c/rt/proxy"
	"github.com/own-c/rt/server"
	"github.com/own-c/rt/telemetry"
	"github.com/own-c/rt/twitchapi"
	"github.com/own-c/rt/users"
	"github.com/own-c/rt/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("rt", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	twitch := &twitchapi.Client{
		Endpoint:   cfg.GQLEndpoint,
		UsherBase:  cfg.UsherBase,
		ClientID:   cfg.ClientID,
		HTTPClient: httpClient,
	}
	catalog := emotes.NewCatalog(database, httpClient)
	catalog.SevenTVBase = cfg.SevenTVBase
	catalog.BetterTTVBase = cfg.BetterTTVBase

	relay := chat.NewRelay(cfg.ChatEndpoint, catalog)
	if err := relay.Start(ctx); err != nil {
		slog.Warn("chat relay start failed, will retry", slog.Any("err", err))
	}
	go superviseRelay(ctx, relay)

	hub := server.NewEventHub()
	prox := proxy.New(cfg.ProxyBase, httpClient, twitch, hub)

	yt := youtubeapi.New(cfg.YTAPIKey)
	userSvc := &users.Service{
		Store:   users.NewStore(database),
		Twitch:  twitch,
		YouTube: yt,
		Emotes:  catalog,
	}
	feedSvc := &feeds.Service{
		DB:      database,
		Users:   userSvc.Store,
		Twitch:  twitch,
		YouTube: yt,
	}
	go feedSvc.Run(ctx, cfg.FeedRefreshInterval)

	h := &server.Handlers{
		DB:       database,
		Proxy:    prox,
		Relay:    relay,
		Users:    userSvc,
		Feeds:    feedSvc,
		Playback: twitch,
		Events:   hub,
	}

	slog.Info("relay listening", slog.String("addr", cfg.HTTPAddr), slog.Bool("youtube", yt.Enabled()))
	if err := server.Start(ctx, h, cfg.HTTPAddr); err != nil {
		os.Exit(1)
	}
	relay.Close()
}

// superviseRelay restarts the chat connection whenever it drops. The relay
// itself never reconnects; this loop owns the retry policy and rejoins the
// channel that was active before the drop.
func superviseRelay(ctx context.Context, relay *chat.Relay) {
	backoff := time.Second
	for {
		if relay.Connected() {
			select {
			case <-ctx.Done():
				return
			case <-relay.Done():
				slog.Warn("chat connection lost, reconnecting")
			}
		}

		channel := relay.Channel()
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err := relay.Start(ctx); err != nil {
			slog.Warn("chat reconnect failed", slog.Any("err", err), slog.Duration("backoff", backoff))
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		if channel != "" {
			if err := relay.Join(ctx, channel); err != nil {
				slog.Warn("chat rejoin failed", slog.Any("err", err), slog.String("channel", channel))
			}
		}
	}
}
