// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	ProxyFetches      = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_proxy_fetches_total", Help: "Number of upstream manifest/segment fetches"})
	ProxyFetchErrors  = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_proxy_fetch_errors_total", Help: "Number of failed upstream fetches"})
	ProxyRewrites     = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_proxy_rewrites_total", Help: "Number of manifests rewritten"})
	AdPeriodsDetected = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_proxy_ads_detected_total", Help: "Number of fetches with the ad marker present"})
	BackupSwitches    = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_proxy_backup_switches_total", Help: "Number of main-to-backup stream switches"})
	BackupRecoveries  = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_proxy_backup_recoveries_total", Help: "Number of backup-to-main stream recoveries"})
	ChatLinesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_chat_lines_received_total", Help: "Raw protocol lines read from the chat socket"})
	ChatMessagesSent  = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_chat_messages_sent_total", Help: "Parsed messages fanned out to subscribers"})
	ChatLinesDropped  = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_chat_lines_dropped_total", Help: "Messages dropped by slow subscribers"})
	ChatKeepAlives    = promauto.NewCounter(prometheus.CounterOpts{Name: "rt_chat_keepalives_total", Help: "Server pings answered on the chat socket"})

	// Histograms (seconds)
	ProxyFetchDuration prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "rt_proxy_fetch_duration_seconds", Help: "Upstream fetch duration seconds", Buckets: prometheus.DefBuckets})

	// Gauges
	ChatSubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "rt_chat_subscribers", Help: "Current number of chat subscribers"})
	ChatConnectedGauge   = promauto.NewGauge(prometheus.GaugeOpts{Name: "rt_chat_connected", Help: "Chat socket connected=1 down=0"})
	BackupSessionsGauge  = promauto.NewGauge(prometheus.GaugeOpts{Name: "rt_proxy_backup_sessions", Help: "Sessions currently served from the backup path"})
)

// UpdateChatConnected sets gauge to 1 if connected else 0.
func UpdateChatConnected(connected bool) {
	if ChatConnectedGauge != nil {
		if connected {
			ChatConnectedGauge.Set(1)
		} else {
			ChatConnectedGauge.Set(0)
		}
	}
}

// SetChatSubscribers records the current subscriber count.
func SetChatSubscribers(n int) {
	if ChatSubscribersGauge != nil {
		ChatSubscribersGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
