// Package proxy fetches and rewrites HLS playlists for the local player and
// runs the per-session ad-mitigation state machine that swaps delivery to a
// backup path while the main one carries stitched ads.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/own-c/rt/telemetry"
)

// ErrNoURL is returned for requests without a target URL, before any I/O.
var ErrNoURL = errors.New("proxy: empty url")

// FetchError wraps a transport failure talking to the media edge.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response from the media edge.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status) }

// Stream modes reported through the NotifySink.
const (
	ModeBackup = "backup"
	ModeMain   = "main"
)

// PlaybackResolver produces a signed backup delivery URL for a channel.
// *twitchapi.Client satisfies it.
type PlaybackResolver interface {
	BackupStreamURL(ctx context.Context, channel string) (string, error)
}

// NotifySink receives fire-and-forget stream mode changes. Implementations
// must not block; failures are the sink's problem, never the proxy's.
type NotifySink interface {
	StreamMode(session, mode string)
}

// Result is one proxied response: a rewritten playlist or raw media bytes.
type Result struct {
	Body        []byte
	ContentType string
	Rewritten   bool
}

// streamState tracks ad mitigation for one viewer session. All fields are
// guarded by mu; backupURL is non-empty only while usingBackup is true.
type streamState struct {
	mu          sync.Mutex
	usingBackup bool
	mainURL     string
	backupURL   string
}

// Proxy serves manifest fetches for any number of sessions. Sessions are
// independent: each has its own state and lock, so one channel's ad period
// never stalls another's fetches.
type Proxy struct {
	Base     string
	Client   *http.Client
	Resolver PlaybackResolver
	Notify   NotifySink

	mu       sync.Mutex
	sessions map[string]*streamState
}

// New builds a proxy whose rewritten URLs point back at base.
func New(base string, client *http.Client, resolver PlaybackResolver, notify NotifySink) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &Proxy{
		Base:     base,
		Client:   client,
		Resolver: resolver,
		Notify:   notify,
		sessions: make(map[string]*streamState),
	}
}

func (p *Proxy) state(session string) *streamState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.sessions[session]
	if !ok {
		st = &streamState{}
		p.sessions[session] = st
	}
	return st
}

// Reset drops a session's mitigation state, typically when the viewer
// switches channels.
func (p *Proxy) Reset(session string) {
	p.mu.Lock()
	st, ok := p.sessions[session]
	delete(p.sessions, session)
	p.mu.Unlock()
	if ok {
		st.mu.Lock()
		if st.usingBackup {
			telemetry.BackupSessionsGauge.Dec()
		}
		st.mu.Unlock()
	}
}

// FetchAndRewrite serves one proxied request: fetch the target, rewrite it if
// it is a playlist, and apply the session's ad-mitigation transition when the
// playlist is a variant.
func (p *Proxy) FetchAndRewrite(ctx context.Context, session, rawURL string) (*Result, error) {
	if rawURL == "" {
		return nil, ErrNoURL
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse url: %w", err)
	}

	body, contentType, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !isManifestContent(contentType, target) {
		return &Result{Body: body, ContentType: contentType}, nil
	}

	rewritten, info := rewriteManifest(string(body), target, p.Base, session)
	telemetry.ProxyRewrites.Inc()
	if info.isMaster {
		return &Result{Body: []byte(rewritten), ContentType: contentType, Rewritten: true}, nil
	}
	if info.adDetected {
		telemetry.AdPeriodsDetected.Inc()
	}

	st := p.state(session)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.usingBackup {
		return p.serveWhileBackup(ctx, session, st, rawURL, rewritten, info, contentType)
	}
	if !info.adDetected {
		return &Result{Body: []byte(rewritten), ContentType: contentType, Rewritten: true}, nil
	}
	return p.switchToBackup(ctx, session, st, rawURL, rewritten, contentType)
}

// switchToBackup handles the Main to Backup transition. The session lock is
// held, which serializes backup URL resolution per session.
func (p *Proxy) switchToBackup(ctx context.Context, session string, st *streamState, rawURL, rewritten string, contentType string) (*Result, error) {
	log := telemetry.LoggerWithCorr(ctx)
	if st.mainURL == "" {
		st.mainURL = rawURL
	}

	backupURL, err := p.Resolver.BackupStreamURL(ctx, session)
	if err != nil {
		// Degraded mode: no backup available, keep serving the ad-bearing
		// playlist rather than going dark.
		log.Warn("backup resolution failed, serving main", slog.String("session", session), slog.Any("err", err))
		return &Result{Body: []byte(rewritten), ContentType: contentType, Rewritten: true}, nil
	}

	st.usingBackup = true
	st.backupURL = backupURL
	p.notify(session, ModeBackup)
	telemetry.BackupSwitches.Inc()
	telemetry.BackupSessionsGauge.Inc()
	log.Info("ad period detected, switching to backup", slog.String("session", session))

	return p.serveBackup(ctx, session, st, contentType)
}

// serveWhileBackup decides what a variant fetch returns while the session is
// on the backup path. A fetch of the backup URL itself is served directly;
// anything else re-checks the main path and either recovers or suppresses.
func (p *Proxy) serveWhileBackup(ctx context.Context, session string, st *streamState, rawURL, rewritten string, info manifestInfo, contentType string) (*Result, error) {
	log := telemetry.LoggerWithCorr(ctx)

	if rawURL == st.backupURL {
		return &Result{Body: []byte(rewritten), ContentType: contentType, Rewritten: true}, nil
	}

	if st.mainURL == "" {
		// The main URL was never recorded (the ad hit on the very first
		// variant fetch and resolution raced a reset). Stay on backup with
		// a fresh URL.
		backupURL, err := p.Resolver.BackupStreamURL(ctx, session)
		if err != nil {
			log.Warn("backup re-resolution failed", slog.String("session", session), slog.Any("err", err))
			return &Result{Body: []byte(rewritten), ContentType: contentType, Rewritten: true}, nil
		}
		st.backupURL = backupURL
		return p.serveBackup(ctx, session, st, contentType)
	}

	mainBody, mainClean := rewritten, !info.adDetected
	if rawURL != st.mainURL {
		body, ct, err := p.fetch(ctx, st.mainURL)
		if err != nil {
			log.Warn("main re-check failed", slog.String("session", session), slog.Any("err", err))
			return p.serveBackup(ctx, session, st, contentType)
		}
		mainURL, _ := url.Parse(st.mainURL)
		var mainInfo manifestInfo
		mainBody, mainInfo = rewriteManifest(string(body), mainURL, p.Base, session)
		mainClean = !mainInfo.adDetected
		contentType = ct
	}

	if mainClean {
		st.usingBackup = false
		st.backupURL = ""
		telemetry.BackupRecoveries.Inc()
		telemetry.BackupSessionsGauge.Dec()
		p.notify(session, ModeMain)
		log.Info("ad period over, back to main", slog.String("session", session))
		return &Result{Body: []byte(mainBody), ContentType: contentType, Rewritten: true}, nil
	}

	res, err := p.serveBackup(ctx, session, st, contentType)
	if err != nil {
		// Suppress ad content rather than failing the player's poll.
		return &Result{Body: []byte(emptyManifest), ContentType: contentType, Rewritten: true}, nil
	}
	return res, nil
}

// serveBackup fetches and rewrites the cached backup playlist.
func (p *Proxy) serveBackup(ctx context.Context, session string, st *streamState, contentType string) (*Result, error) {
	body, ct, err := p.fetch(ctx, st.backupURL)
	if err != nil {
		return nil, err
	}
	backupURL, parseErr := url.Parse(st.backupURL)
	if parseErr != nil {
		return nil, fmt.Errorf("proxy: parse backup url: %w", parseErr)
	}
	rewritten, _ := rewriteManifest(string(body), backupURL, p.Base, session)
	if ct == "" {
		ct = contentType
	}
	return &Result{Body: []byte(rewritten), ContentType: ct, Rewritten: true}, nil
}

func (p *Proxy) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	telemetry.ProxyFetches.Inc()
	var (
		body        []byte
		contentType string
		err         error
	)
	telemetry.TimeFunc(telemetry.ProxyFetchDuration, func() {
		body, contentType, err = p.doFetch(ctx, rawURL)
	})
	if err != nil {
		telemetry.ProxyFetchErrors.Inc()
	}
	return body, contentType, err
}

func (p *Proxy) doFetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (p *Proxy) notify(session, mode string) {
	if p.Notify == nil {
		return
	}
	p.Notify.StreamMode(session, mode)
}
