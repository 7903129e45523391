// Package twitchapi contains minimal helpers to interact with the Twitch GraphQL
// API for anonymous playback-token resolution, live-status polling, and user
// metadata lookup. All calls use the public web player client id; the relay
// never authenticates.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/own-c/rt/emotes"
)

const (
	defaultGQLEndpoint = "https://gql.twitch.tv/gql"
	defaultUsherBase   = "https://usher.ttvnw.net/api/channel/hls"
	defaultClientID    = "kimne78kx3ncx6brgo4mv6wki5h1ko"
)

// Client provides the GraphQL methods needed by the proxy and the feed.
type Client struct {
	Endpoint   string
	UsherBase  string
	ClientID   string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return defaultGQLEndpoint
}

func (c *Client) usherBase() string {
	if c.UsherBase != "" {
		return c.UsherBase
	}
	return defaultUsherBase
}

func (c *Client) clientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return defaultClientID
}

// send posts a GraphQL payload and decodes the response into out.
func (c *Client) send(ctx context.Context, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gql payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Client-ID", c.clientID())
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("gql request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gql request failed: %s - %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PlaybackURL resolves a signed usher URL for a channel. The backup variant
// requests a different ad-insertion profile (the ios player surface) and is
// used by the proxy while the main path carries stitched ads.
func (c *Client) PlaybackURL(ctx context.Context, channel string, backup bool) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("no channel provided")
	}
	var resp struct {
		Data struct {
			StreamPlaybackAccessToken *struct {
				Value     string `json:"value"`
				Signature string `json:"signature"`
			} `json:"streamPlaybackAccessToken"`
		} `json:"data"`
	}
	if err := c.send(ctx, playbackQuery(channel, backup), &resp); err != nil {
		return "", err
	}
	tok := resp.Data.StreamPlaybackAccessToken
	if tok == nil {
		return "", fmt.Errorf("no stream playback access token for %q", channel)
	}
	return c.playlistURL(channel, backup, tok.Signature, tok.Value), nil
}

func (c *Client) playlistURL(channel string, backup bool, signature, token string) string {
	p := rand.Intn(9_000_000) + 1_000_000
	if backup {
		return fmt.Sprintf("%s/%s.m3u8?platform=ios&supported_codecs=h264&player=twitchweb&fast_bread=true&p=%d&sig=%s&token=%s",
			c.usherBase(), channel, p, signature, token)
	}
	return fmt.Sprintf("%s/%s.m3u8?platform=web&supported_codecs=av1,h265,h264&allow_source=true&player=twitchweb&fast_bread=true&p=%d&sig=%s&token=%s",
		c.usherBase(), channel, p, signature, token)
}

// BackupStreamURL resolves the variant playlist URL of the backup delivery
// path: the signed backup master playlist carries the variant URL on its
// fifth line. This satisfies the proxy's PlaybackResolver collaborator.
func (c *Client) BackupStreamURL(ctx context.Context, channel string) (string, error) {
	masterURL, err := c.PlaybackURL(ctx, channel, true)
	if err != nil {
		return "", fmt.Errorf("fetch backup playback: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, masterURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch backup master: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backup master returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	if len(lines) < 5 {
		return "", fmt.Errorf("backup master playlist is malformed")
	}
	return lines[4], nil
}

// LiveStream is the live status of one followed channel.
type LiveStream struct {
	Username  string    `json:"username"`
	StartedAt time.Time `json:"started_at"`
}

// LiveNow returns the subset of logins that is currently live, keyed by login.
func (c *Client) LiveNow(ctx context.Context, logins []string) (map[string]LiveStream, error) {
	batch := make([]useLiveQuery, 0, len(logins))
	for _, login := range logins {
		if login == "" {
			continue
		}
		batch = append(batch, newUseLiveQuery(login))
	}
	if len(batch) == 0 {
		return map[string]LiveStream{}, nil
	}

	var resp []struct {
		Data struct {
			User struct {
				Login  string `json:"login"`
				Stream *struct {
					CreatedAt time.Time `json:"createdAt"`
				} `json:"stream"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.send(ctx, batch, &resp); err != nil {
		return nil, fmt.Errorf("fetch UseLive: %w", err)
	}

	live := make(map[string]LiveStream)
	for _, obj := range resp {
		if obj.Data.User.Stream == nil {
			continue
		}
		live[obj.Data.User.Login] = LiveStream{
			Username:  obj.Data.User.Login,
			StartedAt: obj.Data.User.Stream.CreatedAt,
		}
	}
	return live, nil
}

// User is the platform metadata needed to follow a channel.
type User struct {
	ID        string
	Login     string
	AvatarURL string
	// Subscription emotes keyed by token; merged with third-party catalogs.
	Emotes map[string]emotes.Emote
}

// FetchUser looks up a channel's id, avatar, and subscription emotes.
func (c *Client) FetchUser(ctx context.Context, login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("no login provided")
	}
	var resp struct {
		Data struct {
			User *struct {
				ID              string `json:"id"`
				ProfileImageURL string `json:"profileImageURL"`
				SubProducts     []struct {
					Emotes []struct {
						ID    string `json:"id"`
						Token string `json:"token"`
					} `json:"emotes"`
				} `json:"subscriptionProducts"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.send(ctx, fullUserQuery(login), &resp); err != nil {
		return nil, err
	}
	if resp.Data.User == nil {
		return nil, fmt.Errorf("user %q not found", login)
	}

	subEmotes := make(map[string]emotes.Emote)
	for _, product := range resp.Data.User.SubProducts {
		for _, e := range product.Emotes {
			subEmotes[e.Token] = emotes.TwitchEmote(e.Token, e.ID)
		}
	}
	return &User{
		ID:        resp.Data.User.ID,
		Login:     login,
		AvatarURL: resp.Data.User.ProfileImageURL,
		Emotes:    subEmotes,
	}, nil
}

// FetchAvatar downloads a profile image, returning nil bytes for an empty URL.
func (c *Client) FetchAvatar(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("avatar fetch returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
