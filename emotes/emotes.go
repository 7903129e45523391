// Package emotes maintains per-channel emote catalogs from the third-party
// providers (7TV, BetterTTV) and the Twitch emote CDN. Catalogs are cached in
// memory and persisted to the local sqlite store; provider failures degrade to
// whatever subset could be fetched, never to an error for the chat pipeline.
package emotes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// TwitchCDN is the base URL for first-party subscription emote images.
const TwitchCDN = "https://static-cdn.jtvnw.net/emoticons/v2"

const (
	defaultSevenTVBase   = "https://7tv.io/v3"
	defaultBetterTTVBase = "https://api.betterttv.net/3"
	betterTTVEmoteCDN    = "https://cdn.betterttv.net/emote"
)

// Emote is one catalog entry. JSON keys are kept short because these are
// embedded in every chat fragment shipped to the UI.
type Emote struct {
	Name   string `json:"n"`
	URL    string `json:"u"`
	Width  int64  `json:"w"`
	Height int64  `json:"h"`
}

// Catalog looks up and refreshes per-channel emote tables.
type Catalog struct {
	DB         *sql.DB
	HTTPClient *http.Client

	// Overridable in tests; empty means the public endpoints.
	SevenTVBase   string
	BetterTTVBase string

	mu    sync.Mutex
	cache map[string]map[string]Emote
}

func NewCatalog(dbx *sql.DB, client *http.Client) *Catalog {
	if client == nil {
		client = http.DefaultClient
	}
	return &Catalog{
		DB:         dbx,
		HTTPClient: client,
		cache:      make(map[string]map[string]Emote),
	}
}

// Lookup returns the emote table for a channel: memory cache first, then the
// sqlite store. A channel with no stored catalog gets an empty table.
func (c *Catalog) Lookup(ctx context.Context, channel string) map[string]Emote {
	c.mu.Lock()
	if table, ok := c.cache[channel]; ok {
		c.mu.Unlock()
		return table
	}
	c.mu.Unlock()

	table, err := c.load(ctx, channel)
	if err != nil {
		slog.Warn("emote catalog load failed", slog.String("channel", channel), slog.Any("err", err))
		return map[string]Emote{}
	}
	c.mu.Lock()
	c.cache[channel] = table
	c.mu.Unlock()
	return table
}

// Refresh fetches the third-party catalogs for a channel (identified by its
// Twitch user id), merges them over seed (first-party subscription emotes),
// and replaces the stored catalog. Provider failures are logged and skipped.
func (c *Catalog) Refresh(ctx context.Context, channel, twitchID string, seed map[string]Emote) (map[string]Emote, error) {
	table := make(map[string]Emote, len(seed))
	for name, e := range seed {
		table[name] = e
	}

	if sevenTV, err := c.fetchSevenTV(ctx, twitchID); err != nil {
		slog.Warn("7tv emotes fetch failed", slog.String("channel", channel), slog.Any("err", err))
	} else {
		for name, e := range sevenTV {
			table[name] = e
		}
	}

	if betterTTV, err := c.fetchBetterTTV(ctx, twitchID); err != nil {
		slog.Warn("betterttv emotes fetch failed", slog.String("channel", channel), slog.Any("err", err))
	} else {
		for name, e := range betterTTV {
			table[name] = e
		}
	}

	if err := c.save(ctx, channel, table); err != nil {
		return table, fmt.Errorf("save emote catalog: %w", err)
	}
	c.mu.Lock()
	c.cache[channel] = table
	c.mu.Unlock()
	return table, nil
}

// Forget drops a channel from the cache and the store (user removal).
func (c *Catalog) Forget(ctx context.Context, channel string) error {
	c.mu.Lock()
	delete(c.cache, channel)
	c.mu.Unlock()
	if c.DB == nil {
		return nil
	}
	_, err := c.DB.ExecContext(ctx, `DELETE FROM emotes WHERE username = ?`, channel)
	return err
}

func (c *Catalog) load(ctx context.Context, channel string) (map[string]Emote, error) {
	table := make(map[string]Emote)
	if c.DB == nil {
		return table, nil
	}
	rows, err := c.DB.QueryContext(ctx, `SELECT name, url, width, height FROM emotes WHERE username = ?`, channel)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	for rows.Next() {
		var e Emote
		if err := rows.Scan(&e.Name, &e.URL, &e.Width, &e.Height); err != nil {
			return nil, err
		}
		table[e.Name] = e
	}
	return table, rows.Err()
}

func (c *Catalog) save(ctx context.Context, channel string, table map[string]Emote) error {
	if c.DB == nil {
		return nil
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM emotes WHERE username = ?`, channel); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, e := range table {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO emotes (username, name, url, width, height) VALUES (?, ?, ?, ?, ?)`,
			channel, e.Name, e.URL, e.Width, e.Height); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// TwitchEmote builds a catalog entry for a first-party subscription emote id.
func TwitchEmote(name, id string) Emote {
	return Emote{
		Name:   name,
		URL:    fmt.Sprintf("%s/%s/default/dark/1.0", TwitchCDN, id),
		Width:  28,
		Height: 28,
	}
}

func (c *Catalog) sevenTVBase() string {
	if c.SevenTVBase != "" {
		return c.SevenTVBase
	}
	return defaultSevenTVBase
}

func (c *Catalog) betterTTVBase() string {
	if c.BetterTTVBase != "" {
		return c.BetterTTVBase
	}
	return defaultBetterTTVBase
}

func (c *Catalog) fetchSevenTV(ctx context.Context, twitchID string) (map[string]Emote, error) {
	var body struct {
		EmoteSet struct {
			Emotes []struct {
				Name string `json:"name"`
				Data struct {
					Host struct {
						URL   string `json:"url"`
						Files []struct {
							Name   string `json:"name"`
							Width  int64  `json:"width"`
							Height int64  `json:"height"`
							Format string `json:"format"`
						} `json:"files"`
					} `json:"host"`
				} `json:"data"`
			} `json:"emotes"`
		} `json:"emote_set"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/users/twitch/%s", c.sevenTVBase(), twitchID), &body); err != nil {
		return nil, err
	}

	table := make(map[string]Emote)
	for _, raw := range body.EmoteSet.Emotes {
		// Smallest rendition only; prefer the most compact format available.
		best := -1
		bestPriority := len(formatPriority)
		for i, f := range raw.Data.Host.Files {
			if !strings.HasPrefix(f.Name, "1") {
				continue
			}
			if p, ok := formatPriority[strings.ToUpper(f.Format)]; ok && p < bestPriority {
				bestPriority = p
				best = i
			}
		}
		if best < 0 {
			continue
		}
		f := raw.Data.Host.Files[best]
		table[raw.Name] = Emote{
			Name:   raw.Name,
			URL:    "https:" + raw.Data.Host.URL + "/" + f.Name,
			Width:  f.Width,
			Height: f.Height,
		}
	}
	return table, nil
}

var formatPriority = map[string]int{"AVIF": 0, "WEBP": 1, "PNG": 2, "GIF": 3}

func (c *Catalog) fetchBetterTTV(ctx context.Context, twitchID string) (map[string]Emote, error) {
	var body struct {
		ChannelEmotes []betterTTVEmote `json:"channelEmotes"`
		SharedEmotes  []betterTTVEmote `json:"sharedEmotes"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/cached/users/twitch/%s", c.betterTTVBase(), twitchID), &body); err != nil {
		return nil, err
	}

	table := make(map[string]Emote)
	for _, raw := range append(body.ChannelEmotes, body.SharedEmotes...) {
		width, height := int64(28), int64(28)
		if raw.Width != nil {
			width = *raw.Width
		}
		if raw.Height != nil {
			height = *raw.Height
		}
		table[raw.Code] = Emote{
			Name:   raw.Code,
			URL:    fmt.Sprintf("%s/%s/1x", betterTTVEmoteCDN, raw.ID),
			Width:  width,
			Height: height,
		}
	}
	return table, nil
}

type betterTTVEmote struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Width  *int64 `json:"width"`
	Height *int64 `json:"height"`
}

func (c *Catalog) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emote provider returned %d for %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
