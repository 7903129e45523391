package emotes

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/own-c/rt/db"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dbx, err := db.Connect(filepath.Join(t.TempDir(), "rt.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	if err := db.Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return dbx
}

func TestRefreshMergesProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/7tv/users/twitch/123":
			_, _ = w.Write([]byte(`{"emote_set":{"emotes":[
				{"name":"PogSeven","data":{"host":{"url":"//cdn.7tv.app/emote/abc","files":[
					{"name":"1x.gif","width":32,"height":32,"format":"GIF"},
					{"name":"1x.webp","width":32,"height":32,"format":"WEBP"},
					{"name":"4x.avif","width":128,"height":128,"format":"AVIF"}
				]}}}]}}`))
		case "/bttv/cached/users/twitch/123":
			_, _ = w.Write([]byte(`{"channelEmotes":[{"id":"e1","code":"catJAM","width":28,"height":28}],
				"sharedEmotes":[{"id":"e2","code":"monkaS"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dbx := setupDB(t)
	cat := NewCatalog(dbx, srv.Client())
	cat.SevenTVBase = srv.URL + "/7tv"
	cat.BetterTTVBase = srv.URL + "/bttv"

	seed := map[string]Emote{"SubEmote": TwitchEmote("SubEmote", "42")}
	table, err := cat.Refresh(context.Background(), "somechannel", "123", seed)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	if len(table) != 4 {
		t.Fatalf("got %d emotes, want 4: %v", len(table), table)
	}
	// The 1x webp wins over the 1x gif; the 4x avif is not a 1x rendition.
	if got := table["PogSeven"].URL; got != "https://cdn.7tv.app/emote/abc/1x.webp" {
		t.Errorf("PogSeven URL = %q", got)
	}
	if got := table["monkaS"]; got.Width != 28 || got.Height != 28 {
		t.Errorf("monkaS dimensions = %dx%d, want 28x28 defaults", got.Width, got.Height)
	}
	if got := table["SubEmote"].URL; got != TwitchCDN+"/42/default/dark/1.0" {
		t.Errorf("SubEmote URL = %q", got)
	}
}

func TestRefreshDegradesOnProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dbx := setupDB(t)
	cat := NewCatalog(dbx, srv.Client())
	cat.SevenTVBase = srv.URL
	cat.BetterTTVBase = srv.URL

	seed := map[string]Emote{"OnlySub": TwitchEmote("OnlySub", "7")}
	table, err := cat.Refresh(context.Background(), "somechannel", "123", seed)
	if err != nil {
		t.Fatalf("Refresh() should degrade, got error: %v", err)
	}
	if len(table) != 1 || table["OnlySub"].Name != "OnlySub" {
		t.Errorf("expected seed-only table, got %v", table)
	}
}

func TestLookupRoundTripsThroughStore(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dbx := setupDB(t)
	cat := NewCatalog(dbx, srv.Client())
	cat.SevenTVBase = srv.URL
	cat.BetterTTVBase = srv.URL

	seed := map[string]Emote{"Kappa": {Name: "Kappa", URL: "https://x.test/k", Width: 25, Height: 28}}
	// Providers 404: Refresh degrades and keeps the seed.
	if _, err := cat.Refresh(context.Background(), "chan", "123", seed); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	// A fresh catalog over the same store must load from sqlite.
	fresh := NewCatalog(dbx, nil)
	table := fresh.Lookup(context.Background(), "chan")
	if got := table["Kappa"]; got.URL != "https://x.test/k" || got.Width != 25 {
		t.Errorf("stored emote = %+v", got)
	}

	if err := fresh.Forget(context.Background(), "chan"); err != nil {
		t.Fatalf("Forget() error: %v", err)
	}
	if got := NewCatalog(dbx, nil).Lookup(context.Background(), "chan"); len(got) != 0 {
		t.Errorf("expected empty table after Forget, got %v", got)
	}
}

func TestLookupUnknownChannelIsEmpty(t *testing.T) {
	dbx := setupDB(t)
	cat := NewCatalog(dbx, nil)
	if got := cat.Lookup(context.Background(), "nobody"); len(got) != 0 {
		t.Errorf("expected empty table, got %v", got)
	}
}
