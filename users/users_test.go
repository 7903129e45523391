package users

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/own-c/rt/db"
	"github.com/own-c/rt/emotes"
	"github.com/own-c/rt/twitchapi"
)

func setupStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	dbx, err := db.Connect(filepath.Join(t.TempDir(), "rt.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	if err := db.Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(dbx), dbx
}

func TestStoreAddListGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, User{Platform: PlatformTwitch, ID: "1", Username: "bob", Avatar: []byte{1, 2}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(ctx, User{Platform: PlatformTwitch, ID: "2", Username: "ana"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Username != "ana" || list[1].Username != "bob" {
		t.Errorf("list = %+v", list)
	}

	got, err := store.Get(ctx, PlatformTwitch, "bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "1" || len(got.Avatar) != 2 {
		t.Errorf("got = %+v", got)
	}

	if _, err := store.Get(ctx, PlatformTwitch, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get ghost = %v, want ErrNotFound", err)
	}
}

func TestStoreAddIsUpsert(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, User{Platform: PlatformTwitch, ID: "1", Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(ctx, User{Platform: PlatformTwitch, ID: "1", Username: "bob", Avatar: []byte{9}}); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	got, err := store.Get(ctx, PlatformTwitch, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Avatar) != 1 {
		t.Errorf("avatar not updated: %+v", got)
	}
}

func TestStoreRemoveCascades(t *testing.T) {
	store, dbx := setupStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, User{Platform: PlatformTwitch, Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	mustExec(t, dbx, `INSERT INTO feeds (platform, username, started_at) VALUES ('twitch', 'bob', '2026-08-30T00:00:00Z')`)
	mustExec(t, dbx, `INSERT INTO feed_videos (id, username, title) VALUES ('v1', 'bob', 'clip')`)
	mustExec(t, dbx, `INSERT INTO emotes (username, name, url) VALUES ('bob', 'Pog', 'u')`)

	if err := store.Remove(ctx, PlatformTwitch, "bob"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, q := range []string{
		`SELECT COUNT(*) FROM users`,
		`SELECT COUNT(*) FROM feeds`,
		`SELECT COUNT(*) FROM feed_videos`,
		`SELECT COUNT(*) FROM emotes`,
	} {
		var n int
		if err := dbx.QueryRow(q).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s = %d, want 0", q, n)
		}
	}

	if err := store.Remove(ctx, PlatformTwitch, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func mustExec(t *testing.T, dbx *sql.DB, q string) {
	t.Helper()
	if _, err := dbx.Exec(q); err != nil {
		t.Fatal(err)
	}
}

type fakeTwitch struct {
	user      *twitchapi.User
	avatar    []byte
	avatarErr error
}

func (f *fakeTwitch) FetchUser(ctx context.Context, login string) (*twitchapi.User, error) {
	if f.user == nil {
		return nil, errors.New("user not found")
	}
	return f.user, nil
}

func (f *fakeTwitch) FetchAvatar(ctx context.Context, url string) ([]byte, error) {
	return f.avatar, f.avatarErr
}

type fakeRefresher struct {
	refreshed string
	seed      map[string]emotes.Emote
	forgot    string
	err       error
}

func (f *fakeRefresher) Refresh(ctx context.Context, channel, twitchID string, seed map[string]emotes.Emote) (map[string]emotes.Emote, error) {
	f.refreshed = channel
	f.seed = seed
	return seed, f.err
}

func (f *fakeRefresher) Forget(ctx context.Context, channel string) error {
	f.forgot = channel
	return nil
}

func TestFollowTwitchPrimesEmotes(t *testing.T) {
	store, _ := setupStore(t)
	seed := map[string]emotes.Emote{"chanHype": {Name: "chanHype"}}
	tw := &fakeTwitch{
		user:   &twitchapi.User{ID: "42", Login: "bob", AvatarURL: "https://cdn/av.png", Emotes: seed},
		avatar: []byte{0xFF},
	}
	ref := &fakeRefresher{}
	svc := &Service{Store: store, Twitch: tw, Emotes: ref}

	u, err := svc.Follow(context.Background(), PlatformTwitch, " Bob ")
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if u.Username != "bob" || u.ID != "42" || len(u.Avatar) != 1 {
		t.Errorf("user = %+v", u)
	}
	if ref.refreshed != "bob" || len(ref.seed) != 1 {
		t.Errorf("emotes not primed: %+v", ref)
	}

	stored, err := store.Get(context.Background(), PlatformTwitch, "bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.ID != "42" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestFollowSucceedsWhenEmoteRefreshFails(t *testing.T) {
	store, _ := setupStore(t)
	tw := &fakeTwitch{user: &twitchapi.User{ID: "42", Login: "bob"}}
	svc := &Service{Store: store, Twitch: tw, Emotes: &fakeRefresher{err: errors.New("7tv down")}}

	if _, err := svc.Follow(context.Background(), PlatformTwitch, "bob"); err != nil {
		t.Fatalf("Follow should tolerate emote failure: %v", err)
	}
}

func TestFollowUnknownPlatform(t *testing.T) {
	store, _ := setupStore(t)
	svc := &Service{Store: store}
	if _, err := svc.Follow(context.Background(), "mixer", "bob"); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestUnfollowForgetsEmotes(t *testing.T) {
	store, _ := setupStore(t)
	if err := store.Add(context.Background(), User{Platform: PlatformTwitch, Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	ref := &fakeRefresher{}
	svc := &Service{Store: store, Emotes: ref}

	if err := svc.Unfollow(context.Background(), PlatformTwitch, "bob"); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
	if ref.forgot != "bob" {
		t.Errorf("emotes not forgotten: %+v", ref)
	}
}
