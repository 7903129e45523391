package feeds

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/own-c/rt/db"
	"github.com/own-c/rt/twitchapi"
	"github.com/own-c/rt/users"
	"github.com/own-c/rt/youtubeapi"
)

func setup(t *testing.T) (*Service, *sql.DB, *fakeLive, *fakeUploads) {
	t.Helper()
	dbx, err := db.Connect(filepath.Join(t.TempDir(), "rt.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	if err := db.Migrate(context.Background(), dbx); err != nil {
		t.Fatal(err)
	}
	live := &fakeLive{streams: map[string]twitchapi.LiveStream{}}
	uploads := &fakeUploads{videos: map[string][]youtubeapi.Video{}}
	svc := &Service{DB: dbx, Users: users.NewStore(dbx), Twitch: live, YouTube: uploads}
	return svc, dbx, live, uploads
}

type fakeLive struct {
	streams map[string]twitchapi.LiveStream
	err     error
	logins  []string
}

func (f *fakeLive) LiveNow(ctx context.Context, logins []string) (map[string]twitchapi.LiveStream, error) {
	f.logins = logins
	return f.streams, f.err
}

type fakeUploads struct {
	enabled bool
	videos  map[string][]youtubeapi.Video
}

func (f *fakeUploads) Enabled() bool { return f.enabled }

func (f *fakeUploads) RecentUploads(ctx context.Context, channelID, username string, max int64) ([]youtubeapi.Video, error) {
	v, ok := f.videos[channelID]
	if !ok {
		return nil, errors.New("channel unknown")
	}
	return v, nil
}

func TestRefreshStoresLiveChannels(t *testing.T) {
	svc, _, live, _ := setup(t)
	ctx := context.Background()

	for _, name := range []string{"bob", "ana"} {
		if err := svc.Users.Add(ctx, users.User{Platform: users.PlatformTwitch, Username: name}); err != nil {
			t.Fatal(err)
		}
	}
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	live.streams["bob"] = twitchapi.LiveStream{Username: "bob", StartedAt: started}

	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(live.logins) != 2 {
		t.Errorf("polled logins = %v", live.logins)
	}

	feed, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(feed.Live) != 1 {
		t.Fatalf("live = %+v", feed.Live)
	}
	if feed.Live[0].Username != "bob" || !feed.Live[0].StartedAt.Equal(started) {
		t.Errorf("entry = %+v", feed.Live[0])
	}
}

func TestRefreshReplacesStaleEntries(t *testing.T) {
	svc, _, live, _ := setup(t)
	ctx := context.Background()

	if err := svc.Users.Add(ctx, users.User{Platform: users.PlatformTwitch, Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	live.streams["bob"] = twitchapi.LiveStream{Username: "bob", StartedAt: time.Now().UTC()}
	if err := svc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	delete(live.streams, "bob")
	if err := svc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	feed, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.Live) != 0 {
		t.Errorf("offline channel still in feed: %+v", feed.Live)
	}
}

func TestRefreshLiveFailureStillReturnsError(t *testing.T) {
	svc, _, live, _ := setup(t)
	live.err = errors.New("gql down")
	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRefreshStoresUploads(t *testing.T) {
	svc, _, _, uploads := setup(t)
	ctx := context.Background()

	if err := svc.Users.Add(ctx, users.User{Platform: users.PlatformYouTube, ID: "UC1", Username: "creator"}); err != nil {
		t.Fatal(err)
	}
	uploads.enabled = true
	uploads.videos["UC1"] = []youtubeapi.Video{
		{ID: "v1", Username: "creator", Title: "newest", PublishedAt: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), ViewCount: 100},
		{ID: "v2", Username: "creator", Title: "older", PublishedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), ViewCount: 7},
	}

	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	feed, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.Videos) != 2 {
		t.Fatalf("videos = %+v", feed.Videos)
	}
	if feed.Videos[0].ID != "v1" || feed.Videos[0].ViewCount != 100 {
		t.Errorf("videos not ordered by published_at desc: %+v", feed.Videos)
	}
}

func TestRefreshSkipsUploadsWhenDisabled(t *testing.T) {
	svc, _, _, uploads := setup(t)
	ctx := context.Background()
	if err := svc.Users.Add(ctx, users.User{Platform: users.PlatformYouTube, ID: "UC1", Username: "creator"}); err != nil {
		t.Fatal(err)
	}
	uploads.enabled = false

	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	feed, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.Videos) != 0 {
		t.Errorf("videos fetched while disabled: %+v", feed.Videos)
	}
}

func TestSnapshotEmptyStore(t *testing.T) {
	svc, _, _, _ := setup(t)
	feed, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if feed.Live == nil || feed.Videos == nil {
		t.Error("snapshot slices should be non-nil for JSON encoding")
	}
}
