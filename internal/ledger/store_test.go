package ledger_test

import (
	"context"
	"errors"
	"testing"

	"aria/internal/ledger"
	"aria/internal/media"
	"aria/internal/testsupport"
)

func TestUpsertTrackAndFetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.NewTrack(t, store, "abc123", 200)
	if track.ID == 0 {
		t.Fatal("expected track ID to be assigned")
	}

	fetched, err := store.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if fetched.TrackKey != "abc123" || !fetched.Active {
		t.Fatalf("unexpected track: %+v", fetched)
	}

	byKey, err := store.GetTrackByKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetTrackByKey failed: %v", err)
	}
	if byKey.ID != track.ID {
		t.Fatalf("expected same track, got %+v", byKey)
	}
}

func TestUpsertTrackRefreshesExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewTrack(t, store, "k1", 100)
	if err := store.DeactivateTrack(ctx, first.ID); err != nil {
		t.Fatalf("DeactivateTrack failed: %v", err)
	}

	second, err := store.UpsertTrack(ctx, media.Track{
		TrackKey:        "k1",
		Title:           "Renamed",
		Path:            "/music/renamed.flac",
		DurationSeconds: 250,
	})
	if err != nil {
		t.Fatalf("UpsertTrack failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected stable ID, got %d vs %d", second.ID, first.ID)
	}
	if !second.Active || second.DurationSeconds != 250 || second.Title != "Renamed" {
		t.Fatalf("expected refreshed row, got %+v", second)
	}
}

func TestGetTrackUnknown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.GetTrack(context.Background(), 9999); !errors.Is(err, ledger.ErrUnknownTrack) {
		t.Fatalf("expected ErrUnknownTrack, got %v", err)
	}
}

func TestCacheDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.NewTrack(t, store, "dur", 0)
	if err := store.CacheDuration(ctx, track.ID, 187.5); err != nil {
		t.Fatalf("CacheDuration failed: %v", err)
	}
	fetched, err := store.GetTrack(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if fetched.DurationSeconds != 187.5 {
		t.Fatalf("expected cached duration, got %v", fetched.DurationSeconds)
	}
}

func TestRemoveTrackCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.NewTrack(t, store, "gone", 120)
	testsupport.CompleteStage(t, store, track.ID, media.StageFeatureExtraction, []byte(`{"schema_version":1}`))

	if err := store.RemoveTrack(ctx, track.ID); err != nil {
		t.Fatalf("RemoveTrack failed: %v", err)
	}
	status, err := store.Status(ctx, track.ID, media.StageFeatureExtraction)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != media.StatePending {
		t.Fatalf("expected cascade-deleted status to read pending, got %s", status.State)
	}
	if _, err := store.Result(ctx, track.ID, media.StageFeatureExtraction); !errors.Is(err, ledger.ErrNoResult) {
		t.Fatalf("expected ErrNoResult after cascade, got %v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.NewTrack(t, store, "h1", 60)
	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.TrackCount != 1 {
		t.Fatalf("expected 1 track, got %d", health.TrackCount)
	}
}
