package testsupport

import (
	"context"
	"fmt"
	"testing"

	"aria/internal/config"
	"aria/internal/ledger"
	"aria/internal/media"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTrack registers a track for tests using the provided store.
func NewTrack(t testing.TB, store *ledger.Store, key string, durationSeconds float64) media.Track {
	t.Helper()

	track, err := store.UpsertTrack(context.Background(), media.Track{
		TrackKey:        key,
		Title:           fmt.Sprintf("Track %s", key),
		Path:            fmt.Sprintf("/music/%s.flac", key),
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		t.Fatalf("store.UpsertTrack: %v", err)
	}
	return track
}

// CompleteStage drives a track×stage through running → done with the given
// payload, failing the test on any error.
func CompleteStage(t testing.TB, store *ledger.Store, trackID int64, stage media.Stage, payload []byte) {
	t.Helper()

	ctx := context.Background()
	if err := store.MarkRunning(ctx, trackID, stage); err != nil {
		t.Fatalf("MarkRunning(%s): %v", stage, err)
	}
	if payload == nil {
		payload = []byte(`{}`)
	}
	if err := store.MarkDone(ctx, trackID, stage, media.ResultSchemaVersion, payload); err != nil {
		t.Fatalf("MarkDone(%s): %v", stage, err)
	}
}
