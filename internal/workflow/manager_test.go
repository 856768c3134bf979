package workflow_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"aria/internal/config"
	"aria/internal/coordinator"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/media"
	"aria/internal/simindex"
	"aria/internal/testsupport"
	"aria/internal/workflow"
)

type fixture struct {
	cfg   *config.Config
	store *ledger.Store
	index *simindex.Index
	coord *coordinator.Coordinator
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	fastPolling := func(c *config.Config) {
		c.Workflow.QueuePollInterval = 1
		c.Workflow.ErrorRetryInterval = 1
	}
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{fastPolling}, opts...)...)
	store := testsupport.MustOpenStore(t, cfg)
	extractor := &testsupport.FakeExtractor{
		Features: media.FeatureSet{BPM: 110, Energy: 0.5, Key: "C", Scale: "major", KeyStrength: 0.9},
		Duration: 200,
	}
	tagger := &testsupport.FakeTagger{
		Tags: []media.TagScore{{Tag: "electronic", Confidence: 0.8}},
	}
	index := simindex.New(simindex.OptionsFromConfig(cfg, logging.NewNop()))
	return &fixture{
		cfg:   cfg,
		store: store,
		index: index,
		coord: coordinator.New(cfg, store, extractor, tagger, index, logging.NewNop()),
	}
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestManagerDrivesTracksThroughAllStages(t *testing.T) {
	f := newFixture(t)
	first := testsupport.NewTrack(t, f.store, "m1", 200)
	second := testsupport.NewTrack(t, f.store, "m2", 200)

	manager := workflow.NewManager(f.cfg, f.store, f.coord, f.index, logging.NewNop())
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	allDone := func(trackID int64) bool {
		snapshot, err := f.store.StatusSnapshot(context.Background(), trackID)
		if err != nil {
			return false
		}
		for _, stage := range media.AllStages() {
			if snapshot.Stages[stage].State != media.StateDone {
				return false
			}
		}
		return true
	}
	waitFor(t, 15*time.Second, func() bool { return allDone(first.ID) && allDone(second.ID) })

	if !f.index.Contains(first.ID) || !f.index.Contains(second.ID) {
		t.Fatal("indexed tracks missing from similarity index")
	}
	if err := manager.LastError(); err != nil {
		t.Fatalf("unexpected background error: %v", err)
	}
}

func TestManagerStopPersistsIndex(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "m1", 200)

	manager := workflow.NewManager(f.cfg, f.store, f.coord, f.index, logging.NewNop())
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 15*time.Second, func() bool { return f.index.Contains(track.ID) })
	manager.Stop()

	if _, err := os.Stat(f.cfg.IndexPath()); err != nil {
		t.Fatalf("expected persisted index after Stop: %v", err)
	}

	restored := simindex.New(simindex.OptionsFromConfig(f.cfg, logging.NewNop()))
	if err := restored.Load(context.Background(), f.cfg.IndexPath()); err != nil {
		t.Fatalf("Load persisted index failed: %v", err)
	}
	if !restored.Contains(track.ID) {
		t.Fatal("persisted index missing track")
	}
}

func TestManagerStartTwiceFails(t *testing.T) {
	f := newFixture(t)
	manager := workflow.NewManager(f.cfg, f.store, f.coord, f.index, logging.NewNop())
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !manager.Running() {
		t.Fatal("manager should still be running")
	}
}

func TestManagerStopIdempotent(t *testing.T) {
	f := newFixture(t)
	manager := workflow.NewManager(f.cfg, f.store, f.coord, f.index, logging.NewNop())
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	manager.Stop()
	manager.Stop()
	if manager.Running() {
		t.Fatal("manager still running after Stop")
	}
}

func TestPrepareIndexRebuildsFromLedgerResults(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "m1", 200)

	run := func(stage media.Stage) {
		outcome, err := f.coord.RunStage(context.Background(), track, stage)
		if err != nil || outcome != coordinator.OutcomeSucceeded {
			t.Fatalf("RunStage(%s): outcome=%v err=%v", stage, outcome, err)
		}
	}
	run(media.StageFeatureExtraction)
	run(media.StageTagPrediction)

	fresh := simindex.New(simindex.OptionsFromConfig(f.cfg, logging.NewNop()))
	if err := workflow.PrepareIndex(context.Background(), f.cfg, f.store, fresh); err != nil {
		t.Fatalf("PrepareIndex failed: %v", err)
	}
	if !fresh.Contains(track.ID) {
		t.Fatal("rebuilt index missing track")
	}

	// Second prepare finds the file written by the rebuild and loads it.
	reloaded := simindex.New(simindex.OptionsFromConfig(f.cfg, logging.NewNop()))
	if err := workflow.PrepareIndex(context.Background(), f.cfg, f.store, reloaded); err != nil {
		t.Fatalf("PrepareIndex reload failed: %v", err)
	}
	if !reloaded.Contains(track.ID) {
		t.Fatal("loaded index missing track")
	}
}

func TestForceReanalyzeDropsTrackFromRebuiltIndex(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "m1", 200)

	run := func(stage media.Stage) {
		outcome, err := f.coord.RunStage(context.Background(), track, stage)
		if err != nil || outcome != coordinator.OutcomeSucceeded {
			t.Fatalf("RunStage(%s): outcome=%v err=%v", stage, outcome, err)
		}
	}
	run(media.StageFeatureExtraction)
	run(media.StageTagPrediction)

	if err := workflow.RebuildIndex(context.Background(), f.cfg, f.store, f.index); err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	if !f.index.Contains(track.ID) {
		t.Fatal("rebuilt index missing analyzed track")
	}

	// Resetting feature extraction invalidates the vector sources, so the
	// next rebuild must leave the track out.
	if _, err := f.store.ForceReanalyze(context.Background(), media.StageFeatureExtraction, track.ID); err != nil {
		t.Fatalf("ForceReanalyze failed: %v", err)
	}
	if err := workflow.RebuildIndex(context.Background(), f.cfg, f.store, f.index); err != nil {
		t.Fatalf("RebuildIndex after reset failed: %v", err)
	}
	if f.index.Contains(track.ID) {
		t.Fatal("reset track still present in rebuilt index")
	}
}

func TestRebuildIndexWithEmptyLedger(t *testing.T) {
	f := newFixture(t)
	if err := workflow.RebuildIndex(context.Background(), f.cfg, f.store, f.index); err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	if _, err := f.index.Query(make([]float32, f.cfg.Index.Dimension), 1); !errors.Is(err, simindex.ErrIndexNotReady) {
		t.Fatalf("expected empty index not ready, got %v", err)
	}
}
