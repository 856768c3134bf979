package coordinator_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aria/internal/config"
	"aria/internal/coordinator"
	"aria/internal/engine"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/media"
	"aria/internal/segmentation"
	"aria/internal/simindex"
	"aria/internal/testsupport"
)

type fixture struct {
	cfg       *config.Config
	store     *ledger.Store
	extractor *testsupport.FakeExtractor
	tagger    *testsupport.FakeTagger
	index     *simindex.Index
	coord     *coordinator.Coordinator
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	extractor := &testsupport.FakeExtractor{
		Features: media.FeatureSet{BPM: 120, Energy: 0.6, Key: "A", Scale: "minor", KeyStrength: 0.8},
		Duration: 240,
	}
	tagger := &testsupport.FakeTagger{
		Tags: []media.TagScore{{Tag: "rock", Confidence: 0.9}, {Tag: "indie", Confidence: 0.5}},
	}
	index := simindex.New(simindex.OptionsFromConfig(cfg, logging.NewNop()))
	return &fixture{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		tagger:    tagger,
		index:     index,
		coord:     coordinator.New(cfg, store, extractor, tagger, index, logging.NewNop()),
	}
}

func (f *fixture) mustRun(t *testing.T, track media.Track, stage media.Stage, want coordinator.Outcome) {
	t.Helper()
	outcome, err := f.coord.RunStage(context.Background(), track, stage)
	if err != nil {
		t.Fatalf("RunStage(%s) failed: %v", stage, err)
	}
	if outcome != want {
		t.Fatalf("RunStage(%s) outcome = %s, want %s", stage, outcome, want)
	}
}

func TestFeatureExtractionStoresAggregatedResult(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 240)

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)

	status, err := f.store.Status(context.Background(), track.ID, media.StageFeatureExtraction)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != media.StateDone {
		t.Fatalf("expected done, got %s", status.State)
	}

	result, err := f.store.FeatureResult(context.Background(), track.ID)
	if err != nil {
		t.Fatalf("FeatureResult failed: %v", err)
	}
	// 240s lands in the normal bucket: three segments.
	if result.SegmentCount != 3 {
		t.Fatalf("expected 3 segments, got %d", result.SegmentCount)
	}
	if result.Aggregated.BPM != 120 || result.Aggregated.Key != "A" {
		t.Fatalf("unexpected aggregation: %+v", result.Aggregated)
	}
	if calls := f.extractor.Calls(); len(calls) != 3 {
		t.Fatalf("expected 3 extractor calls, got %d", len(calls))
	}
}

func TestFeatureExtractionFollowsSegmentPlan(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 450)

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)

	want := segmentation.PolicyFromConfig(f.cfg).Select(450).Segments
	got := f.extractor.Calls()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segment %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFeatureExtractionProbesUnknownDuration(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 0)
	f.extractor.Duration = 240

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)

	refreshed, err := f.store.GetTrack(context.Background(), track.ID)
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if refreshed.DurationSeconds != 240 {
		t.Fatalf("expected cached duration 240, got %v", refreshed.DurationSeconds)
	}
	if calls := f.extractor.Calls(); len(calls) != 3 {
		t.Fatalf("expected 3 segment calls after probe, got %d", len(calls))
	}
}

func TestFeatureExtractionProbeFailureFallsBackToWholeTrack(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 0)
	f.extractor.ProbeFn = func(ctx context.Context, path string) (float64, error) {
		return 0, errors.New("probe exploded")
	}

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)

	calls := f.extractor.Calls()
	if len(calls) != 1 || calls[0].Length != 0 {
		t.Fatalf("expected single whole-track segment, got %+v", calls)
	}
}

func TestEngineFailureIsRecordedNotPropagated(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 240)
	f.extractor.ExtractFn = func(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error) {
		return media.FeatureSet{}, &engine.Failure{Engine: "extractor", Op: "extract", Err: errors.New("decode error")}
	}

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeFailed)

	status, err := f.store.Status(context.Background(), track.ID, media.StageFeatureExtraction)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != media.StateRetry {
		t.Fatalf("expected retry after first failure, got %s", status.State)
	}
	if !strings.Contains(status.ErrorDetail, "decode error") {
		t.Fatalf("expected cause in error detail, got %q", status.ErrorDetail)
	}
}

func TestRunStageNotClaimedWhenAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 240)
	if err := f.store.MarkRunning(context.Background(), track.ID, media.StageFeatureExtraction); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeNotClaimed)
}

func TestTagPredictionNormalizesAndRanks(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 240)
	f.tagger.Tags = []media.TagScore{
		{Tag: "  Indie Rock ", Confidence: 0.7},
		{Tag: "indie-rock", Confidence: 0.4},
		{Tag: "Jazz", Confidence: 0.9},
	}

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)
	f.mustRun(t, track, media.StageTagPrediction, coordinator.OutcomeSucceeded)

	result, err := f.store.TagResult(context.Background(), track.ID)
	if err != nil {
		t.Fatalf("TagResult failed: %v", err)
	}
	if len(result.Tags) != 2 {
		t.Fatalf("expected deduplicated tags, got %+v", result.Tags)
	}
	if result.Tags[0].Tag != "jazz" || result.Tags[1].Tag != "indie-rock" {
		t.Fatalf("unexpected ranking: %+v", result.Tags)
	}
	if result.Tags[1].Confidence != 0.7 {
		t.Fatalf("expected highest duplicate confidence kept, got %+v", result.Tags)
	}
}

func TestTagPredictionDisabledSkips(t *testing.T) {
	f := newFixture(t, testsupport.WithTagPrediction(false))
	track := testsupport.NewTrack(t, f.store, "t1", 240)

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)
	f.mustRun(t, track, media.StageTagPrediction, coordinator.OutcomeSkipped)

	status, err := f.store.Status(context.Background(), track.ID, media.StageTagPrediction)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != media.StateSkipped {
		t.Fatalf("expected skipped, got %s", status.State)
	}

	// Skipped tag prediction still unblocks indexing.
	f.mustRun(t, track, media.StageIndexing, coordinator.OutcomeSucceeded)
}

func TestIndexingStoresTokenAndRegistersVector(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 240)

	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)
	f.mustRun(t, track, media.StageTagPrediction, coordinator.OutcomeSucceeded)
	f.mustRun(t, track, media.StageIndexing, coordinator.OutcomeSucceeded)

	payload, err := f.store.Result(context.Background(), track.ID, media.StageIndexing)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if !strings.Contains(string(payload), `"token"`) {
		t.Fatalf("expected token in payload: %s", payload)
	}
	if !f.index.Contains(track.ID) {
		t.Fatal("track missing from similarity index")
	}
	stats := f.index.Stats()
	if stats.Dimension != f.cfg.Index.Dimension {
		t.Fatalf("unexpected index dimension: %+v", stats)
	}
}

func TestIndexingRequiresFeatureResult(t *testing.T) {
	f := newFixture(t)
	track := testsupport.NewTrack(t, f.store, "t1", 240)

	outcome, err := f.coord.RunStage(context.Background(), track, media.StageIndexing)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}
	if outcome != coordinator.OutcomeNotClaimed {
		t.Fatalf("expected dependency to block claim, got %s", outcome)
	}
}

func TestRunBatchCountsOutcomes(t *testing.T) {
	f := newFixture(t)
	testsupport.NewTrack(t, f.store, "good1", 240)
	testsupport.NewTrack(t, f.store, "good2", 240)
	bad := testsupport.NewTrack(t, f.store, "bad", 240)

	f.extractor.ExtractFn = func(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error) {
		if strings.Contains(path, "bad") {
			return media.FeatureSet{}, errors.New("unreadable file")
		}
		return media.FeatureSet{BPM: 100}, nil
	}

	result, err := f.coord.RunBatch(context.Background(), media.StageFeatureExtraction, 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Attempted != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if result.BatchID == "" {
		t.Fatal("expected batch ID")
	}

	status, err := f.store.Status(context.Background(), bad.ID, media.StageFeatureExtraction)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != media.StateRetry {
		t.Fatalf("expected failing track in retry, got %s", status.State)
	}
}

func TestRunBatchDisabledStageSkipsEligible(t *testing.T) {
	f := newFixture(t, testsupport.WithTagPrediction(false))
	track := testsupport.NewTrack(t, f.store, "t1", 240)
	f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeSucceeded)

	result, err := f.coord.RunBatch(context.Background(), media.StageTagPrediction, 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Skipped != 1 || result.Attempted != 0 {
		t.Fatalf("unexpected batch result: %+v", result)
	}
}

func TestRunBatchEmptyQueue(t *testing.T) {
	f := newFixture(t)
	result, err := f.coord.RunBatch(context.Background(), media.StageFeatureExtraction, 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Attempted != 0 || result.Succeeded != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRetryBudgetExhaustionViaCoordinator(t *testing.T) {
	f := newFixture(t, testsupport.WithRetryPolicy(2, 0))
	track := testsupport.NewTrack(t, f.store, "t1", 240)
	f.extractor.ExtractFn = func(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error) {
		return media.FeatureSet{}, errors.New("always broken")
	}

	for i := 0; i < 2; i++ {
		f.mustRun(t, track, media.StageFeatureExtraction, coordinator.OutcomeFailed)
	}

	status, err := f.store.Status(context.Background(), track.ID, media.StageFeatureExtraction)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != media.StateFailed {
		t.Fatalf("expected terminal failure after budget, got %s", status.State)
	}
	if status.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", status.Attempts)
	}
}
