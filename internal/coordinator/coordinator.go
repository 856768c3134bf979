// Package coordinator drives tracks through the analysis stages: it claims
// work in the ledger, calls the external engines, and records outcomes. Engine
// failures are captured as ledger state, never propagated, so one broken file
// cannot take down a batch.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aria/internal/config"
	"aria/internal/engine"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/media"
	"aria/internal/segmentation"
	"aria/internal/simindex"
)

// Outcome classifies what happened to one track×stage run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	// OutcomeNotClaimed means another worker won the claim or eligibility
	// changed between listing and claiming. Not an error.
	OutcomeNotClaimed Outcome = "not_claimed"
)

// BatchResult summarizes one RunBatch call.
type BatchResult struct {
	BatchID   string
	Stage     media.Stage
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

// Coordinator executes analysis stages against the ledger and engines.
type Coordinator struct {
	cfg       *config.Config
	store     *ledger.Store
	extractor engine.FeatureExtractor
	tagger    engine.TagPredictor
	index     *simindex.Index
	policy    segmentation.Policy
	logger    *slog.Logger
}

// New wires a coordinator from its collaborators.
func New(cfg *config.Config, store *ledger.Store, extractor engine.FeatureExtractor, tagger engine.TagPredictor, index *simindex.Index, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		tagger:    tagger,
		index:     index,
		policy:    segmentation.PolicyFromConfig(cfg),
		logger:    logger.With(logging.String(logging.FieldComponent, "coordinator")),
	}
}

// RunStage executes one stage for one track. The returned error covers
// infrastructure problems only (ledger writes failing); engine failures are
// recorded against the track and reported through the outcome.
func (c *Coordinator) RunStage(ctx context.Context, track media.Track, stage media.Stage) (Outcome, error) {
	log := c.logger.With(
		logging.Int64(logging.FieldTrackID, track.ID),
		logging.String(logging.FieldStage, string(stage)),
	)

	if !c.stageEnabled(stage) {
		if err := c.store.MarkSkipped(ctx, track.ID, stage); err != nil {
			return OutcomeNotClaimed, fmt.Errorf("mark skipped: %w", err)
		}
		log.Debug("stage disabled, marked skipped")
		return OutcomeSkipped, nil
	}

	if err := c.store.MarkRunning(ctx, track.ID, stage); err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyRunning),
			errors.Is(err, ledger.ErrNotEligible),
			errors.Is(err, ledger.ErrDependencyNotMet),
			errors.Is(err, ledger.ErrUnknownTrack):
			log.Debug("claim lost", logging.Error(err))
			return OutcomeNotClaimed, nil
		default:
			return OutcomeNotClaimed, fmt.Errorf("claim %s for track %d: %w", stage, track.ID, err)
		}
	}

	stopHeartbeat := c.startHeartbeat(ctx, track.ID, stage)
	payload, runErr := c.execute(ctx, track, stage)
	stopHeartbeat()

	if runErr != nil {
		// The run context may already be dead; the ledger write must not be.
		recordCtx := ctx
		if recordCtx.Err() != nil {
			var cancel context.CancelFunc
			recordCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := c.store.MarkFailed(recordCtx, track.ID, stage, runErr); err != nil {
			return OutcomeFailed, fmt.Errorf("record failure for track %d: %w", track.ID, err)
		}
		log.Warn("stage failed", logging.Error(runErr))
		return OutcomeFailed, nil
	}

	if err := c.store.MarkDone(ctx, track.ID, stage, media.ResultSchemaVersion, payload); err != nil {
		return OutcomeFailed, fmt.Errorf("record success for track %d: %w", track.ID, err)
	}
	log.Info("stage completed")
	return OutcomeSucceeded, nil
}

// RunBatch claims up to limit eligible tracks for stage and runs them on the
// configured worker pool. A non-positive limit uses the configured batch
// limit.
func (c *Coordinator) RunBatch(ctx context.Context, stage media.Stage, limit int) (BatchResult, error) {
	if limit < 1 {
		limit = c.cfg.Workflow.BatchLimit
	}
	result := BatchResult{BatchID: uuid.NewString(), Stage: stage}
	log := c.logger.With(
		logging.String(logging.FieldBatchID, result.BatchID),
		logging.String(logging.FieldStage, string(stage)),
	)

	tracks, err := c.store.ListEligible(ctx, stage, limit)
	if err != nil {
		return result, fmt.Errorf("list eligible: %w", err)
	}
	if len(tracks) == 0 {
		return result, nil
	}
	log.Debug("batch starting", logging.Int("tracks", len(tracks)))

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers())
	for _, track := range tracks {
		track := track
		group.Go(func() error {
			outcome, err := c.RunStage(groupCtx, track, stage)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSucceeded:
				result.Attempted++
				result.Succeeded++
			case OutcomeFailed:
				result.Attempted++
				result.Failed++
			case OutcomeSkipped:
				result.Skipped++
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return result, err
	}

	log.Info("batch finished",
		logging.Int("attempted", result.Attempted),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
		logging.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (c *Coordinator) stageEnabled(stage media.Stage) bool {
	if stage == media.StageTagPrediction {
		return c.cfg.Analysis.TagPrediction
	}
	return true
}

func (c *Coordinator) workers() int {
	if c.cfg.Analysis.Workers > 0 {
		return c.cfg.Analysis.Workers
	}
	return 1
}

// startHeartbeat refreshes the ledger liveness timestamp until the returned
// stop function runs, so the reconciler never reclaims a live run.
func (c *Coordinator) startHeartbeat(ctx context.Context, trackID int64, stage media.Stage) func() {
	interval := time.Duration(c.cfg.Workflow.HeartbeatInterval) * time.Second
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.store.Heartbeat(context.Background(), trackID, stage); err != nil {
					c.logger.Warn("heartbeat update failed",
						logging.Int64(logging.FieldTrackID, trackID),
						logging.Error(err),
					)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
