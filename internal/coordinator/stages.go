package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/media"
)

// execute runs the stage body and returns the result payload to persist.
func (c *Coordinator) execute(ctx context.Context, track media.Track, stage media.Stage) ([]byte, error) {
	switch stage {
	case media.StageFeatureExtraction:
		return c.runFeatureExtraction(ctx, track)
	case media.StageTagPrediction:
		return c.runTagPrediction(ctx, track)
	case media.StageIndexing:
		return c.runIndexing(ctx, track)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// runFeatureExtraction analyzes the planned segments and stores their mean.
// An unknown duration falls back to one whole-track segment, so a failed
// probe degrades the plan instead of failing the stage.
func (c *Coordinator) runFeatureExtraction(ctx context.Context, track media.Track) ([]byte, error) {
	duration := track.DurationSeconds
	if duration <= 0 {
		probed, err := c.extractor.ProbeDuration(ctx, track.Path)
		if err != nil {
			c.logger.Warn("duration probe failed, analyzing whole track",
				logging.Int64(logging.FieldTrackID, track.ID),
				logging.Error(err),
			)
		} else {
			duration = probed
			if err := c.store.CacheDuration(ctx, track.ID, probed); err != nil {
				return nil, fmt.Errorf("cache duration: %w", err)
			}
		}
	}

	plan := c.policy.Select(duration)
	segments := make([]media.FeatureSet, 0, len(plan.Segments))
	for _, segment := range plan.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		features, err := c.extractor.ExtractSegment(ctx, track.Path, segment)
		if err != nil {
			return nil, err
		}
		segments = append(segments, features)
	}

	payload, err := json.Marshal(media.FeatureResult{
		SchemaVersion: media.ResultSchemaVersion,
		SegmentCount:  len(segments),
		Aggregated:    media.MeanFeatures(segments),
	})
	if err != nil {
		return nil, fmt.Errorf("encode feature result: %w", err)
	}
	return payload, nil
}

func (c *Coordinator) runTagPrediction(ctx context.Context, track media.Track) ([]byte, error) {
	predicted, err := c.tagger.PredictTags(ctx, track.Path)
	if err != nil {
		return nil, err
	}
	ranked := media.RankTags(predicted, c.cfg.Analysis.TopTags)
	if len(ranked) == 0 {
		return nil, errors.New("no usable tags after normalization")
	}

	payload, err := json.Marshal(media.TagResult{
		SchemaVersion: media.ResultSchemaVersion,
		Tags:          ranked,
	})
	if err != nil {
		return nil, fmt.Errorf("encode tag result: %w", err)
	}
	return payload, nil
}

// runIndexing assembles the feature vector from stored results and registers
// it with the similarity index. A missing tag result means tag prediction was
// skipped; the tag block of the vector stays zero.
func (c *Coordinator) runIndexing(ctx context.Context, track media.Track) ([]byte, error) {
	features, err := c.store.FeatureResult(ctx, track.ID)
	if err != nil {
		return nil, fmt.Errorf("load feature result: %w", err)
	}

	var tags []media.TagScore
	tagResult, err := c.store.TagResult(ctx, track.ID)
	switch {
	case err == nil:
		tags = tagResult.Tags
	case errors.Is(err, ledger.ErrNoResult):
		// tag prediction skipped
	default:
		return nil, fmt.Errorf("load tag result: %w", err)
	}

	vector := media.BuildVector(features.Aggregated, tags, c.cfg.Index.Dimension)
	token, err := c.index.AddOrUpdate(track.ID, vector)
	if err != nil {
		return nil, fmt.Errorf("index vector: %w", err)
	}

	payload, err := json.Marshal(media.IndexResult{
		SchemaVersion: media.ResultSchemaVersion,
		Token:         token,
		Dimension:     c.cfg.Index.Dimension,
		IndexedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode index result: %w", err)
	}
	return payload, nil
}
