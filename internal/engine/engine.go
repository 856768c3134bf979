// Package engine holds the HTTP clients for the external analysis engines:
// the feature extraction sidecar and the tag prediction sidecar. Both speak a
// small JSON protocol over localhost; failures are classified so the
// coordinator can record them against the ledger without aborting a batch.
package engine

import (
	"context"

	"aria/internal/media"
	"aria/internal/segmentation"
)

// FeatureExtractor analyzes one audio segment at a time and can probe a
// track's duration when the library scan did not supply one.
type FeatureExtractor interface {
	ExtractSegment(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// TagPredictor produces a ranked tag/confidence list for a whole track.
type TagPredictor interface {
	PredictTags(ctx context.Context, path string) ([]media.TagScore, error)
}
