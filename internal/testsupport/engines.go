package testsupport

import (
	"context"
	"sync"

	"aria/internal/media"
	"aria/internal/segmentation"
)

// FakeExtractor is an in-memory FeatureExtractor for coordinator tests.
// ExtractFn and ProbeFn override the canned behavior when set.
type FakeExtractor struct {
	mu        sync.Mutex
	calls     []segmentation.Segment
	Features  media.FeatureSet
	Duration  float64
	ExtractFn func(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error)
	ProbeFn   func(ctx context.Context, path string) (float64, error)
}

func (f *FakeExtractor) ExtractSegment(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, seg)
	f.mu.Unlock()
	if f.ExtractFn != nil {
		return f.ExtractFn(ctx, path, seg)
	}
	return f.Features, nil
}

func (f *FakeExtractor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if f.ProbeFn != nil {
		return f.ProbeFn(ctx, path)
	}
	return f.Duration, nil
}

// Calls returns the segments extracted so far, in call order.
func (f *FakeExtractor) Calls() []segmentation.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]segmentation.Segment, len(f.calls))
	copy(out, f.calls)
	return out
}

// FakeTagger is an in-memory TagPredictor for coordinator tests.
type FakeTagger struct {
	Tags      []media.TagScore
	PredictFn func(ctx context.Context, path string) ([]media.TagScore, error)
}

func (f *FakeTagger) PredictTags(ctx context.Context, path string) ([]media.TagScore, error) {
	if f.PredictFn != nil {
		return f.PredictFn(ctx, path)
	}
	return f.Tags, nil
}
