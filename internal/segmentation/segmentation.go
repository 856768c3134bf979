package segmentation

import (
	"aria/internal/config"
)

// Bucket names the duration class a plan was derived from.
type Bucket string

const (
	BucketWhole    Bucket = "whole"
	BucketNormal   Bucket = "normal"
	BucketLong     Bucket = "long"
	BucketVeryLong Bucket = "very_long"
)

// Segment is one time window to analyze. A Length of 0 means "to end of
// track" and only appears in whole-track plans.
type Segment struct {
	Offset float64
	Length float64
}

// Plan is the ordered list of segments selected for a track.
type Plan struct {
	Bucket   Bucket
	Segments []Segment
}

// Policy holds the duration buckets and segment counts driving selection.
// Per-segment analysis cost is roughly constant, so capping the segment count
// bounds total cost independent of track length.
type Policy struct {
	SegmentSeconds     float64
	ShortTrackSeconds  float64
	NormalTrackSeconds float64
	LongTrackSeconds   float64
	NormalSegments     int
	LongSegments       int
	MaxSegments        int
}

// PolicyFromConfig builds a Policy from the analysis configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		SegmentSeconds:     cfg.Analysis.SegmentSeconds,
		ShortTrackSeconds:  cfg.Analysis.ShortTrackSeconds,
		NormalTrackSeconds: cfg.Analysis.NormalTrackSeconds,
		LongTrackSeconds:   cfg.Analysis.LongTrackSeconds,
		NormalSegments:     cfg.Analysis.NormalSegments,
		LongSegments:       cfg.Analysis.LongSegments,
		MaxSegments:        cfg.Analysis.MaxSegments,
	}
}

// Select maps a track duration (seconds, <= 0 means unknown) to an analysis
// plan. Selection is pure and deterministic: the same duration and policy
// always yield the same plan.
func (p Policy) Select(durationSeconds float64) Plan {
	if durationSeconds <= 0 || durationSeconds <= p.ShortTrackSeconds || durationSeconds <= p.SegmentSeconds {
		return Plan{Bucket: BucketWhole, Segments: []Segment{{Offset: 0, Length: 0}}}
	}

	switch {
	case durationSeconds <= p.NormalTrackSeconds:
		return p.spaced(BucketNormal, durationSeconds, p.NormalSegments)
	case durationSeconds <= p.LongTrackSeconds:
		return p.spaced(BucketLong, durationSeconds, p.LongSegments)
	default:
		return p.spaced(BucketVeryLong, durationSeconds, p.MaxSegments)
	}
}

// spaced distributes count segments evenly so the first starts at 0 and the
// last ends at the track end. Offsets clamp so no segment runs past the end.
func (p Policy) spaced(bucket Bucket, duration float64, count int) Plan {
	if count < 1 {
		count = 1
	}
	length := p.SegmentSeconds
	span := duration - length
	if span < 0 {
		span = 0
	}

	segments := make([]Segment, count)
	if count == 1 {
		segments[0] = Segment{Offset: span / 2, Length: length}
	} else {
		step := span / float64(count-1)
		for i := range segments {
			segments[i] = Segment{Offset: step * float64(i), Length: length}
		}
	}
	return Plan{Bucket: bucket, Segments: segments}
}
