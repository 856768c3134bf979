package media_test

import (
	"testing"

	"aria/internal/media"
)

func sampleFeatures() media.FeatureSet {
	return media.FeatureSet{
		BPM:               120,
		OnsetRate:         4,
		Danceability:      0.8,
		Energy:            0.6,
		Loudness:          -12,
		DynamicComplexity: 0.3,
		Dissonance:        0.4,
		SpectralCentroid:  2000,
		SpectralRolloff:   6000,
		SpectralFlux:      0.2,
		ZeroCrossingRate:  0.1,
		Key:               "A",
		Scale:             "major",
		KeyStrength:       0.9,
	}
}

func TestBuildVectorLayout(t *testing.T) {
	tags := []media.TagScore{
		{Tag: "rock", Confidence: 0.9},
		{Tag: "indie", Confidence: 0.5},
	}
	vec := media.BuildVector(sampleFeatures(), tags, 36)
	if len(vec) != 36 {
		t.Fatalf("expected dimension 36, got %d", len(vec))
	}
	if vec[0] != float32(120.0/240.0) {
		t.Fatalf("unexpected bpm slot: %v", vec[0])
	}
	// Key A is pitch class 9, offset 11 in the layout.
	if vec[11+9] != 0.9 {
		t.Fatalf("expected key one-hot at slot %d, got %v", 11+9, vec[11+9])
	}
	for i := 11; i < 23; i++ {
		if i != 11+9 && vec[i] != 0 {
			t.Fatalf("unexpected key slot %d set: %v", i, vec[i])
		}
	}
	if vec[23] != 1 {
		t.Fatalf("expected major scale flag, got %v", vec[23])
	}
	if vec[24] != 0.9 || vec[25] != 0.5 {
		t.Fatalf("expected tag confidences at 24/25, got %v %v", vec[24], vec[25])
	}
	if vec[26] != 0 {
		t.Fatalf("expected zero fill after tags, got %v", vec[26])
	}
}

func TestBuildVectorTruncatesAndClamps(t *testing.T) {
	features := sampleFeatures()
	features.BPM = 10000
	features.Loudness = 20
	tags := make([]media.TagScore, 40)
	for i := range tags {
		tags[i] = media.TagScore{Tag: "t", Confidence: 2.0}
	}
	vec := media.BuildVector(features, tags, 30)
	if len(vec) != 30 {
		t.Fatalf("expected truncation to 30, got %d", len(vec))
	}
	if vec[0] != 1 {
		t.Fatalf("expected clamped bpm of 1, got %v", vec[0])
	}
	if vec[4] != 1 {
		t.Fatalf("expected clamped loudness of 1, got %v", vec[4])
	}
}

func TestBuildVectorDeterministic(t *testing.T) {
	tags := []media.TagScore{{Tag: "jazz", Confidence: 0.7}}
	a := media.BuildVector(sampleFeatures(), tags, 36)
	b := media.BuildVector(sampleFeatures(), tags, 36)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestMeanFeatures(t *testing.T) {
	segs := []media.FeatureSet{
		{BPM: 100, Energy: 0.2, Key: "C", Scale: "minor", KeyStrength: 0.4, MFCCMeans: []float64{1, 2}},
		{BPM: 140, Energy: 0.6, Key: "G", Scale: "major", KeyStrength: 0.8, MFCCMeans: []float64{3, 4}},
	}
	agg := media.MeanFeatures(segs)
	if agg.BPM != 120 {
		t.Fatalf("expected mean bpm 120, got %v", agg.BPM)
	}
	if agg.Energy != 0.4 {
		t.Fatalf("expected mean energy 0.4, got %v", agg.Energy)
	}
	if agg.Key != "G" || agg.Scale != "major" {
		t.Fatalf("expected strongest key segment to win, got %s %s", agg.Key, agg.Scale)
	}
	if len(agg.MFCCMeans) != 2 || agg.MFCCMeans[0] != 2 || agg.MFCCMeans[1] != 3 {
		t.Fatalf("unexpected mfcc means: %v", agg.MFCCMeans)
	}
}

func TestMeanFeaturesEmpty(t *testing.T) {
	agg := media.MeanFeatures(nil)
	if agg.BPM != 0 || agg.Key != "" {
		t.Fatalf("expected zero value, got %+v", agg)
	}
}
