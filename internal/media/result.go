package media

import "time"

// ResultSchemaVersion tags stored StageResult payloads so older blobs can be
// detected after a schema change.
const ResultSchemaVersion = 1

// FeatureSet is the scalar feature map produced by the extraction engine for
// one audio segment, plus per-coefficient arrays.
type FeatureSet struct {
	BPM               float64   `json:"bpm"`
	OnsetRate         float64   `json:"onset_rate"`
	Danceability      float64   `json:"danceability"`
	Energy            float64   `json:"energy"`
	Loudness          float64   `json:"loudness"`
	DynamicComplexity float64   `json:"dynamic_complexity"`
	Dissonance        float64   `json:"dissonance"`
	SpectralCentroid  float64   `json:"spectral_centroid"`
	SpectralRolloff   float64   `json:"spectral_rolloff"`
	SpectralFlux      float64   `json:"spectral_flux"`
	ZeroCrossingRate  float64   `json:"zero_crossing_rate"`
	Key               string    `json:"key"`
	Scale             string    `json:"scale"`
	KeyStrength       float64   `json:"key_strength"`
	MFCCMeans         []float64 `json:"mfcc_means,omitempty"`
	ChromaMeans       []float64 `json:"chroma_means,omitempty"`
}

// TagScore is one entry of the ranked tag/confidence list returned by the
// tag prediction engine.
type TagScore struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// FeatureResult is the StageResult payload of a successful feature extraction.
type FeatureResult struct {
	SchemaVersion int        `json:"schema_version"`
	SegmentCount  int        `json:"segment_count"`
	Aggregated    FeatureSet `json:"aggregated"`
}

// TagResult is the StageResult payload of a successful tag prediction.
type TagResult struct {
	SchemaVersion int        `json:"schema_version"`
	Tags          []TagScore `json:"tags"`
}

// IndexResult is the StageResult payload of a successful indexing run: the
// membership token handed back by the similarity index.
type IndexResult struct {
	SchemaVersion int       `json:"schema_version"`
	Token         string    `json:"token"`
	Dimension     int       `json:"dimension"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// MeanFeatures aggregates per-segment feature sets into one deterministic
// summary. Scalars are arithmetic means; the key/scale pair is taken from the
// segment with the strongest key estimate so the one-hot encoding stays crisp
// instead of blending neighboring keys.
func MeanFeatures(segments []FeatureSet) FeatureSet {
	if len(segments) == 0 {
		return FeatureSet{}
	}
	var out FeatureSet
	bestKey := -1.0
	n := float64(len(segments))
	for _, seg := range segments {
		out.BPM += seg.BPM / n
		out.OnsetRate += seg.OnsetRate / n
		out.Danceability += seg.Danceability / n
		out.Energy += seg.Energy / n
		out.Loudness += seg.Loudness / n
		out.DynamicComplexity += seg.DynamicComplexity / n
		out.Dissonance += seg.Dissonance / n
		out.SpectralCentroid += seg.SpectralCentroid / n
		out.SpectralRolloff += seg.SpectralRolloff / n
		out.SpectralFlux += seg.SpectralFlux / n
		out.ZeroCrossingRate += seg.ZeroCrossingRate / n
		if seg.KeyStrength > bestKey {
			bestKey = seg.KeyStrength
			out.Key = seg.Key
			out.Scale = seg.Scale
			out.KeyStrength = seg.KeyStrength
		}
	}
	out.MFCCMeans = meanArrays(segments, func(f FeatureSet) []float64 { return f.MFCCMeans })
	out.ChromaMeans = meanArrays(segments, func(f FeatureSet) []float64 { return f.ChromaMeans })
	return out
}

func meanArrays(segments []FeatureSet, pick func(FeatureSet) []float64) []float64 {
	width := 0
	for _, seg := range segments {
		if len(pick(seg)) > width {
			width = len(pick(seg))
		}
	}
	if width == 0 {
		return nil
	}
	out := make([]float64, width)
	n := float64(len(segments))
	for _, seg := range segments {
		for i, v := range pick(seg) {
			out[i] += v / n
		}
	}
	return out
}
