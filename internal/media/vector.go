package media

import "math"

// Fixed feature vector layout. Field order is part of the persisted index
// format; changing it invalidates every stored vector.
//
//	[0..2]   rhythm: bpm, onset rate, danceability
//	[3..10]  harmonic/spectral scalars
//	[11..22] key one-hot (12 pitch classes, scaled by key strength)
//	[23]     scale flag (1 = major, 0 = minor/unknown)
//	[24..]   top-K tag confidences in rank order
//
// Values beyond the configured dimension are truncated; missing values are
// zero-filled.
const VectorPrefixSize = 24

// Normalization ceilings for raw scalar features. Chosen so typical music
// lands in [0, 1]; outliers clamp rather than dominate distances.
const (
	maxBPM              = 240.0
	maxOnsetRate        = 10.0
	minLoudnessDB       = -60.0
	maxSpectralCentroid = 8000.0
	maxSpectralRolloff  = 12000.0
)

var pitchClasses = map[string]int{
	"C": 0, "C#": 1, "Db": 1, "D": 2, "D#": 3, "Eb": 3, "E": 4, "F": 5,
	"F#": 6, "Gb": 6, "G": 7, "G#": 8, "Ab": 8, "A": 9, "A#": 10, "Bb": 10, "B": 11,
}

// BuildVector assembles the fixed-dimension feature vector from an aggregated
// feature set and a ranked tag list. The result always has length dim.
func BuildVector(features FeatureSet, tags []TagScore, dim int) []float32 {
	if dim < 1 {
		return nil
	}
	raw := make([]float64, 0, VectorPrefixSize+len(tags))

	raw = append(raw,
		unit(features.BPM/maxBPM),
		unit(features.OnsetRate/maxOnsetRate),
		unit(features.Danceability),
		unit(features.Energy),
		unit((features.Loudness-minLoudnessDB)/-minLoudnessDB),
		unit(features.DynamicComplexity),
		unit(features.Dissonance),
		unit(features.SpectralCentroid/maxSpectralCentroid),
		unit(features.SpectralRolloff/maxSpectralRolloff),
		unit(features.SpectralFlux),
		unit(features.ZeroCrossingRate),
	)

	keyHot := make([]float64, 12)
	if class, ok := pitchClasses[features.Key]; ok {
		strength := features.KeyStrength
		if strength <= 0 {
			strength = 1
		}
		keyHot[class] = unit(strength)
	}
	raw = append(raw, keyHot...)

	if features.Scale == "major" {
		raw = append(raw, 1)
	} else {
		raw = append(raw, 0)
	}

	for _, tag := range tags {
		raw = append(raw, unit(tag.Confidence))
	}

	out := make([]float32, dim)
	for i := 0; i < dim && i < len(raw); i++ {
		out[i] = float32(raw[i])
	}
	return out
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
