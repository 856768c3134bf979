package media

import (
	"strings"
	"time"
)

// Track identifies one media file in the library. Tracks are created by the
// discovery subsystem; the analysis core only caches duration on them.
type Track struct {
	ID              int64
	TrackKey        string
	Title           string
	Path            string
	DurationSeconds float64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DurationKnown reports whether the track carries a usable duration.
func (t Track) DurationKnown() bool {
	return t.DurationSeconds > 0
}

// Stage is one of the ordered analysis phases.
type Stage string

const (
	StageFeatureExtraction Stage = "feature_extraction"
	StageTagPrediction     Stage = "tag_prediction"
	StageIndexing          Stage = "indexing"
)

var allStages = []Stage{StageFeatureExtraction, StageTagPrediction, StageIndexing}

// AllStages returns the ordered list of analysis stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StageFeatureExtraction, StageTagPrediction, StageIndexing:
		return normalized, true
	}
	return "", false
}

// Dependencies returns the stages that must be satisfied (done or skipped)
// before the given stage may run.
func (s Stage) Dependencies() []Stage {
	switch s {
	case StageTagPrediction:
		return []Stage{StageFeatureExtraction}
	case StageIndexing:
		return []Stage{StageFeatureExtraction, StageTagPrediction}
	default:
		return nil
	}
}

// StageState is the lifecycle state of one Track×Stage pair.
type StageState string

const (
	StatePending StageState = "pending"
	StateRunning StageState = "running"
	StateDone    StageState = "done"
	StateFailed  StageState = "failed"
	StateRetry   StageState = "retry"
	StateSkipped StageState = "skipped"
)

// ParseState converts a string into a known StageState.
func ParseState(value string) (StageState, bool) {
	normalized := StageState(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatePending, StateRunning, StateDone, StateFailed, StateRetry, StateSkipped:
		return normalized, true
	}
	return "", false
}

// Satisfied reports whether a state satisfies a downstream dependency check.
func (s StageState) Satisfied() bool {
	return s == StateDone || s == StateSkipped
}

// Terminal reports whether a state accepts no further transitions without an
// explicit reset.
func (s StageState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateSkipped
}

// StageStatus is the ledger row for one Track×Stage pair.
type StageStatus struct {
	TrackID       int64
	Stage         Stage
	State         StageState
	Attempts      int
	LastAttemptAt *time.Time
	NotBefore     *time.Time
	Heartbeat     *time.Time
	ErrorDetail   string
	ResultID      int64
	UpdatedAt     time.Time
}

// StatusSnapshot is the per-track view returned to callers.
type StatusSnapshot struct {
	Track  Track
	Stages map[Stage]StageStatus
}
