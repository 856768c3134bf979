package ledger

import "errors"

var (
	// ErrDependencyNotMet is returned when a stage is attempted before its
	// prerequisite stages are done. This is a scheduling error, never ignored.
	ErrDependencyNotMet = errors.New("stage dependency not met")

	// ErrAlreadyRunning is returned when another run is already in progress
	// for the same track and stage. Benign race; callers should move on to a
	// different track.
	ErrAlreadyRunning = errors.New("stage already running")

	// ErrNotEligible is returned when a stage is in a state that permits no
	// run (done, failed, skipped, or backing off).
	ErrNotEligible = errors.New("stage not eligible to run")

	// ErrUnknownTrack is returned when a track id does not exist.
	ErrUnknownTrack = errors.New("unknown track")

	// ErrNotRunning is returned when a completion or failure is recorded for
	// a stage that is not currently running.
	ErrNotRunning = errors.New("stage not running")
)
