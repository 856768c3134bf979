// Package media defines the shared data model for the analysis pipeline:
// tracks, stages and their dependency graph, stage result payloads, and the
// fixed-layout feature vector assembled from extraction and tagging output.
package media
