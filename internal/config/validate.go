package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if c.Analysis.Workers < 1 {
		problems = append(problems, "analysis.workers must be at least 1")
	}
	if c.Analysis.RetryLimit < 0 {
		problems = append(problems, "analysis.retry_limit must not be negative")
	}
	if c.Analysis.SegmentSeconds <= 0 {
		problems = append(problems, "analysis.segment_seconds must be positive")
	}
	if c.Analysis.ShortTrackSeconds <= 0 {
		problems = append(problems, "analysis.short_track_seconds must be positive")
	}
	if c.Analysis.NormalTrackSeconds <= c.Analysis.ShortTrackSeconds {
		problems = append(problems, "analysis.normal_track_seconds must exceed short_track_seconds")
	}
	if c.Analysis.LongTrackSeconds <= c.Analysis.NormalTrackSeconds {
		problems = append(problems, "analysis.long_track_seconds must exceed normal_track_seconds")
	}
	if c.Analysis.NormalSegments < 1 || c.Analysis.LongSegments < 1 || c.Analysis.MaxSegments < 1 {
		problems = append(problems, "analysis segment counts must be at least 1")
	}
	if c.Analysis.MaxSegments < c.Analysis.LongSegments {
		problems = append(problems, "analysis.max_segments must not be below long_segments")
	}
	if c.Analysis.TopTags < 1 {
		problems = append(problems, "analysis.top_tags must be at least 1")
	}
	if strings.TrimSpace(c.Engines.ExtractorURL) == "" {
		problems = append(problems, "engines.extractor_url must not be empty")
	}
	if c.Analysis.TagPrediction && strings.TrimSpace(c.Engines.TaggerURL) == "" {
		problems = append(problems, "engines.tagger_url must not be empty when tag prediction is enabled")
	}
	if c.Engines.TimeoutSeconds < 1 {
		problems = append(problems, "engines.timeout_seconds must be at least 1")
	}
	if c.Index.Dimension < 1 {
		problems = append(problems, "index.dimension must be at least 1")
	}
	if c.Index.ExactMaxVectors < 1 {
		problems = append(problems, "index.exact_max_vectors must be at least 1")
	}
	if c.Index.Clusters < 1 {
		problems = append(problems, "index.clusters must be at least 1")
	}
	if c.Index.ClusterProbes < 1 || c.Index.ClusterProbes > c.Index.Clusters {
		problems = append(problems, "index.cluster_probes must be between 1 and index.clusters")
	}
	if c.Index.PlaylistMinDistance < 0 {
		problems = append(problems, "index.playlist_min_distance must not be negative")
	}
	if c.Workflow.QueuePollInterval < 1 {
		problems = append(problems, "workflow.queue_poll_interval must be at least 1")
	}
	if c.Workflow.HeartbeatInterval < 1 {
		problems = append(problems, "workflow.heartbeat_interval must be at least 1")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed heartbeat_interval")
	}
	if c.Workflow.BatchLimit < 1 {
		problems = append(problems, "workflow.batch_limit must be at least 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
