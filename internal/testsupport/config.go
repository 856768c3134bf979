package testsupport

import (
	"path/filepath"
	"testing"

	"aria/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithRetryPolicy overrides the analysis retry limit and backoff.
func WithRetryPolicy(limit, backoffSeconds int) ConfigOption {
	return func(c *config.Config) {
		c.Analysis.RetryLimit = limit
		c.Analysis.RetryBackoffSeconds = backoffSeconds
	}
}

// WithTagPrediction toggles the tag prediction stage.
func WithTagPrediction(enabled bool) ConfigOption {
	return func(c *config.Config) {
		c.Analysis.TagPrediction = enabled
	}
}

// WithIndexDimension overrides the feature vector dimensionality.
func WithIndexDimension(dim int) ConfigOption {
	return func(c *config.Config) {
		c.Index.Dimension = dim
	}
}
