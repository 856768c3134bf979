package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
}

// Analysis contains segmentation and retry policy for the analysis pipeline.
type Analysis struct {
	Workers             int     `toml:"workers"`
	RetryLimit          int     `toml:"retry_limit"`
	RetryBackoffSeconds int     `toml:"retry_backoff_seconds"`
	SegmentSeconds      float64 `toml:"segment_seconds"`
	ShortTrackSeconds   float64 `toml:"short_track_seconds"`
	NormalTrackSeconds  float64 `toml:"normal_track_seconds"`
	LongTrackSeconds    float64 `toml:"long_track_seconds"`
	NormalSegments      int     `toml:"normal_segments"`
	LongSegments        int     `toml:"long_segments"`
	MaxSegments         int     `toml:"max_segments"`
	TopTags             int     `toml:"top_tags"`
	TagPrediction       bool    `toml:"tag_prediction"`
}

// Engines contains connection settings for the external analysis engines.
type Engines struct {
	ExtractorURL   string `toml:"extractor_url"`
	TaggerURL      string `toml:"tagger_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Index contains similarity index tuning parameters.
type Index struct {
	Dimension           int     `toml:"dimension"`
	ExactMaxVectors     int     `toml:"exact_max_vectors"`
	Clusters            int     `toml:"clusters"`
	ClusterProbes       int     `toml:"cluster_probes"`
	PlaylistMinDistance float64 `toml:"playlist_min_distance"`
}

// Workflow contains daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	ReconcileInterval  int `toml:"reconcile_interval"`
	IndexFlushInterval int `toml:"index_flush_interval"`
	BatchLimit         int `toml:"batch_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Analysis Analysis `toml:"analysis"`
	Engines  Engines  `toml:"engines"`
	Index    Index    `toml:"index"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath is the location consulted when no --config flag is given.
const DefaultConfigPath = "~/.config/aria/config.toml"

// Load reads configuration from path (or the default location when path is
// empty), layering the file over Default(). The resolved path is returned so
// callers can report which file was used; it is empty when no file existed.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath
	}
	resolved = ExpandPath(resolved)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && strings.TrimSpace(path) == "" {
			// No config file is fine; defaults apply.
			if err := cfg.Normalize(); err != nil {
				return nil, "", err
			}
			return &cfg, "", nil
		}
		return nil, "", fmt.Errorf("read config %s: %w", resolved, err)
	}

	decoder := toml.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		var details *toml.StrictMissingError
		if errors.As(err, &details) {
			return nil, "", fmt.Errorf("parse config %s: unknown keys:\n%s", resolved, details.String())
		}
		return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

// Normalize expands paths and validates the configuration.
func (c *Config) Normalize() error {
	c.Paths.LibraryDir = ExpandPath(c.Paths.LibraryDir)
	c.Paths.DataDir = ExpandPath(c.Paths.DataDir)
	c.Paths.LogDir = ExpandPath(c.Paths.LogDir)
	return c.Validate()
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// IndexPath returns the serialized similarity index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.DataDir, "similarity.idx")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "aria.lock")
}

// WriteSample writes the annotated sample configuration to path.
func WriteSample(path string, overwrite bool) error {
	path = ExpandPath(path)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ against the current user's home directory.
func ExpandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if trimmed == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return trimmed
	}
	if strings.HasPrefix(trimmed, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, trimmed[2:])
		}
	}
	return trimmed
}
