package config

const (
	defaultLibraryDir          = "~/music"
	defaultDataDir             = "~/.local/share/aria"
	defaultLogDir              = "~/.local/share/aria/logs"
	defaultWorkers             = 4
	defaultRetryLimit          = 3
	defaultRetryBackoffSeconds = 60
	defaultSegmentSeconds      = 30.0
	defaultShortTrackSeconds   = 90.0
	defaultNormalTrackSeconds  = 300.0
	defaultLongTrackSeconds    = 600.0
	defaultNormalSegments      = 3
	defaultLongSegments        = 5
	defaultMaxSegments         = 6
	defaultTopTags             = 12
	defaultExtractorURL        = "http://127.0.0.1:8190"
	defaultTaggerURL           = "http://127.0.0.1:8191"
	defaultEngineTimeout       = 120
	defaultIndexDimension      = 36
	defaultExactMaxVectors     = 20000
	defaultClusters            = 64
	defaultClusterProbes       = 8
	defaultPlaylistMinDistance = 0.05
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 300
	defaultReconcileInterval   = 60
	defaultIndexFlushInterval  = 300
	defaultBatchLimit          = 50
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		Analysis: Analysis{
			Workers:             defaultWorkers,
			RetryLimit:          defaultRetryLimit,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			SegmentSeconds:      defaultSegmentSeconds,
			ShortTrackSeconds:   defaultShortTrackSeconds,
			NormalTrackSeconds:  defaultNormalTrackSeconds,
			LongTrackSeconds:    defaultLongTrackSeconds,
			NormalSegments:      defaultNormalSegments,
			LongSegments:        defaultLongSegments,
			MaxSegments:         defaultMaxSegments,
			TopTags:             defaultTopTags,
			TagPrediction:       true,
		},
		Engines: Engines{
			ExtractorURL:   defaultExtractorURL,
			TaggerURL:      defaultTaggerURL,
			TimeoutSeconds: defaultEngineTimeout,
		},
		Index: Index{
			Dimension:           defaultIndexDimension,
			ExactMaxVectors:     defaultExactMaxVectors,
			Clusters:            defaultClusters,
			ClusterProbes:       defaultClusterProbes,
			PlaylistMinDistance: defaultPlaylistMinDistance,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ReconcileInterval:  defaultReconcileInterval,
			IndexFlushInterval: defaultIndexFlushInterval,
			BatchLimit:         defaultBatchLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
