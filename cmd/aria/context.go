package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"aria/internal/config"
	"aria/internal/coordinator"
	"aria/internal/engine"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/simindex"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// runtime bundles the collaborators most commands need. Engines are only
// dialed for commands that actually run analysis stages.
type runtime struct {
	cfg    *config.Config
	store  *ledger.Store
	index  *simindex.Index
	coord  *coordinator.Coordinator
	logger *slog.Logger
}

func (r *runtime) Close() {
	if r.store != nil {
		r.store.Close()
	}
}

func (c *commandContext) openRuntime(withEngines bool) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		store:  store,
		index:  simindex.New(simindex.OptionsFromConfig(cfg, logger)),
		logger: logger,
	}
	if withEngines {
		timeout := time.Duration(cfg.Engines.TimeoutSeconds) * time.Second
		extractor := engine.NewExtractorClient(cfg.Engines.ExtractorURL, engine.WithExtractorTimeout(timeout))
		tagger := engine.NewTaggerClient(cfg.Engines.TaggerURL, engine.WithTaggerTimeout(timeout))
		rt.coord = coordinator.New(cfg, store, extractor, tagger, rt.index, logger)
	}
	return rt, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
