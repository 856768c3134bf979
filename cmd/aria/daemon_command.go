package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aria/internal/coordinator"
	"aria/internal/daemon"
	"aria/internal/engine"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/simindex"
	"aria/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the continuous analysis daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}

			index := simindex.New(simindex.OptionsFromConfig(cfg, logger))
			if err := workflow.PrepareIndex(signalCtx, cfg, store, index); err != nil {
				store.Close()
				return fmt.Errorf("prepare index: %w", err)
			}

			timeout := time.Duration(cfg.Engines.TimeoutSeconds) * time.Second
			coord := coordinator.New(cfg, store,
				engine.NewExtractorClient(cfg.Engines.ExtractorURL, engine.WithExtractorTimeout(timeout)),
				engine.NewTaggerClient(cfg.Engines.TaggerURL, engine.WithTaggerTimeout(timeout)),
				index, logger)
			manager := workflow.NewManager(cfg, store, coord, index, logger)

			d, err := daemon.New(cfg, store, manager, logger)
			if err != nil {
				store.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			<-signalCtx.Done()
			logger.Info("shutdown signal received")
			return nil
		},
	}
}
