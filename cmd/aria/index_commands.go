package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aria/internal/workflow"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Similarity index maintenance",
	}
	indexCmd.AddCommand(newIndexBuildCommand(ctx))
	indexCmd.AddCommand(newIndexStatsCommand(ctx))
	return indexCmd
}

func newIndexBuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Rebuild the similarity index from stored analysis results",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := workflow.RebuildIndex(cmd.Context(), rt.cfg, rt.store, rt.index); err != nil {
				return err
			}
			stats := rt.index.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d tracks (dimension %d, %s) in %s to %s\n",
				stats.Vectors, stats.Dimension, indexMode(stats.Clustered),
				stats.BuildDuration.Round(time.Microsecond), rt.cfg.IndexPath())
			return nil
		},
	}
}

func newIndexStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show similarity index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := workflow.PrepareIndex(cmd.Context(), rt.cfg, rt.store, rt.index); err != nil {
				return err
			}
			stats := rt.index.Stats()
			if ctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			rows := [][]string{
				{"Vectors", fmt.Sprint(stats.Vectors)},
				{"Tombstones", fmt.Sprint(stats.Tombstones)},
				{"Dimension", fmt.Sprint(stats.Dimension)},
				{"Mode", indexMode(stats.Clustered)},
				{"Clusters", fmt.Sprint(stats.Clusters)},
			}
			if !stats.RebuiltAt.IsZero() {
				rows = append(rows, []string{"Rebuilt", stats.RebuiltAt.Local().Format("2006-01-02 15:04:05")})
			}
			if stats.BuildDuration > 0 {
				rows = append(rows, []string{"Build time", stats.BuildDuration.Round(time.Microsecond).String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Metric", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func indexMode(clustered bool) string {
	if clustered {
		return "clustered"
	}
	return "exact"
}
