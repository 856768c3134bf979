package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aria/internal/coordinator"
	"aria/internal/media"
	"aria/internal/workflow"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run analysis stages over eligible tracks",
		Long: "Runs one batch per stage in dependency order, or a single stage " +
			"with --stage. The daemon does this continuously; analyze is the " +
			"one-shot equivalent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(true)
			if err != nil {
				return err
			}
			defer rt.Close()

			stages := media.AllStages()
			if stageFlag != "" {
				stage, err := parseStage(stageFlag)
				if err != nil {
					return err
				}
				stages = []media.Stage{stage}
			}

			if err := workflow.PrepareIndex(cmd.Context(), rt.cfg, rt.store, rt.index); err != nil {
				return fmt.Errorf("prepare index: %w", err)
			}

			var results []coordinator.BatchResult
			indexed := false
			for _, stage := range stages {
				result, err := rt.coord.RunBatch(cmd.Context(), stage, limitFlag)
				if err != nil {
					return err
				}
				results = append(results, result)
				if stage == media.StageIndexing && result.Succeeded > 0 {
					indexed = true
				}
			}
			if indexed {
				if err := rt.index.Save(rt.cfg.IndexPath()); err != nil {
					return fmt.Errorf("persist index: %w", err)
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				rows = append(rows, []string{
					string(result.Stage),
					fmt.Sprint(result.Attempted),
					fmt.Sprint(result.Succeeded),
					fmt.Sprint(result.Failed),
					fmt.Sprint(result.Skipped),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Stage", "Attempted", "Succeeded", "Failed", "Skipped"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Run only one stage (feature_extraction, tag_prediction, indexing)")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum tracks per stage batch (0 uses the configured batch limit)")
	return cmd
}

func parseStage(value string) (media.Stage, error) {
	stage, ok := media.ParseStage(value)
	if !ok {
		return "", fmt.Errorf("unknown stage %q", value)
	}
	return stage, nil
}
