package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newReanalyzeCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string

	cmd := &cobra.Command{
		Use:   "reanalyze [track-id]...",
		Short: "Reset analysis state so tracks run again",
		Long: "Resets the chosen stage, and every stage downstream of it, back " +
			"to pending. With no track IDs the whole library is reset.",
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := parseStage(stageFlag)
			if err != nil {
				return err
			}
			trackIDs := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid track id %q", arg)
				}
				trackIDs = append(trackIDs, id)
			}

			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			reset, err := rt.store.ForceReanalyze(cmd.Context(), stage, trackIDs...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d stage records from %s onward\n", reset, stage)
			return nil
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "feature_extraction", "Stage to reset (downstream stages reset too)")
	return cmd
}
