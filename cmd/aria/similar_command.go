package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"aria/internal/ledger"
	"aria/internal/workflow"
)

func newSimilarCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "similar <track-id>",
		Short: "Find tracks similar to the given track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trackID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid track id %q", args[0])
			}

			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := workflow.PrepareIndex(cmd.Context(), rt.cfg, rt.store, rt.index); err != nil {
				return err
			}
			neighbors, err := rt.index.FindSimilar(trackID, limitFlag)
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), neighbors)
			}
			rows := make([][]string, 0, len(neighbors))
			for _, neighbor := range neighbors {
				rows = append(rows, []string{
					fmt.Sprint(neighbor.TrackID),
					trackTitle(cmd, rt, neighbor.TrackID),
					fmt.Sprintf("%.4f", neighbor.Score),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Track", "Title", "Similarity"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 10, "Number of similar tracks to return")
	return cmd
}

func trackTitle(cmd *cobra.Command, rt *runtime, trackID int64) string {
	track, err := rt.store.GetTrack(cmd.Context(), trackID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownTrack) {
			return "(removed)"
		}
		return ""
	}
	return track.Title
}
