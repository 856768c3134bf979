package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"aria/internal/workflow"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	var lengthFlag int

	cmd := &cobra.Command{
		Use:   "playlist <seed-track-id>",
		Short: "Generate a similarity-ordered playlist from a seed track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seedID, err := strconv.ParseInt(args[0], 10, 64)
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
			playlist, err := rt.index.GeneratePlaylist(seedID, lengthFlag)
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), playlist)
			}
			rows := make([][]string, 0, len(playlist))
			for position, entry := range playlist {
				rows = append(rows, []string{
					fmt.Sprint(position + 1),
					fmt.Sprint(entry.TrackID),
					trackTitle(cmd, rt, entry.TrackID),
					fmt.Sprintf("%.4f", entry.Score),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Track", "Title", "Similarity"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&lengthFlag, "length", 20, "Playlist length including the seed track")
	return cmd
}
