package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"aria/internal/textutil"
)

type findMatch struct {
	TrackID int64   `json:"track_id"`
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
}

func newFindCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "find <query>...",
		Short: "Find tracks whose title matches a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := textutil.NewFingerprint(strings.Join(args, " "))
			if query == nil {
				return fmt.Errorf("query contains no searchable terms")
			}

			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			tracks, err := rt.store.ListTracks(cmd.Context(), true)
			if err != nil {
				return err
			}

			matches := make([]findMatch, 0, len(tracks))
			for _, track := range tracks {
				score := textutil.Similarity(query, textutil.NewFingerprint(track.Title))
				if score == 0 {
					continue
				}
				matches = append(matches, findMatch{
					TrackID: track.ID,
					Title:   track.Title,
					Path:    track.Path,
					Score:   score,
				})
			}
			sort.Slice(matches, func(i, j int) bool {
				if matches[i].Score != matches[j].Score {
					return matches[i].Score > matches[j].Score
				}
				return matches[i].TrackID < matches[j].TrackID
			})
			if limitFlag > 0 && len(matches) > limitFlag {
				matches = matches[:limitFlag]
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching tracks")
				return nil
			}
			rows := make([][]string, 0, len(matches))
			for _, match := range matches {
				rows = append(rows, []string{
					fmt.Sprint(match.TrackID),
					match.Title,
					fmt.Sprintf("%.3f", match.Score),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Track", "Title", "Match"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 15, "Maximum number of matches to show")
	return cmd
}
