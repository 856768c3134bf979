package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"aria/internal/media"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [track-id]",
		Short: "Show pipeline status for the library or one track",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if len(args) == 1 {
				trackID, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid track id %q", args[0])
				}
				return renderTrackStatus(cmd, ctx, rt, trackID)
			}
			return renderOverview(cmd, ctx, rt)
		},
	}
}

func renderOverview(cmd *cobra.Command, ctx *commandContext, rt *runtime) error {
	stats, err := rt.store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	health, err := rt.store.CheckHealth(cmd.Context())
	if err != nil {
		return err
	}

	if ctx.jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"stats":  stats,
			"health": health,
		})
	}

	states := []media.StageState{
		media.StatePending, media.StateRunning, media.StateDone,
		media.StateFailed, media.StateRetry, media.StateSkipped,
	}
	headers := []string{"Stage"}
	aligns := []columnAlignment{alignLeft}
	for _, state := range states {
		headers = append(headers, string(state))
		aligns = append(aligns, alignRight)
	}

	rows := make([][]string, 0, len(media.AllStages()))
	for _, stage := range media.AllStages() {
		row := []string{string(stage)}
		for _, state := range states {
			row = append(row, fmt.Sprint(stats[stage][state]))
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tracks: %d  Ledger: %s\n", health.TrackCount, health.DBPath)
	if !health.IntegrityCheck {
		fmt.Fprintf(out, "WARNING: ledger integrity check failed: %s\n", health.Error)
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
	return nil
}

func renderTrackStatus(cmd *cobra.Command, ctx *commandContext, rt *runtime, trackID int64) error {
	snapshot, err := rt.store.StatusSnapshot(cmd.Context(), trackID)
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), snapshot)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Track %d: %s\n", snapshot.Track.ID, snapshot.Track.Title)
	fmt.Fprintf(out, "Path: %s\n", snapshot.Track.Path)
	if snapshot.Track.DurationSeconds > 0 {
		fmt.Fprintf(out, "Duration: %s\n", formatDuration(snapshot.Track.DurationSeconds))
	}

	rows := make([][]string, 0, len(media.AllStages()))
	for _, stage := range media.AllStages() {
		status := snapshot.Stages[stage]
		detail := status.ErrorDetail
		if len(detail) > 60 {
			detail = detail[:57] + "..."
		}
		rows = append(rows, []string{
			string(stage),
			string(status.State),
			fmt.Sprint(status.Attempts),
			formatTimePtr(status.LastAttemptAt),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "State", "Attempts", "Last Attempt", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}
