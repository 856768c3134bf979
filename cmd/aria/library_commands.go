package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aria/internal/media"
	"aria/internal/simindex"
	"aria/internal/workflow"
)

var audioExtensions = map[string]struct{}{
	".flac": {},
	".mp3":  {},
	".ogg":  {},
	".opus": {},
	".m4a":  {},
	".wav":  {},
	".aiff": {},
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Register audio files from the library directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			root := rt.cfg.Paths.LibraryDir
			if _, err := os.Stat(root); err != nil {
				return fmt.Errorf("library directory %s: %w", root, err)
			}

			registered := 0
			err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if entry.IsDir() {
					return nil
				}
				if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
					return nil
				}
				key, keyErr := filepath.Rel(root, path)
				if keyErr != nil {
					key = path
				}
				if _, upsertErr := rt.store.UpsertTrack(cmd.Context(), media.Track{
					TrackKey: key,
					Title:    titleFromPath(path),
					Path:     path,
				}); upsertErr != nil {
					return fmt.Errorf("register %s: %w", path, upsertErr)
				}
				registered++
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %d tracks from %s\n", registered, root)
			return nil
		},
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Register individual audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("stat %s: %w", path, err)
				}
				track, err := rt.store.UpsertTrack(cmd.Context(), media.Track{
					TrackKey: path,
					Title:    titleFromPath(path),
					Path:     path,
				})
				if err != nil {
					return fmt.Errorf("register %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %d: %s\n", track.ID, track.Title)
			}
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <track-id>...",
		Short: "Deactivate tracks and drop them from the similarity index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := workflow.PrepareIndex(cmd.Context(), rt.cfg, rt.store, rt.index); err != nil {
				return err
			}

			tombstoned := false
			for _, arg := range args {
				trackID, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid track id %q", arg)
				}
				if err := rt.store.DeactivateTrack(cmd.Context(), trackID); err != nil {
					return err
				}
				switch err := rt.index.Remove(trackID); {
				case err == nil:
					tombstoned = true
				case errors.Is(err, simindex.ErrNotIndexed):
					// Never indexed; nothing to drop.
				default:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated track %d\n", trackID)
			}

			if tombstoned {
				if err := rt.index.Save(rt.cfg.IndexPath()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
