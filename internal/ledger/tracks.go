package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aria/internal/media"
)

// UpsertTrack registers a discovered track keyed by its stable track key.
// Existing rows get their title, path, and duration refreshed and are
// reactivated; ledger state is untouched.
func (s *Store) UpsertTrack(ctx context.Context, track media.Track) (media.Track, error) {
	now := formatTime(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO tracks (track_key, title, path, duration_seconds, active, created_at, updated_at)
         VALUES (?, ?, ?, ?, 1, ?, ?)
         ON CONFLICT(track_key) DO UPDATE SET
             title = excluded.title,
             path = excluded.path,
             duration_seconds = excluded.duration_seconds,
             active = 1,
             updated_at = excluded.updated_at`,
		track.TrackKey,
		nullableString(track.Title),
		track.Path,
		track.DurationSeconds,
		now,
		now,
	)
	if err != nil {
		return media.Track{}, fmt.Errorf("upsert track: %w", err)
	}
	return s.GetTrackByKey(ctx, track.TrackKey)
}

// CacheDuration records a duration learned during analysis. The only track
// mutation the analysis core performs.
func (s *Store) CacheDuration(ctx context.Context, trackID int64, durationSeconds float64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		durationSeconds,
		formatTime(time.Now()),
		trackID,
	)
	if err != nil {
		return fmt.Errorf("cache duration: %w", err)
	}
	return nil
}

// DeactivateTrack soft-deletes a track. Its index entry is tombstoned by the
// caller and dropped on the next rebuild.
func (s *Store) DeactivateTrack(ctx context.Context, trackID int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()),
		trackID,
	)
	if err != nil {
		return fmt.Errorf("deactivate track: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUnknownTrack
	}
	return nil
}

// RemoveTrack hard-deletes a track and cascades to its ledger rows.
func (s *Store) RemoveTrack(ctx context.Context, trackID int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM tracks WHERE id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUnknownTrack
	}
	return nil
}

const trackColumns = "id, track_key, title, path, duration_seconds, active, created_at, updated_at"

// GetTrack fetches a track by identifier.
func (s *Store) GetTrack(ctx context.Context, trackID int64) (media.Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, trackID)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Track{}, ErrUnknownTrack
	}
	if err != nil {
		return media.Track{}, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// GetTrackByKey fetches a track by its stable discovery key.
func (s *Store) GetTrackByKey(ctx context.Context, trackKey string) (media.Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE track_key = ?`, trackKey)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Track{}, ErrUnknownTrack
	}
	if err != nil {
		return media.Track{}, fmt.Errorf("get track by key: %w", err)
	}
	return track, nil
}

// ListTracks returns tracks ordered by creation time. When activeOnly is set,
// soft-deleted tracks are omitted.
func (s *Store) ListTracks(ctx context.Context, activeOnly bool) ([]media.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []media.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

func scanTrack(scanner interface{ Scan(dest ...any) error }) (media.Track, error) {
	var (
		id         int64
		trackKey   string
		title      sql.NullString
		path       string
		duration   float64
		active     int64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &trackKey, &title, &path, &duration, &active, &createdRaw, &updatedRaw); err != nil {
		return media.Track{}, err
	}

	track := media.Track{
		ID:              id,
		TrackKey:        trackKey,
		Title:           title.String,
		Path:            path,
		DurationSeconds: duration,
		Active:          active != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		track.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		track.UpdatedAt = updated
	}
	return track, nil
}
