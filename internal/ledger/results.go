package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aria/internal/media"
)

// ErrNoResult is returned when no stored result exists for a track and stage.
var ErrNoResult = errors.New("no stage result")

// Result returns the stored payload of the most recent successful run for a
// track and stage.
func (s *Store) Result(ctx context.Context, trackID int64, stage media.Stage) ([]byte, error) {
	var payload string
	row := s.db.QueryRowContext(
		ctx,
		`SELECT r.payload
         FROM stage_status st
         JOIN stage_results r ON r.id = st.result_id
         WHERE st.track_id = ? AND st.stage = ?`,
		trackID, stage,
	)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("read result: %w", err)
	}
	return []byte(payload), nil
}

// FeatureResult decodes the stored feature extraction result for a track.
func (s *Store) FeatureResult(ctx context.Context, trackID int64) (media.FeatureResult, error) {
	var out media.FeatureResult
	payload, err := s.Result(ctx, trackID, media.StageFeatureExtraction)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode feature result: %w", err)
	}
	return out, nil
}

// TagResult decodes the stored tag prediction result for a track.
func (s *Store) TagResult(ctx context.Context, trackID int64) (media.TagResult, error) {
	var out media.TagResult
	payload, err := s.Result(ctx, trackID, media.StageTagPrediction)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode tag result: %w", err)
	}
	return out, nil
}

// VectorSource bundles everything needed to rebuild one track's feature
// vector: the track plus its stored extraction and tagging results. Tags is
// empty when tag prediction was skipped.
type VectorSource struct {
	Track    media.Track
	Features media.FeatureResult
	Tags     media.TagResult
}

// EligibleVectorSources returns, for every active track whose feature
// extraction is done and whose tag prediction is done or skipped, the stored
// results needed to assemble its feature vector. This is the input set for an
// index rebuild.
func (s *Store) EligibleVectorSources(ctx context.Context) ([]VectorSource, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixColumns("t", trackColumns)+`, fr.payload, tp.state, tr.payload
         FROM tracks t
         JOIN stage_status fs ON fs.track_id = t.id AND fs.stage = ? AND fs.state = 'done'
         JOIN stage_results fr ON fr.id = fs.result_id
         LEFT JOIN stage_status tp ON tp.track_id = t.id AND tp.stage = ?
         LEFT JOIN stage_results tr ON tr.id = tp.result_id
         WHERE t.active = 1 AND (tp.state = 'done' OR tp.state = 'skipped')
         ORDER BY t.id`,
		media.StageFeatureExtraction,
		media.StageTagPrediction,
	)
	if err != nil {
		return nil, fmt.Errorf("query vector sources: %w", err)
	}
	defer rows.Close()

	var sources []VectorSource
	for rows.Next() {
		var (
			id           int64
			trackKey     string
			title        sql.NullString
			path         string
			duration     float64
			active       int64
			createdRaw   string
			updatedRaw   string
			featsPayload string
			tagState     sql.NullString
			tagPayload   sql.NullString
		)
		if err := rows.Scan(&id, &trackKey, &title, &path, &duration, &active, &createdRaw, &updatedRaw, &featsPayload, &tagState, &tagPayload); err != nil {
			return nil, fmt.Errorf("scan vector source: %w", err)
		}

		source := VectorSource{
			Track: media.Track{
				ID:              id,
				TrackKey:        trackKey,
				Title:           title.String,
				Path:            path,
				DurationSeconds: duration,
				Active:          active != 0,
			},
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			source.Track.CreatedAt = created
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			source.Track.UpdatedAt = updated
		}
		if err := json.Unmarshal([]byte(featsPayload), &source.Features); err != nil {
			return nil, fmt.Errorf("decode features for track %d: %w", id, err)
		}
		if tagPayload.Valid {
			if err := json.Unmarshal([]byte(tagPayload.String), &source.Tags); err != nil {
				return nil, fmt.Errorf("decode tags for track %d: %w", id, err)
			}
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}
