package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"aria/internal/media"
)

const statusColumns = "track_id, stage, state, attempts, last_attempt_at, not_before, heartbeat, error_detail, result_id, updated_at"

// Status returns the ledger row for one track and stage. Rows are created
// lazily on first scheduling, so a missing row reads as pending.
func (s *Store) Status(ctx context.Context, trackID int64, stage media.Stage) (media.StageStatus, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+statusColumns+` FROM stage_status WHERE track_id = ? AND stage = ?`,
		trackID, stage,
	)
	status, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return media.StageStatus{TrackID: trackID, Stage: stage, State: media.StatePending}, nil
	}
	if err != nil {
		return media.StageStatus{}, fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// StatusSnapshot returns the track and the state of every stage for it.
func (s *Store) StatusSnapshot(ctx context.Context, trackID int64) (media.StatusSnapshot, error) {
	track, err := s.GetTrack(ctx, trackID)
	if err != nil {
		return media.StatusSnapshot{}, err
	}

	snapshot := media.StatusSnapshot{
		Track:  track,
		Stages: make(map[media.Stage]media.StageStatus, len(media.AllStages())),
	}
	for _, stage := range media.AllStages() {
		snapshot.Stages[stage] = media.StageStatus{TrackID: trackID, Stage: stage, State: media.StatePending}
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+statusColumns+` FROM stage_status WHERE track_id = ?`,
		trackID,
	)
	if err != nil {
		return media.StatusSnapshot{}, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return media.StatusSnapshot{}, err
		}
		snapshot.Stages[status.Stage] = status
	}
	return snapshot, rows.Err()
}

// MarkRunning claims a track×stage for execution. The claim is a conditional
// update so two racing workers cannot both proceed: the loser gets
// ErrAlreadyRunning (or ErrNotEligible) and should pick another track.
func (s *Store) MarkRunning(ctx context.Context, trackID int64, stage media.Stage) error {
	if _, err := s.GetTrack(ctx, trackID); err != nil {
		return err
	}
	if err := s.ensureStatusRow(ctx, trackID, stage); err != nil {
		return err
	}

	// Claim and dependency check happen in one statement so a concurrent
	// reset of a prerequisite cannot slip between them.
	now := formatTime(time.Now())
	query := `UPDATE stage_status
         SET state = ?, attempts = attempts + 1, last_attempt_at = ?, heartbeat = ?,
             error_detail = NULL, updated_at = ?
         WHERE track_id = ? AND stage = ?
           AND (state = ? OR (state = ? AND (not_before IS NULL OR not_before <= ?)))`
	args := []any{
		media.StateRunning, now, now, now,
		trackID, stage,
		media.StatePending, media.StateRetry, now,
	}
	for _, dep := range stage.Dependencies() {
		query += ` AND EXISTS (SELECT 1 FROM stage_status d WHERE d.track_id = ? AND d.stage = ? AND d.state IN ('done', 'skipped'))`
		args = append(args, trackID, dep)
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		for _, dep := range stage.Dependencies() {
			depState, err := s.stageState(ctx, trackID, dep)
			if err != nil {
				return err
			}
			if !depState.Satisfied() {
				return fmt.Errorf("%w: %s requires %s (currently %s)", ErrDependencyNotMet, stage, dep, depState)
			}
		}
		state, err := s.stageState(ctx, trackID, stage)
		if err != nil {
			return err
		}
		if state == media.StateRunning {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("%w: %s is %s", ErrNotEligible, stage, state)
	}
	return nil
}

// MarkDone records a successful stage run: the result payload and the state
// change commit in one transaction. The previous result, if any, is replaced
// wholesale.
func (s *Store) MarkDone(ctx context.Context, trackID int64, stage media.Stage, schemaVersion int, payload []byte) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin done tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE stage_status SET result_id = NULL WHERE track_id = ? AND stage = ?`,
		trackID, stage,
	); err != nil {
		return fmt.Errorf("detach prior result: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM stage_results WHERE track_id = ? AND stage = ?`,
		trackID, stage,
	); err != nil {
		return fmt.Errorf("drop prior result: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO stage_results (track_id, stage, schema_version, payload, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		trackID, stage, schemaVersion, string(payload), now,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}

	upd, err := tx.ExecContext(
		ctx,
		`UPDATE stage_status
         SET state = ?, result_id = ?, error_detail = NULL, heartbeat = NULL,
             not_before = NULL, updated_at = ?
         WHERE track_id = ? AND stage = ? AND state = ?`,
		media.StateDone, resultID, now,
		trackID, stage, media.StateRunning,
	)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	affected, err := upd.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotRunning
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit done: %w", err)
	}
	return nil
}

// MarkFailed records a failed stage run. While the retry budget lasts the
// stage moves to retry with an exponential backoff deadline; afterwards it is
// terminally failed.
func (s *Store) MarkFailed(ctx context.Context, trackID int64, stage media.Stage, cause error) error {
	detail := "failure"
	if cause != nil {
		detail = cause.Error()
	}

	var attempts int
	var stateStr string
	row := s.db.QueryRowContext(
		ctx,
		`SELECT attempts, state FROM stage_status WHERE track_id = ? AND stage = ?`,
		trackID, stage,
	)
	if err := row.Scan(&attempts, &stateStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotRunning
		}
		return fmt.Errorf("read attempts: %w", err)
	}
	if media.StageState(stateStr) != media.StateRunning {
		return ErrNotRunning
	}

	now := time.Now()
	nextState := media.StateRetry
	var notBefore any
	if attempts >= s.retryLimit {
		nextState = media.StateFailed
	} else {
		shift := attempts - 1
		if shift < 0 {
			shift = 0
		}
		deadline := now.Add(s.backoff << uint(shift))
		notBefore = formatTime(deadline)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_status
         SET state = ?, error_detail = ?, heartbeat = NULL, not_before = ?, updated_at = ?
         WHERE track_id = ? AND stage = ? AND state = ?`,
		nextState, detail, notBefore, formatTime(now),
		trackID, stage, media.StateRunning,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotRunning
	}
	return nil
}

// MarkSkipped marks an administratively disabled stage as skipped, a terminal
// state that satisfies downstream dependency checks. Idempotent for stages
// already done or skipped.
func (s *Store) MarkSkipped(ctx context.Context, trackID int64, stage media.Stage) error {
	if _, err := s.GetTrack(ctx, trackID); err != nil {
		return err
	}
	if err := s.ensureStatusRow(ctx, trackID, stage); err != nil {
		return err
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_status SET state = ?, error_detail = NULL, not_before = NULL, updated_at = ?
         WHERE track_id = ? AND stage = ? AND state IN (?, ?, ?)`,
		media.StateSkipped, formatTime(time.Now()),
		trackID, stage,
		media.StatePending, media.StateRetry, media.StateFailed,
	)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		state, err := s.stageState(ctx, trackID, stage)
		if err != nil {
			return err
		}
		if state.Satisfied() {
			return nil
		}
		return fmt.Errorf("%w: %s is %s", ErrNotEligible, stage, state)
	}
	return nil
}

// Heartbeat refreshes the liveness timestamp of an in-flight run.
func (s *Store) Heartbeat(ctx context.Context, trackID int64, stage media.Stage) error {
	now := formatTime(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`UPDATE stage_status SET heartbeat = ?, updated_at = ? WHERE track_id = ? AND stage = ? AND state = ?`,
		now, now, trackID, stage, media.StateRunning,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale resets running rows whose heartbeat predates cutoff back to
// retry, so crashed or timed-out workers cannot wedge a track forever.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE stage_status
         SET state = ?, heartbeat = NULL, not_before = NULL,
             error_detail = 'reclaimed after stale heartbeat', updated_at = ?
         WHERE state = ? AND heartbeat IS NOT NULL AND heartbeat < ?`,
		media.StateRetry, formatTime(time.Now()),
		media.StateRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale rows: %w", err)
	}
	return res.RowsAffected()
}

// ListEligible returns active tracks whose prerequisite stages are satisfied
// and whose own stage is pending (or retry past its backoff deadline),
// oldest attempt first, up to limit.
func (s *Store) ListEligible(ctx context.Context, stage media.Stage, limit int) ([]media.Track, error) {
	if limit < 1 {
		return nil, nil
	}

	now := formatTime(time.Now())
	query := `SELECT ` + prefixColumns("t", trackColumns) + `
        FROM tracks t
        LEFT JOIN stage_status s ON s.track_id = t.id AND s.stage = ?`
	args := []any{stage}

	var conditions []string
	conditions = append(conditions, `t.active = 1`)
	conditions = append(conditions,
		`(s.state IS NULL OR s.state = 'pending' OR (s.state = 'retry' AND (s.not_before IS NULL OR s.not_before <= ?)))`)
	args = append(args, now)

	for _, dep := range stage.Dependencies() {
		conditions = append(conditions,
			`EXISTS (SELECT 1 FROM stage_status d WHERE d.track_id = t.id AND d.stage = ? AND d.state IN ('done', 'skipped'))`)
		args = append(args, dep)
	}

	query += ` WHERE ` + strings.Join(conditions, " AND ")
	query += ` ORDER BY COALESCE(s.last_attempt_at, '') ASC, t.created_at ASC, t.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
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

// ForceReanalyze resets the targeted stage, and every stage depending on it,
// back to pending. Downstream stages reset too because their inputs change.
// An empty trackIDs slice targets all tracks. Returns the number of rows
// reset.
func (s *Store) ForceReanalyze(ctx context.Context, stage media.Stage, trackIDs ...int64) (int64, error) {
	stages := append([]media.Stage{stage}, dependentsOf(stage)...)

	query := `UPDATE stage_status
        SET state = ?, attempts = 0, error_detail = NULL, not_before = NULL,
            heartbeat = NULL, result_id = NULL, updated_at = ?
        WHERE stage IN (` + makePlaceholders(len(stages)) + `)`
	args := []any{media.StatePending, formatTime(time.Now())}
	for _, st := range stages {
		args = append(args, st)
	}
	if len(trackIDs) > 0 {
		query += ` AND track_id IN (` + makePlaceholders(len(trackIDs)) + `)`
		for _, id := range trackIDs {
			args = append(args, id)
		}
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("force reanalyze: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns per-stage counts of ledger rows grouped by state.
func (s *Store) Stats(ctx context.Context) (map[media.Stage]map[media.StageState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, state, COUNT(1) FROM stage_status GROUP BY stage, state`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[media.Stage]map[media.StageState]int)
	for rows.Next() {
		var stage, state string
		var count int
		if err := rows.Scan(&stage, &state, &count); err != nil {
			return nil, err
		}
		byState := stats[media.Stage(stage)]
		if byState == nil {
			byState = make(map[media.StageState]int)
			stats[media.Stage(stage)] = byState
		}
		byState[media.StageState(state)] = count
	}
	return stats, rows.Err()
}

func (s *Store) ensureStatusRow(ctx context.Context, trackID int64, stage media.Stage) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO stage_status (track_id, stage, state, updated_at) VALUES (?, ?, ?, ?)`,
		trackID, stage, media.StatePending, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("ensure status row: %w", err)
	}
	return nil
}

func (s *Store) stageState(ctx context.Context, trackID int64, stage media.Stage) (media.StageState, error) {
	var stateStr string
	row := s.db.QueryRowContext(
		ctx,
		`SELECT state FROM stage_status WHERE track_id = ? AND stage = ?`,
		trackID, stage,
	)
	if err := row.Scan(&stateStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return media.StatePending, nil
		}
		return "", fmt.Errorf("read stage state: %w", err)
	}
	return media.StageState(stateStr), nil
}

func scanStatus(scanner interface{ Scan(dest ...any) error }) (media.StageStatus, error) {
	var (
		trackID       int64
		stage         string
		state         string
		attempts      int
		lastAttemptAt sql.NullString
		notBefore     sql.NullString
		heartbeat     sql.NullString
		errorDetail   sql.NullString
		resultID      sql.NullInt64
		updatedRaw    string
	)
	if err := scanner.Scan(&trackID, &stage, &state, &attempts, &lastAttemptAt, &notBefore, &heartbeat, &errorDetail, &resultID, &updatedRaw); err != nil {
		return media.StageStatus{}, err
	}

	status := media.StageStatus{
		TrackID:       trackID,
		Stage:         media.Stage(stage),
		State:         media.StageState(state),
		Attempts:      attempts,
		LastAttemptAt: timePtr(lastAttemptAt),
		NotBefore:     timePtr(notBefore),
		Heartbeat:     timePtr(heartbeat),
		ErrorDetail:   errorDetail.String,
		ResultID:      resultID.Int64,
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		status.UpdatedAt = updated
	}
	return status, nil
}

func dependentsOf(stage media.Stage) []media.Stage {
	var out []media.Stage
	for _, candidate := range media.AllStages() {
		if candidate == stage {
			continue
		}
		for _, dep := range candidate.Dependencies() {
			if dep == stage {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
