package workflow

import (
	"context"
	"time"

	"aria/internal/logging"
	"aria/internal/media"
)

// runLane drives one stage until the context ends. An idle queue sleeps for
// the poll interval; a batch that did work loops straight into the next one.
func (m *Manager) runLane(ctx context.Context, stage media.Stage) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldStage, string(stage)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := m.coord.RunBatch(ctx, stage, m.cfg.Workflow.BatchLimit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logger.Error("batch failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "batch_failed"),
			)
			m.sleep(ctx, m.errorInterval)
			continue
		}

		if stage == media.StageIndexing && result.Succeeded > 0 {
			m.indexDirty.Store(true)
		}
		if result.Attempted == 0 && result.Skipped == 0 {
			m.sleep(ctx, m.pollInterval)
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
