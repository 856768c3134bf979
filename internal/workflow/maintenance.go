package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"aria/internal/config"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/media"
	"aria/internal/simindex"
)

// runReconciler periodically resets running rows with stale heartbeats back
// to retry, so work claimed by a crashed process becomes schedulable again.
func (m *Manager) runReconciler(ctx context.Context) {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.Workflow.ReconcileInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := time.Duration(m.cfg.Workflow.HeartbeatTimeout) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reclaimed, err := m.store.ReclaimStale(ctx, time.Now().Add(-timeout))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Warn("stale reclaim failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "reclaim_failed"),
			)
			continue
		}
		if reclaimed > 0 {
			m.logger.Info("reclaimed stale work",
				logging.Int64("rows", reclaimed),
				logging.String(logging.FieldEventType, "stale_reclaimed"),
			)
		}
	}
}

// runIndexFlusher persists the similarity index on an interval whenever the
// indexing lane changed it since the last write.
func (m *Manager) runIndexFlusher(ctx context.Context) {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.Workflow.IndexFlushInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.flushIndex()
		}
	}
}

func (m *Manager) flushIndex() {
	if !m.indexDirty.CompareAndSwap(true, false) {
		return
	}
	if err := m.index.Save(m.cfg.IndexPath()); err != nil {
		m.indexDirty.Store(true)
		m.setLastError(err)
		m.logger.Error("index flush failed", logging.Error(err))
		return
	}
	m.logger.Debug("index flushed", logging.String("path", m.cfg.IndexPath()))
}

// PrepareIndex makes the similarity index ready before the lanes start: it
// loads the persisted snapshot when one exists and rebuilds from ledger
// results otherwise (or when the file is unreadable).
func PrepareIndex(ctx context.Context, cfg *config.Config, store *ledger.Store, index *simindex.Index) error {
	if err := index.Load(ctx, cfg.IndexPath()); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, simindex.ErrCorruptIndex) && !errors.Is(err, simindex.ErrDimensionMismatch) {
		return err
	}
	return RebuildIndex(ctx, cfg, store, index)
}

// RebuildIndex reconstructs the similarity index from the ledger's stored
// stage results and persists the fresh snapshot.
func RebuildIndex(ctx context.Context, cfg *config.Config, store *ledger.Store, index *simindex.Index) error {
	sources, err := store.EligibleVectorSources(ctx)
	if err != nil {
		return fmt.Errorf("collect vector sources: %w", err)
	}

	entries := make([]simindex.Entry, 0, len(sources))
	for _, source := range sources {
		entries = append(entries, simindex.Entry{
			TrackID: source.Track.ID,
			Vector:  media.BuildVector(source.Features.Aggregated, source.Tags.Tags, cfg.Index.Dimension),
		})
	}
	if err := index.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	if err := index.Save(cfg.IndexPath()); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}
