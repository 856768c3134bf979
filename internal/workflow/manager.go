// Package workflow runs the continuous analysis loop: one lane per stage
// pulls eligible tracks through the coordinator, while background tickers
// reclaim stale work and persist the similarity index.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"aria/internal/config"
	"aria/internal/coordinator"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/media"
	"aria/internal/simindex"
)

// Manager owns the daemon's background goroutines.
type Manager struct {
	cfg    *config.Config
	store  *ledger.Store
	coord  *coordinator.Coordinator
	index  *simindex.Index
	logger *slog.Logger

	pollInterval  time.Duration
	errorInterval time.Duration

	indexDirty atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager over its collaborators.
func NewManager(cfg *config.Config, store *ledger.Store, coord *coordinator.Coordinator, index *simindex.Index, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		coord:         coord,
		index:         index,
		logger:        logger.With(logging.String(logging.FieldComponent, "workflow")),
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}
}

// Start launches the stage lanes and maintenance tickers. It returns an error
// if the manager is already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	lanes := media.AllStages()
	m.wg.Add(len(lanes) + 2)
	for _, stage := range lanes {
		go m.runLane(runCtx, stage)
	}
	go m.runReconciler(runCtx)
	go m.runIndexFlusher(runCtx)

	m.logger.Info("workflow started", logging.Int("lanes", len(lanes)))
	return nil
}

// Stop cancels background processing, waits for the goroutines to drain, and
// persists the index a final time if it changed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.flushIndex()
	m.logger.Info("workflow stopped")
}

// Running reports whether the background loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent background failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
