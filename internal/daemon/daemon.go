// Package daemon enforces single-instance execution and owns the lifecycle
// of the background workflow: lock, start, wait, stop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"aria/internal/config"
	"aria/internal/ledger"
	"aria/internal/logging"
	"aria/internal/workflow"
)

// Daemon wraps the workflow manager with a file lock and pid file so only
// one aria process analyzes a library at a time.
type Daemon struct {
	cfg      *config.Config
	store    *ledger.Store
	manager  *workflow.Manager
	logger   *slog.Logger
	lock     *flock.Flock
	lockPath string
	pidPath  string

	running atomic.Bool
}

// New constructs a daemon over an already-wired workflow manager.
func New(cfg *config.Config, store *ledger.Store, manager *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		store:    store,
		manager:  manager,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		lock:     flock.New(lockPath),
		lockPath: lockPath,
		pidPath:  filepath.Join(cfg.Paths.DataDir, "aria.pid"),
	}, nil
}

// Start acquires the instance lock, writes the pid file, and launches the
// workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another aria daemon instance is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	if err := d.manager.Start(ctx); err != nil {
		os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("ledger", d.cfg.LedgerPath()),
	)
	return nil
}

// Stop halts background processing and releases the lock and pid file.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.manager.Stop()
	os.Remove(d.pidPath)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Close stops the daemon and closes the ledger store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}
