package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"aria/internal/coordinator"
	"aria/internal/daemon"
	"aria/internal/logging"
	"aria/internal/media"
	"aria/internal/simindex"
	"aria/internal/testsupport"
	"aria/internal/workflow"
)

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	index := simindex.New(simindex.OptionsFromConfig(cfg, logging.NewNop()))
	coord := coordinator.New(cfg, store,
		&testsupport.FakeExtractor{Features: media.FeatureSet{BPM: 100}, Duration: 180},
		&testsupport.FakeTagger{Tags: []media.TagScore{{Tag: "ambient", Confidence: 0.7}}},
		index, logging.NewNop())
	manager := workflow.NewManager(cfg, store, coord, index, logging.NewNop())

	d, err := daemon.New(cfg, store, manager, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon running")
	}
	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon stopped")
	}
}

func TestDaemonStartTwice(t *testing.T) {
	d := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestDaemonWritesPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	index := simindex.New(simindex.OptionsFromConfig(cfg, logging.NewNop()))
	coord := coordinator.New(cfg, store, &testsupport.FakeExtractor{}, &testsupport.FakeTagger{}, index, logging.NewNop())
	manager := workflow.NewManager(cfg, store, coord, index, logging.NewNop())

	d, err := daemon.New(cfg, store, manager, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "aria.pid")
	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}
	d.Stop()
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}
