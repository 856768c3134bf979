package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	for _, dir := range []string{"library", "data", "logs"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
library_dir = %q
data_dir = %q
log_dir = %q
`, filepath.Join(base, "library"), filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	configPath := writeTestConfig(t)
	output, err := runCommand(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Configuration valid") {
		t.Fatalf("unexpected output: %s", output)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")
	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v\n%s", err, output)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	// init refuses to clobber without --overwrite
	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwrite")
	}
}

func TestScanRegistersAudioFiles(t *testing.T) {
	configPath := writeTestConfig(t)
	library := filepath.Join(filepath.Dir(configPath), "library")
	for _, name := range []string{"one.flac", "two.mp3", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(library, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	output, err := runCommand(t, "--config", configPath, "scan")
	if err != nil {
		t.Fatalf("scan failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Registered 2 tracks") {
		t.Fatalf("unexpected scan output: %s", output)
	}

	// Scanning again refreshes the same tracks rather than duplicating them.
	statusOut, err := runCommand(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, statusOut)
	}
	if !strings.Contains(statusOut, "Tracks: 2") {
		t.Fatalf("unexpected status output: %s", statusOut)
	}
}

func TestAddAndTrackStatus(t *testing.T) {
	configPath := writeTestConfig(t)
	audio := filepath.Join(t.TempDir(), "song.flac")
	if err := os.WriteFile(audio, []byte("x"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	output, err := runCommand(t, "--config", configPath, "add", audio)
	if err != nil {
		t.Fatalf("add failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Track 1: song") {
		t.Fatalf("unexpected add output: %s", output)
	}

	statusOut, err := runCommand(t, "--config", configPath, "status", "1")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, statusOut)
	}
	if !strings.Contains(statusOut, "feature_extraction") || !strings.Contains(statusOut, "pending") {
		t.Fatalf("unexpected track status: %s", statusOut)
	}
}

func TestRemoveDeactivatesTrack(t *testing.T) {
	configPath := writeTestConfig(t)
	audio := filepath.Join(t.TempDir(), "song.flac")
	if err := os.WriteFile(audio, []byte("x"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if out, err := runCommand(t, "--config", configPath, "add", audio); err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}

	output, err := runCommand(t, "--config", configPath, "remove", "1")
	if err != nil {
		t.Fatalf("remove failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Deactivated track 1") {
		t.Fatalf("unexpected remove output: %s", output)
	}

	statusOut, err := runCommand(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, statusOut)
	}
	if !strings.Contains(statusOut, "Tracks: 0") {
		t.Fatalf("expected no active tracks: %s", statusOut)
	}
}

func TestReanalyzeUnknownStage(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := runCommand(t, "--config", configPath, "reanalyze", "--stage", "bogus"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestSimilarOnEmptyIndex(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := runCommand(t, "--config", configPath, "similar", "1"); err == nil {
		t.Fatal("expected error querying an empty index")
	}
}

func TestFindMatchesTitles(t *testing.T) {
	configPath := writeTestConfig(t)
	library := filepath.Join(filepath.Dir(configPath), "library")
	for _, name := range []string{"blue-in-green.flac", "so-what.flac", "autumn-leaves.flac"} {
		if err := os.WriteFile(filepath.Join(library, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if out, err := runCommand(t, "--config", configPath, "scan"); err != nil {
		t.Fatalf("scan failed: %v\n%s", err, out)
	}

	output, err := runCommand(t, "--config", configPath, "find", "blue", "green")
	if err != nil {
		t.Fatalf("find failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "blue-in-green") {
		t.Fatalf("expected matching track in output: %s", output)
	}
	if strings.Contains(output, "so-what") {
		t.Fatalf("unrelated track matched: %s", output)
	}

	missOut, err := runCommand(t, "--config", configPath, "find", "nonexistent")
	if err != nil {
		t.Fatalf("find failed: %v\n%s", err, missOut)
	}
	if !strings.Contains(missOut, "No matching tracks") {
		t.Fatalf("expected empty result notice: %s", missOut)
	}
}

func TestStatusJSONOutput(t *testing.T) {
	configPath := writeTestConfig(t)
	output, err := runCommand(t, "--config", configPath, "--json", "status")
	if err != nil {
		t.Fatalf("status --json failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, `"health"`) {
		t.Fatalf("expected JSON output, got: %s", output)
	}
}
