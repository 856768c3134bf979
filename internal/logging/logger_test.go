package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"aria/internal/logging"
)

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger = logging.WithComponent(logger, "ledger")
	logger.Info("stage complete", logging.Args(
		logging.Int64(logging.FieldTrackID, 42),
		logging.String(logging.FieldStage, "feature_extraction"),
	)...)

	line := buf.String()
	if !strings.Contains(line, "INFO ledger: stage complete") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "track_id=42") || !strings.Contains(line, "stage=feature_extraction") {
		t.Fatalf("expected attrs in line: %q", line)
	}
}

func TestJSONHandlerEmitsStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Warn("engine timeout", logging.Args(logging.String("engine", "extractor"))...)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "engine timeout" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["engine"] != "extractor" {
		t.Fatalf("unexpected engine attr: %v", record["engine"])
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
