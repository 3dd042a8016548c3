package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("export accepted", "job_id", "abc123", "batches", 3)

	if !strings.Contains(stderr.String(), "export accepted") {
		t.Errorf("text handler missing message: %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "job_id=abc123") {
		t.Errorf("text handler missing attribute: %q", stderr.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file handler output is not JSON: %v (%q)", err, file.String())
	}
	if entry["msg"] != "export accepted" {
		t.Errorf("unexpected msg in JSON entry: %v", entry["msg"])
	}
	if entry["job_id"] != "abc123" {
		t.Errorf("unexpected job_id in JSON entry: %v", entry["job_id"])
	}
}

func TestSetupLoggerWithWritersRespectsLevel(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Info("suppressed")
	logger.Warn("delivered")

	if strings.Contains(stderr.String(), "suppressed") || strings.Contains(file.String(), "suppressed") {
		t.Error("entry below configured level was written")
	}
	if !strings.Contains(stderr.String(), "delivered") || !strings.Contains(file.String(), "delivered") {
		t.Error("entry at configured level missing from an output")
	}
}
