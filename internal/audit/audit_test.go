package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventBuilders(t *testing.T) {
	event := NewEvent(EventRepairExecuted).
		WithCorrelationID("corr-1").
		WithDataset("feed-a", "ABC", "trades").
		WithAnomaly("anomaly-1").
		WithAction("remove").
		WithResult(ResultSuccess).
		WithDuration(1500 * time.Millisecond).
		WithMetadata("rows", 3)

	if event.EventType != EventRepairExecuted || event.Result != ResultSuccess {
		t.Errorf("event = %s/%s", event.EventType, event.Result)
	}
	if event.DataSource != "feed-a" || event.Symbol != "ABC" || event.DataType != "trades" {
		t.Errorf("dataset = %s/%s/%s", event.DataSource, event.Symbol, event.DataType)
	}
	if event.AnomalyID != "anomaly-1" || event.Action != "remove" {
		t.Errorf("details = %s/%s", event.AnomalyID, event.Action)
	}
	if event.DurationMs != 1500 {
		t.Errorf("duration = %d", event.DurationMs)
	}
	if event.Metadata["rows"] != 3 {
		t.Errorf("metadata = %v", event.Metadata)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestWithErrorMarksFailure(t *testing.T) {
	event := NewEvent(EventDetectorFailed).WithError(errors.New("model exploded"))
	if event.Result != ResultFailure || event.Error != "model exploded" {
		t.Errorf("event = %s/%q", event.Result, event.Error)
	}

	// A nil error leaves the pending state in place.
	event = NewEvent(EventDetectorFailed).WithError(nil)
	if event.Result != ResultPending || event.Error != "" {
		t.Errorf("event = %s/%q", event.Result, event.Error)
	}
}

func TestLoggerWritesEvents(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.AuditLogPath = filepath.Join(dir, "audit.log")
	cfg.AppLogPath = filepath.Join(dir, "app.log")

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	ctx := context.Background()
	if err := logger.LogAnomalyDetected(ctx, "anomaly-1", "missing_data", "medium"); err != nil {
		t.Fatalf("LogAnomalyDetected: %v", err)
	}
	if err := logger.LogRepairSkipped(ctx, "anomaly-1", "already resolved"); err != nil {
		t.Fatalf("LogRepairSkipped: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(cfg.AuditLogPath)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var types []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line struct {
			EventType string `json:"event_type"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		types = append(types, line.EventType)
		if !strings.Contains(line.Message, "anomaly-1") {
			t.Errorf("message %q does not name the anomaly", line.Message)
		}
	}
	if len(types) != 2 {
		t.Fatalf("got %d events, want 2", len(types))
	}
	if types[0] != string(EventAnomalyDetected) || types[1] != string(EventRepairSkipped) {
		t.Errorf("event order = %v", types)
	}
}

func TestLoggerRejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	if _, err := NewLogger(cfg); err == nil {
		t.Error("expected an error for an invalid log level")
	}
}
