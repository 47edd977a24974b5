package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferLogger(buf *bytes.Buffer, level zerolog.Level) *DefaultLogger {
	return NewZerologLogger(zerolog.New(buf).Level(level))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("invalid log line %q: %v", raw, err)
		}
		lines = append(lines, m)
	}
	return lines
}

// TestDefaultPanicHandler verifies panics are logged at error level with their context
// Given: A DefaultPanicHandler writing to a JSON zerolog logger
// When: HandlePanic is called
// Then: One error line carries the queue label, routine ID and panic value
func TestDefaultPanicHandler(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	handler := &DefaultPanicHandler{Logger: newBufferLogger(&buf, zerolog.DebugLevel)}

	// Act
	handler.HandlePanic(context.Background(), "Q", 7, "boom", []byte("stack"))

	// Assert
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	line := lines[0]
	if line["level"] != "error" || line["message"] != "routine panicked" {
		t.Fatalf("line = %v", line)
	}
	if line["queue"] != "Q" || line["routine"] != float64(7) || line["panic"] != "boom" || line["stack"] != "stack" {
		t.Fatalf("fields = %v", line)
	}
}

// TestDefaultLogger_Fields verifies field values are encoded by type
func TestDefaultLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, zerolog.InfoLevel)

	logger.Debug("hidden", F("k", "v"))
	logger.Info("shown",
		F("s", "text"),
		F("i", 3),
		F("u", uint64(9)),
		F("b", true),
		F("err", errors.New("bad")),
		F("other", []int{1, 2}),
	)
	logger.Warn("warned")
	logger.Error("failed", F("d", time.Second))

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (debug filtered)", len(lines))
	}
	info := lines[0]
	if info["s"] != "text" || info["i"] != float64(3) || info["u"] != float64(9) || info["b"] != true || info["err"] != "bad" {
		t.Fatalf("info fields = %v", info)
	}
	if other, ok := info["other"].([]any); !ok || len(other) != 2 {
		t.Fatalf("other = %v", info["other"])
	}
	if lines[1]["level"] != "warn" || lines[2]["level"] != "error" {
		t.Fatalf("levels = %v, %v", lines[1]["level"], lines[2]["level"])
	}
	if _, ok := lines[2]["d"]; !ok {
		t.Fatal("duration field missing")
	}
}

// TestNoOpLoggerAndNilMetrics verifies the no-op defaults accept every call
func TestNoOpLoggerAndNilMetrics(t *testing.T) {
	var logger Logger = NewNoOpLogger()
	logger.Debug("x")
	logger.Info("x", F("k", 1))
	logger.Warn("x")
	logger.Error("x")

	var m Metrics = &NilMetrics{}
	m.RecordTaskDuration("Q", TaskKindOneShot, time.Second)
	m.RecordTaskPanic("Q", "boom")
	m.RecordQueueDepth("scene", "Q", 1)
	m.RecordTaskRejected("Q", RejectReasonLocked)
}

// TestDefaultConfigs verifies default configs are fully populated
func TestDefaultConfigs(t *testing.T) {
	rc := DefaultRegistryConfig()
	if rc.Logger == nil || rc.Metrics == nil {
		t.Fatal("registry config handlers should be set")
	}
	if rc.HistoryCapacity != defaultTaskHistoryCapacity || rc.RejectLogInterval != time.Second {
		t.Fatalf("registry config = %+v", rc)
	}

	dc := DefaultDriverConfig()
	if dc.TickInterval != defaultTickInterval || dc.WorkQueueSize != defaultWorkQueueSize {
		t.Fatalf("driver config = %+v", dc)
	}
	if dc.Logger == nil || dc.Metrics == nil || dc.PanicHandler == nil {
		t.Fatal("driver config handlers should be set")
	}
}

// TestRegistry_RejectLogThrottled verifies locked-append debug logs are rate limited
// Given: A registry with a debug JSON logger and a one-hour reject log interval
// When: Three appends hit a locked queue
// Then: Three rejections are recorded but only one log line is written
func TestRegistry_RejectLogThrottled(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	metrics := newFakeMetrics()
	reg := NewRegistry(NewTickLoop(nil), &RegistryConfig{
		Logger:            newBufferLogger(&buf, zerolog.DebugLevel),
		Metrics:           metrics,
		RejectLogInterval: time.Hour,
	})
	noop := Plain(func(context.Context) {})
	reg.Append("scene", "Q", NewTask(noop, WithDelay(time.Second)))
	reg.RequestLock("scene", "Q")

	// Act
	for range 3 {
		reg.Append("scene", "Q", NewTask(noop))
	}

	// Assert
	if got := len(metrics.rejected["Q"]); got != 3 {
		t.Fatalf("rejections = %d, want 3", got)
	}
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1", len(lines))
	}
	if lines[0]["queue"] != "Q" || lines[0]["owner"] != "scene" {
		t.Fatalf("line = %v", lines[0])
	}
}
