package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goinit/stage"
)

func TestNewCapturingHandler(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)

	handler := NewCapturingHandler(underlying, collector, stage.Auth)
	require.NotNil(t, handler)
	assert.Equal(t, stage.Auth, handler.stageID)
}

func TestCapturingHandler_Enabled(t *testing.T) {
	collector := NewLogCollector()

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), opts)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	ctx := context.Background()

	// Capture every level regardless of the underlying handler's threshold.
	assert.True(t, handler.Enabled(ctx, slog.LevelDebug))
	assert.True(t, handler.Enabled(ctx, slog.LevelInfo))
	assert.True(t, handler.Enabled(ctx, slog.LevelWarn))
	assert.True(t, handler.Enabled(ctx, slog.LevelError))
}

func TestCapturingHandler_Handle_CapturesLogs(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Profile)

	logger := slog.New(handler)
	logger.Info("stage started", "attempt", 1, "estimated", "2s")

	logs := collector.GetLogs(stage.Profile)
	require.Len(t, logs, 1)

	log := logs[0]
	assert.Equal(t, "INFO", log.Level)
	assert.Equal(t, "stage started", log.Message)
	assert.Equal(t, int64(1), log.Attributes["attempt"])
	assert.Equal(t, "2s", log.Attributes["estimated"])
}

func TestCapturingHandler_Handle_PassesThrough(t *testing.T) {
	collector := NewLogCollector()
	var buf bytes.Buffer
	underlying := slog.NewJSONHandler(&buf, nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	logger := slog.New(handler)
	logger.Info("stage completed", "duration", "1.5s")

	output := buf.String()
	assert.Contains(t, output, "stage completed")
	assert.Contains(t, output, "duration")
	assert.Contains(t, output, "1.5s")
}

func TestCapturingHandler_WithAttrs_PreservesCapturing(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Session)

	logger := slog.New(handler).With("run_id", "run-1")
	logger.Info("stage started", "attempt", 1)

	logs := collector.GetLogs(stage.Session)
	require.Len(t, logs, 1)

	log := logs[0]
	assert.Equal(t, "INFO", log.Level)
	assert.Equal(t, "stage started", log.Message)
	assert.Equal(t, "run-1", log.Attributes["run_id"])
	assert.Equal(t, int64(1), log.Attributes["attempt"])
}

func TestCapturingHandler_WithAttrs_ReturnsCapturingHandler(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	newHandler := handler.WithAttrs([]slog.Attr{slog.String("key", "value")})

	capturingHandler, ok := newHandler.(*CapturingHandler)
	require.True(t, ok, "WithAttrs should return a *CapturingHandler")
	assert.Equal(t, stage.Auth, capturingHandler.stageID)
	assert.Equal(t, collector, capturingHandler.collector)
}

func TestCapturingHandler_WithGroup_PreservesCapturing(t *testing.T) {
	collector := NewLogCollector()
	var buf bytes.Buffer
	underlying := slog.NewJSONHandler(&buf, nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	logger := slog.New(handler).WithGroup("retry")
	logger.Info("backing off", "delay", "500ms")

	logs := collector.GetLogs(stage.Auth)
	require.Len(t, logs, 1)

	log := logs[0]
	assert.Equal(t, "INFO", log.Level)
	assert.Equal(t, "backing off", log.Message)

	assert.Contains(t, buf.String(), "retry")
}

func TestCapturingHandler_WithGroup_ReturnsCapturingHandler(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	newHandler := handler.WithGroup("retry")

	capturingHandler, ok := newHandler.(*CapturingHandler)
	require.True(t, ok, "WithGroup should return a *CapturingHandler")
	assert.Equal(t, stage.Auth, capturingHandler.stageID)
	assert.Equal(t, collector, capturingHandler.collector)
}

func TestCapturingHandler_MultipleLogLevels(t *testing.T) {
	collector := NewLogCollector()
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), opts)
	handler := NewCapturingHandler(underlying, collector, stage.Jobs)

	logger := slog.New(handler)
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	logs := collector.GetLogs(stage.Jobs)
	require.Len(t, logs, 4)

	assert.Equal(t, "DEBUG", logs[0].Level)
	assert.Equal(t, "INFO", logs[1].Level)
	assert.Equal(t, "WARN", logs[2].Level)
	assert.Equal(t, "ERROR", logs[3].Level)
}

func TestCapturingHandler_ConcurrentLogging(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	logger := slog.New(handler)
	const numGoroutines = 20
	const logsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < logsPerGoroutine; j++ {
				logger.Info("concurrent message", "goroutine", goroutineID, "log", j)
			}
		}(i)
	}

	wg.Wait()

	logs := collector.GetLogs(stage.Auth)
	assert.Len(t, logs, numGoroutines*logsPerGoroutine)
}

func TestCapturingHandler_ChainedWithCalls(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Referrals)

	logger := slog.New(handler).
		With("run_id", "run-1").
		With("strategy", "comprehensive")

	logger.Info("chained message", "extra", "field")

	logs := collector.GetLogs(stage.Referrals)
	require.Len(t, logs, 1)

	log := logs[0]
	assert.Equal(t, "INFO", log.Level)
	assert.Equal(t, "chained message", log.Message)
	assert.Equal(t, "run-1", log.Attributes["run_id"])
	assert.Equal(t, "comprehensive", log.Attributes["strategy"])
	assert.Equal(t, "field", log.Attributes["extra"])
}

func TestCapturingHandler_StructuredAttributes(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	logger := slog.New(handler)
	logger.Info("structured test",
		"string", "value",
		"int", 42,
		"bool", true,
		"float", 3.14,
		"time", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	)

	logs := collector.GetLogs(stage.Auth)
	require.Len(t, logs, 1)

	attrs := logs[0].Attributes
	assert.Equal(t, "value", attrs["string"])
	assert.Equal(t, int64(42), attrs["int"])
	assert.Equal(t, true, attrs["bool"])
	assert.InDelta(t, 3.14, attrs["float"], 0.01)
	assert.NotNil(t, attrs["time"])
}

func TestCapturingHandler_ErrorAttribute(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	handler := NewCapturingHandler(underlying, collector, stage.Auth)

	logger := slog.New(handler)
	testErr := fmt.Errorf("token refresh failed")

	logger.Warn("stage attempt failed", "error", testErr, "attempt", 2)

	logs := collector.GetLogs(stage.Auth)
	require.Len(t, logs, 1)

	log := logs[0]
	assert.Equal(t, "stage attempt failed", log.Message)
	assert.Equal(t, "token refresh failed", log.Attributes["error"])
	assert.Equal(t, int64(2), log.Attributes["attempt"])
}
