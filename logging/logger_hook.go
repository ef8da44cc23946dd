package logging

import (
	"log/slog"

	"github.com/nomis52/goinit/stage"
)

// LoggerHook creates stage-specific loggers by wrapping a base logger.
// Implementations can capture, redirect or annotate a stage's log output
// without the execution path knowing about any of it.
type LoggerHook interface {
	// LoggerForStage wraps the base logger to create a stage-specific logger.
	LoggerForStage(baseLogger *slog.Logger, id stage.ID) *slog.Logger
}

// CapturingLoggerHook creates loggers that capture logs via CapturingHandler.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures all stage logs.
func NewCapturingLoggerHook(collector *LogCollector) LoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerForStage creates a stage-specific logger with capturing enabled.
// Each call wraps the base logger with a CapturingHandler that tags records
// with the stage ID.
func (p *CapturingLoggerHook) LoggerForStage(baseLogger *slog.Logger, id stage.ID) *slog.Logger {
	capturingHandler := NewCapturingHandler(
		baseLogger.Handler(),
		p.collector,
		id,
	)
	return slog.New(capturingHandler)
}
