// Package handlers provides HTTP handlers for the goinit server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/goinit/config"
	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/server/runner"
	"github.com/nomis52/goinit/stage"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// InitRunner can start initialization runs.
type InitRunner interface {
	Run(strategy string) error
}

// RunStatusProvider provides access to the current run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunStatus
}

// OrchestratorProvider provides access to the current orchestrator.
type OrchestratorProvider interface {
	Orchestrator() *orchestrator.Orchestrator
}

// NextRunProvider reports the next scheduled run, nil when none is
// scheduled.
type NextRunProvider interface {
	NextRun() *time.Time
}

// StageLogsProvider provides the captured log tail of a stage.
type StageLogsProvider interface {
	StageLogs(id stage.ID) []logging.LogEntry
}
