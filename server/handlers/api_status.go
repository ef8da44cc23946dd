package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nomis52/goinit/buildinfo"
	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/progress"
	"github.com/nomis52/goinit/server/runner"
)

// NextRunResponse is the JSON response for the next scheduled run.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// ServerProperties holds metadata about the running server instance.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server       ServerProperties   `json:"server"`
	Run          runner.RunStatus   `json:"run"`
	Orchestrator orchestrator.Stats `json:"orchestrator"`
	Progress     progress.Snapshot  `json:"progress"`
	NextRun      NextRunResponse    `json:"next_run"`
}

// ServerInfoProvider provides static metadata about the server instance.
type ServerInfoProvider interface {
	ServerInfo() ServerProperties
}

// APIStatusProvider aggregates the providers needed for the status endpoint.
type APIStatusProvider interface {
	RunStatusProvider
	OrchestratorProvider
	NextRunProvider
	ServerInfoProvider
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	logger   *slog.Logger
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(logger *slog.Logger, provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orch := h.provider.Orchestrator()

	nextRun := h.provider.NextRun()
	resp := APIStatusResponse{
		Server:       h.provider.ServerInfo(),
		Run:          h.provider.Status(),
		Orchestrator: orch.Stats(),
		Progress:     orch.ProgressSnapshot(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
	}

	writeJSON(w, http.StatusOK, resp)
}
