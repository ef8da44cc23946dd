package handlers

import (
	"net/http"

	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/stage"
)

// StageLogsHandler serves the captured log tail of a single stage. The
// route must carry a {stage} path value.
type StageLogsHandler struct {
	provider     StageLogsProvider
	orchProvider OrchestratorProvider
}

// NewStageLogsHandler creates a new StageLogsHandler. The orchestrator's
// catalogue distinguishes an unknown stage from a stage with no logs yet.
func NewStageLogsHandler(provider StageLogsProvider, orchProvider OrchestratorProvider) *StageLogsHandler {
	return &StageLogsHandler{
		provider:     provider,
		orchProvider: orchProvider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StageLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := stage.ID(r.PathValue("stage"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing stage")
		return
	}
	if !h.orchProvider.Orchestrator().Catalog().Contains(id) {
		writeError(w, http.StatusNotFound, "unknown stage "+id.String())
		return
	}

	logs := h.provider.StageLogs(id)
	if logs == nil {
		logs = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}
