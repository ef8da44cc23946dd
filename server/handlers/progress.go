package handlers

import (
	"net/http"
)

// ProgressHandler serves the current run's progress snapshot, suitable for
// polling from a status page.
type ProgressHandler struct {
	provider OrchestratorProvider
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(provider OrchestratorProvider) *ProgressHandler {
	return &ProgressHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Orchestrator().ProgressSnapshot())
}
