package handlers

import "net/http"

// RunStatusHandler reports the most recent initialization run: its
// strategy, outcome, and timing. Before the first run it returns the
// zero status.
type RunStatusHandler struct {
	provider RunStatusProvider
}

// NewRunStatusHandler creates a RunStatusHandler.
func NewRunStatusHandler(provider RunStatusProvider) *RunStatusHandler {
	return &RunStatusHandler{provider: provider}
}

func (h *RunStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Status())
}
