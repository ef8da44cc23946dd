package handlers

import (
	"net/http"
	"sort"

	"github.com/nomis52/goinit/stage"
)

// StageResultResponse augments an execution result with its error message,
// which does not serialize from the error value itself.
type StageResultResponse struct {
	stage.ExecutionResult
	Error string `json:"error,omitempty"`
}

// ResultsHandler handles requests for the accumulated stage results.
type ResultsHandler struct {
	provider OrchestratorProvider
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(provider OrchestratorProvider) *ResultsHandler {
	return &ResultsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	results := h.provider.Orchestrator().Results()

	resp := make([]StageResultResponse, 0, len(results))
	for _, res := range results {
		out := StageResultResponse{ExecutionResult: res}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		resp = append(resp, out)
	}
	sort.Slice(resp, func(i, j int) bool {
		return resp[i].Stage < resp[j].Stage
	})

	writeJSON(w, http.StatusOK, resp)
}
