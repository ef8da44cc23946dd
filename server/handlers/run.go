package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nomis52/goinit/server/runner"
)

// RunRequest defines the request body for POST /run. The body is optional;
// an empty body or empty strategy selects the configured default.
type RunRequest struct {
	Strategy string `json:"strategy"`
}

// RunHandler handles requests to trigger an initialization run.
type RunHandler struct {
	runner         InitRunner
	configProvider ConfigProvider
}

// NewRunHandler creates a new RunHandler. The config provider supplies the
// default strategy, re-read per request so reloads take effect.
func NewRunHandler(r InitRunner, provider ConfigProvider) *RunHandler {
	return &RunHandler{
		runner:         r,
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = h.configProvider.Config().Orchestrator.Strategy
	}

	if err := h.runner.Run(strategy); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		// Unknown strategy or validation error
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
