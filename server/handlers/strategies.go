package handlers

import (
	"net/http"

	"github.com/nomis52/goinit/orchestrator"
)

// StrategiesResponse lists the strategies a run can be started with.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
	Default    string   `json:"default"`
}

// StrategiesHandler handles requests for the available strategies.
type StrategiesHandler struct {
	configProvider ConfigProvider
}

// NewStrategiesHandler creates a new StrategiesHandler.
func NewStrategiesHandler(provider ConfigProvider) *StrategiesHandler {
	return &StrategiesHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StrategiesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	all := orchestrator.Strategies()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}

	writeJSON(w, http.StatusOK, StrategiesResponse{
		Strategies: names,
		Default:    h.configProvider.Config().Orchestrator.Strategy,
	})
}
