package handlers

import (
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the initialization config currently in effect,
// rendered back as YAML. After a reload this reflects the new config, which
// may differ from what any single file on disk said at startup.
type ConfigHandler struct {
	configProvider ConfigProvider
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{configProvider: provider}
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	w.WriteHeader(http.StatusOK)
	if err := yaml.NewEncoder(w).Encode(h.configProvider.Config()); err != nil {
		slog.Error("failed to encode YAML response", "error", err)
	}
}
