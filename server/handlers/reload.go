package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler re-reads the initialization config from disk and swaps in
// an orchestrator built from the new catalog.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading initialization config")

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("config reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload configuration: "+err.Error())
		return
	}

	h.logger.Info("initialization config reloaded")
	w.WriteHeader(http.StatusNoContent)
}
