package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadableStore is a run history store that can re-read its backing file,
// picking up records written by another process.
type ReloadableStore interface {
	Reload() error
}

// StoreReloadHandler forces the run history store to reload from disk.
type StoreReloadHandler struct {
	logger *slog.Logger
	store  ReloadableStore
}

// NewStoreReloadHandler creates a StoreReloadHandler.
func NewStoreReloadHandler(logger *slog.Logger, store ReloadableStore) *StoreReloadHandler {
	return &StoreReloadHandler{
		logger: logger,
		store:  store,
	}
}

func (h *StoreReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading run history store")

	if err := h.store.Reload(); err != nil {
		h.logger.Error("store reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload store: "+err.Error())
		return
	}

	h.logger.Info("run history store reloaded")
	w.WriteHeader(http.StatusNoContent)
}
