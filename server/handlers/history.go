package handlers

import "net/http"

// HistoryHandler lists past initialization runs, newest first, up to the
// configured history limit.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{provider: provider}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.History())
}
