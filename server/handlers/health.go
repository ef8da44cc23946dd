package handlers

import "net/http"

// HandleHealth reports process liveness. It answers as soon as the HTTP
// server is listening, regardless of initialization state; use /api/status
// for run progress.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}
