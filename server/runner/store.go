package runner

// StateStore persists completed run records for the history endpoint.
type StateStore interface {
	// Save records a completed run.
	Save(status RunStatus) error
	// Runs returns recorded runs, most recent first.
	Runs() []RunStatus
}
