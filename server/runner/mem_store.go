package runner

import "sync"

// DefaultMaxHistorySize is the default number of runs retained in memory.
const DefaultMaxHistorySize = 100

// MemoryStore is an in-memory StateStore with a bounded history.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     []RunStatus
	maxCount int
}

// NewMemoryStore creates a MemoryStore retaining at most maxCount runs.
// If maxCount is zero or negative, DefaultMaxHistorySize is used.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = DefaultMaxHistorySize
	}
	return &MemoryStore{maxCount: maxCount}
}

// Save records a completed run, evicting the oldest run when full.
func (s *MemoryStore) Save(status RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append([]RunStatus{status}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}

// Runs returns recorded runs, most recent first.
func (s *MemoryStore) Runs() []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunStatus, len(s.runs))
	copy(out, s.runs)
	return out
}
