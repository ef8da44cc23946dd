package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const runFileTimeFormat = "20060102T150405.000000000Z"

// DiskStore is a StateStore that persists each run as a JSON file in a
// directory. Files are named by the run's start time so lexicographic
// order matches chronological order. Runs beyond maxCount are pruned.
type DiskStore struct {
	mu       sync.RWMutex
	dir      string
	maxCount int
	runs     []RunStatus
	logger   *slog.Logger
}

// NewDiskStore creates a DiskStore rooted at dir, retaining at most
// maxCount runs. The directory is created if it does not exist and any
// existing run files are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = DefaultMaxHistorySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &DiskStore{
		dir:      dir,
		maxCount: maxCount,
		logger:   logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the run to disk and prunes the oldest files beyond the
// retention limit.
func (s *DiskStore) Save(status RunStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	started := time.Now()
	if status.StartedAt != nil {
		started = *status.StartedAt
	}
	name := started.UTC().Format(runFileTimeFormat)
	if status.RunID != "" {
		name += "-" + status.RunID
	}
	path := filepath.Join(s.dir, name+".json")

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append([]RunStatus{status}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	s.prune()
	return nil
}

// Runs returns recorded runs, most recent first.
func (s *DiskStore) Runs() []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunStatus, len(s.runs))
	copy(out, s.runs)
	return out
}

// Reload discards the in-memory view and re-reads run files from disk.
func (s *DiskStore) Reload() error {
	return s.load()
}

func (s *DiskStore) load() error {
	files, err := s.runFiles()
	if err != nil {
		return err
	}

	runs := make([]RunStatus, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable run file", "path", path, "error", err)
			continue
		}
		var status RunStatus
		if err := json.Unmarshal(data, &status); err != nil {
			s.logger.Warn("skipping malformed run file", "path", path, "error", err)
			continue
		}
		runs = append(runs, status)
	}

	// Most recent first. File names encode the start time, but sort on
	// the decoded timestamp in case files were copied in by hand.
	sort.SliceStable(runs, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if runs[i].StartedAt != nil {
			ti = *runs[i].StartedAt
		}
		if runs[j].StartedAt != nil {
			tj = *runs[j].StartedAt
		}
		return ti.After(tj)
	})
	if len(runs) > s.maxCount {
		runs = runs[:s.maxCount]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	return nil
}

// prune removes the oldest run files beyond the retention limit.
// Caller must hold s.mu.
func (s *DiskStore) prune() {
	files, err := s.runFiles()
	if err != nil {
		s.logger.Warn("failed to list run files for pruning", "error", err)
		return
	}
	if len(files) <= s.maxCount {
		return
	}

	// runFiles returns ascending name order, which is chronological.
	for _, path := range files[:len(files)-s.maxCount] {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to prune run file", "path", path, "error", err)
		}
	}
}

func (s *DiskStore) runFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(s.dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
