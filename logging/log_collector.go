package logging

import (
	"sync"
	"time"

	"github.com/nomis52/goinit/stage"
)

// DefaultMaxEntriesPerStage bounds how many records are kept per stage.
// Stages that retry with debug logging enabled can produce a lot of output;
// the collector keeps the newest records.
const DefaultMaxEntriesPerStage = 500

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time              `json:"time"`
	Level      string                 `json:"level"` // "debug", "info", "warn", "error"
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"` // Structured fields
}

// LogCollector provides thread-safe storage for per-stage execution logs.
type LogCollector struct {
	mu         sync.RWMutex
	logs       map[stage.ID][]LogEntry
	maxEntries int
}

// NewLogCollector creates a new LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs:       make(map[stage.ID][]LogEntry),
		maxEntries: DefaultMaxEntriesPerStage,
	}
}

// AddLog adds a log entry for the specified stage (thread-safe). When the
// stage's buffer is full the oldest entry is dropped.
func (c *LogCollector) AddLog(id stage.ID, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := append(c.logs[id], entry)
	if len(entries) > c.maxEntries {
		entries = entries[len(entries)-c.maxEntries:]
	}
	c.logs[id] = entries
}

// GetLogs retrieves all log entries for a specific stage (thread-safe).
func (c *LogCollector) GetLogs(id stage.ID) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[id]
	if !exists {
		return nil
	}

	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// GetAllLogs returns all logs grouped by stage ID (thread-safe).
// Returns a copy of the internal map to prevent external modification.
func (c *LogCollector) GetAllLogs() map[stage.ID][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[stage.ID][]LogEntry, len(c.logs))
	for id, logs := range c.logs {
		logsCopy := make([]LogEntry, len(logs))
		copy(logsCopy, logs)
		result[id] = logsCopy
	}

	return result
}

// Clear resets the log collector, removing all stored logs (thread-safe).
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[stage.ID][]LogEntry)
}
