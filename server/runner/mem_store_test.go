package runner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRunStatus(runID string, startedAt time.Time) RunStatus {
	endedAt := startedAt.Add(2 * time.Second)
	return RunStatus{
		State:     RunStateIdle,
		RunID:     runID,
		Strategy:  "comprehensive",
		StartedAt: &startedAt,
		EndedAt:   &endedAt,
	}
}

func TestMemoryStore_Empty(t *testing.T) {
	store := NewMemoryStore(10)
	assert.Empty(t, store.Runs())
}

func TestMemoryStore_MostRecentFirst(t *testing.T) {
	store := NewMemoryStore(10)
	base := time.Now()

	require.NoError(t, store.Save(makeRunStatus("run-1", base)))
	require.NoError(t, store.Save(makeRunStatus("run-2", base.Add(time.Minute))))
	require.NoError(t, store.Save(makeRunStatus("run-3", base.Add(2*time.Minute))))

	runs := store.Runs()
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
	assert.Equal(t, "run-1", runs[2].RunID)
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		status := makeRunStatus(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(status))
	}

	runs := store.Runs()
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-2", runs[2].RunID)
}

func TestMemoryStore_DefaultSize(t *testing.T) {
	store := NewMemoryStore(0)
	assert.Equal(t, DefaultMaxHistorySize, store.maxCount)
}

func TestMemoryStore_RunsReturnsCopy(t *testing.T) {
	store := NewMemoryStore(10)
	require.NoError(t, store.Save(makeRunStatus("run-1", time.Now())))

	runs := store.Runs()
	runs[0].RunID = "mutated"

	assert.Equal(t, "run-1", store.Runs()[0].RunID)
}
