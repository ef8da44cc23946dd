package runner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskStore(t *testing.T, maxCount int) (*DiskStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewDiskStore(dir, maxCount, slog.Default())
	require.NoError(t, err)
	return store, dir
}

func TestDiskStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "runs")
	_, err := NewDiskStore(dir, 10, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDiskStore_SaveAndRuns(t *testing.T) {
	store, dir := newTestDiskStore(t, 10)
	base := time.Now()

	require.NoError(t, store.Save(makeRunStatus("run-1", base)))
	require.NoError(t, store.Save(makeRunStatus("run-2", base.Add(time.Minute))))

	runs := store.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDiskStore_LoadsExistingFiles(t *testing.T) {
	store, dir := newTestDiskStore(t, 10)
	base := time.Now()
	require.NoError(t, store.Save(makeRunStatus("run-1", base)))
	require.NoError(t, store.Save(makeRunStatus("run-2", base.Add(time.Minute))))

	reopened, err := NewDiskStore(dir, 10, nil)
	require.NoError(t, err)

	runs := reopened.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)
}

func TestDiskStore_PrunesOldFiles(t *testing.T) {
	store, dir := newTestDiskStore(t, 2)
	base := time.Now()

	for i := 0; i < 4; i++ {
		status := makeRunStatus(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(status))
	}

	runs := store.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDiskStore_SkipsMalformedFiles(t *testing.T) {
	store, dir := newTestDiskStore(t, 10)
	require.NoError(t, store.Save(makeRunStatus("run-1", time.Now())))

	bad := filepath.Join(dir, "20990101T000000.000000000Z-bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))

	require.NoError(t, store.Reload())
	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestDiskStore_Reload(t *testing.T) {
	store, dir := newTestDiskStore(t, 10)
	require.NoError(t, store.Save(makeRunStatus("run-1", time.Now())))

	// A second store writing to the same directory is invisible until a
	// reload.
	other, err := NewDiskStore(dir, 10, nil)
	require.NoError(t, err)
	require.NoError(t, other.Save(makeRunStatus("run-2", time.Now().Add(time.Minute))))

	require.Len(t, store.Runs(), 1)
	require.NoError(t, store.Reload())
	runs := store.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
}
