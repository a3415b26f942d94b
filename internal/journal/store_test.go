package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRow(id, action string, ts time.Time, success bool) CycleLog {
	return CycleLog{
		CycleID:         id,
		Timestamp:       ts,
		Action:          action,
		StateBefore:     `{"status":"idle"}`,
		StateAfter:      `{"status":"running"}`,
		Success:         success,
		Reward:          1,
		DurationMS:      10,
		AgentStateAfter: "running",
	}
}

func TestLogCycleUpsertAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	s := New(path, nil, nil)
	require.NoError(t, s.Load())

	row := sampleRow("c1", "execute_action", time.Now().UTC(), true)
	ok, err := s.LogCycle(row)
	require.NoError(t, err)
	require.True(t, ok)

	got, found := s.GetCycle("c1")
	require.True(t, found)
	require.Equal(t, "execute_action", got.Action)
	require.NotEmpty(t, got.StateDiff)

	row.Success = false
	_, err = s.LogCycle(row)
	require.NoError(t, err)
	got, _ = s.GetCycle("c1")
	require.False(t, got.Success)
}

func TestLoadReplaysLastWriteWinsPerCycleID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	s := New(path, nil, nil)
	require.NoError(t, s.Load())

	base := time.Now().UTC()
	_, err := s.LogCycle(sampleRow("c1", "plan", base, false))
	require.NoError(t, err)
	_, err = s.LogCycle(sampleRow("c1", "plan", base, true))
	require.NoError(t, err)

	reloaded := New(path, nil, nil)
	require.NoError(t, reloaded.Load())
	got, found := reloaded.GetCycle("c1")
	require.True(t, found)
	require.True(t, got.Success)
}

func TestGetRecentCyclesFiltersAndPaginates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	s := New(path, nil, nil)
	require.NoError(t, s.Load())

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		success := i%2 == 0
		_, err := s.LogCycle(sampleRow(
			string(rune('a'+i)), "execute_action", base.Add(time.Duration(i)*time.Minute), success))
		require.NoError(t, err)
	}

	successOnly := true
	filtered := s.GetRecentCycles(0, 0, Filter{Success: &successOnly})
	require.Len(t, filtered, 3)

	page := s.GetRecentCycles(2, 1, Filter{})
	require.Len(t, page, 2)
	// newest first: index 0 overall is "e" (i=4), offset 1 skips it.
	require.Equal(t, "d", page[0].CycleID)
}

func TestGetStatsComputesAggregates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	s := New(path, nil, nil)
	require.NoError(t, s.Load())

	base := time.Now().UTC()
	_, err := s.LogCycle(sampleRow("c1", "plan", base, true))
	require.NoError(t, err)
	_, err = s.LogCycle(sampleRow("c2", "execute_action", base.Add(time.Hour), false))
	require.NoError(t, err)

	stats := s.GetStats(nil, nil)
	require.Equal(t, 2, stats.TotalCycles)
	require.InDelta(t, 50.0, stats.SuccessRatePct, 0.01)
	require.Len(t, stats.ActionCounts, 2)
	require.NotNil(t, stats.LastCycleAt)
}

func TestCleanupOldCyclesKeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	s := New(path, nil, nil)
	require.NoError(t, s.Load())

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := s.LogCycle(sampleRow(
			string(rune('a'+i)), "tick", base.Add(time.Duration(i)*time.Minute), true))
		require.NoError(t, err)
	}

	removed, err := s.CleanupOldCycles(2)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	reloaded := New(path, nil, nil)
	require.NoError(t, reloaded.Load())
	require.Len(t, reloaded.GetRecentCycles(0, 0, Filter{}), 2)
	_, found := reloaded.GetCycle("e")
	require.True(t, found)
}
