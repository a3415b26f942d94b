package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetRunningThenStopped(t *testing.T) {
	s := New(t.TempDir())

	st, err := s.SetRunning(1234, "helpful", "ship the feature")
	require.NoError(t, err)
	require.Equal(t, StatusRunning, st.Status)
	require.True(t, st.IsRunning)
	require.Equal(t, 1234, *st.PID)

	st, err = s.SetStopped("")
	require.NoError(t, err)
	require.Equal(t, StatusStopped, st.Status)
	require.False(t, st.IsRunning)
	require.Nil(t, st.CurrentAction)
}

func TestSetStoppedWithErrorIncrementsErrorCount(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.SetRunning(1, "x", "y")
	require.NoError(t, err)

	st, err := s.SetStopped("boom")
	require.NoError(t, err)
	require.Equal(t, StatusError, st.Status)
	require.Equal(t, "boom", *st.LastError)
	require.Equal(t, 1, st.ErrorCount)

	st, err = s.SetStopped("boom again")
	require.NoError(t, err)
	require.Equal(t, 2, st.ErrorCount)
}

func TestUpdateCycleInfoInvariants(t *testing.T) {
	s := New(t.TempDir())

	st, err := s.UpdateCycleInfo("idle", true, 0.5)
	require.NoError(t, err)
	require.Equal(t, 1, st.CycleCount)
	require.Equal(t, 1, st.SuccessfulActions)
	require.Equal(t, 0, st.FailedActions)
	require.InDelta(t, 0.5, st.TotalRewards, 1e-9)

	st, err = s.UpdateCycleInfo("idle", false, -0.2)
	require.NoError(t, err)
	require.Equal(t, 2, st.CycleCount)
	require.Equal(t, 1, st.FailedActions)
	require.InDelta(t, 0.3, st.TotalRewards, 1e-9)
}

func TestIsAgentAliveRequiresFreshHeartbeat(t *testing.T) {
	s := New(t.TempDir())
	alive, err := s.IsAgentAlive(10 * time.Second)
	require.NoError(t, err)
	require.False(t, alive)

	_, err = s.SetRunning(1, "x", "y")
	require.NoError(t, err)

	alive, err = s.IsAgentAlive(10 * time.Second)
	require.NoError(t, err)
	require.True(t, alive)

	alive, err = s.IsAgentAlive(0)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestAddCycleRingIsBoundedAndNewestFirst(t *testing.T) {
	s := New(t.TempDir(), WithMaxCycles(2))

	for i := 0; i < 3; i++ {
		err := s.AddCycle(CycleInfo{
			CycleID:   string(rune('a' + i)),
			Timestamp: time.Now(),
			Action:    "act",
			Success:   true,
		})
		require.NoError(t, err)
	}

	cycles, err := s.GetRecentCycles()
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	require.Equal(t, "c", cycles[0].CycleID)
	require.Equal(t, "b", cycles[1].CycleID)
}

func TestCorruptStateFileRecoversToDefaults(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.statePath), 0o755))
	require.NoError(t, os.WriteFile(s.statePath, []byte("{not valid json"), 0o644))

	st, err := s.GetState()
	require.NoError(t, err)
	require.Equal(t, StatusStopped, st.Status)
}

func TestClearStateResetsToDefaults(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.SetRunning(1, "x", "y")
	require.NoError(t, err)

	require.NoError(t, s.ClearState())

	st, err := s.GetState()
	require.NoError(t, err)
	require.Equal(t, StatusStopped, st.Status)
	require.Nil(t, st.PID)
}
