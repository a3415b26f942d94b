package learning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerGetSuccessRateDefaultsForUnknownAction(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, 0.5, tr.GetSuccessRate("unknown"))
}

func TestTrackerRecordUpdatesStats(t *testing.T) {
	tr := NewTracker()
	tr.Record("fetch", "ctx-a", 1.0, true, nil)
	tr.Record("fetch", "ctx-a", -1.0, false, nil)
	tr.Record("fetch", "ctx-a", 1.0, true, nil)

	require.InDelta(t, 2.0/3.0, tr.GetSuccessRate("fetch"), 1e-9)
	stats, ok := tr.GetStats("fetch")
	require.True(t, ok)
	require.Equal(t, 3, stats.TotalCount)
	require.Equal(t, 2, stats.SuccessCount)
}

func TestTrackerGetContextSuccessRateDefaultsForUnseenPair(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, 0.5, tr.GetContextSuccessRate("ctx-x", "fetch"))
}

func TestTrackerGetContextSuccessRateUsesRecentWindow(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 25; i++ {
		tr.Record("fetch", "ctx-a", 1.0, true, nil)
	}
	for i := 0; i < 5; i++ {
		tr.Record("fetch", "ctx-a", -1.0, false, nil)
	}
	// 25 successes then 5 failures: the most recent 20 are 15 successes +
	// 5 failures.
	rate := tr.GetContextSuccessRate("ctx-a", "fetch")
	require.InDelta(t, 15.0/20.0, rate, 1e-9)
}

func TestTrackerGetBestActionForContextRanksByContextRate(t *testing.T) {
	tr := NewTracker()
	tr.Record("good", "ctx-a", 1.0, true, nil)
	tr.Record("good", "ctx-a", 1.0, true, nil)
	tr.Record("bad", "ctx-a", -1.0, false, nil)
	tr.Record("bad", "ctx-a", -1.0, false, nil)

	best, ok := tr.GetBestActionForContext("ctx-a", []string{"good", "bad"})
	require.True(t, ok)
	require.Equal(t, "good", best)
}

func TestTrackerGetFailingActionsFiltersAndSorts(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 6; i++ {
		tr.Record("flaky", "ctx", -1.0, false, nil)
	}
	for i := 0; i < 6; i++ {
		tr.Record("reliable", "ctx", 1.0, true, nil)
	}
	for i := 0; i < 2; i++ {
		tr.Record("too_new", "ctx", -1.0, false, nil)
	}

	failing := tr.GetFailingActions(0.3, 5)
	require.Len(t, failing, 1)
	require.Equal(t, "flaky", failing[0].Action)
}
