package learning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBiasReturnsZeroWithNoData(t *testing.T) {
	adapter := NewStrategyAdapter(NewTracker(), nil)
	require.Equal(t, 0.0, adapter.Bias("fetch", "ctx-a"))
}

func TestBiasPositiveForHighSuccessRate(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("fetch", "ctx-a", 1.0, true, nil)
	}
	adapter := NewStrategyAdapter(tracker, nil)
	bias := adapter.Bias("fetch", "ctx-a")
	require.Greater(t, bias, 0.0)
	require.LessOrEqual(t, bias, MaxBias)
}

func TestBiasNegativeForLowSuccessRate(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("fetch", "ctx-a", -1.0, false, nil)
	}
	adapter := NewStrategyAdapter(tracker, nil)
	bias := adapter.Bias("fetch", "ctx-a")
	require.Less(t, bias, 0.0)
	require.GreaterOrEqual(t, bias, -MaxBias)
}

func TestManualOverrideShortCircuits(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("fetch", "ctx-a", 1.0, true, nil)
	}
	adapter := NewStrategyAdapter(tracker, nil)
	adapter.SetOverride("fetch", -0.5, "operator override")
	require.Equal(t, -0.5, adapter.Bias("fetch", "ctx-a"))

	adapter.ClearOverride("fetch")
	require.Greater(t, adapter.Bias("fetch", "ctx-a"), 0.0)
}

func TestUpdateFromLessonDecrementsModifier(t *testing.T) {
	tracker := NewTracker()
	tracker.Record("fetch", "ctx-a", 1.0, true, nil)
	adapter := NewStrategyAdapter(tracker, nil)

	before := adapter.Bias("fetch", "ctx-a")
	adapter.UpdateFromLesson(Lesson{Action: "fetch", ContextKey: "ctx-a", BetterApproach: "just retry"})
	after := adapter.Bias("fetch", "ctx-a")

	require.Less(t, after, before)
}

func TestUpdateFromLessonIncrementsMentionedAction(t *testing.T) {
	tracker := NewTracker()
	tracker.Record("fetch", "ctx-a", -1.0, false, nil)
	tracker.Record("retry_with_backoff", "ctx-a", -1.0, false, nil)
	adapter := NewStrategyAdapter(tracker, nil)

	before := adapter.Bias("retry_with_backoff", "ctx-a")
	adapter.UpdateFromLesson(Lesson{Action: "fetch", ContextKey: "ctx-a", BetterApproach: "use retry_with_backoff instead"})
	after := adapter.Bias("retry_with_backoff", "ctx-a")

	require.Greater(t, after, before)
}

func TestGetRankedActionsOrdersDescending(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("good", "ctx-a", 1.0, true, nil)
		tracker.Record("bad", "ctx-a", -1.0, false, nil)
	}
	adapter := NewStrategyAdapter(tracker, nil)
	ranked := adapter.GetRankedActions([]string{"bad", "good"}, "ctx-a")
	require.Equal(t, "good", ranked[0].Action)
	require.Equal(t, "bad", ranked[1].Action)
}

func TestGetActionsToAvoidUsesThreshold(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("bad", "ctx-a", -1.0, false, nil)
	}
	adapter := NewStrategyAdapter(tracker, nil)
	avoid := adapter.GetActionsToAvoid([]string{"bad"}, "ctx-a", -0.2)
	require.Contains(t, avoid, "bad")
}

func TestExtractContextFeaturesStableForIdenticalInputs(t *testing.T) {
	fields := map[string]any{"goal": "ship feature", "task_type": "coding"}
	key1 := ExtractContextFeatures(fields)
	key2 := ExtractContextFeatures(fields)
	require.Equal(t, key1, key2)
	require.NotEqual(t, "global", key1)
}

func TestExtractContextFeaturesGlobalWhenEmpty(t *testing.T) {
	require.Equal(t, "global", ExtractContextFeatures(map[string]any{}))
}
