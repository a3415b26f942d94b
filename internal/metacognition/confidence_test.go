package metacognition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateLowConfidenceWithoutGoalOrPlan(t *testing.T) {
	estimate := Estimate(ConfidenceFactors{ErrorState: true, HasSuccessRate: true})
	require.True(t, estimate.ShouldRequestHelp)
	require.NotEmpty(t, estimate.HelpRequestText)
}

func TestEstimateHigherConfidenceWithClearGoalAndPlan(t *testing.T) {
	estimate := Estimate(ConfidenceFactors{
		Goal:            "implement the new caching layer for the API gateway",
		MemoryMatches:   5,
		AvailableTools:  []string{"a", "b"},
		HasMemories:     true,
		KnownContextKeys: map[string]bool{"goal": true, "task_type": true},
		HasPlan:         true,
		PlanSteps:       true,
		PlanGoal:        true,
		PlanSuccessCriteria: true,
		PlanFallback:    true,
		HasSuccessRate:  true,
		SuccessRate:     0.9,
	})
	require.False(t, estimate.ShouldRequestHelp)
	require.Greater(t, estimate.Overall, 0.7)
}

func TestEstimateErrorStateLowersOverall(t *testing.T) {
	base := ConfidenceFactors{Goal: "implement the new caching layer for the API gateway", HasSuccessRate: true, SuccessRate: 0.9}
	withError := base
	withError.ErrorState = true

	estimateBase := Estimate(base)
	estimateError := Estimate(withError)
	require.Less(t, estimateError.Overall, estimateBase.Overall)
}

func TestEstimateToolAvailabilityCoverage(t *testing.T) {
	estimate := Estimate(ConfidenceFactors{
		ToolsKnown:    true,
		RequiredTools: []string{"a", "b"},
		AvailableTools: []string{"a"},
	})
	var toolScore float64
	for _, f := range estimate.Factors {
		if f.Name == "tool_availability" {
			toolScore = f.Score
		}
	}
	require.InDelta(t, 0.5, toolScore, 1e-9)
}
