package metacognition

import "strings"

// ConfidenceFactors are the raw signals fed into the confidence estimator
// (spec.md §4.O).
type ConfidenceFactors struct {
	Goal           string
	MemoryMatches  int
	RequiredTools  []string
	AvailableTools []string
	ToolsKnown     bool // whether the plan specified required_tools at all
	HasMemories    bool
	KnownContextKeys map[string]bool // subset of {goal, task_type, action, environment} present
	HasPlan        bool
	PlanSteps      bool
	PlanGoal       bool
	PlanSuccessCriteria bool
	PlanFallback   bool
	SuccessRate    float64
	HasSuccessRate bool
	ErrorState     bool
}

// FactorScore names one of the seven weighted factors and its score.
type FactorScore struct {
	Name   string
	Score  float64
	Weight float64
}

// ConfidenceEstimate is the result of Estimate.
type ConfidenceEstimate struct {
	Overall          float64
	Factors          []FactorScore
	ShouldRequestHelp bool
	HelpRequestText  string
}

var questionWords = []string{"what", "why", "how", "when", "where", "who", "which"}
var actionVerbs = []string{"build", "create", "fix", "implement", "deploy", "write", "analyze", "refactor", "test", "investigate"}
var strongIntentKeywords = []string{"must", "need to", "required", "critical", "urgent"}

func goalClarity(goal string) float64 {
	if goal == "" {
		return 0.2
	}
	score := 0.5
	n := len(goal)
	if n >= 20 && n <= 200 {
		score += 0.2
	}
	lower := strings.ToLower(goal)
	for _, qw := range questionWords {
		if strings.Contains(lower, qw) {
			score -= 0.1
			break
		}
	}
	for _, verb := range actionVerbs {
		if strings.Contains(lower, verb) {
			score += 0.2
			break
		}
	}
	for _, kw := range strongIntentKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
			break
		}
	}
	return clamp01(score)
}

func memorySupport(matches int) float64 {
	switch {
	case matches >= 5:
		return 0.9
	case matches >= 3:
		return 0.7
	case matches >= 1:
		return 0.5
	default:
		return 0.3
	}
}

func toolAvailability(f ConfidenceFactors) float64 {
	if !f.ToolsKnown || len(f.RequiredTools) == 0 {
		if len(f.AvailableTools) > 0 {
			return 0.8
		}
		return 0.5
	}
	available := make(map[string]bool, len(f.AvailableTools))
	for _, t := range f.AvailableTools {
		available[t] = true
	}
	covered := 0
	for _, t := range f.RequiredTools {
		if available[t] {
			covered++
		}
	}
	return float64(covered) / float64(len(f.RequiredTools))
}

func contextFamiliarity(f ConfidenceFactors) float64 {
	score := 0.5
	if f.HasMemories {
		score += 0.2
	}
	for _, known := range []string{"goal", "task_type", "action", "environment"} {
		if f.KnownContextKeys[known] {
			score += 0.1
		}
	}
	return clamp01(score)
}

func planCompleteness(f ConfidenceFactors) float64 {
	if !f.HasPlan {
		return 0
	}
	score := 0.5
	if f.PlanSteps {
		score += 0.15
	}
	if f.PlanGoal {
		score += 0.15
	}
	if f.PlanSuccessCriteria {
		score += 0.1
	}
	if f.PlanFallback {
		score += 0.1
	}
	return clamp01(score)
}

func successHistory(f ConfidenceFactors) float64 {
	if !f.HasSuccessRate {
		return 0.5
	}
	return clamp01(f.SuccessRate)
}

func errorStateScore(f ConfidenceFactors) float64 {
	if f.ErrorState {
		return 0.2
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

var helpRequestText = map[string]string{
	"goal_clarity":         "the goal is unclear; please restate it more specifically",
	"memory_support":       "no relevant prior experience was found; guidance would help",
	"tool_availability":    "required tools are unavailable; please confirm access or an alternative",
	"context_familiarity":  "the current context is unfamiliar; more detail would help",
	"plan_completeness":    "the plan is incomplete; please confirm the missing steps",
	"success_history":      "past attempts at this action have a low success rate",
	"error_state":          "the agent is in an error state and needs guidance to proceed",
}

// Estimate scores all seven factors and computes the weighted overall
// confidence (spec.md §4.O).
func Estimate(f ConfidenceFactors) ConfidenceEstimate {
	scores := []FactorScore{
		{Name: "goal_clarity", Score: goalClarity(f.Goal), Weight: 0.25},
		{Name: "memory_support", Score: memorySupport(f.MemoryMatches), Weight: 0.15},
		{Name: "tool_availability", Score: toolAvailability(f), Weight: 0.15},
		{Name: "context_familiarity", Score: contextFamiliarity(f), Weight: 0.15},
		{Name: "plan_completeness", Score: planCompleteness(f), Weight: 0.10},
		{Name: "success_history", Score: successHistory(f), Weight: 0.15},
		{Name: "error_state", Score: errorStateScore(f), Weight: 0.05},
	}

	var overall float64
	for _, s := range scores {
		overall += s.Score * s.Weight
	}

	estimate := ConfidenceEstimate{Overall: overall, Factors: scores}
	estimate.ShouldRequestHelp = overall < 0.3
	if estimate.ShouldRequestHelp {
		weakest := scores[0]
		for _, s := range scores[1:] {
			if s.Score < weakest.Score {
				weakest = s
			}
		}
		estimate.HelpRequestText = helpRequestText[weakest.Name]
	}
	return estimate
}
