// Package journal implements the cycle journal (spec.md §4.C): a durable,
// append-only row store of CycleLog records with a query surface, layered
// over a raw per-cycle JSONL writer (spec.md SPEC_FULL.md supplement,
// grounded on the teacher's internal/analytics/journal.Writer).
package journal

import "time"

// CycleLog is the full per-cycle record (spec.md §3), a superset of
// state.CycleInfo adding planning/execution/learning phase detail.
type CycleLog struct {
	CycleID     string    `json:"cycle_id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	StateBefore string    `json:"state_before"`
	StateAfter  string    `json:"state_after"`
	Success     bool      `json:"success"`
	Outcome     *string   `json:"outcome,omitempty"`
	Reward      float64   `json:"reward"`
	DurationMS  int64     `json:"duration_ms"`
	Error       *string   `json:"error,omitempty"`

	// Planning phase.
	PlanningInputState         string   `json:"planning_input_state"`
	PlanningInputRecentActions []string `json:"planning_input_recent_actions"`
	PlanningOutputReasoning    *string  `json:"planning_output_reasoning,omitempty"`
	PlanningDurationMS         int64    `json:"planning_duration_ms"`

	// Execution phase.
	ActionParams       map[string]any `json:"action_params,omitempty"`
	ExecutionResult    string         `json:"execution_result,omitempty"`
	ExecutionError     *string        `json:"execution_error,omitempty"`
	ExecutionDurationMS int64         `json:"execution_duration_ms"`

	// Learning phase.
	Critique      *string  `json:"critique,omitempty"`
	LessonLearned *string  `json:"lesson_learned,omitempty"`
	MemoriesStored []string `json:"memories_stored,omitempty"`

	// Metadata.
	LLMProvider     string `json:"llm_provider,omitempty"`
	LLMModel        string `json:"llm_model,omitempty"`
	LLMTokensUsed   int    `json:"llm_tokens_used,omitempty"`
	TotalDurationMS int64  `json:"total_duration_ms"`
	AgentStateAfter string `json:"agent_state_after"`

	// StateDiff is a supplemental human-readable diff between StateBefore
	// and StateAfter, rendered with sergi/go-diff (SPEC_FULL.md domain
	// stack wiring). Not part of the external schema; derived on write.
	StateDiff string `json:"state_diff,omitempty"`
}

// Filter narrows a GetRecentCycles query.
type Filter struct {
	Action    string
	Success   *bool
	StartTime *time.Time
	EndTime   *time.Time
}

// Stats is the aggregate query result from GetStats (spec.md §4.C).
type Stats struct {
	TotalCycles     int            `json:"total_cycles"`
	SuccessRatePct  float64        `json:"success_rate_pct"`
	AvgDurationMS   float64        `json:"avg_duration_ms"`
	AvgReward       float64        `json:"avg_reward"`
	ActionCounts    map[string]int `json:"action_counts"`
	TopActions      []ActionCount  `json:"top_actions"`
	CyclesPerHour   float64        `json:"cycles_per_hour"`
	LastCycleAt     *time.Time     `json:"last_cycle_at,omitempty"`
}

// ActionCount pairs an action name with its occurrence count.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}
