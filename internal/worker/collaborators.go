// Package worker implements the agent worker loop (spec.md §4.Q): the
// process that ties the command plane (B), shared state (A), cycle journal
// (C), adaptive learning (I-L), and metacognitive monitor (P) into the
// cognitive plan→act→learn cycle. Grounded on the teacher's
// internal/app/agent/kernel package (Engine/Planner/Executor/RunCycle/Run),
// adapted from the kernel's cron-scheduled multi-agent dispatch cycle to a
// fixed-interval single-action cognitive cycle.
package worker

import "context"

// AgentContext is the read-only view of accumulated state the planner and
// reward collaborators receive each cycle. Callers populate it from their
// own richer domain representation; the core never constructs one itself
// beyond what it tracks (current goal, last action, recent outcomes).
type AgentContext struct {
	Goal           string
	Personality    string
	PreviousAction string
	PreviousError  string
	CycleCount     int
	Extra          map[string]any
}

// PlannedAction is the planner's decision for one cycle.
type PlannedAction struct {
	Action    string
	Params    map[string]any
	Reasoning string
}

// Planner chooses the next action given the accumulated agent context
// (spec.md §4.Q "choose action (planner collaborator)"). The planning/LLM
// module is out of scope; this is the seam it plugs into.
type Planner interface {
	Plan(ctx context.Context, agentCtx AgentContext) (PlannedAction, error)
}

// ExecutionResult is what Executor.Execute reports back for one action.
type ExecutionResult struct {
	Success bool
	Outcome string
	Error   string
}

// Executor runs a single action (spec.md §4.Q "execute action (execution
// collaborator)"). Tool/execution adapters are out of scope; this is the
// seam they plug into.
type Executor interface {
	Execute(ctx context.Context, action string, params map[string]any) (ExecutionResult, error)
}

// RewardFunc scores one cycle's outcome (spec.md §4.Q "compute reward via
// learning module or feedback collaborator"). DefaultReward is used when no
// RewardFunc is supplied.
type RewardFunc func(action string, result ExecutionResult) float64

// DefaultReward is the built-in fallback: +1 for success, -1 for failure.
func DefaultReward(_ string, result ExecutionResult) float64 {
	if result.Success {
		return 1.0
	}
	return -1.0
}
