package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentrt/internal/commandqueue"
	"agentrt/internal/journal"
	"agentrt/internal/metacognition"
	"agentrt/internal/state"
)

// fixedPlanner always returns the same action, optionally failing once.
type fixedPlanner struct {
	action string
	err    error
}

func (p fixedPlanner) Plan(_ context.Context, _ AgentContext) (PlannedAction, error) {
	if p.err != nil {
		return PlannedAction{}, p.err
	}
	return PlannedAction{Action: p.action, Reasoning: "fixed plan for test"}, nil
}

// scriptedExecutor returns successive results from a fixed script, looping
// on the last entry once exhausted.
type scriptedExecutor struct {
	mu      sync.Mutex
	results []ExecutionResult
	calls   int
}

func (e *scriptedExecutor) Execute(_ context.Context, _ string, _ map[string]any) (ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.calls
	if idx >= len(e.results) {
		idx = len(e.results) - 1
	}
	e.calls++
	return e.results[idx], nil
}

func newTestLoop(t *testing.T, planner Planner, executor Executor) *AgentLoop {
	t.Helper()
	st := state.New(t.TempDir())
	commands := commandqueue.New(t.TempDir(), nil)
	jrnl := journal.New(t.TempDir()+"/cycles.jsonl", journal.NopWriter(), nil)
	require.NoError(t, jrnl.Load())
	monitor := metacognition.NewMonitor(metacognition.MonitorConfig{})

	loop := New(
		Config{Personality: "diligent", Goal: "keep the lights on"},
		st, commands, jrnl, Learning{}, monitor,
		planner, executor, nil, nil, nil,
	)
	require.NoError(t, loop.Init())
	return loop
}

func TestAgentLoop_InitPublishesStoppedIdentity(t *testing.T) {
	st := state.New(t.TempDir())
	loop := New(Config{Personality: "calm", Goal: "observe"}, st,
		commandqueue.New(t.TempDir(), nil),
		journal.New(t.TempDir()+"/cycles.jsonl", journal.NopWriter(), nil),
		Learning{}, metacognition.NewMonitor(metacognition.MonitorConfig{}),
		fixedPlanner{action: "idle"}, &scriptedExecutor{results: []ExecutionResult{{Success: true}}},
		nil, nil, nil)

	require.NoError(t, loop.Init())

	got, err := st.GetState()
	require.NoError(t, err)
	require.Equal(t, state.StatusStopped, got.Status)
	require.Equal(t, "calm", got.Personality)
	require.Equal(t, "observe", got.Goal)
	require.NotNil(t, got.PID)
}

func TestAgentLoop_RunCycleRecordsSuccessfulCycle(t *testing.T) {
	executor := &scriptedExecutor{results: []ExecutionResult{{Success: true, Outcome: "did the thing"}}}
	loop := newTestLoop(t, fixedPlanner{action: "check_status"}, executor)

	loop.started = true
	loop.runCycle(context.Background())

	st, err := loop.state.GetState()
	require.NoError(t, err)
	require.Equal(t, 1, st.CycleCount)
	require.Equal(t, 1, st.SuccessfulActions)
	require.Equal(t, 0, st.FailedActions)
	require.Equal(t, float64(1), st.TotalRewards)

	rows := loop.journal.GetRecentCycles(10, 0, journal.Filter{})
	require.Len(t, rows, 1)
	require.Equal(t, "check_status", rows[0].Action)
	require.True(t, rows[0].Success)
}

func TestAgentLoop_RunCycleRecordsFailedCycle(t *testing.T) {
	executor := &scriptedExecutor{results: []ExecutionResult{{Success: false, Error: "tool unavailable"}}}
	loop := newTestLoop(t, fixedPlanner{action: "call_tool"}, executor)

	loop.started = true
	loop.runCycle(context.Background())

	st, err := loop.state.GetState()
	require.NoError(t, err)
	require.Equal(t, 1, st.CycleCount)
	require.Equal(t, 0, st.SuccessfulActions)
	require.Equal(t, 1, st.FailedActions)
	require.Equal(t, float64(-1), st.TotalRewards)
}

func TestAgentLoop_RunCyclePlannerFailureIsRecordedAndSkipsExecution(t *testing.T) {
	executor := &scriptedExecutor{results: []ExecutionResult{{Success: true}}}
	loop := newTestLoop(t, fixedPlanner{err: errors.New("planner unavailable")}, executor)

	loop.started = true
	loop.runCycle(context.Background())

	require.Equal(t, 0, executor.calls)

	st, err := loop.state.GetState()
	require.NoError(t, err)
	require.Equal(t, 1, st.CycleCount)
	require.Equal(t, 1, st.FailedActions)
}

func TestAgentLoop_HandleStartIsIdempotent(t *testing.T) {
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, &scriptedExecutor{results: []ExecutionResult{{Success: true}}})

	first := loop.handleStart()
	require.Equal(t, "started", first["status"])

	second := loop.handleStart()
	require.Equal(t, "already_running", second["status"])
}

func TestAgentLoop_PauseResumeRequiresStarted(t *testing.T) {
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, &scriptedExecutor{results: []ExecutionResult{{Success: true}}})

	notStarted := loop.handlePauseResume(true)
	require.Equal(t, "error", notStarted["status"])
	require.Equal(t, "Agent not running", notStarted["error"])

	loop.handleStart()

	paused := loop.handlePauseResume(true)
	require.Equal(t, "paused", paused["status"])
	require.True(t, loop.paused)

	resumed := loop.handlePauseResume(false)
	require.Equal(t, "resumed", resumed["status"])
	require.False(t, loop.paused)
}

func TestAgentLoop_HandleShutdownSetsFlag(t *testing.T) {
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, &scriptedExecutor{results: []ExecutionResult{{Success: true}}})
	result := loop.handleShutdown()
	require.Equal(t, "shutting_down", result["status"])
	require.True(t, loop.shutdownRequested)
}

func TestAgentLoop_HandleExecuteActionRequiresAction(t *testing.T) {
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, &scriptedExecutor{results: []ExecutionResult{{Success: true}}})
	result, err := loop.handleExecuteAction(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, false, result["success"])
}

func TestAgentLoop_HandleExecuteActionSuccess(t *testing.T) {
	executor := &scriptedExecutor{results: []ExecutionResult{{Success: true, Outcome: "done"}}}
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, executor)
	result, err := loop.handleExecuteAction(context.Background(), map[string]any{"action": "ping"})
	require.NoError(t, err)
	require.Equal(t, true, result["success"])
	require.Equal(t, "ping", result["action"])
	require.Equal(t, "done", result["outcome"])
}

func TestAgentLoop_HandleReloadConfigWithoutCacheReturnsPlaceholder(t *testing.T) {
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, &scriptedExecutor{results: []ExecutionResult{{Success: true}}})
	result := loop.handleReloadConfig()
	require.Equal(t, "config_reloaded", result["status"])
}

func TestAgentLoop_RunStopsOnShutdownRequest(t *testing.T) {
	executor := &scriptedExecutor{results: []ExecutionResult{{Success: true}}}
	loop := newTestLoop(t, fixedPlanner{action: "idle"}, executor)
	loop.started = true
	loop.cfg.AgentRestTime = time.Millisecond
	loop.shutdownRequested = true

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after shutdown was requested")
	}
}

func TestDefaultReward(t *testing.T) {
	require.Equal(t, 1.0, DefaultReward("x", ExecutionResult{Success: true}))
	require.Equal(t, -1.0, DefaultReward("x", ExecutionResult{Success: false}))
}
