package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"agentrt/internal/commandqueue"
	"agentrt/internal/config"
	"agentrt/internal/eventqueue"
	"agentrt/internal/ids"
	"agentrt/internal/journal"
	"agentrt/internal/learning"
	"agentrt/internal/logging"
	"agentrt/internal/metacognition"
	"agentrt/internal/runtime"
	"agentrt/internal/state"
)

// Config tunes the AgentLoop (spec.md §6).
type Config struct {
	AgentRestTime       time.Duration
	HeartbeatInterval   time.Duration
	CommandPollInterval time.Duration
	Personality         string
	Goal                string
}

func (c Config) withDefaults() Config {
	if c.AgentRestTime <= 0 {
		c.AgentRestTime = 2 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.CommandPollInterval <= 0 {
		c.CommandPollInterval = time.Second
	}
	return c
}

// Learning bundles the adaptive-learning collaborators one cycle consults
// (spec.md §4.I-§4.L). Lessons and Strategy are optional.
type Learning struct {
	Tracker  *learning.Tracker
	Critic   *learning.SelfCritic
	Lessons  *learning.LessonRepository
	Strategy *learning.StrategyAdapter
}

// AgentLoop is the worker process's cognitive loop (spec.md §4.Q), wired to
// the command plane, shared state, cycle journal, learning collaborators,
// and metacognitive monitor. Grounded on the teacher's
// internal/app/agent/kernel.Engine: a Planner/Executor pair driven by a
// fixed-interval Run loop instead of cron, with the same
// Run/Stop/stopped-channel shutdown shape (AgentLoop has no Drain).
type AgentLoop struct {
	cfg      Config
	state    *state.Store
	commands *commandqueue.Queue
	journal  *journal.Store
	learning Learning
	monitor  *metacognition.Monitor
	planner  Planner
	executor Executor
	reward   RewardFunc
	events   *runtime.Runtime // optional; nil disables event emission
	logger   logging.Logger
	configs  *config.RuntimeConfigCache // optional; nil makes reload_config a no-op

	mu                 sync.Mutex
	started            bool
	paused             bool
	shutdownRequested  bool
	lastHeartbeat      time.Time
	lastCommandPoll    time.Time
	agentCtx           AgentContext

	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an AgentLoop. events may be nil to disable event-queue
// side-effects (action_succeeded/action_failed/health_check emission).
func New(cfg Config, st *state.Store, commands *commandqueue.Queue, jrnl *journal.Store, lrn Learning, monitor *metacognition.Monitor, planner Planner, executor Executor, reward RewardFunc, events *runtime.Runtime, logger logging.Logger) *AgentLoop {
	if reward == nil {
		reward = DefaultReward
	}
	return &AgentLoop{
		cfg:      cfg.withDefaults(),
		state:    st,
		commands: commands,
		journal:  jrnl,
		learning: lrn,
		monitor:  monitor,
		planner:  planner,
		executor: executor,
		reward:   reward,
		events:   events,
		logger:   logging.OrNop(logger),
		agentCtx: AgentContext{Goal: cfg.Goal, Personality: cfg.Personality},
		stopped:  make(chan struct{}),
	}
}

// SetConfigCache wires a live configuration cache so reload_config commands
// actually re-read the config source instead of acting as a placeholder
// (spec.md §4.Q "reload_config"). Optional; call before Run.
func (l *AgentLoop) SetConfigCache(cache *config.RuntimeConfigCache) {
	l.configs = cache
}

// Init publishes the initial stopped state and pid/personality/goal/MCP
// status (spec.md §4.Q "On startup").
func (l *AgentLoop) Init() error {
	if _, err := l.state.SetStopped(""); err != nil {
		return fmt.Errorf("worker: init state: %w", err)
	}
	if _, err := l.state.UpdateState(func(st *state.AgentRuntimeState) {
		pid := os.Getpid()
		st.PID = &pid
		st.Personality = l.cfg.Personality
		st.Goal = l.cfg.Goal
	}); err != nil {
		return fmt.Errorf("worker: publish identity: %w", err)
	}
	return nil
}

// Run executes the main loop described in spec.md §4.Q until Stop is
// called or ctx is cancelled.
func (l *AgentLoop) Run(ctx context.Context) {
	l.logger.Info("worker: loop starting")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("worker: loop stopped (context cancelled)")
			return
		case <-l.stopped:
			l.logger.Info("worker: loop stopped")
			return
		default:
		}

		now := time.Now()

		if now.Sub(l.lastHeartbeat) >= l.cfg.HeartbeatInterval {
			l.sendHeartbeat()
			l.lastHeartbeat = now
		}

		if now.Sub(l.lastCommandPoll) >= l.cfg.CommandPollInterval {
			l.processCommands(ctx)
			l.lastCommandPoll = now
		}

		l.mu.Lock()
		shutdownRequested := l.shutdownRequested
		started := l.started
		paused := l.paused
		l.mu.Unlock()

		switch {
		case shutdownRequested:
			l.logger.Info("worker: shutdown requested, exiting loop")
			return
		case !started:
			sleep(ctx, time.Second)
		case paused:
			sleep(ctx, time.Second)
		default:
			l.wg.Add(1)
			func() {
				defer l.wg.Done()
				l.runCycle(ctx)
			}()
			sleep(ctx, l.cfg.AgentRestTime)
		}
	}
}

// Stop signals the loop to exit and waits for any in-flight cycle.
func (l *AgentLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
	l.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (l *AgentLoop) sendHeartbeat() {
	if _, err := l.state.Heartbeat(); err != nil {
		l.logger.Warn("worker: heartbeat failed: %v", err)
	}
}

// runCycle executes one plan→monitor→act→learn→journal cycle (spec.md
// §4.Q "Cycle").
func (l *AgentLoop) runCycle(ctx context.Context) {
	cycleID := ids.Prefixed("cycle")
	start := time.Now().UTC()

	stateBefore, _ := l.state.GetState()

	planStart := time.Now()
	planned, err := l.planner.Plan(ctx, l.agentCtxSnapshot())
	planningDuration := time.Since(planStart)
	if err != nil {
		l.logger.Warn("worker: planner failed: %v", err)
		l.recordCycleFailure(cycleID, start, stateBefore, "", planningDuration, err)
		return
	}

	if _, err := l.state.SetCurrentAction(planned.Action); err != nil {
		l.logger.Warn("worker: set current action failed: %v", err)
	}

	contextKey := learning.ExtractContextFeatures(map[string]any{
		"goal":            l.agentCtx.Goal,
		"previous_action": l.agentCtx.PreviousAction,
		"error":           l.agentCtx.PreviousError,
	})

	confidence := metacognition.ConfidenceFactors{
		Goal:           l.agentCtx.Goal,
		HasSuccessRate: true,
	}
	if l.learning.Tracker != nil {
		confidence.SuccessRate = l.learning.Tracker.GetSuccessRate(planned.Action)
	}

	intervention := l.monitor.Monitor(planned.Action, metacognition.MonitorContext{
		ContextHash: contextKey,
		Goal:        l.agentCtx.Goal,
		Confidence:  confidence,
	})
	if intervention.Kind != metacognition.InterventionContinue {
		l.logger.Info("worker: intervention %s for action %s: %s", intervention.Kind, planned.Action, intervention.Reason)
		if intervention.Kind == metacognition.InterventionAbort {
			l.mu.Lock()
			l.shutdownRequested = true
			l.mu.Unlock()
		}
		l.emitEvent(eventqueue.TypeIntervention, eventqueue.PriorityHigh, map[string]any{
			"action": planned.Action,
			"kind":   string(intervention.Kind),
			"reason": intervention.Reason,
		})
		return
	}

	execStart := time.Now()
	result, execErr := l.executor.Execute(ctx, planned.Action, planned.Params)
	executionDuration := time.Since(execStart)
	if execErr != nil {
		result = ExecutionResult{Success: false, Error: execErr.Error()}
	}

	reward := l.reward(planned.Action, result)

	if l.learning.Tracker != nil {
		l.learning.Tracker.Record(planned.Action, contextKey, reward, result.Success, nil)
	}
	if l.learning.Strategy != nil {
		l.learning.Strategy.RecordRecentOutcome(planned.Action, reward)
	}
	l.monitor.RecordActionResult(planned.Action, result.Success, result.Error)

	var critique *string
	if !result.Success && l.learning.Critic != nil {
		crit := l.learning.Critic.Critique(planned.Action, l.agentCtx.Goal, result.Outcome, result.Error)
		text := crit.Reason + "; " + crit.BetterApproach
		critique = &text
		if l.learning.Lessons != nil {
			lessonID, lerr := l.learning.Lessons.Store(ctx, learning.Lesson{
				Action:         planned.Action,
				ContextKey:     contextKey,
				Goal:           l.agentCtx.Goal,
				WhatWentWrong:  result.Error,
				BetterApproach: crit.BetterApproach,
			})
			if lerr != nil {
				l.logger.Warn("worker: store lesson failed: %v", lerr)
			} else if l.learning.Strategy != nil {
				if lesson, ok := l.learning.Lessons.GetLesson(lessonID); ok {
					l.learning.Strategy.UpdateFromLesson(lesson)
				}
			}
		}
	}

	l.agentCtx.PreviousAction = planned.Action
	if result.Success {
		l.agentCtx.PreviousError = ""
	} else {
		l.agentCtx.PreviousError = result.Error
	}
	l.agentCtx.CycleCount++

	agentState := "idle"
	if !result.Success {
		agentState = "recovering"
	}
	if _, err := l.state.UpdateCycleInfo(agentState, result.Success, reward); err != nil {
		l.logger.Warn("worker: update cycle info failed: %v", err)
	}

	stateAfter, _ := l.state.GetState()

	var outcome *string
	if result.Outcome != "" {
		outcome = &result.Outcome
	}
	var execErrText *string
	if result.Error != "" {
		execErrText = &result.Error
	}
	var reasoning *string
	if planned.Reasoning != "" {
		reasoning = &planned.Reasoning
	}

	totalDuration := time.Since(start)
	row := journal.CycleLog{
		CycleID:                    cycleID,
		Timestamp:                  start,
		Action:                     planned.Action,
		StateBefore:                string(stateBefore.Status),
		StateAfter:                 string(stateAfter.Status),
		Success:                    result.Success,
		Outcome:                    outcome,
		Reward:                     reward,
		DurationMS:                 totalDuration.Milliseconds(),
		Error:                      execErrText,
		PlanningInputState:         string(stateBefore.Status),
		PlanningInputRecentActions: []string{l.agentCtx.PreviousAction},
		PlanningOutputReasoning:    reasoning,
		PlanningDurationMS:         planningDuration.Milliseconds(),
		ActionParams:               planned.Params,
		ExecutionResult:            result.Outcome,
		ExecutionError:             execErrText,
		ExecutionDurationMS:        executionDuration.Milliseconds(),
		Critique:                   critique,
		TotalDurationMS:            totalDuration.Milliseconds(),
		AgentStateAfter:            agentState,
	}
	if _, err := l.journal.LogCycle(row); err != nil {
		l.logger.Warn("worker: log cycle failed: %v", err)
	}
	if err := l.state.AddCycle(state.CycleInfo{
		CycleID:     cycleID,
		Timestamp:   start,
		Action:      planned.Action,
		StateBefore: row.StateBefore,
		StateAfter:  row.StateAfter,
		Success:     result.Success,
		Outcome:     outcome,
		Reward:      reward,
		DurationMS:  totalDuration.Milliseconds(),
		Error:       execErrText,
	}); err != nil {
		l.logger.Warn("worker: add cycle failed: %v", err)
	}

	if result.Success {
		l.emitEvent(eventqueue.TypeActionSucceeded, eventqueue.PriorityNormal, map[string]any{"action": planned.Action, "reward": reward})
	} else {
		l.emitEvent(eventqueue.TypeActionFailed, eventqueue.PriorityNormal, map[string]any{"action": planned.Action, "error": result.Error})
	}
}

func (l *AgentLoop) recordCycleFailure(cycleID string, start time.Time, stateBefore state.AgentRuntimeState, action string, planningDuration time.Duration, err error) {
	errText := err.Error()
	reward := l.reward(action, ExecutionResult{Success: false, Error: errText})
	if l.learning.Tracker != nil {
		l.learning.Tracker.Record(action, "global", reward, false, nil)
	}
	l.monitor.RecordActionResult(action, false, errText)
	if _, uerr := l.state.UpdateCycleInfo("error", false, reward); uerr != nil {
		l.logger.Warn("worker: update cycle info failed: %v", uerr)
	}
	row := journal.CycleLog{
		CycleID:             cycleID,
		Timestamp:           start,
		Action:              action,
		StateBefore:         string(stateBefore.Status),
		StateAfter:          "error",
		Success:             false,
		Reward:              reward,
		Error:               &errText,
		PlanningDurationMS:  planningDuration.Milliseconds(),
		ExecutionError:      &errText,
		TotalDurationMS:     time.Since(start).Milliseconds(),
		AgentStateAfter:     "error",
	}
	if _, jerr := l.journal.LogCycle(row); jerr != nil {
		l.logger.Warn("worker: log cycle (planner failure) failed: %v", jerr)
	}
}

func (l *AgentLoop) agentCtxSnapshot() AgentContext {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agentCtx
}

func (l *AgentLoop) emitEvent(t eventqueue.Type, priority eventqueue.Priority, payload map[string]any) {
	if l.events == nil {
		return
	}
	l.events.Emit(eventqueue.Event{Type: t, Priority: priority, Source: eventqueue.SourceInternal, Payload: payload})
}
