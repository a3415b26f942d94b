// Command worker runs the agent runtime's worker process (spec.md §4.Q):
// the cognitive loop plus the event runtime (D-H) that backs it. Grounded
// on the teacher's cmd/alex/main.go bootstrap shape (dotenv load, signal
// handling, container construction, graceful Drain on shutdown).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentrt/internal/commandqueue"
	"agentrt/internal/config"
	"agentrt/internal/dispatcher"
	"agentrt/internal/eventqueue"
	"agentrt/internal/journal"
	"agentrt/internal/learning"
	"agentrt/internal/logging"
	"agentrt/internal/metacognition"
	"agentrt/internal/runtime"
	"agentrt/internal/scheduler"
	"agentrt/internal/state"
	"agentrt/internal/supervisor"
	"agentrt/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewSlog(slog.LevelInfo)

	stateStore := state.New(cfg.StateRoot, state.WithLogger(logger))
	commandQueue := commandqueue.New(cfg.CommandRoot, logger)

	cycleJournal := journal.New(cfg.CycleDBPath, journal.NopWriter(), logger)
	if err := cycleJournal.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to load cycle journal: %v\n", err)
		os.Exit(1)
	}

	tracker := learning.NewTracker()
	critic := learning.NewSelfCritic(nil, 100)
	strategy := learning.NewStrategyAdapter(tracker, nil)
	monitor := metacognition.NewMonitor(metacognition.MonitorConfig{Tracker: tracker})

	events := buildEventRuntime(cfg, commandQueue, logger)

	loop := worker.New(
		worker.Config{
			AgentRestTime:       cfg.AgentRestTime,
			HeartbeatInterval:   cfg.HeartbeatInterval,
			CommandPollInterval: cfg.CommandPollInterval,
			Personality:         os.Getenv("AGENT_PERSONALITY"),
			Goal:                os.Getenv("AGENT_GOAL"),
		},
		stateStore,
		commandQueue,
		cycleJournal,
		worker.Learning{Tracker: tracker, Critic: critic, Strategy: strategy},
		monitor,
		noopPlanner{},
		noopExecutor{},
		nil,
		events,
		logger,
	)

	if configCache, err := config.NewRuntimeConfigCache(); err != nil {
		logger.Warn("worker: config cache unavailable, reload_config will be a no-op: %v", err)
	} else {
		loop.SetConfigCache(configCache)
	}

	if err := loop.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: init failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := events.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to start event runtime: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		<-quit
		logger.Info("worker: signal received, shutting down")
		loop.Stop()
		cancel()
	}()

	loop.Run(ctx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer drainCancel()
	if err := events.Stop(drainCtx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: event runtime stop error: %v\n", err)
	}

	if _, err := stateStore.SetStopped(""); err != nil {
		fmt.Fprintf(os.Stderr, "worker: final state write failed: %v\n", err)
	}
}

// buildEventRuntime composes the priority event queue, dispatcher,
// scheduler, and supervisor (spec.md §4.D-§4.H) hosting the worker's
// side-channel event traffic (action_succeeded/action_failed/intervention
// plus any webhook/scheduled triggers).
func buildEventRuntime(cfg config.RuntimeConfig, commandQueue *commandqueue.Queue, logger logging.Logger) *runtime.Runtime {
	queue := eventqueue.New(nil)
	disp := dispatcher.New(dispatcher.Config{PerEventTimeout: cfg.ProcessTimeout}, logger)
	sched := scheduler.New(scheduler.Config{}, queue, logger)
	sup := supervisor.New(logger)

	rt := runtime.New(runtime.Config{
		ProcessTimeout:          cfg.ProcessTimeout,
		GracefulShutdownTimeout: cfg.GracefulShutdownTimeout,
	}, queue, disp, sched, sup, logger)

	disp.RegisterHandler(eventqueue.TypeActionFailed, func(event eventqueue.Event) (any, error) {
		logger.Warn("worker: action_failed event: %v", event.Payload)
		return nil, nil
	})
	disp.RegisterHandler(eventqueue.TypeHealthCheck, func(_ eventqueue.Event) (any, error) {
		return nil, nil
	})

	_ = rt.RegisterBackgroundProcess("cleanup_old_commands", func(ctx context.Context) error {
		_, err := commandQueue.CleanupOldCommands(24 * time.Hour)
		return err
	}, 3600, true, false, 5)

	if cfg.WebhookAddr != "" {
		listener := runtime.NewWebhookListener(runtime.WebhookConfig{
			Addr:        cfg.WebhookAddr,
			Path:        cfg.WebhookPath,
			BearerToken: cfg.WebhookBearerToken,
		}, queue, logger)
		rt.AddListener(listener)
	}

	return rt
}

// noopPlanner is the built-in fallback planner used when no LLM-backed
// planning collaborator is wired in; it always chooses the idle action.
type noopPlanner struct{}

func (noopPlanner) Plan(_ context.Context, _ worker.AgentContext) (worker.PlannedAction, error) {
	return worker.PlannedAction{Action: "idle", Reasoning: "no planner collaborator configured"}, nil
}

// noopExecutor is the built-in fallback executor; it reports every action
// as a no-op success.
type noopExecutor struct{}

func (noopExecutor) Execute(_ context.Context, action string, _ map[string]any) (worker.ExecutionResult, error) {
	return worker.ExecutionResult{Success: true, Outcome: fmt.Sprintf("%s: no execution collaborator configured", action)}, nil
}
