package worker

import (
	"context"
	"fmt"
	"os"

	"agentrt/internal/commandqueue"
	"agentrt/internal/state"
)

func processPID() int { return os.Getpid() }

// processCommands polls for one pending command and dispatches it to the
// matching lifecycle handler (spec.md §4.Q "process_commands").
func (l *AgentLoop) processCommands(ctx context.Context) {
	cmd, err := l.commands.GetNextCommand()
	if err != nil {
		l.logger.Warn("worker: get next command failed: %v", err)
		return
	}
	if cmd == nil {
		return
	}

	processing, err := l.commands.MarkProcessing(cmd.CommandID)
	if err != nil {
		l.logger.Warn("worker: mark processing failed for %s: %v", cmd.CommandID, err)
		return
	}

	result, herr := l.dispatchCommand(ctx, processing)
	if herr != nil {
		if err := l.commands.MarkFailed(processing.CommandID, herr.Error()); err != nil {
			l.logger.Warn("worker: mark failed for %s: %v", processing.CommandID, err)
		}
		return
	}
	if err := l.commands.MarkCompleted(processing.CommandID, result); err != nil {
		l.logger.Warn("worker: mark completed for %s: %v", processing.CommandID, err)
	}
}

// dispatchCommand routes one command to its lifecycle handler, returning
// the JSON-serializable result dict (spec.md §4.Q "Command handlers").
func (l *AgentLoop) dispatchCommand(ctx context.Context, cmd commandqueue.AgentCommand) (map[string]any, error) {
	switch cmd.CommandType {
	case commandqueue.CommandStart:
		return l.handleStart(), nil
	case commandqueue.CommandStop:
		return l.handleStop(), nil
	case commandqueue.CommandPause:
		return l.handlePauseResume(true), nil
	case commandqueue.CommandResume:
		return l.handlePauseResume(false), nil
	case commandqueue.CommandShutdown:
		return l.handleShutdown(), nil
	case commandqueue.CommandExecuteAction:
		return l.handleExecuteAction(ctx, cmd.Params)
	case commandqueue.CommandReloadConfig:
		return l.handleReloadConfig(), nil
	default:
		return nil, fmt.Errorf("worker: unknown command type %q", cmd.CommandType)
	}
}

func (l *AgentLoop) handleStart() map[string]any {
	l.mu.Lock()
	alreadyRunning := l.started && !l.paused
	l.started = true
	l.paused = false
	l.mu.Unlock()

	if alreadyRunning {
		return map[string]any{"status": "already_running"}
	}
	if _, err := l.state.SetRunning(processPID(), l.cfg.Personality, l.cfg.Goal); err != nil {
		l.logger.Warn("worker: set running failed: %v", err)
	}
	return map[string]any{"status": "started"}
}

func (l *AgentLoop) handleStop() map[string]any {
	l.mu.Lock()
	alreadyStopped := !l.started
	l.started = false
	l.paused = false
	l.mu.Unlock()

	if alreadyStopped {
		return map[string]any{"status": "already_stopped"}
	}
	if _, err := l.state.SetStopped(""); err != nil {
		l.logger.Warn("worker: set stopped failed: %v", err)
	}
	return map[string]any{"status": "stopped"}
}

func (l *AgentLoop) handlePauseResume(pause bool) map[string]any {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return map[string]any{"status": "error", "error": "Agent not running"}
	}

	l.mu.Lock()
	l.paused = pause
	l.mu.Unlock()

	newStatus := state.StatusRunning
	if pause {
		newStatus = state.StatusPaused
	}
	if _, err := l.state.UpdateState(func(st *state.AgentRuntimeState) {
		st.Status = newStatus
	}); err != nil {
		l.logger.Warn("worker: update pause/resume state failed: %v", err)
	}
	return map[string]any{"status": map[bool]string{true: "paused", false: "resumed"}[pause]}
}

func (l *AgentLoop) handleShutdown() map[string]any {
	l.mu.Lock()
	l.shutdownRequested = true
	l.mu.Unlock()
	return map[string]any{"status": "shutting_down"}
}

func (l *AgentLoop) handleExecuteAction(ctx context.Context, params map[string]any) (map[string]any, error) {
	action, _ := params["action"].(string)
	if action == "" {
		return map[string]any{"success": false, "error": "params.action is required"}, nil
	}

	result, err := l.executor.Execute(ctx, action, params)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	out := map[string]any{"success": result.Success, "action": action}
	if result.Outcome != "" {
		out["outcome"] = result.Outcome
	}
	if !result.Success && result.Error != "" {
		out["error"] = result.Error
	}
	return out, nil
}

func (l *AgentLoop) handleReloadConfig() map[string]any {
	if l.configs == nil {
		return map[string]any{"status": "config_reloaded"}
	}
	if err := l.configs.Reload(); err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "config_reloaded"}
}
