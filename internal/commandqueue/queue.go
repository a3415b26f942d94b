package commandqueue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"agentrt/internal/errs"
	"agentrt/internal/filestore"
	"agentrt/internal/ids"
	"agentrt/internal/logging"
)

// Queue is the file-backed command queue (spec.md §4.B). It keeps four
// lifecycle directories under root/commands: pending, processing,
// completed, failed. pending/completed/failed are the external contract
// (spec.md §6); processing is an additional implementation directory
// permitted by spec.md §4.B, used here to make "a command_id exists in
// exactly one directory" trivially checkable instead of overloading
// completed/ for in-flight commands (see SPEC_FULL.md Open Questions).
type Queue struct {
	pendingDir    string
	processingDir string
	completedDir  string
	failedDir     string
	logger        logging.Logger
}

// New creates a Queue rooted at root.
func New(root string, logger logging.Logger) *Queue {
	base := filepath.Join(root, "commands")
	return &Queue{
		pendingDir:    filepath.Join(base, "pending"),
		processingDir: filepath.Join(base, "processing"),
		completedDir:  filepath.Join(base, "completed"),
		failedDir:     filepath.Join(base, "failed"),
		logger:        logging.OrNop(logger),
	}
}

func (q *Queue) dirs() []string {
	return []string{q.pendingDir, q.processingDir, q.completedDir, q.failedDir}
}

func (q *Queue) path(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

func (q *Queue) writeCommand(dir string, cmd AgentCommand) error {
	data, err := filestore.MarshalJSONIndent(cmd)
	if err != nil {
		return err
	}
	return filestore.AtomicWrite(q.path(dir, cmd.CommandID), data, 0o644)
}

func (q *Queue) readCommand(dir, id string) (AgentCommand, error) {
	data, err := os.ReadFile(q.path(dir, id))
	if err != nil {
		return AgentCommand{}, err
	}
	var cmd AgentCommand
	if err := filestore.UnmarshalLenient(data, &cmd); err != nil {
		return AgentCommand{}, &errs.StateCorruption{Path: q.path(dir, id), Err: err}
	}
	return cmd, nil
}

// SendCommand allocates a fresh command id and writes a pending file
// (spec.md §4.B send_command). timeoutSeconds <= 0 means no expiry.
func (q *Queue) SendCommand(cmdType CommandType, params map[string]any, timeoutSeconds int) (AgentCommand, error) {
	now := time.Now().UTC()
	cmd := AgentCommand{
		CommandID:   ids.Prefixed("cmd"),
		CommandType: cmdType,
		CreatedAt:   now,
		Status:      StatusPending,
		Params:      params,
	}
	if timeoutSeconds > 0 {
		expiry := now.Add(time.Duration(timeoutSeconds) * time.Second)
		cmd.ExpiresAt = &expiry
	}
	if err := q.writeCommand(q.pendingDir, cmd); err != nil {
		return AgentCommand{}, retryOnce(func() error { return q.writeCommand(q.pendingDir, cmd) }, err)
	}
	return cmd, nil
}

// GetCommandStatus reads a command from whichever lifecycle directory
// currently holds it (spec.md §4.B get_command_status).
func (q *Queue) GetCommandStatus(id string) (*AgentCommand, error) {
	for _, dir := range q.dirs() {
		if _, err := os.Stat(q.path(dir, id)); err == nil {
			cmd, rerr := q.readCommand(dir, id)
			if rerr != nil {
				return nil, rerr
			}
			return &cmd, nil
		}
	}
	return nil, &errs.CommandNotFound{CommandID: id}
}

// WaitForCommand polls GetCommandStatus until the command reaches a
// terminal status (completed, failed or expired) and returns it, or returns
// nil once timeout elapses (spec.md §4.B wait_for_command).
func (q *Queue) WaitForCommand(id string, timeout, poll time.Duration) (*AgentCommand, error) {
	deadline := time.Now().Add(timeout)
	for {
		cmd, err := q.GetCommandStatus(id)
		if err == nil && (cmd.Status == StatusCompleted || cmd.Status == StatusFailed || cmd.Status == StatusExpired) {
			return cmd, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(poll)
	}
}

// GetPendingCommands returns pending commands sorted oldest-first by
// filename, transitioning any expired command to failed along the way
// (spec.md §4.B get_pending_commands).
func (q *Queue) GetPendingCommands() ([]AgentCommand, error) {
	entries, err := os.ReadDir(q.pendingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	now := time.Now().UTC()
	out := make([]AgentCommand, 0, len(names))
	for _, name := range names {
		id := name[:len(name)-len(".json")]
		cmd, rerr := q.readCommand(q.pendingDir, id)
		if rerr != nil {
			q.logger.Warn("commandqueue: skipping unreadable pending command %s: %v", id, rerr)
			continue
		}
		if cmd.isExpired(now) {
			if err := q.expire(cmd); err != nil {
				q.logger.Warn("commandqueue: failed to expire %s: %v", id, err)
			}
			continue
		}
		out = append(out, cmd)
	}
	return out, nil
}

// GetNextCommand returns the oldest pending command, or nil if none.
func (q *Queue) GetNextCommand() (*AgentCommand, error) {
	pending, err := q.GetPendingCommands()
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	return &pending[0], nil
}

func (q *Queue) expire(cmd AgentCommand) error {
	cmd.Status = StatusExpired
	cmd.Error = "Command expired"
	now := time.Now().UTC()
	cmd.CompletedAt = &now
	if err := q.writeCommand(q.failedDir, cmd); err != nil {
		return err
	}
	return os.Remove(q.path(q.pendingDir, cmd.CommandID))
}

// MarkProcessing moves a command from pending to processing, enforcing
// that once processing has succeeded it can never revert to pending
// (spec.md §4.B invariant ii).
func (q *Queue) MarkProcessing(id string) (AgentCommand, error) {
	cmd, err := q.readCommand(q.pendingDir, id)
	if err != nil {
		return AgentCommand{}, fmt.Errorf("mark_processing: %w", &errs.CommandNotFound{CommandID: id})
	}
	cmd.Status = StatusProcessing
	if err := q.writeCommand(q.processingDir, cmd); err != nil {
		return AgentCommand{}, err
	}
	if err := os.Remove(q.path(q.pendingDir, id)); err != nil {
		q.logger.Warn("commandqueue: failed to remove pending file for %s after processing: %v", id, err)
	}
	return cmd, nil
}

// MarkCompleted moves a command to completed/ with the given result.
func (q *Queue) MarkCompleted(id string, result map[string]any) error {
	cmd, err := q.loadAnyTerminalSource(id)
	if err != nil {
		return err
	}
	cmd.Status = StatusCompleted
	cmd.Result = result
	now := time.Now().UTC()
	cmd.CompletedAt = &now
	if err := q.writeCommand(q.completedDir, cmd); err != nil {
		return retryOnce(func() error { return q.writeCommand(q.completedDir, cmd) }, err)
	}
	_ = os.Remove(q.path(q.processingDir, id))
	_ = os.Remove(q.path(q.pendingDir, id))
	return nil
}

// MarkFailed moves a command to failed/ with the given error text.
func (q *Queue) MarkFailed(id, errMsg string) error {
	cmd, err := q.loadAnyTerminalSource(id)
	if err != nil {
		return err
	}
	cmd.Status = StatusFailed
	cmd.Error = errMsg
	now := time.Now().UTC()
	cmd.CompletedAt = &now
	if err := q.writeCommand(q.failedDir, cmd); err != nil {
		return retryOnce(func() error { return q.writeCommand(q.failedDir, cmd) }, err)
	}
	_ = os.Remove(q.path(q.processingDir, id))
	_ = os.Remove(q.path(q.pendingDir, id))
	return nil
}

// loadAnyTerminalSource reads a command from processing/ if present, else
// pending/ (a worker may go straight from pending to a terminal state for
// commands that don't model an in-flight phase).
func (q *Queue) loadAnyTerminalSource(id string) (AgentCommand, error) {
	if cmd, err := q.readCommand(q.processingDir, id); err == nil {
		return cmd, nil
	}
	if cmd, err := q.readCommand(q.pendingDir, id); err == nil {
		return cmd, nil
	}
	return AgentCommand{}, &errs.CommandNotFound{CommandID: id}
}

// CleanupOldCommands deletes terminal (completed/failed) files older than
// maxAge (spec.md §4.B cleanup_old_commands).
func (q *Queue) CleanupOldCommands(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for _, dir := range []string{q.completedDir, q.failedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			id := e.Name()[:len(e.Name())-len(filepath.Ext(e.Name()))]
			cmd, rerr := q.readCommand(dir, id)
			if rerr != nil {
				continue
			}
			if cmd.CompletedAt != nil && cmd.CompletedAt.Before(cutoff) {
				if err := os.Remove(q.path(dir, id)); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

// retryOnce retries fn a single time on failure, matching spec.md §4.B's
// failure semantics ("on any write/rename failure, the operation is
// retried by callers once; if still failing, surfaced to the caller").
func retryOnce(fn func() error, firstErr error) error {
	if firstErr == nil {
		return nil
	}
	if err := fn(); err != nil {
		return fmt.Errorf("after retry: %w", err)
	}
	return nil
}
