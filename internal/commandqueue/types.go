// Package commandqueue implements the durable, file-backed command plane
// (spec.md §4.B): one JSON file per command. A command changes lifecycle
// directory by an atomic write (temp file + rename) of the updated file into
// the target directory followed by removal of the source file; the move
// itself is not a single rename. The controller produces commands; the
// worker consumes them.
package commandqueue

import "time"

// CommandType enumerates the recognized command types (spec.md §6).
type CommandType string

const (
	CommandStart         CommandType = "start"
	CommandStop          CommandType = "stop"
	CommandPause         CommandType = "pause"
	CommandResume        CommandType = "resume"
	CommandExecuteAction CommandType = "execute_action"
	CommandReloadConfig  CommandType = "reload_config"
	CommandShutdown      CommandType = "shutdown"
)

// Status is the lifecycle status of a command, kept consistent with the
// directory the command file lives in (spec.md §3 invariant).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// AgentCommand is the on-disk schema for one command file (spec.md §3).
type AgentCommand struct {
	CommandID   string         `json:"command_id"`
	CommandType CommandType    `json:"command_type"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Status      Status         `json:"status"`
	Params      map[string]any `json:"params,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// isExpired reports whether the command's deadline has passed.
func (c AgentCommand) isExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
