// Package state implements the shared-state store (spec.md §4.A): the
// single JSON-serialized AgentRuntimeState record and its bounded recent-
// cycle ring, written by the worker and read by the controller under an
// advisory file lock.
package state

import "time"

// Status is the lifecycle status of the agent worker.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// isRunning reports whether a status counts as "running" for the
// is_running invariant (spec.md §3: "is_running ⇔ status ∈ {running, paused}").
func (s Status) isRunning() bool {
	return s == StatusRunning || s == StatusPaused
}

// AgentRuntimeState is the single JSON record shared between controller
// and worker (spec.md §3).
type AgentRuntimeState struct {
	PID           *int       `json:"pid,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	Status    Status `json:"status"`
	IsRunning bool   `json:"is_running"`

	AgentState  string `json:"agent_state"`
	Personality string `json:"personality"`
	Goal        string `json:"goal"`

	MCPEnabled          bool `json:"mcp_enabled"`
	MCPConnectedServers int  `json:"mcp_connected_servers"`
	MCPAvailableTools   int  `json:"mcp_available_tools"`

	CurrentAction  *string    `json:"current_action,omitempty"`
	CycleCount     int        `json:"cycle_count"`
	LastActionTime *time.Time `json:"last_action_time,omitempty"`

	TotalRewards     float64 `json:"total_rewards"`
	SuccessfulActions int    `json:"successful_actions"`
	FailedActions     int    `json:"failed_actions"`

	LastError  *string `json:"last_error,omitempty"`
	ErrorCount int     `json:"error_count"`
}

// normalizeInvariants enforces the is_running/status and cycle_count
// invariants described in spec.md §3 after any mutation.
func (s *AgentRuntimeState) normalizeInvariants() {
	s.IsRunning = s.Status.isRunning()
	s.CycleCount = s.SuccessfulActions + s.FailedActions
}

// CycleInfo is the compact per-cycle record kept in the bounded A-resident
// ring (spec.md §3 "CycleInfo").
type CycleInfo struct {
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
}

// cyclesDocument is the on-disk envelope of state/cycles.json
// (spec.md §6: `{ "cycles": [CycleInfo, …], "max_cycles": N }`, newest-first).
type cyclesDocument struct {
	Cycles    []CycleInfo `json:"cycles"`
	MaxCycles int         `json:"max_cycles"`
}

// FullStatus bundles the runtime state with its recent cycles, the shape
// returned by get_full_status().
type FullStatus struct {
	State         AgentRuntimeState `json:"state"`
	RecentCycles  []CycleInfo       `json:"recent_cycles"`
	IsAlive       bool              `json:"is_alive"`
	ProcessExists bool              `json:"process_exists"`
}
