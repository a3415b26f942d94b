package state

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"agentrt/internal/filestore"
	"agentrt/internal/logging"
)

// Store is the shared-state store (spec.md §4.A). A single instance is
// typically constructed by both the controller (read-mostly) and the
// worker (read-write); both talk to the same files under root.
type Store struct {
	statePath  string
	cyclesPath string
	lockPath   string
	maxCycles  int
	logger     logging.Logger
	lock       *fileLock
}

// Option configures a Store.
type Option func(*Store)

// WithMaxCycles overrides the default 50-entry recent-cycle ring size.
func WithMaxCycles(n int) Option {
	return func(s *Store) { s.maxCycles = n }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// New creates a Store rooted at root (spec.md §6 layout: root/state/state.json,
// root/state/cycles.json, root/state/.lock).
func New(root string, opts ...Option) *Store {
	stateDir := filepath.Join(root, "state")
	s := &Store{
		statePath:  filepath.Join(stateDir, "state.json"),
		cyclesPath: filepath.Join(stateDir, "cycles.json"),
		lockPath:   filepath.Join(stateDir, ".lock"),
		maxCycles:  50,
		logger:     logging.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	s.lock = newFileLock(s.lockPath)
	return s
}

// withLock runs fn holding the advisory exclusive lock for the duration of
// a load→modify→store cycle (spec.md §4.A).
func (s *Store) withLock(fn func() error) error {
	if err := filestore.EnsureParentDir(s.statePath); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("state: failed to release lock: %v", err)
		}
	}()
	return fn()
}

// loadStateLocked reads state.json, recovering to zero-value defaults on a
// parse failure rather than propagating (spec.md §4.A/§7.a). Caller must
// hold the lock.
func (s *Store) loadStateLocked() AgentRuntimeState {
	data, err := filestore.ReadFileOrEmpty(s.statePath)
	if err != nil {
		s.logger.Warn("state: read failed, using defaults: %v", err)
		return AgentRuntimeState{Status: StatusStopped}
	}
	if data == nil {
		return AgentRuntimeState{Status: StatusStopped}
	}
	var st AgentRuntimeState
	if err := filestore.UnmarshalLenient(data, &st); err != nil {
		s.logger.Warn("state: corrupt state.json, using defaults: %v", err)
		return AgentRuntimeState{Status: StatusStopped}
	}
	return st
}

func (s *Store) storeStateLocked(st AgentRuntimeState) error {
	st.normalizeInvariants()
	data, err := filestore.MarshalJSONIndent(st)
	if err != nil {
		return err
	}
	return filestore.AtomicWrite(s.statePath, data, 0o644)
}

// GetState returns the current state, recovering to defaults on corruption.
func (s *Store) GetState() (AgentRuntimeState, error) {
	var st AgentRuntimeState
	err := s.withLock(func() error {
		st = s.loadStateLocked()
		return nil
	})
	return st, err
}

// UpdateFunc mutates the loaded state in place.
type UpdateFunc func(*AgentRuntimeState)

// UpdateState loads, applies fn, normalizes invariants, and rewrites the
// state file atomically under the lock.
func (s *Store) UpdateState(fn UpdateFunc) (AgentRuntimeState, error) {
	var out AgentRuntimeState
	err := s.withLock(func() error {
		st := s.loadStateLocked()
		fn(&st)
		if err := s.storeStateLocked(st); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// SetRunning transitions to running, publishing pid/personality/goal
// (spec.md §4.A set_running).
func (s *Store) SetRunning(pid int, personality, goal string) (AgentRuntimeState, error) {
	now := time.Now().UTC()
	return s.UpdateState(func(st *AgentRuntimeState) {
		st.PID = &pid
		st.Status = StatusRunning
		st.Personality = personality
		st.Goal = goal
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
		st.LastHeartbeat = &now
		st.LastError = nil
	})
}

// SetStopped transitions to stopped (or error, if errMsg is non-empty),
// incrementing error_count atomically with the write when erroring
// (spec.md §4.A set_stopped).
func (s *Store) SetStopped(errMsg string) (AgentRuntimeState, error) {
	return s.UpdateState(func(st *AgentRuntimeState) {
		if errMsg != "" {
			st.Status = StatusError
			msg := errMsg
			st.LastError = &msg
			st.ErrorCount++
		} else {
			st.Status = StatusStopped
		}
		st.CurrentAction = nil
	})
}

// Heartbeat bumps last_heartbeat to now, enforcing the strictly
// non-decreasing invariant from spec.md §3.
func (s *Store) Heartbeat() (AgentRuntimeState, error) {
	now := time.Now().UTC()
	return s.UpdateState(func(st *AgentRuntimeState) {
		if st.LastHeartbeat == nil || now.After(*st.LastHeartbeat) {
			st.LastHeartbeat = &now
		}
	})
}

// SetCurrentAction records the action name currently being executed, or
// clears it when name is empty.
func (s *Store) SetCurrentAction(name string) (AgentRuntimeState, error) {
	return s.UpdateState(func(st *AgentRuntimeState) {
		if name == "" {
			st.CurrentAction = nil
		} else {
			st.CurrentAction = &name
		}
	})
}

// UpdateMCPStatus records MCP connectivity counters.
func (s *Store) UpdateMCPStatus(enabled bool, connectedServers, availableTools int) (AgentRuntimeState, error) {
	return s.UpdateState(func(st *AgentRuntimeState) {
		st.MCPEnabled = enabled
		st.MCPConnectedServers = connectedServers
		st.MCPAvailableTools = availableTools
	})
}

// UpdateCycleInfo atomically applies the post-cycle counters described in
// spec.md §4.A update_cycle_info: cycle_count += 1, total_rewards += reward,
// last_action_time := now, and exactly one of successful/failed increments.
func (s *Store) UpdateCycleInfo(agentState string, success bool, reward float64) (AgentRuntimeState, error) {
	now := time.Now().UTC()
	return s.UpdateState(func(st *AgentRuntimeState) {
		st.AgentState = agentState
		st.TotalRewards += reward
		st.LastActionTime = &now
		if success {
			st.SuccessfulActions++
		} else {
			st.FailedActions++
		}
		st.CurrentAction = nil
	})
}

// ClearState resets state.json to zero-value defaults. This is the only
// sanctioned way to discard a corrupted state file (spec.md §4.A).
func (s *Store) ClearState() error {
	return s.withLock(func() error {
		return s.storeStateLocked(AgentRuntimeState{Status: StatusStopped})
	})
}

// IsAgentAlive reports whether the state claims to be running and the
// heartbeat is fresh within timeout (spec.md §4.A is_agent_alive).
func (s *Store) IsAgentAlive(timeout time.Duration) (bool, error) {
	st, err := s.GetState()
	if err != nil {
		return false, err
	}
	if !st.IsRunning || st.LastHeartbeat == nil {
		return false, nil
	}
	return time.Since(*st.LastHeartbeat) < timeout, nil
}

// IsAgentProcessRunning reports whether state.pid names a live process via
// a zero-signal probe (spec.md §4.A is_agent_process_running).
func (s *Store) IsAgentProcessRunning() (bool, error) {
	st, err := s.GetState()
	if err != nil {
		return false, err
	}
	if st.PID == nil {
		return false, nil
	}
	proc, err := os.FindProcess(*st.PID)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}

// GetRecentCycles returns the bounded A-resident ring, newest-first.
func (s *Store) GetRecentCycles() ([]CycleInfo, error) {
	var out []CycleInfo
	err := s.withLock(func() error {
		doc, lerr := s.loadCyclesLocked()
		if lerr != nil {
			return lerr
		}
		out = doc.Cycles
		return nil
	})
	return out, err
}

// AddCycle prepends a CycleInfo to the ring and trims to MaxCycles.
func (s *Store) AddCycle(info CycleInfo) error {
	return s.withLock(func() error {
		doc, err := s.loadCyclesLocked()
		if err != nil {
			return err
		}
		doc.Cycles = append([]CycleInfo{info}, doc.Cycles...)
		if doc.MaxCycles <= 0 {
			doc.MaxCycles = s.maxCycles
		}
		if len(doc.Cycles) > doc.MaxCycles {
			doc.Cycles = doc.Cycles[:doc.MaxCycles]
		}
		return s.storeCyclesLocked(doc)
	})
}

func (s *Store) loadCyclesLocked() (cyclesDocument, error) {
	data, err := filestore.ReadFileOrEmpty(s.cyclesPath)
	if err != nil {
		return cyclesDocument{}, err
	}
	if data == nil {
		return cyclesDocument{MaxCycles: s.maxCycles}, nil
	}
	var doc cyclesDocument
	if err := filestore.UnmarshalLenient(data, &doc); err != nil {
		s.logger.Warn("state: corrupt cycles.json, starting fresh: %v", err)
		return cyclesDocument{MaxCycles: s.maxCycles}, nil
	}
	return doc, nil
}

func (s *Store) storeCyclesLocked(doc cyclesDocument) error {
	data, err := filestore.MarshalJSONIndent(doc)
	if err != nil {
		return err
	}
	return filestore.AtomicWrite(s.cyclesPath, data, 0o644)
}

// GetFullStatus bundles state + recent cycles + liveness, the shape behind
// the controller's status endpoint.
func (s *Store) GetFullStatus(heartbeatTimeout time.Duration) (FullStatus, error) {
	var fs FullStatus
	err := s.withLock(func() error {
		fs.State = s.loadStateLocked()
		doc, err := s.loadCyclesLocked()
		if err != nil {
			return err
		}
		fs.RecentCycles = doc.Cycles
		fs.IsAlive = fs.State.IsRunning && fs.State.LastHeartbeat != nil &&
			time.Since(*fs.State.LastHeartbeat) < heartbeatTimeout
		if fs.State.PID != nil {
			if proc, perr := os.FindProcess(*fs.State.PID); perr == nil {
				fs.ProcessExists = proc.Signal(syscall.Signal(0)) == nil
			}
		}
		return nil
	})
	return fs, err
}
