package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentrt/internal/logging"
)

// Supervisor owns a registry of named BackgroundProcesses and starts/stops
// their tick loops (spec.md §4.F).
type Supervisor struct {
	mu        sync.Mutex
	processes map[string]*BackgroundProcess
	logger    logging.Logger
}

// New creates an empty Supervisor.
func New(logger logging.Logger) *Supervisor {
	return &Supervisor{
		processes: make(map[string]*BackgroundProcess),
		logger:    logging.OrNop(logger),
	}
}

// Name identifies this subsystem for lifecycle.Drainable.
func (s *Supervisor) Name() string { return "supervisor" }

// Register adds a named process. intervalSeconds and maxErrors fall back to
// defaults (60s, 10) when non-positive.
func (s *Supervisor) Register(name string, fn Func, intervalSeconds float64, enabled, runOnStart bool, maxErrors int) error {
	if name == "" {
		return fmt.Errorf("supervisor: process name required")
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if maxErrors <= 0 {
		maxErrors = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.processes[name]; exists {
		return fmt.Errorf("supervisor: process %q already registered", name)
	}
	s.processes[name] = &BackgroundProcess{
		Name:       name,
		fn:         fn,
		Interval:   intervalSeconds,
		Enabled:    enabled,
		RunOnStart: runOnStart,
		MaxErrors:  maxErrors,
		state:      StateStopped,
	}
	return nil
}

// Unregister stops (if running) and removes a process.
func (s *Supervisor) Unregister(name string) error {
	s.mu.Lock()
	p, ok := s.processes[name]
	delete(s.processes, name)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown process %q", name)
	}
	s.stopProcess(p)
	return nil
}

// Enable marks a process active (it will run on the next Start/StartAll).
func (s *Supervisor) Enable(name string) error { return s.setEnabled(name, true) }

// Disable marks a process inactive and stops it if running.
func (s *Supervisor) Disable(name string) error {
	if err := s.setEnabled(name, false); err != nil {
		return err
	}
	s.mu.Lock()
	p := s.processes[name]
	s.mu.Unlock()
	if p != nil {
		s.stopProcess(p)
	}
	return nil
}

func (s *Supervisor) setEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[name]
	if !ok {
		return fmt.Errorf("supervisor: unknown process %q", name)
	}
	p.Enabled = enabled
	return nil
}

// Start launches one process's tick loop.
func (s *Supervisor) Start(name string) error {
	s.mu.Lock()
	p, ok := s.processes[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown process %q", name)
	}
	if !p.Enabled {
		return nil
	}
	s.runProcess(p)
	return nil
}

// Stop halts one process's tick loop.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	p, ok := s.processes[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown process %q", name)
	}
	s.stopProcess(p)
	return nil
}

// StartAll starts every enabled process.
func (s *Supervisor) StartAll() {
	s.mu.Lock()
	procs := make([]*BackgroundProcess, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()
	for _, p := range procs {
		if p.Enabled {
			s.runProcess(p)
		}
	}
}

// StopAll stops every running process and blocks until their loops exit.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	procs := make([]*BackgroundProcess, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()
	for _, p := range procs {
		s.stopProcess(p)
	}
}

// Drain is StopAll under the lifecycle.Drainable protocol.
func (s *Supervisor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.StopAll()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("supervisor drain: %w", ctx.Err())
	}
}

// ListProcesses returns process names and states, optionally filtered to
// only those currently running.
func (s *Supervisor) ListProcesses(runningOnly bool) []ProcessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProcessInfo, 0, len(s.processes))
	for _, p := range s.processes {
		state := p.stateLocked()
		if runningOnly && state != StateRunning {
			continue
		}
		out = append(out, ProcessInfo{Name: p.Name, State: state, Stats: p.statisticsSnapshot()})
	}
	return out
}

// ProcessInfo is a read-only view of one process for ListProcesses.
type ProcessInfo struct {
	Name  string
	State State
	Stats Statistics
}

// GetStatistics returns a per-process statistics snapshot.
func (s *Supervisor) GetStatistics() map[string]Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Statistics, len(s.processes))
	for name, p := range s.processes {
		out[name] = p.statisticsSnapshot()
	}
	return out
}

// runProcess transitions a process stopped→starting→running and launches
// its tick goroutine. No-op if already running or starting.
func (s *Supervisor) runProcess(p *BackgroundProcess) {
	p.mu.Lock()
	if p.state == StateRunning || p.state == StateStarting {
		p.mu.Unlock()
		return
	}
	p.state = StateStarting
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go s.loop(ctx, p)
}

// stopProcess cancels a process's tick loop and waits for it to exit.
func (s *Supervisor) stopProcess(p *BackgroundProcess) {
	p.mu.Lock()
	if p.state != StateRunning && p.state != StateStarting {
		p.mu.Unlock()
		return
	}
	p.state = StateStopping
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.mu.Lock()
	if p.state == StateStopping {
		p.state = StateStopped
	}
	p.mu.Unlock()
}

// loop is the per-process tick goroutine (spec.md §4.F run semantics).
func (s *Supervisor) loop(ctx context.Context, p *BackgroundProcess) {
	defer close(p.done)

	p.mu.Lock()
	if p.state != StateStarting {
		p.mu.Unlock()
		return
	}
	p.state = StateRunning
	runOnStart := p.RunOnStart
	p.mu.Unlock()

	if runOnStart {
		s.invoke(p)
	}

	interval := time.Duration(p.Interval * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.stateLocked() != StateRunning {
				return
			}
			if !s.invoke(p) {
				return
			}
		}
	}
}

// invoke runs p's func once, updating statistics. Returns false if the
// process tripped into StateError and should exit its loop.
func (s *Supervisor) invoke(p *BackgroundProcess) bool {
	err := p.fn()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.stats.Errors++
		p.stats.ConsecutiveErrors++
		s.logger.Warn("supervisor: process %q failed (%d/%d): %v", p.Name, p.stats.ConsecutiveErrors, p.MaxErrors, err)
		if p.stats.ConsecutiveErrors >= p.MaxErrors {
			p.state = StateError
			s.logger.Error("supervisor: process %q exceeded max_errors, stopping", p.Name)
			return false
		}
		return true
	}

	p.stats.Iterations++
	p.stats.ConsecutiveErrors = 0
	return true
}
