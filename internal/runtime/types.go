// Package runtime composes the event queue, dispatcher, scheduler, and
// supervisor into one autonomous-runtime lifecycle (spec.md §4.H).
// Grounded on the teacher's internal/devops/supervisor tick/stop lifecycle
// and internal/app/scheduler's Start/Stop/Drain shape, generalized to
// compose sibling subsystems rather than manage OS processes.
package runtime

import (
	"context"
	"sync"
	"time"

	"agentrt/internal/eventqueue"
)

// State is the Runtime's lifecycle state (spec.md §4.H).
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Listener is any event source the runtime can start/stop alongside its own
// lifecycle (spec.md §4.H "any object with start()/stop()/push_event(e)").
type Listener interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	PushEvent(event eventqueue.Event)
	Stats() ListenerStats
}

// ListenerStats is the per-listener counters spec.md §4.H names.
type ListenerStats struct {
	EventsReceived  int64
	EventsForwarded int64
	Errors          int64
	LastEventAt     *time.Time
	StartedAt       *time.Time
	IsRunning       bool
}

// listenerStatsTracker is embedded by concrete listeners to share the
// counter bookkeeping required by ListenerStats.
type listenerStatsTracker struct {
	mu        sync.Mutex
	stats     ListenerStats
}

func (t *listenerStatsTracker) markStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.stats.StartedAt = &now
	t.stats.IsRunning = true
}

func (t *listenerStatsTracker) markStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.IsRunning = false
}

func (t *listenerStatsTracker) recordReceived() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.EventsReceived++
	now := time.Now().UTC()
	t.stats.LastEventAt = &now
}

func (t *listenerStatsTracker) recordForwarded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.EventsForwarded++
}

func (t *listenerStatsTracker) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Errors++
}

func (t *listenerStatsTracker) snapshot() ListenerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
