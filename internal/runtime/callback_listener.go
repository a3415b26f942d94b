package runtime

import (
	"context"
	"sync"

	"agentrt/internal/eventqueue"
)

// CallbackListener is the runtime's internal listener used by Emit/EmitMessage
// (spec.md §4.H) so events injected from within the process count toward the
// same listener statistics as external sources.
type CallbackListener struct {
	listenerStatsTracker

	name  string
	queue *eventqueue.Queue

	mu        sync.RWMutex
	running   bool
	callbacks []func(eventqueue.Event)
}

// NewCallbackListener creates a listener named name, bound to queue.
func NewCallbackListener(name string, queue *eventqueue.Queue) *CallbackListener {
	return &CallbackListener{name: name, queue: queue}
}

func (l *CallbackListener) Name() string { return l.name }

// Start marks the listener active; Inject is a no-op until Start is called.
func (l *CallbackListener) Start(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	l.markStarted()
	return nil
}

// Stop marks the listener inactive.
func (l *CallbackListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	l.markStopped()
	return nil
}

// OnEvent registers a synchronous callback notified on every Inject, in
// addition to the event being pushed onto the queue.
func (l *CallbackListener) OnEvent(cb func(eventqueue.Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}

// Inject pushes event onto the bound queue if the listener is started, and
// notifies any registered callbacks.
func (l *CallbackListener) Inject(event eventqueue.Event) {
	l.recordReceived()

	l.mu.RLock()
	running := l.running
	callbacks := append([]func(eventqueue.Event){}, l.callbacks...)
	l.mu.RUnlock()

	if !running {
		return
	}

	l.queue.Put(event)
	l.recordForwarded()

	for _, cb := range callbacks {
		cb(event)
	}
}

// PushEvent implements Listener by delegating to Inject.
func (l *CallbackListener) PushEvent(event eventqueue.Event) { l.Inject(event) }

// Stats returns a snapshot of this listener's counters.
func (l *CallbackListener) Stats() ListenerStats { return l.snapshot() }
