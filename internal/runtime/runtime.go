package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"agentrt/internal/dispatcher"
	"agentrt/internal/eventqueue"
	"agentrt/internal/ids"
	"agentrt/internal/logging"
	"agentrt/internal/scheduler"
	"agentrt/internal/supervisor"
)

// Config holds Runtime tuning knobs (spec.md §4.H / §6).
type Config struct {
	ProcessTimeout          time.Duration // per-event dispatch timeout, default 300s
	GracefulShutdownTimeout time.Duration
	GetTimeout              time.Duration // main loop's queue.Get poll timeout, default 1s
}

// Runtime composes the event queue, dispatcher, scheduler, and supervisor
// into one lifecycle (spec.md §4.H).
type Runtime struct {
	cfg        Config
	queue      *eventqueue.Queue
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
	supervisor *supervisor.Supervisor
	logger     logging.Logger

	callback *CallbackListener

	mu        sync.Mutex
	state     State
	listeners []Listener

	shutdown     chan struct{}
	shutdownOnce sync.Once
	mainLoopDone chan struct{}
	wg           conc.WaitGroup
	signalStop   context.CancelFunc
}

// New composes a Runtime from already-constructed subsystems.
func New(cfg Config, queue *eventqueue.Queue, disp *dispatcher.Dispatcher, sched *scheduler.Scheduler, sup *supervisor.Supervisor, logger logging.Logger) *Runtime {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 300 * time.Second
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = 30 * time.Second
	}
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = time.Second
	}

	r := &Runtime{
		cfg:        cfg,
		queue:      queue,
		dispatcher: disp,
		scheduler:  sched,
		supervisor: sup,
		logger:     logging.OrNop(logger),
		state:      StateStopped,
	}
	r.callback = NewCallbackListener("callback", queue)
	r.listeners = append(r.listeners, r.callback)
	return r
}

// RegisterHandler passes through to the dispatcher.
func (r *Runtime) RegisterHandler(eventType eventqueue.Type, handler dispatcher.Handler) {
	r.dispatcher.RegisterHandler(eventType, handler)
}

// SetDefaultHandler passes through to the dispatcher.
func (r *Runtime) SetDefaultHandler(handler dispatcher.Handler) {
	r.dispatcher.SetDefaultHandler(handler)
}

// AddListener registers an additional Listener (e.g. a WebhookListener) to
// be started/stopped alongside the runtime's own lifecycle.
func (r *Runtime) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Emit pushes event onto the queue via the internal callback listener so
// statistics stay consistent (spec.md §4.H emit).
func (r *Runtime) Emit(event eventqueue.Event) {
	if event.EventID == "" {
		event.EventID = ids.Prefixed("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.callback.Inject(event)
}

// EmitMessage is a convenience wrapper emitting a TypeMessage event.
func (r *Runtime) EmitMessage(payload map[string]any, priority eventqueue.Priority) {
	r.Emit(eventqueue.Event{Type: eventqueue.TypeMessage, Priority: priority, Source: eventqueue.SourceInternal, Payload: payload})
}

// Schedule passes through to the scheduler.
func (r *Runtime) Schedule(ctx context.Context, name string, when time.Time, payload map[string]any, recurrence scheduler.Recurrence, customInterval *time.Duration, priority eventqueue.Priority, maxRuns *int) (*scheduler.ScheduledTask, error) {
	return r.scheduler.Schedule(ctx, name, when, payload, recurrence, customInterval, priority, maxRuns)
}

// ScheduleRecurring passes through to the scheduler.
func (r *Runtime) ScheduleRecurring(ctx context.Context, name string, interval time.Duration, payload map[string]any, priority eventqueue.Priority, startImmediately bool) (*scheduler.ScheduledTask, error) {
	return r.scheduler.ScheduleRecurring(ctx, name, interval, payload, priority, startImmediately)
}

// RegisterBackgroundProcess passes through to the supervisor.
func (r *Runtime) RegisterBackgroundProcess(name string, fn supervisor.Func, intervalSeconds float64, enabled, runOnStart bool, maxErrors int) error {
	return r.supervisor.Register(name, fn, intervalSeconds, enabled, runOnStart, maxErrors)
}

// State returns the runtime's current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start starts listeners, scheduler, and supervisor, installs signal
// handlers, enqueues a STARTUP event, and launches the main loop
// (spec.md §4.H).
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		r.mu.Unlock()
		return fmt.Errorf("runtime: cannot start from state %s", r.state)
	}
	r.state = StateStarting
	r.shutdown = make(chan struct{})
	r.mainLoopDone = make(chan struct{})
	listeners := append([]Listener{}, r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		if err := l.Start(ctx); err != nil {
			r.setState(StateError)
			return fmt.Errorf("runtime: start listener %q: %w", l.Name(), err)
		}
	}
	if err := r.scheduler.Start(ctx); err != nil {
		r.setState(StateError)
		return fmt.Errorf("runtime: start scheduler: %w", err)
	}
	r.supervisor.StartAll()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	r.mu.Lock()
	r.signalStop = stop
	r.mu.Unlock()
	r.wg.Go(func() {
		<-sigCtx.Done()
		r.logger.Info("runtime: signal received, shutting down")
		_ = r.Stop(context.Background())
	})

	r.Emit(eventqueue.Event{Type: eventqueue.TypeStartup, Priority: eventqueue.PriorityCritical, Source: eventqueue.SourceInternal})

	r.wg.Go(func() { r.mainLoop() })

	r.setState(StateRunning)
	return nil
}

// Stop signals shutdown, enqueues a SHUTDOWN event, awaits the main loop
// with GracefulShutdownTimeout, and stops supervisor, scheduler, and
// listeners in that order (spec.md §4.H).
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateStopped || r.state == StateStopping {
		r.mu.Unlock()
		return nil
	}
	r.state = StateStopping
	shutdown := r.shutdown
	mainLoopDone := r.mainLoopDone
	signalStop := r.signalStop
	listeners := append([]Listener{}, r.listeners...)
	r.mu.Unlock()

	r.shutdownOnce.Do(func() { close(shutdown) })
	r.Emit(eventqueue.Event{Type: eventqueue.TypeShutdown, Priority: eventqueue.PriorityCritical, Source: eventqueue.SourceInternal})

	select {
	case <-mainLoopDone:
	case <-time.After(r.cfg.GracefulShutdownTimeout):
		r.logger.Warn("runtime: main loop did not exit within graceful_shutdown_timeout")
	}

	r.supervisor.StopAll()
	r.scheduler.Stop()
	for _, l := range listeners {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := l.Stop(stopCtx); err != nil {
			r.logger.Warn("runtime: stop listener %q: %v", l.Name(), err)
		}
		cancel()
	}
	if signalStop != nil {
		signalStop()
	}

	r.setState(StateStopped)
	return nil
}

// Pause toggles the queue's pause gate on.
func (r *Runtime) Pause() {
	r.queue.Pause()
	r.setState(StatePaused)
}

// Resume toggles the queue's pause gate off.
func (r *Runtime) Resume() {
	r.queue.Resume()
	r.setState(StateRunning)
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// mainLoop repeatedly awaits queue.Get with GetTimeout to observe the
// shutdown flag; on event, dispatches under ProcessTimeout (spec.md §4.H).
func (r *Runtime) mainLoop() {
	defer close(r.mainLoopDone)

	for {
		select {
		case <-r.shutdown:
			return
		default:
		}

		getCtx, cancel := context.WithTimeout(context.Background(), r.cfg.GetTimeout)
		event, err := r.queue.Get(getCtx, true)
		cancel()
		if err != nil {
			continue // timeout: loop back to re-check shutdown
		}

		processCtx, processCancel := context.WithTimeout(context.Background(), r.cfg.ProcessTimeout)
		result := r.dispatcher.Process(processCtx, event)
		processCancel()
		if !result.Success {
			r.logger.Warn("runtime: event %s failed: %s", event.EventID, result.Error)
		}
		r.queue.TaskDone()
	}
}
