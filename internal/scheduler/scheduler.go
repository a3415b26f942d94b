package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentrt/internal/eventqueue"
	"agentrt/internal/ids"
	"agentrt/internal/logging"
)

// EventQueue is the subset of *eventqueue.Queue the scheduler depends on.
type EventQueue interface {
	Put(eventqueue.Event)
}

// Config holds scheduler tuning knobs.
type Config struct {
	CheckInterval time.Duration // how often the tick loop scans for due tasks
	Store         JobStore      // nil disables persistence across restarts
}

// Scheduler owns ScheduledTasks and pushes SCHEDULE_TRIGGERED events onto
// a bound queue when they come due (spec.md §4.E).
type Scheduler struct {
	cfg    Config
	queue  EventQueue
	logger logging.Logger

	cron     *cron.Cron
	entryID  cron.EntryID
	stopped  chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	tasks        map[string]*ScheduledTask
	tasksSkipped int64
}

// New creates a Scheduler bound to queue. It does not start the tick loop;
// call Start for that.
func New(cfg Config, queue EventQueue, logger logging.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	return &Scheduler{
		cfg:     cfg,
		queue:   queue,
		logger:  logging.OrNop(logger),
		cron:    cron.New(),
		stopped: make(chan struct{}),
		tasks:   make(map[string]*ScheduledTask),
	}
}

// Name identifies this subsystem for lifecycle.Drainable.
func (s *Scheduler) Name() string { return "scheduler" }

// Schedule creates and persists a new ScheduledTask. when may be a one-shot
// absolute time (RecurrenceOnce) or the first firing time of a recurring
// task.
func (s *Scheduler) Schedule(ctx context.Context, name string, when time.Time, payload map[string]any, recurrence Recurrence, customInterval *time.Duration, priority eventqueue.Priority, maxRuns *int) (*ScheduledTask, error) {
	if recurrence == RecurrenceCustom && (customInterval == nil || *customInterval <= 0) {
		return nil, fmt.Errorf("scheduler: recurrence custom requires a positive custom_interval")
	}

	task := &ScheduledTask{
		TaskID:         ids.Prefixed("task"),
		Name:           name,
		Payload:        payload,
		NextRun:        when,
		Recurrence:     recurrence,
		CustomInterval: customInterval,
		Priority:       priority,
		Enabled:        true,
		CreatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.tasks[task.TaskID] = task
	s.mu.Unlock()

	if s.cfg.Store != nil {
		if err := s.cfg.Store.Save(ctx, *task); err != nil {
			return nil, fmt.Errorf("scheduler: persist task: %w", err)
		}
	}
	return task, nil
}

// ScheduleRecurring schedules a task that repeats every interval, optionally
// firing immediately on registration.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, name string, interval time.Duration, payload map[string]any, priority eventqueue.Priority, startImmediately bool) (*ScheduledTask, error) {
	first := time.Now().UTC().Add(interval)
	if startImmediately {
		first = time.Now().UTC()
	}
	return s.Schedule(ctx, name, first, payload, RecurrenceCustom, &interval, priority, nil)
}

// Unschedule removes a task permanently.
func (s *Scheduler) Unschedule(ctx context.Context, taskID string) error {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()

	if s.cfg.Store != nil {
		if err := s.cfg.Store.Delete(ctx, taskID); err != nil {
			return err
		}
	}
	return nil
}

// Enable marks a task active.
func (s *Scheduler) Enable(ctx context.Context, taskID string) error { return s.setEnabled(ctx, taskID, true) }

// Disable marks a task inactive without deleting it.
func (s *Scheduler) Disable(ctx context.Context, taskID string) error { return s.setEnabled(ctx, taskID, false) }

func (s *Scheduler) setEnabled(ctx context.Context, taskID string, enabled bool) error {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Enabled = enabled
	snapshot := *task
	s.mu.Unlock()

	if s.cfg.Store != nil {
		return s.cfg.Store.Save(ctx, snapshot)
	}
	return nil
}

// GetTask returns a copy of the task with the given ID.
func (s *Scheduler) GetTask(taskID string) (*ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	cp := *task
	return &cp, true
}

// ListTasks returns copies of all tasks, optionally filtered.
func (s *Scheduler) ListTasks(enabledOnly, dueOnly bool) []ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		if enabledOnly && !task.Enabled {
			continue
		}
		if dueOnly && !task.IsDue(now) {
			continue
		}
		out = append(out, *task)
	}
	return out
}

// Clear removes every task from memory (not from the store).
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.tasks = make(map[string]*ScheduledTask)
	s.mu.Unlock()
}

// TasksSkipped returns the count of due tasks that failed to enqueue.
func (s *Scheduler) TasksSkipped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksSkipped
}

// Start loads persisted tasks (if a store is configured) and launches the
// cron-driven tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Store != nil {
		if err := s.loadPersisted(ctx); err != nil {
			s.logger.Warn("Scheduler: failed to load persisted tasks: %v", err)
		}
	}

	spec := fmt.Sprintf("@every %s", s.cfg.CheckInterval)
	entryID, err := s.cron.AddFunc(spec, func() { s.tick(context.Background()) })
	if err != nil {
		return fmt.Errorf("scheduler: register tick: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.logger.Info("Scheduler started: check_interval=%s tasks=%d", s.cfg.CheckInterval, len(s.tasks))
	return nil
}

// Stop halts the tick loop. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
	})
}

// Drain stops the tick loop, waiting up to ctx's deadline for an in-flight
// tick to finish (lifecycle.Drainable).
func (s *Scheduler) Drain(ctx context.Context) error {
	cronDone := s.cron.Stop()
	select {
	case <-cronDone.Done():
		s.stopOnce.Do(func() { close(s.stopped) })
		return nil
	case <-ctx.Done():
		s.stopOnce.Do(func() { close(s.stopped) })
		return fmt.Errorf("scheduler drain: %w", ctx.Err())
	}
}

func (s *Scheduler) loadPersisted(ctx context.Context) error {
	tasks, err := s.cfg.Store.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.TaskID] = &t
	}
	return nil
}

// tick finds due tasks, enqueues a SCHEDULE_TRIGGERED event for each, marks
// them run, and prunes exhausted ones (spec.md §4.E).
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	due := make([]*ScheduledTask, 0)
	for _, task := range s.tasks {
		if task.IsDue(now) {
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		s.fireLocked(ctx, task, now)
	}
}

func (s *Scheduler) fireLocked(ctx context.Context, task *ScheduledTask, now time.Time) {
	event := eventqueue.Event{
		EventID:   ids.Prefixed("evt"),
		Type:      eventqueue.TypeScheduleTriggered,
		Priority:  task.Priority,
		Source:    eventqueue.SourceScheduled,
		CreatedAt: now,
		Payload: map[string]any{
			"task_id":      task.TaskID,
			"task_name":    task.Name,
			"task_payload": task.Payload,
		},
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.mu.Lock()
				s.tasksSkipped++
				s.mu.Unlock()
				s.logger.Warn("Scheduler: enqueue panicked for task %q: %v", task.TaskID, r)
			}
		}()
		s.queue.Put(event)
	}()

	s.mu.Lock()
	if err := task.markRun(now); err != nil {
		s.logger.Warn("Scheduler: mark_run failed for task %q: %v", task.TaskID, err)
		s.mu.Unlock()
		return
	}
	exhausted := task.exhausted()
	snapshot := *task
	if exhausted {
		delete(s.tasks, task.TaskID)
	}
	s.mu.Unlock()

	if s.cfg.Store == nil {
		return
	}
	if exhausted {
		if err := s.cfg.Store.Delete(ctx, task.TaskID); err != nil {
			s.logger.Warn("Scheduler: failed to delete exhausted task %q: %v", task.TaskID, err)
		}
		return
	}
	if err := s.cfg.Store.Save(ctx, snapshot); err != nil {
		s.logger.Warn("Scheduler: failed to persist task %q: %v", task.TaskID, err)
	}
}
