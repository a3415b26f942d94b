// Package scheduler owns recurring and one-shot ScheduledTasks and, on a
// cooperative tick, pushes SCHEDULE_TRIGGERED events onto the bound event
// queue (spec.md §4.E). Grounded on the teacher's internal/app/scheduler
// package: robfig/cron drives the tick loop, and FileJobStore's one-file-
// per-job layout backs persistence.
package scheduler

import (
	"fmt"
	"time"

	"agentrt/internal/eventqueue"
)

// Recurrence is how a ScheduledTask repeats once due.
type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceHourly  Recurrence = "hourly"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceCustom  Recurrence = "custom"
)

// ScheduledTask is a persisted schedule entry (spec.md §3).
type ScheduledTask struct {
	TaskID         string             `json:"task_id"`
	Name           string             `json:"name"`
	Payload        map[string]any     `json:"payload,omitempty"`
	NextRun        time.Time          `json:"next_run"`
	Recurrence     Recurrence         `json:"recurrence"`
	CustomInterval *time.Duration     `json:"custom_interval,omitempty"`
	Priority       eventqueue.Priority `json:"priority"`
	Enabled        bool               `json:"enabled"`
	LastRun        *time.Time         `json:"last_run,omitempty"`
	RunCount       int                `json:"run_count"`
	MaxRuns        *int               `json:"max_runs,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// IsDue reports whether t should fire at now (spec.md §3
// "is_due ⇔ enabled ∧ (max_runs=∅ ∨ run_count<max_runs) ∧ now ≥ next_run").
func (t *ScheduledTask) IsDue(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	if t.MaxRuns != nil && t.RunCount >= *t.MaxRuns {
		return false
	}
	return !now.Before(t.NextRun)
}

// exhausted reports whether t should be removed after firing: its
// recurrence is "once", or it just reached MaxRuns.
func (t *ScheduledTask) exhausted() bool {
	if t.Recurrence == RecurrenceOnce {
		return true
	}
	return t.MaxRuns != nil && t.RunCount >= *t.MaxRuns
}

// markRun records a firing and advances NextRun per Recurrence, based on the
// task's existing NextRun rather than the firing time, so a late fire
// advances on its fixed cadence instead of drifting forward (spec.md §8:
// `ScheduledTask(next_run=t, recurrence=daily).mark_run()` → `next_run = t +
// 1 day`).
func (t *ScheduledTask) markRun(now time.Time) error {
	t.LastRun = &now
	t.RunCount++
	next, err := t.calculateNextRun(t.NextRun)
	if err != nil {
		return err
	}
	t.NextRun = next
	return nil
}

// calculateNextRun computes the next firing time from base per Recurrence.
func (t *ScheduledTask) calculateNextRun(base time.Time) (time.Time, error) {
	switch t.Recurrence {
	case RecurrenceOnce:
		return base, nil
	case RecurrenceHourly:
		return base.Add(time.Hour), nil
	case RecurrenceDaily:
		return base.AddDate(0, 0, 1), nil
	case RecurrenceWeekly:
		return base.AddDate(0, 0, 7), nil
	case RecurrenceMonthly:
		return base.AddDate(0, 1, 0), nil
	case RecurrenceCustom:
		if t.CustomInterval == nil || *t.CustomInterval <= 0 {
			return time.Time{}, fmt.Errorf("scheduler: task %q has custom recurrence but no custom_interval", t.TaskID)
		}
		return base.Add(*t.CustomInterval), nil
	default:
		return time.Time{}, fmt.Errorf("scheduler: task %q has unknown recurrence %q", t.TaskID, t.Recurrence)
	}
}
