package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentrt/internal/eventqueue"
)

type fakeQueue struct {
	events []eventqueue.Event
}

func (f *fakeQueue) Put(e eventqueue.Event) { f.events = append(f.events, e) }

func TestScheduleOnceFiresAndIsRemoved(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)

	ctx := context.Background()
	task, err := s.Schedule(ctx, "ping", time.Now().UTC().Add(-time.Second), nil, RecurrenceOnce, nil, eventqueue.PriorityNormal, nil)
	require.NoError(t, err)

	s.tick(ctx)

	require.Len(t, q.events, 1)
	require.Equal(t, eventqueue.TypeScheduleTriggered, q.events[0].Type)
	_, found := s.GetTask(task.TaskID)
	require.False(t, found)
}

func TestScheduleRecurringAdvancesNextRun(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)
	ctx := context.Background()

	task, err := s.ScheduleRecurring(ctx, "heartbeat", time.Minute, nil, eventqueue.PriorityLow, true)
	require.NoError(t, err)
	firstNextRun := task.NextRun

	s.tick(ctx)
	require.Len(t, q.events, 1)

	got, found := s.GetTask(task.TaskID)
	require.True(t, found)
	require.Equal(t, 1, got.RunCount)
	require.Equal(t, firstNextRun.Add(time.Minute), got.NextRun)
}

// TestScheduleRecurringAdvancesFromNextRunNotFromNow ensures a task that
// fires late advances on its fixed cadence from its own next_run, not from
// the wall-clock time it happened to be picked up (spec.md §8).
func TestScheduleRecurringAdvancesFromNextRunNotFromNow(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)
	ctx := context.Background()

	task, err := s.Schedule(ctx, "daily", time.Now().UTC().Add(-2*time.Hour), nil, RecurrenceDaily, nil, eventqueue.PriorityLow, nil)
	require.NoError(t, err)
	originalNextRun := task.NextRun

	s.tick(ctx)

	got, found := s.GetTask(task.TaskID)
	require.True(t, found)
	require.Equal(t, originalNextRun.AddDate(0, 0, 1), got.NextRun)
}

func TestCustomRecurrenceRequiresInterval(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)
	_, err := s.Schedule(context.Background(), "bad", time.Now(), nil, RecurrenceCustom, nil, eventqueue.PriorityNormal, nil)
	require.Error(t, err)
}

func TestMaxRunsExhaustsTask(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)
	ctx := context.Background()

	maxRuns := 1
	task, err := s.Schedule(ctx, "one-shot-recurring", time.Now().UTC().Add(-time.Second), nil, RecurrenceHourly, nil, eventqueue.PriorityNormal, &maxRuns)
	require.NoError(t, err)

	s.tick(ctx)
	_, found := s.GetTask(task.TaskID)
	require.False(t, found)
}

func TestDisableKeepsTaskButStopsFiring(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)
	ctx := context.Background()

	task, err := s.Schedule(ctx, "toggle", time.Now().UTC().Add(-time.Second), nil, RecurrenceDaily, nil, eventqueue.PriorityNormal, nil)
	require.NoError(t, err)
	require.NoError(t, s.Disable(ctx, task.TaskID))

	s.tick(ctx)
	require.Empty(t, q.events)

	got, found := s.GetTask(task.TaskID)
	require.True(t, found)
	require.False(t, got.Enabled)
}

func TestListTasksFiltersEnabledAndDue(t *testing.T) {
	q := &fakeQueue{}
	s := New(Config{CheckInterval: time.Hour}, q, nil)
	ctx := context.Background()

	due, err := s.Schedule(ctx, "due", time.Now().UTC().Add(-time.Second), nil, RecurrenceDaily, nil, eventqueue.PriorityNormal, nil)
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "future", time.Now().UTC().Add(time.Hour), nil, RecurrenceDaily, nil, eventqueue.PriorityNormal, nil)
	require.NoError(t, err)

	dueList := s.ListTasks(true, true)
	require.Len(t, dueList, 1)
	require.Equal(t, due.TaskID, dueList[0].TaskID)
}

func TestPatternLearnerRequiresMinimumObservations(t *testing.T) {
	pl := NewPatternLearner(10)
	_, ok := pl.GetOptimalTime("deploy", "success")
	require.False(t, ok)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		pl.Record("deploy", base.Add(time.Duration(i)*time.Hour*24), true, nil)
	}
	hour, ok := pl.GetOptimalTime("deploy", "success")
	require.True(t, ok)
	require.Equal(t, 9, hour)
}

func TestPatternLearnerSuggestSchedule(t *testing.T) {
	pl := NewPatternLearner(2)
	base := time.Now().UTC().Add(-48 * time.Hour)
	pl.Record("retry", base, true, nil)
	pl.Record("retry", base.Add(24*time.Hour), true, nil)

	_, err := pl.SuggestSchedule("retry", RecurrenceDaily)
	require.NoError(t, err)

	_, err = pl.SuggestSchedule("unknown-action", RecurrenceDaily)
	require.Error(t, err)
}
