package eventqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mkEvent(id string, prio Priority, created time.Time) Event {
	return Event{EventID: id, Type: TypeCustom, Priority: prio, Source: SourceInternal, CreatedAt: created}
}

func TestPriorityOrderingAcrossDistinctPriorities(t *testing.T) {
	q := New(nil)
	base := time.Now()
	q.Put(mkEvent("low", PriorityLow, base))
	q.Put(mkEvent("high-goal", PriorityHigh, base.Add(time.Millisecond)))
	q.Put(mkEvent("background", PriorityBackground, base.Add(2*time.Millisecond)))
	q.Put(mkEvent("normal", PriorityNormal, base.Add(3*time.Millisecond)))

	ctx := context.Background()
	order := []string{}
	for i := 0; i < 4; i++ {
		e, err := q.Get(ctx, true)
		require.NoError(t, err)
		order = append(order, e.EventID)
		q.TaskDone()
	}
	require.Equal(t, []string{"high-goal", "normal", "low", "background"}, order)
}

func TestFIFOWithinSamePriority(t *testing.T) {
	q := New(nil)
	base := time.Now()
	q.Put(mkEvent("first", PriorityNormal, base))
	q.Put(mkEvent("second", PriorityNormal, base.Add(time.Millisecond)))

	e1, err := q.Get(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, "first", e1.EventID)
	q.TaskDone()

	e2, err := q.Get(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, "second", e2.EventID)
	q.TaskDone()
}

func TestGetSkipsExpiredAndIncrementsStat(t *testing.T) {
	q := New(nil)
	past := time.Now().Add(-time.Hour)
	expired := mkEvent("expired", PriorityHigh, time.Now())
	expired.Deadline = &past
	q.Put(expired)
	q.Put(mkEvent("fresh", PriorityLow, time.Now()))

	e, err := q.Get(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, "fresh", e.EventID)
	require.Equal(t, int64(1), q.StatsSnapshot().TotalExpired)
}

func TestPauseBlocksGetUntilResume(t *testing.T) {
	q := New(nil)
	q.Pause()
	require.True(t, q.IsPaused())

	_, ok := q.GetNowait(true)
	require.False(t, ok)

	done := make(chan Event, 1)
	go func() {
		e, err := q.Get(context.Background(), true)
		if err == nil {
			done <- e
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(mkEvent("e1", PriorityNormal, time.Now()))
	select {
	case <-done:
		t.Fatal("Get returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	q.Resume()
	select {
	case e := <-done:
		require.Equal(t, "e1", e.EventID)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Resume")
	}
}

func TestJoinWaitsForAllTaskDone(t *testing.T) {
	q := New(nil)
	q.Put(mkEvent("a", PriorityNormal, time.Now()))
	q.Put(mkEvent("b", PriorityNormal, time.Now()))

	joined := make(chan struct{})
	go func() {
		_ = q.Join(context.Background())
		close(joined)
	}()

	e1, _ := q.Get(context.Background(), true)
	q.TaskDone()
	select {
	case <-joined:
		t.Fatal("Join returned before all tasks done")
	case <-time.After(20 * time.Millisecond):
	}

	_ = e1
	e2, _ := q.Get(context.Background(), true)
	q.TaskDone()
	_ = e2

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all TaskDone")
	}
}

func TestPriorityBoostClampsAtCritical(t *testing.T) {
	q := New(&AgingConfig{BoostInterval: time.Millisecond, MaxBoost: 10})
	old := mkEvent("aged", PriorityLow, time.Now().Add(-time.Second))
	q.Put(old)

	e, err := q.Get(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, PriorityCritical, e.Priority)
}

func TestQsizeEmptyClear(t *testing.T) {
	q := New(nil)
	require.True(t, q.Empty())
	q.Put(mkEvent("a", PriorityNormal, time.Now()))
	q.Put(mkEvent("b", PriorityNormal, time.Now()))
	require.Equal(t, 2, q.Qsize())
	q.Clear()
	require.True(t, q.Empty())
}

func TestBufferedQueueFlushesOnSize(t *testing.T) {
	q := NewBuffered(New(nil), 2, time.Hour)
	q.PutBuffered(mkEvent("a", PriorityNormal, time.Now()))
	require.Equal(t, 0, q.Qsize())
	q.PutBuffered(mkEvent("b", PriorityNormal, time.Now()))
	require.Equal(t, 2, q.Qsize())
}

func TestBufferedQueueFlushExplicit(t *testing.T) {
	q := NewBuffered(New(nil), 100, time.Hour)
	q.PutBuffered(mkEvent("a", PriorityNormal, time.Now()))
	require.Equal(t, 1, q.BufferedCount())
	q.Flush()
	require.Equal(t, 0, q.BufferedCount())
	require.Equal(t, 1, q.Qsize())
}
