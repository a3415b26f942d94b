package eventqueue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPaused names the paused-queue condition. No Queue method returns it:
// GetNowait reports a paused queue by returning false.
var ErrPaused = errors.New("eventqueue: paused")

// AgingConfig enables the priority-boost variant (spec.md §4.D): an event
// aged by n*BoostInterval is dequeued at priority max(CRITICAL, initial-n),
// n capped at MaxBoost.
type AgingConfig struct {
	BoostInterval time.Duration
	MaxBoost      int
}

// Stats is a snapshot of queue activity counters (spec.md §4.D).
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalExpired  int64
	CurrentSize   int
	ByPriority    map[string]int64
	ByType        map[string]int64
}

// Queue is a priority min-heap of Events ordered by (priority, created_at),
// with expiration, a pause gate, and an outstanding-task counter for Join.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	h      itemHeap
	paused bool

	outstanding int
	joinCond    *sync.Cond

	aging *AgingConfig
	now   func() time.Time

	totalEnqueued int64
	totalDequeued int64
	totalExpired  int64
	byPriority    map[string]int64
	byType        map[string]int64
}

// New creates an empty Queue. Pass aging to enable the priority-boost
// variant; nil disables it.
func New(aging *AgingConfig) *Queue {
	q := &Queue{
		aging:      aging,
		now:        time.Now,
		byPriority: make(map[string]int64),
		byType:     make(map[string]int64),
	}
	q.cond = sync.NewCond(&q.mu)
	q.joinCond = sync.NewCond(&q.mu)
	heap.Init(&q.h)
	return q
}

// Put enqueues e unconditionally; the queue has no capacity bound so Put
// never blocks (spec.md §4.D put/put_nowait are equivalent here).
func (q *Queue) Put(e Event) {
	q.mu.Lock()
	q.putLocked(e)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// PutNowait is an alias of Put; retained for interface parity with the
// source queue's put/put_nowait pair.
func (q *Queue) PutNowait(e Event) { q.Put(e) }

func (q *Queue) putLocked(e Event) {
	heap.Push(&q.h, &item{event: e})
	q.outstanding++
	q.totalEnqueued++
	q.byPriority[e.Priority.String()]++
	q.byType[string(e.Type)]++
}

// Get blocks until an event is available and the queue is not paused, or
// ctx is done. When skipExpired, expired events are discarded (incrementing
// TotalExpired) rather than returned.
func (q *Queue) Get(ctx context.Context, skipExpired bool) (Event, error) {
	stop := q.wakeOnDone(ctx)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return Event{}, ctx.Err()
		}
		if q.paused || q.h.Len() == 0 {
			q.cond.Wait()
			continue
		}
		e, ok := q.popLocked(skipExpired)
		if ok {
			return e, nil
		}
		// All available events were expired; wait for more.
	}
}

// GetNowait attempts a non-blocking dequeue. Returns (Event{}, false) if the
// queue is empty, paused, or only held expired events.
func (q *Queue) GetNowait(skipExpired bool) (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused {
		return Event{}, false
	}
	return q.popLocked(skipExpired)
}

// popLocked pops one non-expired event (when skipExpired) or the next event
// regardless of expiry. Caller must hold q.mu.
func (q *Queue) popLocked(skipExpired bool) (Event, bool) {
	for q.h.Len() > 0 {
		it := heap.Pop(&q.h).(*item)
		e := it.event
		if skipExpired && e.IsExpired(q.now()) {
			q.totalExpired++
			q.outstanding--
			continue
		}
		if q.aging != nil {
			e.Priority = q.boostedPriority(it)
		}
		q.totalDequeued++
		return e, true
	}
	return Event{}, false
}

func (q *Queue) boostedPriority(it *item) Priority {
	if q.aging.BoostInterval <= 0 {
		return it.event.Priority
	}
	elapsed := q.now().Sub(it.event.CreatedAt)
	ratio := int(elapsed / q.aging.BoostInterval)
	if ratio <= 0 {
		return it.event.Priority
	}
	boost := ratio
	if q.aging.MaxBoost > 0 && boost > q.aging.MaxBoost {
		boost = q.aging.MaxBoost
	}
	return (it.event.Priority - Priority(boost)).clamp()
}

// TaskDone marks one outstanding unit of work complete, for Join.
func (q *Queue) TaskDone() {
	q.mu.Lock()
	if q.outstanding > 0 {
		q.outstanding--
	}
	done := q.outstanding == 0
	q.mu.Unlock()
	if done {
		q.joinCond.Broadcast()
	}
}

// Join blocks until every Put'd event has had a matching TaskDone, or ctx
// is done.
func (q *Queue) Join(ctx context.Context) error {
	stop := q.wakeOnDoneJoin(ctx)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.joinCond.Wait()
	}
	return nil
}

// Empty reports whether the queue currently holds no events.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len() == 0
}

// Qsize returns the current number of queued events.
func (q *Queue) Qsize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Clear removes all queued events without calling TaskDone on them.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.h = q.h[:0]
	q.mu.Unlock()
}

// Pause prevents Get from returning events until Resume is called.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume un-pauses the queue and wakes any blocked Get callers.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// IsPaused reports the current pause state.
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Peek returns the next event without dequeuing it, best-effort (the
// returned priority is not boosted).
func (q *Queue) Peek() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return Event{}, false
	}
	return q.h[0].event, true
}

// StatsSnapshot returns a copy of the queue's activity counters.
func (q *Queue) StatsSnapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	byPriority := make(map[string]int64, len(q.byPriority))
	for k, v := range q.byPriority {
		byPriority[k] = v
	}
	byType := make(map[string]int64, len(q.byType))
	for k, v := range q.byType {
		byType[k] = v
	}
	return Stats{
		TotalEnqueued: q.totalEnqueued,
		TotalDequeued: q.totalDequeued,
		TotalExpired:  q.totalExpired,
		CurrentSize:   q.h.Len(),
		ByPriority:    byPriority,
		ByType:        byType,
	}
}

// wakeOnDone spawns a goroutine that broadcasts q.cond when ctx is done,
// letting a blocked Get observe cancellation. The returned func stops it.
func (q *Queue) wakeOnDone(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (q *Queue) wakeOnDoneJoin(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.joinCond.Broadcast()
		case <-done:
		}
	}()
	return func() { close(done) }
}
