package eventqueue

import (
	"sync"
	"time"
)

// BufferedQueue wraps a Queue with a small pre-heap buffer (spec.md §4.D
// "Buffered" variant): PutBuffered collects events and flushes them into
// the underlying heap once the buffer reaches BufferSize or BufferTimeout
// has elapsed since the last flush, whichever comes first.
type BufferedQueue struct {
	*Queue

	mu            sync.Mutex
	buffer        []Event
	bufferSize    int
	bufferTimeout time.Duration
	lastFlush     time.Time
	now           func() time.Time
}

// NewBuffered wraps queue with buffering parameters. bufferSize <= 0 means
// "flush on timeout only"; bufferTimeout <= 0 means "flush on size only".
func NewBuffered(queue *Queue, bufferSize int, bufferTimeout time.Duration) *BufferedQueue {
	return &BufferedQueue{
		Queue:         queue,
		bufferSize:    bufferSize,
		bufferTimeout: bufferTimeout,
		lastFlush:     time.Now(),
		now:           time.Now,
	}
}

// PutBuffered appends e to the pending buffer, flushing to the heap if the
// buffer is full or the timeout has elapsed since the last flush.
func (b *BufferedQueue) PutBuffered(e Event) {
	b.mu.Lock()
	b.buffer = append(b.buffer, e)
	shouldFlush := (b.bufferSize > 0 && len(b.buffer) >= b.bufferSize) ||
		(b.bufferTimeout > 0 && b.now().Sub(b.lastFlush) >= b.bufferTimeout)
	var toFlush []Event
	if shouldFlush {
		toFlush = b.buffer
		b.buffer = nil
		b.lastFlush = b.now()
	}
	b.mu.Unlock()

	for _, ev := range toFlush {
		b.Queue.Put(ev)
	}
}

// Flush forces any buffered events into the heap immediately.
func (b *BufferedQueue) Flush() {
	b.mu.Lock()
	toFlush := b.buffer
	b.buffer = nil
	b.lastFlush = b.now()
	b.mu.Unlock()

	for _, ev := range toFlush {
		b.Queue.Put(ev)
	}
}

// BufferedCount returns the number of events currently held in the buffer,
// not yet visible to Get/Peek/Qsize.
func (b *BufferedQueue) BufferedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
