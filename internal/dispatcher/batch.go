package dispatcher

import (
	"context"
	"sync"

	"agentrt/internal/eventqueue"
)

// BatchProcessor accumulates events and flushes them through a Dispatcher's
// pipeline either once BatchSize is reached or Flush is called explicitly
// (spec.md §4.G).
type BatchProcessor struct {
	dispatcher *Dispatcher
	batchSize  int

	mu      sync.Mutex
	pending []eventqueue.Event
}

// NewBatchProcessor creates a processor flushing at batchSize events.
func NewBatchProcessor(dispatcher *Dispatcher, batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchProcessor{dispatcher: dispatcher, batchSize: batchSize}
}

// Add appends event to the pending batch, flushing automatically once
// BatchSize is reached. Returns the flush results, or nil if no flush
// occurred.
func (b *BatchProcessor) Add(ctx context.Context, event eventqueue.Event) []ProcessingResult {
	b.mu.Lock()
	b.pending = append(b.pending, event)
	shouldFlush := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if !shouldFlush {
		return nil
	}
	return b.Flush(ctx)
}

// Flush dispatches every pending event through the pipeline and returns all
// results, regardless of whether BatchSize has been reached.
func (b *BatchProcessor) Flush(ctx context.Context) []ProcessingResult {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	results := make([]ProcessingResult, 0, len(batch))
	for _, event := range batch {
		results = append(results, b.dispatcher.Process(ctx, event))
	}
	return results
}

// PendingCount returns the number of events awaiting flush.
func (b *BatchProcessor) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
