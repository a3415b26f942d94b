// Package dispatcher implements the event processing pipeline (spec.md
// §4.G): middleware chain → pre-hooks → per-type handler registry →
// post-hooks, with an error path and a batch processor. Tracing is grounded
// on the teacher's internal/domain/agent/react/tracing.go otel pattern;
// stats are wired to prometheus/client_golang.
package dispatcher

import (
	"time"

	"agentrt/internal/eventqueue"
)

// Handler processes a single event and returns an opaque result.
type Handler func(event eventqueue.Event) (any, error)

// Middleware inspects/transforms an event before dispatch. Returning
// (event, false, nil) drops the event (spec.md §4.G middleware_skip).
// Returning a non-nil error fails the event.
type Middleware func(event eventqueue.Event) (eventqueue.Event, bool, error)

// Hook observes an event (pre) or a ProcessingResult (post). Errors are
// logged only; they never alter the pipeline's outcome.
type PreHook func(event eventqueue.Event) error
type PostHook func(result ProcessingResult) error

// ErrorHandler is invoked on any middleware/handler failure.
type ErrorHandler func(event eventqueue.Event, err error)

// ProcessingResult is what Dispatcher.Process returns for one event.
type ProcessingResult struct {
	EventID         string
	Success         bool
	HandlerName     string
	Result          any
	Error           string
	ProcessingTime  time.Duration
}

// Stats is a snapshot of dispatcher activity counters (spec.md §4.G).
type Stats struct {
	EventsProcessed     int64
	EventsSucceeded     int64
	EventsFailed        int64
	EventsSkipped       int64
	TotalProcessingTime time.Duration
	ByType              map[string]int64
	ByHandler           map[string]int64
}
