package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentrt/internal/eventqueue"
	"agentrt/internal/logging"
)

// Config holds dispatcher tuning knobs.
type Config struct {
	// PerEventTimeout bounds a single Process call; zero disables the bound.
	PerEventTimeout time.Duration
	// Registerer collects prometheus metrics; nil disables metric export.
	Registerer prometheus.Registerer
}

// Dispatcher routes events through middleware, hooks, and per-type handlers
// (spec.md §4.G).
type Dispatcher struct {
	cfg     Config
	logger  logging.Logger
	metrics *promMetrics

	mu             sync.RWMutex
	handlers       map[eventqueue.Type][]Handler
	defaultHandler Handler
	middleware     []Middleware
	preHooks       []PreHook
	postHooks      []PostHook
	errorHandlers  []ErrorHandler

	statsMu             sync.Mutex
	eventsProcessed     int64
	eventsSucceeded     int64
	eventsFailed        int64
	eventsSkipped       int64
	totalProcessingTime time.Duration
	byType              map[string]int64
	byHandler           map[string]int64
}

// New creates an empty Dispatcher.
func New(cfg Config, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		logger:    logging.OrNop(logger),
		metrics:   newPromMetrics(cfg.Registerer),
		handlers:  make(map[eventqueue.Type][]Handler),
		byType:    make(map[string]int64),
		byHandler: make(map[string]int64),
	}
}

// RegisterHandler appends handler for eventType, in addition to any already
// registered for that type.
func (d *Dispatcher) RegisterHandler(eventType eventqueue.Type, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SetDefaultHandler installs the fallback handler used when no type-specific
// handler is registered.
func (d *Dispatcher) SetDefaultHandler(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultHandler = handler
}

// Use appends a middleware to the chain, in registration order.
func (d *Dispatcher) Use(mw Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, mw)
}

// AddPreHook appends a pre-dispatch observer hook.
func (d *Dispatcher) AddPreHook(hook PreHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preHooks = append(d.preHooks, hook)
}

// AddPostHook appends a post-dispatch observer hook.
func (d *Dispatcher) AddPostHook(hook PostHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postHooks = append(d.postHooks, hook)
}

// AddErrorHandler appends a handler invoked on middleware/handler failure.
func (d *Dispatcher) AddErrorHandler(eh ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errorHandlers = append(d.errorHandlers, eh)
}

// Process runs one event through the full pipeline (spec.md §4.G).
func (d *Dispatcher) Process(ctx context.Context, event eventqueue.Event) ProcessingResult {
	if d.cfg.PerEventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.PerEventTimeout)
		defer cancel()
	}

	ctx, span := startProcessSpan(ctx, event.EventID, string(event.Type), event.Priority.String())
	defer span.End()

	start := time.Now()
	result := d.process(ctx, event)
	result.ProcessingTime = time.Since(start)

	markSpanResult(span, result.HandlerName, errorFromResult(result))
	d.recordStats(event, result)
	return result
}

func errorFromResult(result ProcessingResult) error {
	if result.Success || result.Error == "" {
		return nil
	}
	return fmt.Errorf("%s", result.Error)
}

func (d *Dispatcher) process(ctx context.Context, event eventqueue.Event) ProcessingResult {
	d.mu.RLock()
	middleware := append([]Middleware(nil), d.middleware...)
	preHooks := append([]PreHook(nil), d.preHooks...)
	postHooks := append([]PostHook(nil), d.postHooks...)
	errorHandlers := append([]ErrorHandler(nil), d.errorHandlers...)
	d.mu.RUnlock()

	// 1. Middleware chain.
	for _, mw := range middleware {
		next, keep, err := mw(event)
		if err != nil {
			return d.fail(event, errorHandlers, "middleware", err)
		}
		if !keep {
			return ProcessingResult{EventID: event.EventID, Success: true, HandlerName: "middleware_skip"}
		}
		event = next
	}

	// 2. Pre-hooks: errors logged only.
	for _, hook := range preHooks {
		if err := hook(event); err != nil {
			d.logger.Warn("dispatcher: pre-hook error for event %s: %v", event.EventID, err)
		}
	}

	// 3. Handler dispatch.
	result, err := d.dispatchLocked(ctx, event)
	if err != nil {
		result = d.fail(event, errorHandlers, result.HandlerName, err)
	}

	// 4. Post-hooks: errors logged only.
	for _, hook := range postHooks {
		if err := hook(result); err != nil {
			d.logger.Warn("dispatcher: post-hook error for event %s: %v", event.EventID, err)
		}
	}

	return result
}

func (d *Dispatcher) dispatchLocked(ctx context.Context, event eventqueue.Event) (ProcessingResult, error) {
	d.mu.RLock()
	handlers := d.handlers[event.Type]
	defaultHandler := d.defaultHandler
	d.mu.RUnlock()

	handlerName := fmt.Sprintf("%s_handler", event.Type)
	if len(handlers) == 0 {
		if defaultHandler == nil {
			return ProcessingResult{EventID: event.EventID, Success: true, HandlerName: "none"}, nil
		}
		handlers = []Handler{defaultHandler}
		handlerName = "default"
	}

	var out any
	for _, h := range handlers {
		select {
		case <-ctx.Done():
			return ProcessingResult{EventID: event.EventID, HandlerName: handlerName}, ctx.Err()
		default:
		}
		res, err := h(event)
		if err != nil {
			return ProcessingResult{EventID: event.EventID, HandlerName: handlerName}, err
		}
		out = res
	}
	if err := ctx.Err(); err != nil {
		return ProcessingResult{EventID: event.EventID, HandlerName: handlerName}, err
	}
	return ProcessingResult{EventID: event.EventID, Success: true, HandlerName: handlerName, Result: out}, nil
}

func (d *Dispatcher) fail(event eventqueue.Event, errorHandlers []ErrorHandler, handlerName string, err error) ProcessingResult {
	for _, eh := range errorHandlers {
		eh(event, err)
	}
	return ProcessingResult{
		EventID:     event.EventID,
		Success:     false,
		HandlerName: handlerName,
		Error:       err.Error(),
	}
}

func (d *Dispatcher) recordStats(event eventqueue.Event, result ProcessingResult) {
	d.statsMu.Lock()
	d.eventsProcessed++
	switch {
	case result.HandlerName == "middleware_skip":
		d.eventsSkipped++
	case result.Success:
		d.eventsSucceeded++
	default:
		d.eventsFailed++
	}
	d.totalProcessingTime += result.ProcessingTime
	d.byType[string(event.Type)]++
	d.byHandler[result.HandlerName]++
	d.statsMu.Unlock()

	if d.metrics == nil {
		return
	}
	d.metrics.processed.Inc()
	d.metrics.duration.Observe(result.ProcessingTime.Seconds())
	d.metrics.byType.WithLabelValues(string(event.Type)).Inc()
	d.metrics.byHandler.WithLabelValues(result.HandlerName).Inc()
	switch {
	case result.HandlerName == "middleware_skip":
		d.metrics.skipped.Inc()
	case result.Success:
		d.metrics.succeeded.Inc()
	default:
		d.metrics.failed.Inc()
	}
}

// StatsSnapshot returns a copy of the dispatcher's activity counters.
func (d *Dispatcher) StatsSnapshot() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	byType := make(map[string]int64, len(d.byType))
	for k, v := range d.byType {
		byType[k] = v
	}
	byHandler := make(map[string]int64, len(d.byHandler))
	for k, v := range d.byHandler {
		byHandler[k] = v
	}
	return Stats{
		EventsProcessed:     d.eventsProcessed,
		EventsSucceeded:     d.eventsSucceeded,
		EventsFailed:        d.eventsFailed,
		EventsSkipped:       d.eventsSkipped,
		TotalProcessingTime: d.totalProcessingTime,
		ByType:              byType,
		ByHandler:           byHandler,
	}
}
