// Package lifecycle provides a graceful-shutdown protocol adapted from the
// teacher's internal/app/lifecycle package. Scheduler and Supervisor
// implement Drainable; Runtime and the listeners do not, and nothing in
// agentrt calls DrainAll.
package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Drainable represents a subsystem that can be gracefully stopped.
type Drainable interface {
	// Drain gracefully stops the subsystem. The context carries a
	// deadline; implementations should respect it.
	Drain(ctx context.Context) error
	// Name returns the subsystem name for logging.
	Name() string
}

// DrainAll drains subsystems in order, each under its own timeout, and
// collects every error instead of stopping at the first one (spec.md §5:
// "Listeners, scheduler, and supervisor are stopped in reverse start
// order").
func DrainAll(ctx context.Context, timeout time.Duration, subsystems ...Drainable) []error {
	var errs []error
	for _, s := range subsystems {
		subCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := s.Drain(subCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		cancel()
	}
	return errs
}
