package dispatcher

import "github.com/prometheus/client_golang/prometheus"

// promMetrics mirrors Stats as prometheus collectors so dispatcher activity
// is scrapeable without a separate exporter pass.
type promMetrics struct {
	processed prometheus.Counter
	succeeded prometheus.Counter
	failed    prometheus.Counter
	skipped   prometheus.Counter
	duration  prometheus.Histogram
	byType    *prometheus.CounterVec
	byHandler *prometheus.CounterVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_events_processed_total",
			Help: "Total events processed by the dispatcher.",
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_events_succeeded_total",
			Help: "Total events processed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_events_failed_total",
			Help: "Total events that failed processing.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_events_skipped_total",
			Help: "Total events dropped by middleware.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentrt_dispatcher_process_duration_seconds",
			Help:    "Event processing duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		byType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_events_by_type_total",
			Help: "Events processed, partitioned by event type.",
		}, []string{"event_type"}),
		byHandler: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_events_by_handler_total",
			Help: "Events processed, partitioned by handler name.",
		}, []string{"handler"}),
	}

	if reg != nil {
		reg.MustRegister(m.processed, m.succeeded, m.failed, m.skipped, m.duration, m.byType, m.byHandler)
	}
	return m
}
