package routing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventrouter/metric"
)

// routingMetrics holds the engine's prometheus metrics. A nil receiver
// disables recording, so the engine runs unchanged without a registry.
type routingMetrics struct {
	eventsDispatched    prometheus.Counter
	bindingsEvaluated   prometheus.Counter
	bindingsMatched     prometheus.Counter
	bindingsFired       *prometheus.CounterVec
	dispatchErrors      prometheus.Counter
	evaluationDuration  prometheus.Histogram
	activeBindings      prometheus.Gauge
	rulesExpired        prometheus.Counter
	auditRecords        *prometheus.CounterVec
	auditFlushes        prometheus.Counter
	auditFlushedRecords prometheus.Counter
	correlationsPending prometheus.Gauge
	correlationsExpired prometheus.Counter
}

// newRoutingMetrics registers the engine metrics. A nil registry
// returns nil metrics.
func newRoutingMetrics(registry *metric.MetricsRegistry) (*routingMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &routingMetrics{
		eventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "events_dispatched_total",
			Help:      "Events evaluated against the binding table",
		}),
		bindingsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "bindings_evaluated_total",
			Help:      "Binding evaluations across all dispatched events",
		}),
		bindingsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "bindings_matched_total",
			Help:      "Binding evaluations that matched pattern and condition",
		}),
		bindingsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "bindings_fired_total",
			Help:      "Target emissions per destination",
		}, []string{"target"}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "dispatch_errors_total",
			Help:      "Failed target emissions",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate all bindings for one event",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		activeBindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "active_bindings",
			Help:      "Bindings currently registered for dispatch",
		}),
		rulesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "rules_expired_total",
			Help:      "Rules retired by the expiry sweeper",
		}),
		auditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Audit records appended, by type",
		}, []string{"type"}),
		auditFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "audit",
			Name:      "flushes_total",
			Help:      "Audit batches flushed to durable storage",
		}),
		auditFlushedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "audit",
			Name:      "flushed_records_total",
			Help:      "Audit records flushed to durable storage",
		}),
		correlationsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "correlations_pending",
			Help:      "Async correlations awaiting a response",
		}),
		correlationsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventrouter",
			Subsystem: "routing",
			Name:      "correlations_expired_total",
			Help:      "Async correlations garbage-collected unresolved",
		}),
	}

	collectors := map[string]prometheus.Collector{
		"events_dispatched":     m.eventsDispatched,
		"bindings_evaluated":    m.bindingsEvaluated,
		"bindings_matched":      m.bindingsMatched,
		"bindings_fired":        m.bindingsFired,
		"dispatch_errors":       m.dispatchErrors,
		"evaluation_duration":   m.evaluationDuration,
		"active_bindings":       m.activeBindings,
		"rules_expired":         m.rulesExpired,
		"audit_records":         m.auditRecords,
		"audit_flushes":         m.auditFlushes,
		"audit_flushed_records": m.auditFlushedRecords,
		"correlations_pending":  m.correlationsPending,
		"correlations_expired":  m.correlationsExpired,
	}
	for name, collector := range collectors {
		if err := registry.Register("routing", name, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *routingMetrics) recordDispatch(evaluated, matched int, duration time.Duration) {
	if m == nil {
		return
	}
	m.eventsDispatched.Inc()
	m.bindingsEvaluated.Add(float64(evaluated))
	m.bindingsMatched.Add(float64(matched))
	m.evaluationDuration.Observe(duration.Seconds())
}

func (m *routingMetrics) recordFired(target string) {
	if m == nil {
		return
	}
	m.bindingsFired.WithLabelValues(target).Inc()
}

func (m *routingMetrics) recordDispatchError() {
	if m == nil {
		return
	}
	m.dispatchErrors.Inc()
}

func (m *routingMetrics) setActiveBindings(n int) {
	if m == nil {
		return
	}
	m.activeBindings.Set(float64(n))
}

func (m *routingMetrics) recordExpired(n int) {
	if m == nil {
		return
	}
	m.rulesExpired.Add(float64(n))
}

func (m *routingMetrics) recordAudit(recordType string) {
	if m == nil {
		return
	}
	m.auditRecords.WithLabelValues(recordType).Inc()
}

func (m *routingMetrics) recordAuditFlush(records int) {
	if m == nil {
		return
	}
	m.auditFlushes.Inc()
	m.auditFlushedRecords.Add(float64(records))
}

func (m *routingMetrics) setCorrelationsPending(n int) {
	if m == nil {
		return
	}
	m.correlationsPending.Set(float64(n))
}

func (m *routingMetrics) recordCorrelationsExpired(n int) {
	if m == nil {
		return
	}
	m.correlationsExpired.Add(float64(n))
}
