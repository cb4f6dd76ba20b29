package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Tenant scope metrics
	ScopeAcquisitions  *prometheus.CounterVec
	ScopeBindLatency   prometheus.Histogram
	ScopeResetFailures prometheus.Counter
	ScopeActive        prometheus.Gauge

	// Authorization metrics
	AuthzDecisions    *prometheus.CounterVec
	AuthzCacheHits    prometheus.Counter
	AuthzCacheMisses  prometheus.Counter
	AuthzEvalLatency  prometheus.Histogram

	// Workflow metrics
	WorkflowTransitions *prometheus.CounterVec
	WorkflowRejections  *prometheus.CounterVec
	WorkflowConflicts   *prometheus.CounterVec

	// Sharing metrics
	ShareGrantsIssued   prometheus.Counter
	ShareRedemptions    *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxQueueSize         prometheus.Gauge
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations  *prometheus.CounterVec
	DatabaseLatency     *prometheus.HistogramVec
	DatabaseConnections prometheus.Gauge

	// Redis metrics
	RedisOperations  *prometheus.CounterVec
	RedisLatency     *prometheus.HistogramVec
	RedisConnections prometheus.Gauge
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		// Tenant scope metrics
		ScopeAcquisitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tenant_scope_acquisitions_total",
			Help:      "Total number of tenant schema scope acquisitions",
		}, []string{"status"}),
		ScopeBindLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tenant_scope_bind_duration_seconds",
			Help:      "Time spent binding a connection to a tenant schema",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1},
		}),
		ScopeResetFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tenant_scope_reset_failures_total",
			Help:      "Total number of search_path resets that failed and discarded the connection",
		}),
		ScopeActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tenant_scope_active",
			Help:      "Current number of connections bound to a tenant schema",
		}),

		// Authorization metrics
		AuthzDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authz_decisions_total",
			Help:      "Total number of authorization decisions",
		}, []string{"outcome", "reason"}),
		AuthzCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authz_cache_hits_total",
			Help:      "Total number of effective permission set cache hits",
		}),
		AuthzCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authz_cache_misses_total",
			Help:      "Total number of effective permission set cache misses",
		}),
		AuthzEvalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authz_evaluation_duration_seconds",
			Help:      "Time spent evaluating authorization decisions",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
		}),

		// Workflow metrics
		WorkflowTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workflow_transitions_total",
			Help:      "Total number of applied workflow transitions",
		}, []string{"entity", "from", "to"}),
		WorkflowRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workflow_rejections_total",
			Help:      "Total number of rejected workflow transitions",
		}, []string{"entity", "cause"}),
		WorkflowConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workflow_version_conflicts_total",
			Help:      "Total number of optimistic version conflicts",
		}, []string{"entity"}),

		// Sharing metrics
		ShareGrantsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "share_grants_issued_total",
			Help:      "Total number of cross-tenant share grants issued",
		}),
		ShareRedemptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "share_redemptions_total",
			Help:      "Total number of share token redemptions",
		}, []string{"outcome"}),

		// Outbox metrics
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_queue_size",
			Help:      "Current number of events in the outbox queue",
		}),
		OutboxRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		// Database metrics
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		DatabaseConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_connections",
			Help:      "Current number of database connections",
		}),

		// Redis metrics
		RedisOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
		RedisLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
		RedisConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_connections",
			Help:      "Current number of Redis connections",
		}),
	}
}
