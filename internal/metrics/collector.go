// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes the fleet coordination metrics. All record methods
// are nil-safe so components can run without metrics wired.
type Collector struct {
	// Executor metrics
	bidsTotal           *prometheus.CounterVec
	assignmentsAccepted *prometheus.CounterVec
	assignmentsDropped  *prometheus.CounterVec
	buildFailures       *prometheus.CounterVec
	statusPublished     *prometheus.CounterVec
	tickDuration        *prometheus.HistogramVec

	// Proxy metrics
	pollsPublished   *prometheus.CounterVec
	delegationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return newCollector(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith creates a collector registered on the given registerer.
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	return newCollector(namespace, reg, logger)
}

func newCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.bidsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Total number of availability bids published",
		},
		[]string{"agent_id", "mission_id"},
	)

	c.assignmentsAccepted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_accepted_total",
			Help:      "Total number of task assignments accepted",
		},
		[]string{"agent_id", "mission_id"},
	)

	c.assignmentsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_dropped_total",
			Help:      "Total number of task assignments dropped",
		},
		[]string{"agent_id", "reason"},
	)

	c.buildFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_failures_total",
			Help:      "Total number of task build failures",
		},
		[]string{"agent_id", "code"},
	)

	c.statusPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_published_total",
			Help:      "Total number of status reports published",
		},
		[]string{"agent_id", "status"},
	)

	c.tickDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one executor control cycle",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"agent_id"},
	)

	c.pollsPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_published_total",
			Help:      "Total number of discovery polls published",
		},
		[]string{"mission_id"},
	)

	c.delegationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of delegations by terminal outcome",
		},
		[]string{"mission_id", "outcome"},
	)

	return c
}

// RecordBid records an availability bid published by an executor.
func (c *Collector) RecordBid(agentID, missionID string) {
	if c == nil {
		return
	}
	c.bidsTotal.WithLabelValues(agentID, missionID).Inc()
}

// RecordAssignmentAccepted records an assignment that passed the build.
func (c *Collector) RecordAssignmentAccepted(agentID, missionID string) {
	if c == nil {
		return
	}
	c.assignmentsAccepted.WithLabelValues(agentID, missionID).Inc()
}

// RecordAssignmentDropped records an assignment dropped before building.
func (c *Collector) RecordAssignmentDropped(agentID, reason string) {
	if c == nil {
		return
	}
	c.assignmentsDropped.WithLabelValues(agentID, reason).Inc()
}

// RecordBuildFailure records a failed task build.
func (c *Collector) RecordBuildFailure(agentID, code string) {
	if c == nil {
		return
	}
	c.buildFailures.WithLabelValues(agentID, code).Inc()
}

// RecordStatusPublished records a status report published by an executor.
func (c *Collector) RecordStatusPublished(agentID, status string) {
	if c == nil {
		return
	}
	c.statusPublished.WithLabelValues(agentID, status).Inc()
}

// RecordTickDuration records the duration of one control cycle.
func (c *Collector) RecordTickDuration(agentID string, d time.Duration) {
	if c == nil {
		return
	}
	c.tickDuration.WithLabelValues(agentID).Observe(d.Seconds())
}

// RecordPollPublished records a discovery poll published by a proxy.
func (c *Collector) RecordPollPublished(missionID string) {
	if c == nil {
		return
	}
	c.pollsPublished.WithLabelValues(missionID).Inc()
}

// RecordDelegation records a delegation reaching a terminal outcome.
func (c *Collector) RecordDelegation(missionID, outcome string) {
	if c == nil {
		return
	}
	c.delegationsTotal.WithLabelValues(missionID, outcome).Inc()
}
