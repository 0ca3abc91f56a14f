// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	sessionWriteAttempts  prometheus.CounterVec
	sessionWriteConflicts prometheus.CounterVec
	operationFailures     prometheus.CounterVec
	taskQueueDepth        prometheus.GaugeVec
	ticketLifetime        prometheus.HistogramVec
	qosMeasureElapsedTime prometheus.HistogramVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	sessionWriteAttempts := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_session_write_attempts",
			Help: "A counter of synchronized session document write attempts",
		}, []string{"session_name", "operation"})

	sessionWriteConflicts := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_session_write_conflicts",
			Help: "A counter of out-of-sync responses to synchronized session document writes",
		}, []string{"session_name", "operation"})

	operationFailures := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_session_operation_failures",
			Help: "A counter of failed session operations by reason",
		}, []string{"session_name", "operation", "reason"})

	taskQueueDepth := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ab_session_task_queue_depth",
			Help: "A gauge of in-flight async tasks per lane",
		}, []string{"lane"})

	//nolint:promlinter
	ticketLifetime := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ab_session_match_ticket_lifetime_ms",
			Help:    "A histogram of match ticket lifetimes in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}, []string{"hopper"})

	//nolint:promlinter
	qosMeasureElapsedTime := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ab_session_qos_measure_elapsed_time_ms",
			Help:    "A histogram of QoS measure-and-upload elapsed time in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"session_name"})

	return prometheusMetrics{
		sessionWriteAttempts:  *sessionWriteAttempts,
		sessionWriteConflicts: *sessionWriteConflicts,
		operationFailures:     *operationFailures,
		taskQueueDepth:        *taskQueueDepth,
		ticketLifetime:        *ticketLifetime,
		qosMeasureElapsedTime: *qosMeasureElapsedTime,
	}
}

func (metrics prometheusMetrics) AddSessionWriteAttempt(sessionName, operation string) {
	metrics.sessionWriteAttempts.With(prometheus.Labels{"session_name": sessionName, "operation": operation}).Add(1)
}

func (metrics prometheusMetrics) AddSessionWriteConflict(sessionName, operation string) {
	metrics.sessionWriteConflicts.With(prometheus.Labels{"session_name": sessionName, "operation": operation}).Add(1)
}

func (metrics prometheusMetrics) AddOperationFailure(sessionName, operation, reason string) {
	metrics.operationFailures.With(prometheus.Labels{"session_name": sessionName, "operation": operation, "reason": reason}).Add(1)
}

func (metrics prometheusMetrics) SetTaskQueueDepth(lane string, depth int) {
	metrics.taskQueueDepth.With(prometheus.Labels{"lane": lane}).Set(float64(depth))
}

func (metrics prometheusMetrics) AddTicketLifetimeMs(hopper string, lifetime time.Duration) {
	metrics.ticketLifetime.With(prometheus.Labels{"hopper": hopper}).Observe(float64(lifetime.Milliseconds()))
}

func (metrics prometheusMetrics) AddQosMeasureElapsedMs(sessionName string, elapsedTime time.Duration) {
	metrics.qosMeasureElapsedTime.With(prometheus.Labels{"session_name": sessionName}).Observe(float64(elapsedTime.Milliseconds()))
}
