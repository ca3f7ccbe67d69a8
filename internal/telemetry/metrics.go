/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry holds Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auto-schedule loop metrics.
var (
	AutoScheduleTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semestra_autoschedule_ticks_total",
		Help: "Number of auto-schedule loop ticks.",
	})

	AutoScheduleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semestra_autoschedule_errors_total",
		Help: "Number of auto-schedule errors by stage.",
	}, []string{"user_id", "stage"})

	AutoScheduleSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semestra_autoschedule_sessions_total",
		Help: "Number of study sessions placed by the auto-schedule loop.",
	})

	ScheduleBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "semestra_schedule_build_duration_seconds",
		Help:    "Time spent building a user's schedule.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)

// Leader election metrics.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "semestra_leader_election_status",
		Help: "Whether this instance currently holds leadership (1) or not (0).",
	}, []string{"instance_id"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semestra_leader_election_changes_total",
		Help: "Number of leadership transitions by kind.",
	}, []string{"instance_id", "transition"})
)

// HTTP API metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semestra_api_requests_total",
		Help: "Number of API requests by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "semestra_api_request_duration_seconds",
		Help:    "API request latency by method, endpoint, and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semestra_api_active_connections",
		Help: "Number of in-flight API requests.",
	})
)

// Database pool metrics.
var (
	DBConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semestra_db_connections_open",
		Help: "Open database connections.",
	})

	DBConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semestra_db_connections_idle",
		Help: "Idle database connections.",
	})

	DBConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semestra_db_connections_in_use",
		Help: "Database connections currently in use.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
