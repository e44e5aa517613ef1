// Package metrics exposes Prometheus instrumentation for the entitlement
// core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluations counts access evaluations by resulting state and reason.
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saporia",
		Subsystem: "entitlement",
		Name:      "evaluations_total",
		Help:      "Access evaluations by resulting state and suspension reason.",
	}, []string{"state", "reason"})

	// DepartmentLockOutcomes counts department entry decisions.
	DepartmentLockOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saporia",
		Subsystem: "department",
		Name:      "lock_outcomes_total",
		Help:      "Department entry request outcomes.",
	}, []string{"outcome"})

	// GlobalConfigLookups counts cache lookups by result: hit, miss (fresh
	// fetch), stale (fetch failed, previous value served), default.
	GlobalConfigLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saporia",
		Subsystem: "globalconfig",
		Name:      "lookups_total",
		Help:      "Global config cache lookups by result.",
	}, []string{"result"})

	// WebsocketClients tracks currently connected realtime clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "saporia",
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Currently connected websocket clients.",
	})

	// ProfileFetchTimeouts counts initial profile fetches resolved by the
	// watchdog instead of the store.
	ProfileFetchTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "saporia",
		Subsystem: "session",
		Name:      "profile_fetch_timeouts_total",
		Help:      "Initial profile fetches that hit the watchdog timeout.",
	})
)
