// Package metrics exposes Prometheus collectors for the control plane's
// background work.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsCreated counts operation rows created by reconciliation.
	OperationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_reconcile_operations_created_total",
		Help: "Operation records created by reconciliation passes.",
	})

	// OperationsUpdated counts operation rows advanced by reconciliation
	// or log corroboration.
	OperationsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_reconcile_operations_updated_total",
		Help: "Operation records updated by reconciliation passes.",
	})

	// ReconcilePassErrors counts failed per-tenant or per-repository passes.
	ReconcilePassErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_reconcile_pass_errors_total",
		Help: "Reconciliation passes that ended with an error.",
	})

	// LogEntriesIngested counts log evidence rows stored.
	LogEntriesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_log_entries_ingested_total",
		Help: "Log entries ingested from agent hosts.",
	})

	// ScheduledOperationsProjected counts placeholder operations created.
	ScheduledOperationsProjected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_scheduled_operations_projected_total",
		Help: "Placeholder operations created by the schedule projector.",
	})

	// LoopGuardTrips counts schedules disabled by the loop guard.
	LoopGuardTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_loopguard_trips_total",
		Help: "Plan schedules disabled after a runaway trigger loop.",
	})

	// ProvisioningResults counts provisioning step outcomes.
	ProvisioningResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backhaul_provisioning_results_total",
		Help: "Provisioning step outcomes by step and result.",
	}, []string{"step", "result"})
)
