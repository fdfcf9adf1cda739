package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the billing engine counters registered on one registry so
// the server can expose them and the settlement/scheduler code can bump them.
type Metrics struct {
	Registry *prometheus.Registry

	SettlementsTotal   *prometheus.CounterVec
	SettlementConflict prometheus.Counter
	SweepRunsTotal     *prometheus.CounterVec
	SweepErrorsTotal   *prometheus.CounterVec
	GatewayRequests    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskora_settlements_total",
			Help: "Payment settlements processed, by resulting attempt status.",
		}, []string{"status"}),
		SettlementConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskora_settlement_conflicts_total",
			Help: "Settlements rejected because a different terminal status was already recorded.",
		}),
		SweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskora_scheduler_sweep_runs_total",
			Help: "Scheduler sweep executions, by job.",
		}, []string{"job"}),
		SweepErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskora_scheduler_sweep_errors_total",
			Help: "Per-provider failures inside scheduler sweeps, by job.",
		}, []string{"job"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskora_gateway_requests_total",
			Help: "Outbound payment gateway calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	reg.MustRegister(
		m.SettlementsTotal,
		m.SettlementConflict,
		m.SweepRunsTotal,
		m.SweepErrorsTotal,
		m.GatewayRequests,
	)
	return m
}
