package dr

import "github.com/prometheus/client_golang/prometheus"

var backupRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "dr",
		Name:      "backup_runs_total",
		Help:      "Backup manager operations, by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

var failoverState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "dr",
		Name:      "failover_active",
		Help:      "1 if the failover manager has switched to the secondary, else 0",
	},
)

var recoveryPlanDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "dr",
		Name:      "recovery_plan_duration_seconds",
		Help:      "RecoveryPlan.Execute wall-clock time, by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(backupRuns, failoverState, recoveryPlanDuration)
}
