package workqueue

import "github.com/prometheus/client_golang/prometheus"

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "workqueue",
		Name:      "depth",
		Help:      "Jobs currently pending or processing",
	},
)

var jobsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "workqueue",
		Name:      "jobs_total",
		Help:      "Jobs completed, by outcome",
	},
	[]string{"outcome"},
)

var jobDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "workqueue",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock time spent scoring a job, from first attempt to success",
	},
)

func init() {
	prometheus.MustRegister(queueDepth, jobsProcessed, jobDuration)
}
