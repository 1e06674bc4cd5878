package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribute_tasks_submitted_total",
			Help: "Total number of tasks submitted, by queue.",
		},
		[]string{"queue"},
	)

	tasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribute_tasks_finished_total",
			Help: "Total number of tasks finished, by queue and status.",
		},
		[]string{"queue", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distribute_task_duration_seconds",
			Help:    "Time from claim to completion of tasks.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(tasksSubmittedTotal)
	prometheus.MustRegister(tasksFinishedTotal)
	prometheus.MustRegister(taskDuration)
}
