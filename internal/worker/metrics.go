package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribute_worker_tasks_total",
			Help: "Tasks executed by this worker, by queue and result.",
		},
		[]string{"queue", "result"},
	)

	taskSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distribute_worker_task_seconds",
			Help:    "Time spent executing a task, excluding claim and report.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(taskSeconds)
}
