package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	throughputGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribute_monitor_throughput_tasks_per_second",
			Help: "Smoothed task completion rate observed by the throughput monitor.",
		},
	)

	eventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "distribute_monitor_events_total",
			Help: "Total number of task-succeeded events observed by throughput monitors.",
		},
	)
)

func init() {
	prometheus.MustRegister(throughputGauge)
	prometheus.MustRegister(eventsTotal)
}
