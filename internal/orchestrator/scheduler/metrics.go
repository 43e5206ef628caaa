package scheduler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics mirrors Stats as Prometheus instruments registered on the default
// registerer; internal/app serves no /metrics endpoint for them. One set is shared by every
// Scheduler in the process (there's normally exactly one, but tests may
// construct several) so registration against the default registerer only
// happens once.
type metrics struct {
	activeTasks    prometheus.Gauge
	queuedTasks    prometheus.Gauge
	tasksStarted   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *metrics
)

func sharedSchedulerMetrics() *metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &metrics{
			activeTasks: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "taskforge_scheduler_active_tasks",
				Help: "Tasks currently holding an admission slot.",
			}),
			queuedTasks: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "taskforge_scheduler_queued_tasks",
				Help: "Tasks waiting for an admission slot.",
			}),
			tasksStarted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "taskforge_scheduler_tasks_started_total",
				Help: "Tasks admitted to a processor goroutine.",
			}),
			tasksCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "taskforge_scheduler_tasks_completed_total",
				Help: "Tasks that reached the completed state.",
			}),
			tasksFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "taskforge_scheduler_tasks_failed_total",
				Help: "Tasks that reached the failed state.",
			}),
		}
	})
	return sharedMetrics
}
