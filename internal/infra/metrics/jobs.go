package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(trainingTransitionsTotal, trainingActive, backgroundTasksTotal) }

var (
	trainingTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_training_transitions_total",
			Help: "Voice training state transitions, labeled by the new status.",
		},
		[]string{"status"}, // 'training', 'ready', 'error', 'idle'
	)

	trainingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_training_active",
			Help: "1 while a voice training run is in progress.",
		},
	)

	backgroundTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_total",
			Help: "Worker pool tasks by result.",
		},
		[]string{"result"}, // 'ok', 'error', 'panic', 'rejected'
	)
)

func IncTrainingTransition(status string) {
	status = norm(status)
	trainingTransitionsTotal.WithLabelValues(status).Inc()
	if status == "training" {
		trainingActive.Set(1)
	} else {
		trainingActive.Set(0)
	}
}

func IncBackgroundTask(result string) {
	backgroundTasksTotal.WithLabelValues(norm(result)).Inc()
}
