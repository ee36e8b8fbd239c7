package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(synthesisTotal, recognitionTotal) }

var (
	synthesisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_synthesis_total",
			Help: "Synthesis requests by provider and delivered mode (audio|browser).",
		},
		[]string{"provider", "mode"},
	)

	recognitionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_recognition_total",
			Help: "Recognition requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
)

func IncSynthesis(provider, mode string) {
	synthesisTotal.WithLabelValues(norm(provider), norm(mode)).Inc()
}

func IncRecognition(provider, outcome string) {
	recognitionTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
