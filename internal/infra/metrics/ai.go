package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		genTokensIn,
		genTokensOut,
		genCallsLatencyMs,
		genAttemptsTotal,
		genFallbacksTotal,
	)
}

var (
	genTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	genTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	genCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_calls_latency_ms",
			Help:    "Provider call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "outcome"},
	)

	genAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_attempts_total",
			Help: "Generation attempts by provider and outcome kind (ok, timeout, auth...).",
		},
		[]string{"provider", "outcome"},
	)

	genFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_fallbacks_total",
			Help: "Canned fallback replies served, by reason.",
		},
		[]string{"reason"},
	)
)

// ObserveGeneration records one provider round trip.
func ObserveGeneration(provider, model string, tokensIn, tokensOut, latencyMs int, outcome string) {
	if tokensIn > 0 || tokensOut > 0 {
		lbl := []string{norm(provider), norm(model)}
		genTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
		genTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	}
	genCallsLatencyMs.WithLabelValues(norm(provider), norm(outcome)).Observe(float64(latencyMs))
}

func IncGenerationAttempt(provider, outcome string) {
	genAttemptsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncFallback(reason string) {
	genFallbacksTotal.WithLabelValues(norm(reason)).Inc()
}
