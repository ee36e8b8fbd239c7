package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(availabilityLookups) }

// layer is "local" for the in-process window, "shared" for redis.
var availabilityLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "availability_cache_lookups_total",
		Help: "Provider availability lookups by cache layer and result.",
	},
	[]string{"layer", "provider", "result"}, // result: hit|miss|error
)

func IncAvailabilityLookup(layer, provider, result string) {
	availabilityLookups.WithLabelValues(norm(layer), norm(provider), norm(result)).Inc()
}
