package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo, startTime)
}

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "A constant metric with labels for version and commit hash.",
		},
		[]string{"version", "commit"},
	)

	startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_start_unix_seconds",
			Help: "Unix time the server started.",
		},
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func SetStartTime(unix int64) {
	startTime.Set(float64(unix))
}
