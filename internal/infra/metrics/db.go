package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, chatLogWritesTotal, retentionDeletedTotal) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	chatLogWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_log_writes_total",
			Help: "Chat log appends by result.",
		},
		[]string{"result"},
	)

	retentionDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_log_retention_deleted_total",
			Help: "Chat sessions removed by the retention job.",
		},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func IncChatLogWrite(result string) {
	chatLogWritesTotal.WithLabelValues(norm(result)).Inc()
}

func AddRetentionDeleted(n int64) {
	if n > 0 {
		retentionDeletedTotal.Add(float64(n))
	}
}
