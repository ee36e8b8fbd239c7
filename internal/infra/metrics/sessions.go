package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		liveConnections,
		inboundMessagesTotal,
		outboundDroppedTotal,
		rateLimitedTotal,
	)
}

var (
	liveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_live_connections",
			Help: "Currently open client connections.",
		},
	)

	inboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_inbound_messages_total",
			Help: "Inbound messages by type.",
		},
		[]string{"type"},
	)

	outboundDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_outbound_dropped_total",
			Help: "Outbound messages skipped because the connection was closed or its queue was full.",
		},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by a rate limiter.",
		},
		[]string{"scope"}, // 'ws', 'http'
	)
)

func ConnOpened() { liveConnections.Inc() }
func ConnClosed() { liveConnections.Dec() }

func IncInbound(msgType string) {
	inboundMessagesTotal.WithLabelValues(norm(msgType)).Inc()
}

func IncOutboundDropped() { outboundDroppedTotal.Inc() }

func IncRateLimited(scope string) {
	rateLimitedTotal.WithLabelValues(norm(scope)).Inc()
}
