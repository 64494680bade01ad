package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "chat_requests_total", Help: "Chat requests by outcome (ok, bad_request, not_found, persistence, generation)."},
		[]string{"outcome"},
	)
	ChatChunks = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "chat_chunks_total", Help: "Streamed content chunks forwarded to clients."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "botdesk", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(ChatRequests)
	reg.MustRegister(ChatChunks)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
