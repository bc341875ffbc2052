package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		grantsExpiredTotal,
		grantsCreatedTotal,
	)
}

var (
	grantsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_grants_expired_total",
			Help: "Total number of subscription grants expired by the expiry worker.",
		},
	)

	grantsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_grants_created_total",
			Help: "Subscription grants created, labeled by language.",
		},
		[]string{"language"},
	)
)

func IncGrantsExpired(count int) {
	grantsExpiredTotal.Add(float64(count))
}

func IncGrantCreated(language string) {
	grantsCreatedTotal.WithLabelValues(norm(language)).Inc()
}
