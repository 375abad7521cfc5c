package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Number of notifications delivered, labeled by trigger kind.",
	}, []string{"trigger"})

	deliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "notify",
		Name:      "delivery_failures_total",
		Help:      "Number of notification deliveries that failed, labeled by trigger kind.",
	}, []string{"trigger"})
)

func init() {
	prometheus.MustRegister(deliveredTotal, deliveryFailures)
}
