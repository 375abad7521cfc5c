package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	syncedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "syncer",
		Name:      "records_synced_total",
		Help:      "Number of records accepted by the remote API, labeled by collection.",
	}, []string{"collection"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "syncer",
		Name:      "records_failed_total",
		Help:      "Number of record pushes that failed transiently, labeled by collection.",
	}, []string{"collection"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "syncer",
		Name:      "records_rejected_total",
		Help:      "Number of record pushes explicitly rejected by the server, labeled by collection.",
	}, []string{"collection"})

	pendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "khyrie_offline",
		Subsystem: "syncer",
		Name:      "records_pending",
		Help:      "Number of records still awaiting sync, labeled by collection.",
	}, []string{"collection"})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "khyrie_offline",
		Subsystem: "syncer",
		Name:      "pass_duration_seconds",
		Help:      "Time spent snapshotting, pushing, and flagging one sync pass.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	catalogRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "syncer",
		Name:      "catalog_refreshes_total",
		Help:      "Number of successful exercise catalog refreshes.",
	})
)

func init() {
	prometheus.MustRegister(syncedCounter, failedCounter, rejectedCounter, pendingGauge, passDuration, catalogRefreshes)
}
