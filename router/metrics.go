package router

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Number of requests routed, labeled by classification kind.",
	}, []string{"kind"})

	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "router",
		Name:      "cache_hits_total",
		Help:      "Number of responses served from a cache partition, labeled by kind.",
	}, []string{"kind"})

	networkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "router",
		Name:      "network_failures_total",
		Help:      "Number of network fetch failures observed by the router, labeled by kind.",
	}, []string{"kind"})

	fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khyrie_offline",
		Subsystem: "router",
		Name:      "fallbacks_total",
		Help:      "Number of synthetic offline fallbacks returned, labeled by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(requestsTotal, cacheHits, networkFailures, fallbacksTotal)
}
