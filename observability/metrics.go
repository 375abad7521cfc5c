// Package observability exposes process-wide sync watermark gauges.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "khyrie_offline",
		Subsystem: "recordstore",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record appended locally.",
	})
	recordSyncedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "khyrie_offline",
		Subsystem: "recordstore",
		Name:      "last_record_synced_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record marked synced.",
	})
)

func init() {
	prometheus.MustRegister(recordPersistGauge, recordSyncedGauge)
}

// RecordPersisted updates the local-persistence watermark gauge.
func RecordPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recordPersistGauge.Set(float64(ts.Unix()))
}

// RecordSynced updates the synced watermark gauge.
func RecordSynced(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recordSyncedGauge.Set(float64(ts.Unix()))
}
