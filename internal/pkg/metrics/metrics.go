// Package metrics defines the process-wide Prometheus collectors exposed on
// the local status server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AttemptsTotal counts finished update cycles by outcome.
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updrive_update_attempts_total",
			Help: "Total number of finished update cycles.",
		},
		[]string{"result"}, // success / failure / no_update
	)

	// DownloadProgress is the payload download progress of the current
	// cycle, 0.0 to 1.0.
	DownloadProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "updrive_download_progress",
			Help: "Download progress of the in-flight update payload (0-1).",
		},
	)

	// LastCheckedTime is the unix timestamp of the last update check.
	LastCheckedTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "updrive_last_checked_timestamp_seconds",
			Help: "Unix time of the last exchange with the update server.",
		},
	)

	// StatusValue exports the current orchestrator status enum value.
	StatusValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "updrive_update_status",
			Help: "Current update status as its enum value.",
		},
	)
)

func init() {
	prometheus.MustRegister(AttemptsTotal)
	prometheus.MustRegister(DownloadProgress)
	prometheus.MustRegister(LastCheckedTime)
	prometheus.MustRegister(StatusValue)
}
