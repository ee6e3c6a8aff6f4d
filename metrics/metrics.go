// Package metrics holds the Prometheus collectors updated by the fetch
// pipeline. They register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fetchie",
			Name:      "attempts_total",
			Help:      "Transport round trips by URL scheme",
		},
		[]string{"scheme"},
	)

	Recoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fetchie",
			Name:      "recoveries_total",
			Help:      "Corrective retries by action",
		},
		[]string{"action"},
	)

	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fetchie",
			Name:      "failures_total",
			Help:      "Terminal failures by error kind",
		},
		[]string{"kind"},
	)

	Bans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fetchie",
			Name:      "bans_total",
			Help:      "Rejected results by ban kind",
		},
		[]string{"kind"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fetchie",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of logical fetches including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)
