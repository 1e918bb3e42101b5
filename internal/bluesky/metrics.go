package bluesky

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts XRPC requests.
	// Labels: nsid, status (HTTP status code, or "error" when no response arrived)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skystats",
		Subsystem: "xrpc",
		Name:      "requests_total",
		Help:      "Total XRPC requests by method and response status",
	}, []string{"nsid", "status"})

	// requestDuration measures XRPC round trips, including failed ones.
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skystats",
		Subsystem: "xrpc",
		Name:      "request_duration_seconds",
		Help:      "XRPC request latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"nsid"})
)
