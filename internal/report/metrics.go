package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reportsGenerated counts report generations.
	// Labels: result (success, error)
	reportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skystats",
		Name:      "reports_generated_total",
		Help:      "Total report generations by result",
	}, []string{"result"})

	reportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skystats",
		Name:      "report_duration_seconds",
		Help:      "Time to fetch and aggregate one report",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	})
)
