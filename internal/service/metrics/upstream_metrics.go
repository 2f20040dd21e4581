package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantlens",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantlens",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed calls to external collaborators",
		},
		[]string{"upstream"},
	)
)

// Register adds the upstream collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(UpstreamLatency, UpstreamErrors)
	})
}

// Observe records one upstream call. Use as `defer metrics.Observe("newsapi", time.Now(), &err)`.
func Observe(upstream string, start time.Time, errp *error) {
	UpstreamLatency.WithLabelValues(upstream).Observe(time.Since(start).Seconds())
	if errp != nil && *errp != nil {
		UpstreamErrors.WithLabelValues(upstream).Inc()
	}
}
