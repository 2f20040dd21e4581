package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain/repository.Metrics using Prometheus.
type Recorder struct {
	latency      *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	lambdaMax    prometheus.Gauge
	noiseCount   prometheus.Gauge
	symbolsUsed  prometheus.Gauge
	lastRefresh  prometheus.Gauge
	refreshTotal *prometheus.CounterVec
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantlens_operation_duration_seconds",
				Help:    "Duration of analytics operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlens_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lambdaMax: f.NewGauge(prometheus.GaugeOpts{
			Name: "quantlens_rmt_lambda_max",
			Help: "Largest eigenvalue of the latest snapshot correlation matrix",
		}),
		noiseCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "quantlens_rmt_noise_eigenvalues",
			Help: "Eigenvalues inside the Marchenko-Pastur band in the latest snapshot",
		}),
		symbolsUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "quantlens_snapshot_symbols",
			Help: "Instruments with data in the latest snapshot",
		}),
		lastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Name: "quantlens_snapshot_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful snapshot refresh",
		}),
		refreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlens_snapshot_refresh_total",
				Help: "Snapshot refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSpectrum stores the headline RMT figures of a snapshot.
func (r *Recorder) RecordSpectrum(lambdaMax float64, noise int) {
	r.lambdaMax.Set(lambdaMax)
	r.noiseCount.Set(float64(noise))
}

// RecordRefresh counts a refresh attempt; successful ones move the timestamp gauge.
func (r *Recorder) RecordRefresh(at time.Time, symbols int, err error) {
	if err != nil {
		r.refreshTotal.WithLabelValues("error").Inc()
		return
	}
	r.refreshTotal.WithLabelValues("ok").Inc()
	r.symbolsUsed.Set(float64(symbols))
	r.lastRefresh.Set(float64(at.Unix()))
}
