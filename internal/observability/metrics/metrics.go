package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pumpwatch_"

	// IngestResultSuccess labels a fully applied ping.
	IngestResultSuccess = "success"
	// IngestResultError labels a rejected or failed ping.
	IngestResultError = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	sessionsClosed    *prometheus.CounterVec
	sessionsDiscarded *prometheus.CounterVec

	sweepRuns prometheus.Counter
)

// Init registers observability metrics.
func Init() {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		sessionsClosed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_closed_total",
				Help: "Total compiled run events by trigger",
			},
			[]string{"trigger"},
		)
		sessionsDiscarded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_discarded_total",
				Help: "Total discarded session buffers by reason",
			},
			[]string{"reason"},
		)

		sweepRuns = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_runs_total",
				Help: "Total background expiry sweep passes",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			sessionsClosed,
			sessionsDiscarded,
			sweepRuns,
		)
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = IngestResultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncSessionClosed increments the compiled-event counter.
func IncSessionClosed(trigger string) {
	if trigger == "" {
		trigger = "unknown"
	}
	if sessionsClosed != nil {
		sessionsClosed.WithLabelValues(trigger).Inc()
	}
}

// IncSessionDiscarded increments the discarded-buffer counter.
func IncSessionDiscarded(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if sessionsDiscarded != nil {
		sessionsDiscarded.WithLabelValues(reason).Inc()
	}
}

// IncSweepRun increments the sweep pass counter.
func IncSweepRun() {
	if sweepRuns != nil {
		sweepRuns.Inc()
	}
}
