package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AttemptsTotal counts outbound completion attempts by result
	// (ok, rate_limited, api_error, transport_error).
	AttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "macrotrack",
		Subsystem: "analysis",
		Name:      "attempts_total",
		Help:      "Total number of completion requests dispatched, labeled by result.",
	}, []string{"result"})

	// AnalysesTotal counts finished Analyze calls by outcome kind.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "macrotrack",
		Subsystem: "analysis",
		Name:      "analyses_total",
		Help:      "Total number of food analyses, labeled by model and outcome.",
	}, []string{"model", "outcome"})

	// ThrottleWaitSeconds is the time spent waiting on the local throttle.
	ThrottleWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "macrotrack",
		Subsystem: "analysis",
		Name:      "throttle_wait_seconds",
		Help:      "Time spent waiting for the minimum inter-request interval.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 1.5, 2, 5, 10},
	})

	// RequestDurationSeconds is end-to-end time of one Analyze call.
	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "macrotrack",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "End-to-end time of a food analysis including throttle and backoff delays.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"model"})

	// ImageBytes is the size of the optimized image sent upstream.
	ImageBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "macrotrack",
		Subsystem: "analysis",
		Name:      "image_bytes",
		Help:      "Encoded size of optimized images.",
		Buckets:   prometheus.ExponentialBuckets(32*1024, 2, 7),
	})

	// EntriesSavedTotal counts confirmed food-log entries by source.
	EntriesSavedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "macrotrack",
		Subsystem: "foodlog",
		Name:      "entries_saved_total",
		Help:      "Total number of food entries saved, labeled by source.",
	}, []string{"source"})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AttemptsTotal,
			AnalysesTotal,
			ThrottleWaitSeconds,
			RequestDurationSeconds,
			ImageBytes,
			EntriesSavedTotal,
		)
	})
}
