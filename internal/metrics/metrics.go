package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_total",
			Help:      "Search cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	extractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Content extractions by file kind and outcome",
		},
		[]string{"kind", "status"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished aggregation jobs by final status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration, httpRequestsTotal, cacheTotal, searchDuration, extractionsTotal, jobsTotal)
}

// Recorder feeds the domain counters. Its zero value is ready to use.
type Recorder struct{}

func (Recorder) Hit()  { cacheTotal.WithLabelValues("hit").Inc() }
func (Recorder) Miss() { cacheTotal.WithLabelValues("miss").Inc() }

func (Recorder) SearchObserved(kind string, took time.Duration) {
	searchDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (Recorder) Extraction(kind string, ok bool) {
	status := "success"
	if !ok {
		status = "fallback"
	}
	extractionsTotal.WithLabelValues(kind, status).Inc()
}

func (Recorder) JobFinished(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}
