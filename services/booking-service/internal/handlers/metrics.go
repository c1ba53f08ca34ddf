package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	availabilityQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_availability_queries_total",
		Help: "Availability queries by outcome.",
	}, []string{"outcome"})

	availabilitySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booking_availability_compute_seconds",
		Help:    "Time spent loading data for and computing one availability query.",
		Buckets: prometheus.DefBuckets,
	})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_submissions_total",
		Help: "Online booking submissions by outcome.",
	}, []string{"outcome"})
)

// outcomeOf labels a response for the counters above.
func outcomeOf(status int, kind string) string {
	if status < 300 {
		return "ok"
	}
	if kind == "" {
		return "error"
	}
	return kind
}
