package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batchstream_engine_forward_duration_seconds",
		Help:    "Time spent in one forward pass including queue wait",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"backend"})

	forwardErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchstream_engine_forward_errors_total",
		Help: "Total number of failed forward passes",
	}, []string{"backend"})

	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchstream_engine_pool_hits_total",
		Help: "Total number of successful buffer pool retrievals",
	})

	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchstream_engine_pool_misses_total",
		Help: "Total number of buffer pool misses (allocations)",
	})
)
