package bench

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	phaseWarmup = "warmup"
	phaseTimed  = "timed"
)

var (
	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchstream_bench_iterations_total",
		Help: "Total number of inference passes issued by the runner",
	}, []string{"phase"})

	iterationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batchstream_bench_iteration_duration_seconds",
		Help:    "Timed iteration latency including output copy",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"queue"})

	avgLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "batchstream_bench_avg_latency_ms",
		Help: "Average iteration latency of the last run on a queue",
	}, []string{"queue"})

	runFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchstream_bench_run_failures_total",
		Help: "Total number of benchmark runs aborted by an error",
	})
)
