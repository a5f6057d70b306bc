package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchstream_publish_total",
		Help: "Result publication attempts by outcome",
	}, []string{"outcome"})

	publishedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchstream_publish_rows_total",
		Help: "Total number of result rows published",
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchstream_publish_breaker_state",
		Help: "Publication circuit breaker state (0 closed, 1 open, 2 half-open)",
	})
)
