package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queuesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchstream_device_queues_created_total",
		Help: "Total number of execution queues created",
	}, []string{"runtime"})

	queuesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "batchstream_device_queues_active",
		Help: "Current number of open execution queues",
	}, []string{"runtime"})

	queueSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchstream_device_queue_submissions_total",
		Help: "Total number of work items submitted to host queues",
	}, []string{"runtime"})
)
