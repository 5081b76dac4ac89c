package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are the Prometheus metrics of backend API traffic.
type Collectors struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewCollectors registers the collectors with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "piatto",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of backend API requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "piatto",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency of backend API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),
	}
}

// Observe records one request. Status 0 means no response arrived.
func (c *Collectors) Observe(endpoint, method string, status int, latency time.Duration) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "network_error"
	}
	c.requests.WithLabelValues(endpoint, method, label).Inc()
	c.latency.WithLabelValues(endpoint, method).Observe(latency.Seconds())
}
