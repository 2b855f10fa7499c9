package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptd",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Inference requests by outcome.",
		},
		[]string{"outcome"},
	)
	tokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promptd",
			Subsystem: "inference",
			Name:      "tokens_total",
			Help:      "Tokens generated.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "promptd",
			Subsystem: "inference",
			Name:      "queue_depth",
			Help:      "Requests waiting for the decode worker.",
		},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "promptd",
			Subsystem: "inference",
			Name:      "running",
			Help:      "Requests currently decoding.",
		},
	)
	decodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "promptd",
			Subsystem: "inference",
			Name:      "decode_duration_seconds",
			Help:      "Duration of the decode loop in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, tokensTotal, queueDepth, running, decodeDuration)
}
