package model

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptd",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by result.",
		},
		[]string{"result"},
	)
	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "promptd",
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Duration of successful model loads in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, loadDuration)
}
