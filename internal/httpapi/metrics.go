package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "promptd"

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time until the handler returned. For /infer this spans the whole stream.",
		Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 15, 30, 60, 120, 300},
	}, []string{"route", "method"})

	httpFirstByte = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "time_to_first_byte_seconds",
		Help:      "Time until the first response byte; the first token for streamed inference.",
		Buckets:   prometheus.ExponentialBuckets(.005, 2.5, 10),
	}, []string{"route"})

	httpResponseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "response_bytes",
		Help:      "Response body size.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"route"})

	httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Requests currently being served.",
	}, []string{"method"})

	httpRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "rejected_total",
		Help:      "Requests refused before generation, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpFirstByte, httpResponseBytes, httpInflight, httpRejected)
}

// rejectReason names the refusal behind status, or "" for statuses that
// are not admission refusals.
func rejectReason(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "queue_full"
	case http.StatusRequestEntityTooLarge:
		return "body_too_large"
	case http.StatusUnsupportedMediaType:
		return "media_type"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return ""
}

// statusRecorder captures what the handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	start     time.Time
	status    int
	bytes     int
	firstByte time.Duration
	wrote     bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wrote {
		sr.status = code
		sr.wrote = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	if !sr.wrote {
		sr.wrote = true
	}
	if sr.bytes == 0 && len(p) > 0 {
		sr.firstByte = time.Since(sr.start)
	}
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// MetricsMiddleware instruments requests for Prometheus. Labels use the chi
// route pattern, read after routing.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, start: time.Now(), status: http.StatusOK}
		inflight := httpInflight.WithLabelValues(r.Method)
		inflight.Inc()
		defer inflight.Dec()

		next.ServeHTTP(sr, r)

		route := routePattern(r)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sr.status)).Inc()
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(sr.start).Seconds())
		httpResponseBytes.WithLabelValues(route).Observe(float64(sr.bytes))
		if sr.bytes > 0 {
			httpFirstByte.WithLabelValues(route).Observe(sr.firstByte.Seconds())
		}
		if reason := rejectReason(sr.status); reason != "" {
			httpRejected.WithLabelValues(reason).Inc()
		}
	})
}

// routePattern returns the matched chi pattern. Unmatched requests share
// one label so stray URLs cannot grow the series count.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
