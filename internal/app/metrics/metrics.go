package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "memefeed",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memefeed",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memefeed",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	mirrorSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memefeed",
			Subsystem: "mirror",
			Name:      "submissions_total",
			Help:      "Total number of ledger mirror submissions.",
		},
		[]string{"record_type", "outcome"},
	)

	mirrorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "memefeed",
			Subsystem: "mirror",
			Name:      "submission_duration_seconds",
			Help:      "Duration of ledger mirror submissions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	feedViewers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "memefeed",
			Subsystem: "feed",
			Name:      "live_viewers",
			Help:      "Current number of connected live feed viewers.",
		},
	)

	feedBroadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "memefeed",
			Subsystem: "feed",
			Name:      "broadcasts_total",
			Help:      "Total number of change notifications broadcast to viewers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		mirrorSubmissions,
		mirrorDuration,
		feedViewers,
		feedBroadcasts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordMirrorSubmission records one ledger mirror attempt.
func RecordMirrorSubmission(recordType string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	outcome := "dropped"
	if success {
		outcome = "committed"
	}
	mirrorSubmissions.WithLabelValues(recordType, outcome).Inc()
	mirrorDuration.Observe(duration.Seconds())
}

// SetFeedViewers records the current live viewer count.
func SetFeedViewers(n int) {
	feedViewers.Set(float64(n))
}

// RecordFeedBroadcast counts one notification fan-out.
func RecordFeedBroadcast() {
	feedBroadcasts.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack forwards to the underlying writer so the live feed upgrade works
// when instrumentation wraps the mux.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// canonicalPath collapses dynamic segments so label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	return "/v1/" + strings.Join(parts[1:], "/")
}
