package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArangoRequestsTotal tracks outbound calls to the ArangoDB HTTP API.
	ArangoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arango_api_requests_total",
			Help: "Total number of ArangoDB API requests made (by path, method, and status class).",
		},
		[]string{"path", "method", "status"},
	)

	// ArangoRequestDuration measures the duration of outbound ArangoDB calls.
	ArangoRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arango_api_request_duration_seconds",
			Help:    "Duration of ArangoDB API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"path", "method"},
	)

	// TokenCacheAccess tracks token store hits and misses.
	TokenCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arango_token_cache_access_total",
			Help: "Number of JWT cache hits/misses.",
		},
		[]string{"result"}, // hit | miss
	)

	// TokenRefreshes tracks refresh attempts by result.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arango_token_refresh_total",
			Help: "Number of JWT refresh attempts by result.",
		},
		[]string{"result"}, // ok | error
	)

	// TokenExpiry exposes the expiry of the current token as a unix timestamp.
	TokenExpiry = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arango_token_expiry_timestamp_seconds",
			Help: "Expiry of the most recently issued JWT.",
		},
	)

	// NATSPublishErrors tracks NATS publish failures by subject.
	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures by subject.",
		},
		[]string{"subject"},
	)
)

// StatusClass maps an HTTP status code to "2xx", "4xx", etc. Zero means the
// request never produced a response.
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// IncArangoRequest increments the ArangoDB API request counter.
func IncArangoRequest(path, method string, code int) {
	ArangoRequestsTotal.WithLabelValues(path, method, StatusClass(code)).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}

// IncTokenCache records a token cache hit or miss.
func IncTokenCache(hit bool) {
	if hit {
		TokenCacheAccess.WithLabelValues("hit").Inc()
		return
	}
	TokenCacheAccess.WithLabelValues("miss").Inc()
}

// IncTokenRefresh records the outcome of a refresh attempt.
func IncTokenRefresh(err error) {
	if err != nil {
		TokenRefreshes.WithLabelValues("error").Inc()
		return
	}
	TokenRefreshes.WithLabelValues("ok").Inc()
}

// SetTokenExpiry publishes the expiry of the current token.
func SetTokenExpiry(t time.Time) {
	TokenExpiry.Set(float64(t.Unix()))
}

// IncNATSPublishError increments the NATS publish error counter for the given subject.
func IncNATSPublishError(subject string) {
	NATSPublishErrors.WithLabelValues(subject).Inc()
}
