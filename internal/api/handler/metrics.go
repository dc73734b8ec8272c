package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	authRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	authOTPIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_issued_total",
		Help: "Total OTPs issued by scope.",
	}, []string{"scope"})

	authOTPVerifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_verified_total",
		Help: "Total OTP verifications by scope and result.",
	}, []string{"scope", "result"})

	authLockoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Total lockout responses by path.",
	}, []string{"path"})

	authHaulerDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_hauler_decisions_total",
		Help: "Total hauler verification decisions by action.",
	}, []string{"action"})
)

// PrometheusMiddleware records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		authRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		authRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func recordOTPIssued(scope string) {
	authOTPIssuedTotal.WithLabelValues(scope).Inc()
}

func recordOTPVerified(scope string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	authOTPVerifiedTotal.WithLabelValues(scope, result).Inc()
}

func recordLockout(path string) {
	authLockoutsTotal.WithLabelValues(path).Inc()
}

func recordHaulerDecision(action string) {
	authHaulerDecisionsTotal.WithLabelValues(action).Inc()
}
