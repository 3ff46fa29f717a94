// Package metrics exposes Prometheus instrumentation for Taskline.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts API requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskline_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskline_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// WebSocketClients tracks currently connected realtime sessions.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskline_websocket_clients",
		Help: "Number of connected WebSocket clients.",
	})

	// EventsPublished counts realtime events published, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskline_realtime_events_published_total",
		Help: "Total realtime events published.",
	}, []string{"type"})

	// ReconcileRuns counts maintenance reconciliation sweeps by outcome.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskline_default_org_reconcile_runs_total",
		Help: "Default-organization reconciliation sweeps.",
	}, []string{"outcome"})

	// BackfilledUsers counts users assigned to the default organization by
	// the reconciliation sweep.
	BackfilledUsers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskline_backfilled_users_total",
		Help: "Users backfilled into the default organization.",
	})
)

// GinMiddleware records request counts and latencies. Uses the matched
// route template, not the raw path, to keep label cardinality bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
