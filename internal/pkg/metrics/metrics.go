package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discoverymap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discoverymap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Location metrics
	LocationUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "location",
		Name:      "updates_total",
		Help:      "Device fixes seen by location streams",
	}, []string{"result"}) // accepted | dropped | error

	ActiveLocationSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discoverymap",
		Subsystem: "location",
		Name:      "active_subscriptions",
		Help:      "Current number of active location subscriptions",
	})

	// Camera metrics
	CameraTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "viewport",
		Name:      "transitions_total",
		Help:      "Camera mode transitions by cause",
	}, []string{"to", "cause"})

	RecenterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discoverymap",
		Subsystem: "viewport",
		Name:      "recenter_duration_seconds",
		Help:      "Duration of recenter position reads",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"result"})

	// Feed metrics
	FeedResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discoverymap",
		Subsystem: "feed",
		Name:      "resolve_duration_seconds",
		Help:      "Duration of feed and search resolutions",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"mode"})

	FeedResolveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "feed",
		Name:      "resolve_errors_total",
		Help:      "Total failed feed and search resolutions",
	}, []string{"mode"})

	FeedStaleDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "feed",
		Name:      "stale_discarded_total",
		Help:      "Resolutions discarded because a newer key was issued",
	}, []string{"mode"})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discoverymap",
		Subsystem: "session",
		Name:      "active",
		Help:      "Current number of open map sessions",
	})

	HandoffsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "session",
		Name:      "handoffs_consumed_total",
		Help:      "Navigation targets consumed at map mount",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discoverymap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	// Backend client metrics
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discoverymap",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Latency of remote backend calls",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint", "status"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoverymap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discoverymap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discoverymap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discoverymap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		// route pattern keeps session ids out of the label set
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
