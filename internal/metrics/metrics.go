package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are package level so that every service and test shares the
// default registry without registering twice.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercure_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mercure_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	trackersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercure_trackers_created_total",
			Help: "Trackers created, by key",
		},
		[]string{"key"},
	)
	trackerVisits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercure_tracker_visits_total",
			Help: "Visits recorded on trackers, by key",
		},
		[]string{"key"},
	)
	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercure_emails_sent_total",
			Help: "Campaign emails handed to the transport, by result",
		},
		[]string{"result"}, // success, fail
	)
	pagesCloned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercure_pages_cloned_total",
			Help: "Landing page clones, by result",
		},
		[]string{"result"},
	)
)

func RecordTrackerCreated(key string) {
	trackersCreated.WithLabelValues(key).Inc()
}

func RecordTrackerVisit(key string) {
	trackerVisits.WithLabelValues(key).Inc()
}

func RecordEmailSent(success bool) {
	emailsSent.WithLabelValues(result(success)).Inc()
}

func RecordPageCloned(success bool) {
	pagesCloned.WithLabelValues(result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "fail"
}

// Middleware labels requests with the route pattern, not the raw path, so
// tracker ids do not blow up cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
