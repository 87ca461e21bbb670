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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"method", "route"},
	)

	bidsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "accepted_total",
			Help:      "Total number of accepted bids",
		},
	)

	bidsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "rejected_total",
			Help:      "Total number of rejected bids by reason",
		},
		[]string{"reason"},
	)

	auctionsExtended = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "anti_snipe_extensions_total",
			Help:      "Total number of end-time extensions caused by late bids",
		},
	)

	auctionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "sweeper",
			Name:      "closed_total",
			Help:      "Total number of auctions closed by the sweeper",
		},
		[]string{"status"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "auction",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of open realtime connections",
		},
	)

	wsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "ws",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a client send buffer was full",
		},
	)

	fanoutPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "fanout",
			Name:      "publish_failures_total",
			Help:      "Event publish failures by sink",
		},
		[]string{"sink"},
	)
)

func BidAccepted(extended bool) {
	bidsAccepted.Inc()
	if extended {
		auctionsExtended.Inc()
	}
}

func BidRejected(reason string) {
	bidsRejected.WithLabelValues(reason).Inc()
}

func AuctionClosed(status string) {
	auctionsClosed.WithLabelValues(status).Inc()
}

func ConnectionOpened() { wsConnections.Inc() }

func ConnectionClosed() { wsConnections.Dec() }

func MessageDropped() { wsDropped.Inc() }

func PublishFailed(sink string) {
	fanoutPublishFailures.WithLabelValues(sink).Inc()
}

// Middleware records request counts and latency keyed by the matched route template
func Middleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry for scraping
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
