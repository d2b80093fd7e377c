package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "projectchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "projectchat_ws_active_connections",
			Help: "Number of open websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectchat_ws_events_total",
			Help: "Total number of websocket frames by direction and type.",
		},
		[]string{"direction", "type"},
	)
	hubConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "projectchat_hub_connections",
			Help: "Number of connections registered with the hub.",
		},
	)
	hubActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "projectchat_hub_active_rooms",
			Help: "Number of project rooms with at least one connection.",
		},
	)
	hubEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectchat_hub_events_total",
			Help: "Total number of events fanned out by the hub.",
		},
		[]string{"kind"},
	)
	hubDroppedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectchat_hub_dropped_events_total",
			Help: "Events dropped because a client buffer was full.",
		},
		[]string{"kind"},
	)
	hubRejectedCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectchat_hub_rejected_commands_total",
			Help: "Commands rejected because the user is not a project member.",
		},
		[]string{"command"},
	)
	persistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "projectchat_message_persist_duration_seconds",
			Help:    "Latency of message writes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "projectchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		hubConnections,
		hubActiveRooms,
		hubEventsTotal,
		hubDroppedEventsTotal,
		hubRejectedCommandsTotal,
		persistDuration,
		amqpPublishErrorsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

// IncWSEvent counts a websocket frame; direction is "in" or "out".
func IncWSEvent(direction, typ string) {
	wsEventsTotal.WithLabelValues(direction, typ).Inc()
}

func IncHubConnections() {
	hubConnections.Inc()
}

func DecHubConnections() {
	hubConnections.Dec()
}

func SetActiveRooms(n int) {
	hubActiveRooms.Set(float64(n))
}

func IncHubEvent(kind string) {
	hubEventsTotal.WithLabelValues(kind).Inc()
}

func IncDroppedEvent(kind string) {
	hubDroppedEventsTotal.WithLabelValues(kind).Inc()
}

// IncRejectedCommand counts a membership rejection; command is "join" or "send".
func IncRejectedCommand(command string) {
	hubRejectedCommandsTotal.WithLabelValues(command).Inc()
}

func ObservePersist(status string, d time.Duration) {
	persistDuration.WithLabelValues(status).Observe(d.Seconds())
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
