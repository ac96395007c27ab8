package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	friendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "friends",
			Name:      "request_transitions_total",
			Help:      "Friend request operations by action and result code.",
		},
		[]string{"action", "result"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_sent_total",
			Help:      "Messages appended to chats.",
		},
	)

	chatsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "chats_created_total",
			Help:      "Chats created on first contact between two users.",
		},
	)

	messagesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_marked_read_total",
			Help:      "Messages flipped to read by mark-all-as-read.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		friendRequests,
		messagesSent,
		chatsCreated,
		messagesRead,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordFriendRequest counts a friend request operation. result is "ok" or an error code.
func RecordFriendRequest(action, result string) {
	friendRequests.WithLabelValues(action, result).Inc()
}

func MessageSent() { messagesSent.Inc() }

func ChatCreated() { chatsCreated.Inc() }

func MessagesRead(n int) { messagesRead.Add(float64(n)) }

// WatchSubscriptions exports the number of live subscriptions reported by count.
// Only the first registration takes effect.
func WatchSubscriptions(count func() int) {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscriptions",
			Help:      "Open live subscriptions.",
		},
		func() float64 { return float64(count()) },
	)
	var are prometheus.AlreadyRegisteredError
	if err := Registry.Register(gauge); err != nil && !errors.As(err, &are) {
		panic(err)
	}
}
