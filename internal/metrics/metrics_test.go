package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/chats/:chatID", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/chats/:chatID", "204"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats/abc", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/chats/:chatID", "204")))
}

func TestDomainCounters(t *testing.T) {
	sent := testutil.ToFloat64(messagesSent)
	read := testutil.ToFloat64(messagesRead)
	accepted := testutil.ToFloat64(friendRequests.WithLabelValues("accept", "ok"))

	MessageSent()
	MessagesRead(3)
	RecordFriendRequest("accept", "ok")

	assert.Equal(t, sent+1, testutil.ToFloat64(messagesSent))
	assert.Equal(t, read+3, testutil.ToFloat64(messagesRead))
	assert.Equal(t, accepted+1, testutil.ToFloat64(friendRequests.WithLabelValues("accept", "ok")))
}

func TestWatchSubscriptionsExported(t *testing.T) {
	WatchSubscriptions(func() int { return 7 })
	WatchSubscriptions(func() int { return 9 })

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "huddle_live_subscriptions 7"), body)
}
