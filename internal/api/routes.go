package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/metrics"
)

// Handlers bundles everything RegisterRoutes mounts. WebSocket may be nil.
type Handlers struct {
	Auth      *AuthHandler
	Friends   *FriendsHandler
	Chats     *ChatHandler
	WebSocket gin.HandlerFunc
}

// RegisterRoutes mounts the public and authenticated API on router.
func RegisterRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/api/auth/register", h.Auth.Register)
	router.POST("/api/auth/login", h.Auth.Login)

	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware())
	{
		authorized.GET("/auth/me", h.Auth.GetMe)
		authorized.GET("/users", h.Auth.GetAllUsers)
		authorized.GET("/users/:userID", h.Auth.GetUser)

		authorized.GET("/friends", h.Friends.ListFriends)
		authorized.GET("/friends/status/:userID", h.Friends.Status)
		authorized.DELETE("/friends/:userID", h.Friends.RemoveFriend)
		authorized.POST("/friends/requests", h.Friends.SendRequest)
		authorized.GET("/friends/requests/pending", h.Friends.PendingRequests)
		authorized.GET("/friends/requests/sent", h.Friends.SentRequests)
		authorized.POST("/friends/requests/:requestID/accept", h.Friends.Accept)
		authorized.POST("/friends/requests/:requestID/reject", h.Friends.Reject)
		authorized.POST("/friends/requests/:requestID/cancel", h.Friends.Cancel)

		authorized.POST("/chats", h.Chats.CreateChat)
		authorized.GET("/chats", h.Chats.ListChats)
		authorized.GET("/chats/:chatID", h.Chats.GetChat)
		authorized.GET("/chats/:chatID/messages", h.Chats.GetMessages)
		authorized.POST("/chats/:chatID/messages", h.Chats.SendMessage)
		authorized.POST("/chats/:chatID/read", h.Chats.MarkRead)
	}

	if h.WebSocket != nil {
		router.GET("/api/ws", TokenAuthMiddleware(), h.WebSocket)
	}
}
