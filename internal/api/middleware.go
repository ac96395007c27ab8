package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/auth"
)

// AuthMiddleware validates the Bearer token and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if Authorization header exists and has Bearer format
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		authenticate(c, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

// TokenAuthMiddleware also accepts the token as a ?token= query parameter,
// since browsers cannot set headers on a websocket handshake.
func TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// The query token wins over the header
		if token := c.Query("token"); token != "" {
			authenticate(c, token)
			return
		}
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			authenticate(c, strings.TrimPrefix(authHeader, "Bearer "))
			return
		}
		log.Debug("No token on request from %s", c.Request.RemoteAddr)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

func authenticate(c *gin.Context, token string) {
	// Validate token
	userID, username, err := auth.Authenticate(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	// Set user ID (as UUID) and username in context
	c.Set("userID", userID)
	c.Set("username", username)
	c.Next()
}
