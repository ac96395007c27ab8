package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

const codeInvalidBody = "INVALID_BODY"

var log = logger.New("api")

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "code"}. Internal causes are logged, not returned.
func respondError(c *gin.Context, err error) {
	status := statusFor(apperr.KindOf(err))
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message, "code": apperr.CodeOf(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidBody})
}

// currentUser returns the id the auth middleware stored.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a canonical id from the named route parameter.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := models.ParseID(raw)
	if err != nil {
		respondError(c, apperr.ErrInvalidID.With(name, raw))
		return uuid.Nil, false
	}
	return id, true
}

// bodyID parses a canonical id taken from a request body field.
func bodyID(c *gin.Context, field, raw string) (uuid.UUID, bool) {
	id, err := models.ParseID(raw)
	if err != nil {
		respondError(c, apperr.ErrInvalidID.With(field, raw))
		return uuid.Nil, false
	}
	return id, true
}
