package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/models"
)

// AuthHandler handles authentication and user directory routes
type AuthHandler struct {
	Users database.UserStore
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users database.UserStore) *AuthHandler {
	return &AuthHandler{Users: users}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	// Hash password
	hashedPassword, err := auth.HashPassword(input.Password)
	if err != nil {
		log.Error("Failed to hash password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	// Create user, username and email are unique
	user, err := h.Users.CreateUser(c.Request.Context(), input.Username, input.Email, hashedPassword)
	if errors.Is(err, database.ErrUserAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists", "code": "USER_EXISTS"})
		return
	}
	if err != nil {
		respondError(c, apperr.Backend("create user", err))
		return
	}

	// Return user data (without password)
	log.Info("Registered user %s", user.ID)
	c.JSON(http.StatusCreated, models.NewUserResponse(user))
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	// Get user by email
	ctx := c.Request.Context()
	user, err := h.Users.GetUserByEmail(ctx, input.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		respondError(c, apperr.Backend("get user by email", err))
		return
	}

	// Check password
	if !auth.CheckPasswordHash(input.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// A failed last_seen update does not fail the login
	if err := h.Users.UpdateLastSeen(ctx, user.ID); err != nil {
		log.Warn("Failed to update last_seen for %s: %v", user.ID, err)
	}

	// Generate JWT token
	token, expiry, err := auth.GenerateToken(user)
	if err != nil {
		log.Error("Failed to generate token for %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	// Return user data with token
	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expiry": expiry,
		"user":   models.NewUserResponse(user),
	})
}

// GetMe gets the current user profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	// Get user from database
	user, err := h.Users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, userError(err, userID.String()))
		return
	}
	c.JSON(http.StatusOK, models.NewUserResponse(user))
}

// GetAllUsers lists every other user's public profile
func (h *AuthHandler) GetAllUsers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	users, err := h.Users.GetAllUsers(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apperr.Backend("list users", err))
		return
	}
	// Only public fields leave the server
	profiles := make([]*models.PublicProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Public())
	}
	c.JSON(http.StatusOK, profiles)
}

// GetUser returns one user's public profile
func (h *AuthHandler) GetUser(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	id, ok := pathID(c, "userID")
	if !ok {
		return
	}
	user, err := h.Users.GetUserByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, userError(err, id.String()))
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

// userError maps a store lookup failure to USER_NOT_FOUND or BACKEND.
func userError(err error, id string) error {
	if errors.Is(err, database.ErrUserNotFound) {
		return apperr.ErrUserNotFound.With("user_id", id)
	}
	return apperr.Backend("get user", err)
}
