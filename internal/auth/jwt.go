// Package auth issues and checks the bearer tokens that identify the acting user.
package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

const issuer = "huddle"

var (
	ErrInvalidToken = errors.New("invalid token")

	// Set from JWT_SECRET at start-up; InitJWTKey overrides it.
	jwtKey   = []byte(os.Getenv("JWT_SECRET"))
	tokenTTL = 24 * time.Hour
	log      = logger.New("auth")
)

// InitJWTKey sets the signing secret.
func InitJWTKey(key []byte) {
	jwtKey = key
}

// SetTokenTTL changes how long newly issued tokens stay valid.
func SetTokenTTL(ttl time.Duration) {
	tokenTTL = ttl
}

// JWTClaims represents the claims in the JWT
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for user and returns it with its expiry.
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user cannot be nil")
	}
	if user.ID == uuid.Nil {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}

	now := time.Now()
	expirationTime := now.Add(tokenTTL)
	claims := &JWTClaims{
		UserID:   user.ID.String(),
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expirationTime, nil
}

// ValidateToken checks the signature and expiry and returns the claims.
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return jwtKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		log.Debug("Token rejected: %v", err)
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetUserIDFromToken extracts the acting user's id from claims.
func GetUserIDFromToken(claims *JWTClaims) (uuid.UUID, error) {
	if claims == nil {
		return uuid.Nil, errors.New("claims cannot be nil")
	}
	return models.ParseID(claims.UserID)
}

// Authenticate validates tokenString and returns the user it was issued to.
func Authenticate(tokenString string) (uuid.UUID, string, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, "", err
	}
	userID, err := GetUserIDFromToken(claims)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return userID, claims.Username, nil
}
