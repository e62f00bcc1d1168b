package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey        = "user_id"
	cronSecretHeader = "X-Cron-Secret"
	schedulerSubject = "scheduler"
	bearerPrefix     = "Bearer "
)

var ErrSchedulerUnauthorized = errors.New("scheduler authentication failed")

// SchedulerAuthenticator decides whether a request may trigger the reminder
// batch.
type SchedulerAuthenticator interface {
	Authenticate(r *http.Request) error
}

// SharedSecret accepts requests carrying the configured secret in
// X-Cron-Secret. An empty secret rejects everything.
type SharedSecret struct {
	Secret string
}

func (s SharedSecret) Authenticate(r *http.Request) error {
	got := r.Header.Get(cronSecretHeader)
	if s.Secret == "" || got == "" {
		return ErrSchedulerUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.Secret)) != 1 {
		return ErrSchedulerUnauthorized
	}
	return nil
}

// JWTScheduler accepts HS256 bearer tokens whose subject is "scheduler".
type JWTScheduler struct {
	Secret []byte
}

func (s JWTScheduler) Authenticate(r *http.Request) error {
	if len(s.Secret) == 0 {
		return ErrSchedulerUnauthorized
	}
	claims, err := parseToken(bearerToken(r), s.Secret)
	if err != nil {
		return ErrSchedulerUnauthorized
	}
	sub, err := claims.GetSubject()
	if err != nil || sub != schedulerSubject {
		return ErrSchedulerUnauthorized
	}
	return nil
}

func (h *Handlers) SchedulerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.scheduler == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Scheduler authentication is not configured"})
			return
		}
		if err := h.scheduler.Authenticate(c.Request); err != nil {
			h.logger.Warn("rejected scheduler request", "remote_addr", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	secret := []byte(h.config.JWTSecret)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication is not configured"})
			return
		}

		claims, err := parseToken(bearerToken(c.Request), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		userID, ok := claims[userIDKey].(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID in token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), bearerPrefix)
}

func parseToken(raw string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
