// Package middleware provides Gin HTTP middleware for authentication,
// security headers, and metrics; the audit-logging middleware lives in
// internal/api.
//
// Middleware ordering matters and is enforced in internal/api's router:
//
//	RequestID → Metrics → Logger → CORS → Security → Audit → Auth → Handler
//
// Auth is scoped to the /v1 route group only, so /health, /ready, and
// /version stay reachable without a token. Audit logging runs after the
// handler (it wraps via c.Next()) so only the outcome of a mutation is
// recorded; it still runs before Auth in registration order so it wraps
// outcomes of the auth check itself on /v1 routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/auth"
	"github.com/typedefdb/tddb/internal/db/repositories"
)

// AuthMiddleware validates a JWT bearer token and loads the caller's user
// record into the request context. TDDB has no API keys or organizations —
// every caller is a directory user authenticated by the identity service
// that issued the token.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed Authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "user not found",
			})
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

// OptionalAuthMiddleware behaves like AuthMiddleware but never aborts the
// request when no credentials, or invalid ones, are presented — handlers
// that are reachable both anonymously and authenticated use this instead.
func OptionalAuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.Next()
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err == nil && user != nil {
			c.Set("user", user)
			c.Set("user_id", user.ID)
		}
		c.Next()
	}
}

// bearerToken extracts the token from a "Bearer <token>" Authorization
// header, reporting false if the header is missing or malformed.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
