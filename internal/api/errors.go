package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/registry"
)

// writeError maps a Registry Core error to an HTTP status code and response
// body, and aborts the Gin context.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNoSuchModule),
		errors.Is(err, registry.ErrNoSuchType),
		errors.Is(err, registry.ErrNoSuchFunc):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrNoSuchPrivilege):
		status = http.StatusForbidden
	case errors.Is(err, registry.ErrSpecParse),
		errors.Is(err, registry.ErrBadJSONSchemaDocument):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrDeadlockSuspected):
		status = http.StatusRequestTimeout
	case errors.Is(err, registry.ErrTypeStorage):
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// userID reads the caller identity middleware.AuthMiddleware set on the
// context. Handlers behind AuthMiddleware can always rely on this being
// present; handlers behind OptionalAuthMiddleware must check the ok value.
func userID(c *gin.Context) (string, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireUserID(c *gin.Context) (string, bool) {
	id, ok := userID(c)
	if !ok || id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	return id, true
}
