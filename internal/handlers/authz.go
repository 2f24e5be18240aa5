package handlers

import (
	"errors"

	"feedbackapp/internal/middleware"

	"github.com/gin-gonic/gin"
)

var (
	// ErrUnauthenticated indicates no current user could be determined
	ErrUnauthenticated = errors.New("user not authenticated")
)

// GetCurrentUsername returns the current authenticated user's username.
// It first checks the Gin context (set by RequireAuth/RequireSelf),
// then falls back to the session store. Returns an error if unauthenticated
// or if the stored value is invalid.
func GetCurrentUsername(c *gin.Context) (string, error) {
	if raw, exists := c.Get(middleware.UsernameKey); exists {
		if name, ok := raw.(string); ok && name != "" {
			return name, nil
		}
		return "", ErrUnauthenticated
	}

	// Fallback to session lookup if context not populated
	if name, ok := GetUsernameFromSession(c); ok {
		return name, nil
	}
	return "", ErrUnauthenticated
}
