package handlers

import (
	"feedbackapp/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// GetUsernameFromSession retrieves the current username from the session.
// Returns ("", false) if not authenticated or if the stored value is invalid.
func GetUsernameFromSession(c *gin.Context) (string, bool) {
	session := sessions.Default(c)
	username := session.Get(middleware.UsernameKey)
	if username == nil {
		return "", false
	}
	name, ok := username.(string)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
