// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	contextutils "feedbackapp/internal/utils"
)

// Session keys for storing user information
const (
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
)

// RequireAuth returns a middleware that requires authentication
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		// Validate username is a string and not empty
		username := session.Get(UsernameKey)
		if username == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		usernameStr, ok := username.(string)
		if !ok || usernameStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		// Store user info in context for handlers and downstream request logging
		c.Set(UsernameKey, usernameStr)
		c.Request = c.Request.WithContext(contextutils.WithUsername(c.Request.Context(), usernameStr))

		c.Next()
	}
}

// RequireSelf returns a middleware that requires authentication and that the
// :username path parameter matches the session user. A mismatch is treated as
// an authentication failure, not a forbidden resource, so the response does
// not reveal whether the other account exists.
func RequireSelf() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		username := session.Get(UsernameKey)
		usernameStr, ok := username.(string)
		if username == nil || !ok || usernameStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		if pathUsername := c.Param("username"); pathUsername != usernameStr {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		// Store user info in context for handlers and downstream request logging
		c.Set(UsernameKey, usernameStr)
		c.Request = c.Request.WithContext(contextutils.WithUsername(c.Request.Context(), usernameStr))

		c.Next()
	}
}
