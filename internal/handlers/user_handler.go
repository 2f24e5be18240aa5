package handlers

import (
	"net/http"

	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// UserHandler serves the per-user profile page and account deletion
type UserHandler struct {
	userService     services.UserServiceInterface
	feedbackService services.FeedbackServiceInterface
	config          *config.Config
	logger          *observability.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(userService services.UserServiceInterface, feedbackService services.FeedbackServiceInterface, cfg *config.Config, logger *observability.Logger) *UserHandler {
	return &UserHandler{
		userService:     userService,
		feedbackService: feedbackService,
		config:          cfg,
		logger:          logger,
	}
}

// GetUserPage returns the user's profile together with their feedback entries.
// The RequireSelf middleware guarantees the session user matches the path.
func (h *UserHandler) GetUserPage(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_user_page")
	defer observability.FinishSpan(span, nil)

	username := c.Param("username")
	span.SetAttributes(attribute.String("user.name", username))

	user, err := h.userService.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error getting user", err, map[string]interface{}{"username": username})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	feedback, err := h.feedbackService.ListFeedbackForUser(c.Request.Context(), username)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error listing feedback", err, map[string]interface{}{"username": username})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"feedback": feedback,
	})
}

// DeleteUser removes the account and all its feedback, then ends the session
func (h *UserHandler) DeleteUser(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_user")
	defer observability.FinishSpan(span, nil)

	username := c.Param("username")
	span.SetAttributes(attribute.String("user.name", username))

	if err := h.userService.DeleteUser(c.Request.Context(), username); err != nil {
		h.logger.Error(c.Request.Context(), "Error deleting user", err, map[string]interface{}{"username": username})
		HandleAppError(c, err)
		return
	}

	// The account is gone, the session must not outlive it
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		h.logger.Warn(c.Request.Context(), "Failed to clear session after user delete", map[string]interface{}{"username": username, "error": err.Error()})
	}

	c.Redirect(http.StatusSeeOther, "/")
}
