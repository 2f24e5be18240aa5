package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"
)

// FeedbackRequest is the payload for creating or updating a feedback entry
type FeedbackRequest struct {
	Title   string `json:"title" binding:"required,max=100"`
	Content string `json:"content" binding:"required"`
}

// FeedbackHandler handles feedback CRUD requests
type FeedbackHandler struct {
	feedbackService services.FeedbackServiceInterface
	config          *config.Config
	logger          *observability.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler instance
func NewFeedbackHandler(feedbackService services.FeedbackServiceInterface, cfg *config.Config, logger *observability.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackService: feedbackService,
		config:          cfg,
		logger:          logger,
	}
}

// AddFeedbackForm describes the add-feedback form.
// The RequireSelf middleware has already matched the path user to the session.
func (h *FeedbackHandler) AddFeedbackForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   "feedback",
		"action": "/users/" + c.Param("username") + "/feedback/add",
		"fields": []string{"title", "content"},
	})
}

// AddFeedback creates a feedback entry owned by the path user
func (h *FeedbackHandler) AddFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "add_feedback")
	defer observability.FinishSpan(span, nil)

	username := c.Param("username")
	span.SetAttributes(attribute.String("user.name", username))

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithFieldErrors(c, BindingErrorFields(err))
		return
	}

	fb, err := h.feedbackService.CreateFeedback(c.Request.Context(), username, req.Title, req.Content)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating feedback", err, map[string]interface{}{"username": username})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("feedback.id", fb.ID))
	c.Redirect(http.StatusSeeOther, "/users/"+username)
}

// UpdateFeedbackForm describes the update form pre-filled with the current
// entry. The ownership gate applies here too so non-owners learn nothing
// beyond a 403.
func (h *FeedbackHandler) UpdateFeedbackForm(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_feedback_form")
	defer observability.FinishSpan(span, nil)

	id, username, ok := h.feedbackRequestParams(c)
	if !ok {
		return
	}

	fb, err := h.feedbackService.GetFeedbackByID(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if fb.Username != username {
		HandleAppError(c, contextutils.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"form":   "feedback",
		"action": "/feedback/" + strconv.Itoa(id) + "/update",
		"fields": []string{"title", "content"},
		"values": gin.H{"title": fb.Title, "content": fb.Content},
	})
}

// UpdateFeedback replaces title and content of an owned feedback entry
func (h *FeedbackHandler) UpdateFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_feedback")
	defer observability.FinishSpan(span, nil)

	id, username, ok := h.feedbackRequestParams(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("feedback.id", id))

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithFieldErrors(c, BindingErrorFields(err))
		return
	}

	fb, err := h.feedbackService.UpdateFeedback(c.Request.Context(), id, req.Title, req.Content, username)
	if err != nil {
		if errors.Is(err, contextutils.ErrForbidden) {
			h.logger.Warn(c.Request.Context(), "Feedback update forbidden", map[string]interface{}{"feedback_id": id, "username": username})
		}
		HandleAppError(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, "/users/"+fb.Username)
}

// DeleteFeedback removes an owned feedback entry
func (h *FeedbackHandler) DeleteFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_feedback")
	defer observability.FinishSpan(span, nil)

	id, username, ok := h.feedbackRequestParams(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("feedback.id", id))

	if err := h.feedbackService.DeleteFeedback(c.Request.Context(), id, username); err != nil {
		if errors.Is(err, contextutils.ErrForbidden) {
			h.logger.Warn(c.Request.Context(), "Feedback delete forbidden", map[string]interface{}{"feedback_id": id, "username": username})
		}
		HandleAppError(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, "/users/"+username)
}

// feedbackRequestParams extracts the feedback id from the path and the acting
// username from the authenticated context, replying with the appropriate
// error when either is missing.
func (h *FeedbackHandler) feedbackRequestParams(c *gin.Context) (id int, username string, ok bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		RespondWithFieldErrors(c, map[string]string{"id": "Must be a number"})
		return 0, "", false
	}

	username, err = GetCurrentUsername(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return 0, "", false
	}

	return id, username, true
}
