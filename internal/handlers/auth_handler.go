package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"feedbackapp/internal/config"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// RegisterRequest is the payload for POST /register
type RegisterRequest struct {
	Username  string `json:"username" binding:"required,max=20"`
	Password  string `json:"password" binding:"required"`
	Email     string `json:"email" binding:"required,email,max=50"`
	FirstName string `json:"first_name" binding:"required,max=30"`
	LastName  string `json:"last_name" binding:"required,max=30"`
}

// LoginRequest is the payload for POST /login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// AuthHandler handles registration, login and logout requests
type AuthHandler struct {
	userService services.UserServiceInterface
	config      *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		config:      cfg,
		logger:      logger,
	}
}

// RegisterForm describes the registration form for GET /register
func (h *AuthHandler) RegisterForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   "register",
		"action": "/register",
		"fields": []string{"username", "password", "email", "first_name", "last_name"},
	})
}

// Register handles user registration requests
func (h *AuthHandler) Register(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "register")
	defer observability.FinishSpan(span, nil)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithFieldErrors(c, BindingErrorFields(err))
		return
	}

	// Set span attributes for request data
	span.SetAttributes(
		attribute.String("register.username", req.Username),
		attribute.Bool("register.password_provided", req.Password != ""),
	)

	if !usernameRegex.MatchString(req.Username) {
		RespondWithFieldErrors(c, map[string]string{
			"username": "May only contain letters, digits and underscores",
		})
		return
	}

	// Normalize email to lowercase
	email := strings.ToLower(req.Email)

	h.logger.Info(c.Request.Context(), "Attempting registration", map[string]interface{}{"username": req.Username, "email": email})

	// Uniqueness is enforced at write time so concurrent registrations
	// resolve at the database, not via a racy pre-check.
	user, err := h.userService.RegisterUser(c.Request.Context(), req.Username, req.Password, email, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, contextutils.ErrRecordExists) {
			span.SetAttributes(attribute.Bool("register.duplicate", true))
			RespondWithDuplicateField(c, "username", "Username taken")
			return
		}
		h.logger.Error(c.Request.Context(), "Registration failed", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, err)
		return
	}

	// Create session
	session := sessions.Default(c)
	session.Set(middleware.UsernameKey, user.Username)
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session", err, map[string]interface{}{"username": user.Username})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	c.Redirect(http.StatusSeeOther, "/users/"+user.Username)
}

// LoginForm describes the login form for GET /login
func (h *AuthHandler) LoginForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   "login",
		"action": "/login",
		"fields": []string{"username", "password"},
	})
}

// Login handles user login requests
func (h *AuthHandler) Login(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithFieldErrors(c, BindingErrorFields(err))
		return
	}

	// Set span attributes for observability
	span.SetAttributes(
		attribute.String("auth.username", req.Username),
		attribute.Bool("auth.password_provided", req.Password != ""),
	)

	// Authenticate user against database. The service returns the same
	// generic error for unknown users and wrong passwords.
	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Authentication failed", map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	span.SetAttributes(attribute.Int("user.id", user.ID))

	// Create session
	session := sessions.Default(c)
	session.Set(middleware.UsernameKey, user.Username)
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session", err, map[string]interface{}{"username": user.Username})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	c.Redirect(http.StatusSeeOther, "/users/"+user.Username)
}

// Logout handles user logout requests
func (h *AuthHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	if username := session.Get(middleware.UsernameKey); username != nil {
		if name, ok := username.(string); ok {
			span.SetAttributes(attribute.String("user.username", name))
		}
	}

	session.Clear()
	if err := session.Save(); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}
