package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedbackapp/internal/config"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// setupFeedbackTestRouter wires the feedback routes with actingUser injected
// the way the auth middleware would after a successful session check.
func setupFeedbackTestRouter(feedbackService services.FeedbackServiceInterface, actingUser string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))

	if actingUser != "" {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UsernameKey, actingUser)
			c.Next()
		})
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			SessionSecret: "test-secret",
		},
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	handler := NewFeedbackHandler(feedbackService, cfg, logger)

	router.GET("/users/:username/feedback/add", handler.AddFeedbackForm)
	router.POST("/users/:username/feedback/add", handler.AddFeedback)
	router.GET("/feedback/:id/update", handler.UpdateFeedbackForm)
	router.POST("/feedback/:id/update", handler.UpdateFeedback)
	router.POST("/feedback/:id/delete", handler.DeleteFeedback)

	return router
}

func testFeedback(id int, username string) *models.Feedback {
	return &models.Feedback{
		ID:       id,
		Title:    "A title",
		Content:  "Some content",
		Username: username,
	}
}

func TestFeedbackHandler_AddFeedback(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	mockFeedbackService.On("CreateFeedback", mock.Anything, "alice", "A title", "Some content").
		Return(testFeedback(1, "alice"), nil)

	reqBody, _ := json.Marshal(map[string]string{
		"title":   "A title",
		"content": "Some content",
	})
	req, _ := http.NewRequest("POST", "/users/alice/feedback/add", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/users/alice", w.Header().Get("Location"))

	mockFeedbackService.AssertExpectations(t)
}

func TestFeedbackHandler_AddFeedback_Validation(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	tests := []struct {
		name          string
		body          map[string]string
		expectedField string
	}{
		{
			name:          "missing title",
			body:          map[string]string{"content": "Some content"},
			expectedField: "title",
		},
		{
			name:          "missing content",
			body:          map[string]string{"title": "A title"},
			expectedField: "content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqBody, _ := json.Marshal(tt.body)
			req, _ := http.NewRequest("POST", "/users/alice/feedback/add", bytes.NewBuffer(reqBody))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

			fields, ok := response["fields"].(map[string]interface{})
			require.True(t, ok)
			assert.Contains(t, fields, tt.expectedField)
		})
	}

	mockFeedbackService.AssertNotCalled(t, "CreateFeedback")
}

func TestFeedbackHandler_UpdateFeedbackForm(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	mockFeedbackService.On("GetFeedbackByID", mock.Anything, 7).Return(testFeedback(7, "alice"), nil)

	req, _ := http.NewRequest("GET", "/feedback/7/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "/feedback/7/update", response["action"])

	values, ok := response["values"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "A title", values["title"])
}

func TestFeedbackHandler_UpdateFeedbackForm_NotOwner(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "bob")

	mockFeedbackService.On("GetFeedbackByID", mock.Anything, 7).Return(testFeedback(7, "alice"), nil)

	req, _ := http.NewRequest("GET", "/feedback/7/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFeedbackHandler_UpdateFeedback(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	updated := testFeedback(7, "alice")
	updated.Title = "New title"
	mockFeedbackService.On("UpdateFeedback", mock.Anything, 7, "New title", "New content", "alice").
		Return(updated, nil)

	reqBody, _ := json.Marshal(map[string]string{
		"title":   "New title",
		"content": "New content",
	})
	req, _ := http.NewRequest("POST", "/feedback/7/update", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/users/alice", w.Header().Get("Location"))

	mockFeedbackService.AssertExpectations(t)
}

func TestFeedbackHandler_UpdateFeedback_NotOwner(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "bob")

	mockFeedbackService.On("UpdateFeedback", mock.Anything, 7, "New title", "New content", "bob").
		Return(nil, contextutils.ErrForbidden)

	reqBody, _ := json.Marshal(map[string]string{
		"title":   "New title",
		"content": "New content",
	})
	req, _ := http.NewRequest("POST", "/feedback/7/update", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "FORBIDDEN", response["code"])
}

func TestFeedbackHandler_UpdateFeedback_NotFound(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	mockFeedbackService.On("UpdateFeedback", mock.Anything, 99, "New title", "New content", "alice").
		Return(nil, contextutils.ErrRecordNotFound)

	reqBody, _ := json.Marshal(map[string]string{
		"title":   "New title",
		"content": "New content",
	})
	req, _ := http.NewRequest("POST", "/feedback/99/update", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedbackHandler_DeleteFeedback(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	mockFeedbackService.On("DeleteFeedback", mock.Anything, 7, "alice").Return(nil)

	req, _ := http.NewRequest("POST", "/feedback/7/delete", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/users/alice", w.Header().Get("Location"))

	mockFeedbackService.AssertExpectations(t)
}

func TestFeedbackHandler_DeleteFeedback_NotOwner(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "bob")

	mockFeedbackService.On("DeleteFeedback", mock.Anything, 7, "bob").Return(contextutils.ErrForbidden)

	req, _ := http.NewRequest("POST", "/feedback/7/delete", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFeedbackHandler_InvalidID(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "alice")

	req, _ := http.NewRequest("POST", "/feedback/abc/delete", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	fields, ok := response["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "id")

	mockFeedbackService.AssertNotCalled(t, "DeleteFeedback")
}

func TestFeedbackHandler_Unauthenticated(t *testing.T) {
	mockFeedbackService := new(MockFeedbackService)
	router := setupFeedbackTestRouter(mockFeedbackService, "")

	req, _ := http.NewRequest("POST", "/feedback/7/delete", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mockFeedbackService.AssertNotCalled(t, "DeleteFeedback")
}
