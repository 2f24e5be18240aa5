package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contextutils "feedbackapp/internal/utils"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))
	return router
}

func setSessionCookie(t *testing.T, router *gin.Engine, values map[string]interface{}) *http.Cookie {
	setupPath := "/setup-session-" + t.Name()
	router.GET(setupPath, func(c *gin.Context) {
		session := sessions.Default(c)
		for k, v := range values {
			session.Set(k, v)
		}
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", setupPath, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestRequireAuth_Success(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		assert.Equal(t, "alice", c.GetString(UsernameKey))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UsernameKey: "alice"})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_PropagatesUsernameToRequestContext(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		assert.Equal(t, "alice", contextutils.GetUsernameFromContext(c.Request.Context()))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UsernameKey: "alice"})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_NoSession(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"should": "not happen"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestRequireAuth_EmptyUsername(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"should": "not happen"})
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UsernameKey: ""})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_NonStringUsername(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"should": "not happen"})
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UsernameKey: 12345})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSelf_Success(t *testing.T) {
	router := newTestRouter()

	router.GET("/users/:username", RequireSelf(), func(c *gin.Context) {
		assert.Equal(t, "alice", c.GetString(UsernameKey))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UsernameKey: "alice"})

	req := httptest.NewRequest("GET", "/users/alice", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSelf_OtherUser(t *testing.T) {
	router := newTestRouter()

	router.GET("/users/:username", RequireSelf(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"should": "not happen"})
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{UsernameKey: "alice"})

	// A session for alice must not open bob's page, and the failure is a 401
	// rather than a 403.
	req := httptest.NewRequest("GET", "/users/bob", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestRequireSelf_NoSession(t *testing.T) {
	router := newTestRouter()

	router.GET("/users/:username", RequireSelf(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"should": "not happen"})
	})

	req := httptest.NewRequest("GET", "/users/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
