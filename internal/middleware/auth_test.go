package middleware

import (
	"lifecircle_backend/internal/config"
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func testConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
}

func mintToken(t *testing.T, userID uint) string {
	t.Helper()
	user := &model.User{BaseModel: model.BaseModel{ID: userID}, Email: "alice@example.com"}
	token, err := util.GenerateJWT(user, testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func authRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(cfg), func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		c.JSON(http.StatusOK, gin.H{"userId": claims.UserID})
	})
	return r
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	r := authRouter(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, 7))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":7`)
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	r := authRouter(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/me?token="+mintToken(t, 7), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	r := authRouter(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	r := authRouter(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type recordingActivityRepo struct {
	seen chan uint
}

func (r *recordingActivityRepo) UpdateLastSeen(userID uint) error {
	r.seen <- userID
	return nil
}

func TestActivityMiddleware_UpdatesLastSeen(t *testing.T) {
	cfg := testConfig()
	repo := &recordingActivityRepo{seen: make(chan uint, 1)}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(cfg), ActivityMiddleware(repo), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, 7))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// the update runs on its own goroutine
	select {
	case userID := <-repo.seen:
		assert.Equal(t, uint(7), userID)
	case <-time.After(time.Second):
		t.Fatal("UpdateLastSeen was not called")
	}
}
