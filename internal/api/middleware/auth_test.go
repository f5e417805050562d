package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/auth"
	"cloudrent/api/internal/utils"
)

func setupAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", middleware.AuthMiddleware("testsecret"), func(c *gin.Context) {
		actorID, ok := middleware.ActorID(c)
		if !ok {
			c.String(http.StatusInternalServerError, "no actor")
			return
		}
		c.String(http.StatusOK, actorID.String())
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := setupAuthRouter()
	userID := utils.NewSixID()

	token, err := auth.GenerateJWT(userID, false, "testsecret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	router := setupAuthRouter()

	expired, err := auth.GenerateJWT(utils.NewSixID(), false, "testsecret", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := auth.GenerateJWT(utils.NewSixID(), false, "othersecret", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"malformed", "Bearer"},
		{"garbage token", "Bearer not.a.token"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}
