package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcontext "webconf-backend/pkg/context"
	"webconf-backend/pkg/jwt"
)

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsTokenRevoked(context.Context, *jwt.Claims) (bool, error) {
	return s.revoked, s.err
}

func authRouter(tokens *jwt.JWTManager, checker RevocationChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", AuthMiddleware(tokens, checker), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin_user": c.GetString("user_id"),
			"ctx_user": pkgcontext.UserID(c.Request.Context()),
		})
	})
	return router
}

func call(router *gin.Engine, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwt.NewJWTManager("middleware-secret", "webconf-api", time.Hour)
	token, err := tokens.GenerateAccessToken("mary", "user")
	require.NoError(t, err)
	expired, err := jwt.NewJWTManager("middleware-secret", "webconf-api", time.Nanosecond).GenerateAccessToken("mary", "user")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name    string
		checker RevocationChecker
		target  string
		header  string
		status  int
		body    string
	}{
		{"valid header", nil, "/whoami", "Bearer " + token, http.StatusOK, `"ctx_user":"mary"`},
		{"query token", nil, "/whoami?access_token=" + token, "", http.StatusOK, `"gin_user":"mary"`},
		{"missing", nil, "/whoami", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad scheme", nil, "/whoami", "Basic " + token, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage", nil, "/whoami", "Bearer nope", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired", nil, "/whoami", "Bearer " + expired, http.StatusUnauthorized, "EXPIRED_TOKEN"},
		{"revoked", stubRevocation{revoked: true}, "/whoami", "Bearer " + token, http.StatusUnauthorized, "Token revoked"},
		{"revocation store down", stubRevocation{err: errors.New("redis down")}, "/whoami", "Bearer " + token, http.StatusOK, `"ctx_user":"mary"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(authRouter(tokens, tt.checker), tt.target, tt.header)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
