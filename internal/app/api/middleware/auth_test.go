package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
)

const testSecret = "test-secret"

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &cfgpkg.Config{Auth: cfgpkg.AuthConfig{JWTSecret: testSecret}}
	r := gin.New()
	r.GET("/me", Auth(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "email": c.GetString("user_email")})
	})
	return r
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthAcceptsValidToken(t *testing.T) {
	r := authRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"user_id":"u1"`)
	require.Contains(t, w.Body.String(), `"email":"u1@example.com"`)
}

func TestAuthRejections(t *testing.T) {
	r := authRouter()
	expired := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"sub": "u1"})
	noSubject := signToken(t, testSecret, jwt.MapClaims{"email": "u1@example.com"})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.token"},
		{"wrong key", "Bearer " + wrongKey},
		{"expired", "Bearer " + expired},
		{"no subject claim", "Bearer " + noSubject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			// Never leak which check failed.
			require.Contains(t, w.Body.String(), "authentication required")
		})
	}
}
