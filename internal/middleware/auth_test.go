package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestSessionAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/test", SessionAuth(testSecret), func(c *fiber.Ctx) error {
		uid, _ := CurrentUserID(c)
		return c.JSON(fiber.Map{"userID": uid})
	})

	valid := signToken(t, jwt.MapClaims{
		"sub": "2b1c8f5e-0d7a-4c55-9d43-5d2b1a7c9e10",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256, []byte(testSecret))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantUser: "2b1c8f5e-0d7a-4c55-9d43-5d2b1a7c9e10"},
		{name: "anonymous", wantStatus: http.StatusOK},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "malformed token", header: "Bearer malformed.token.here", wantStatus: http.StatusUnauthorized},
		{
			name: "expired token",
			header: "Bearer " + signToken(t, jwt.MapClaims{
				"sub": "u1",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}, jwt.SigningMethodHS256, []byte(testSecret)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			header:     "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1"}, jwt.SigningMethodHS256, []byte("other")),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing subject",
			header:     "Bearer " + signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.wantUser, body["userID"])
			}
		})
	}
}

func TestSessionAuth_DisabledWithoutSecret(t *testing.T) {
	app := fiber.New()
	app.Get("/test", SessionAuth(""), func(c *fiber.Ctx) error {
		_, ok := CurrentUserID(c)
		assert.False(t, ok)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer not-checked")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
