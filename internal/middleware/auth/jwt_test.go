package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func createJWT(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func validClaims(userID string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   userID,
		"email": "reader@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func serve(t *testing.T, config JWTConfig, path, authHeader string) (*httptest.ResponseRecorder, *AuthUser) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *AuthUser
	handler := JWTMiddleware(config)(func(c echo.Context) error {
		seen, _ = GetUserFromContext(c)
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	require.NoError(t, handler(c))
	return rec, seen
}

func TestJWTMiddleware_SuccessfulAuthentication(t *testing.T) {
	config := JWTConfig{Secret: testSecret, Logger: zap.NewNop()}
	token := createJWT(t, validClaims("user-42"), jwt.SigningMethodHS256, testSecret)

	rec, user := serve(t, config, "/api/v1/credits", "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, "user-42", user.UserID)
	assert.Equal(t, "reader@example.com", user.Email)
	assert.Equal(t, "authenticated", user.Role)
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	config := JWTConfig{Secret: testSecret, Issuer: "storybook", Logger: zap.NewNop()}

	withIssuer := func(claims jwt.MapClaims) jwt.MapClaims {
		claims["iss"] = "storybook"
		return claims
	}

	expired := withIssuer(validClaims("user-42"))
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	noExpiry := withIssuer(validClaims("user-42"))
	delete(noExpiry, "exp")

	noSubject := withIssuer(validClaims(""))

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{name: "missing header", header: "", wantCode: "MISSING_AUTH_HEADER"},
		{name: "not bearer", header: "Basic abc", wantCode: "INVALID_AUTH_FORMAT"},
		{
			name:     "wrong secret",
			header:   "Bearer " + createJWT(t, withIssuer(validClaims("user-42")), jwt.SigningMethodHS256, "other"),
			wantCode: "INVALID_TOKEN",
		},
		{
			name:     "wrong issuer",
			header:   "Bearer " + createJWT(t, validClaims("user-42"), jwt.SigningMethodHS256, testSecret),
			wantCode: "INVALID_TOKEN",
		},
		{
			name:     "expired",
			header:   "Bearer " + createJWT(t, expired, jwt.SigningMethodHS256, testSecret),
			wantCode: "INVALID_TOKEN",
		},
		{
			name:     "no expiry",
			header:   "Bearer " + createJWT(t, noExpiry, jwt.SigningMethodHS256, testSecret),
			wantCode: "INVALID_TOKEN",
		},
		{
			name:     "no subject",
			header:   "Bearer " + createJWT(t, noSubject, jwt.SigningMethodHS256, testSecret),
			wantCode: "INVALID_CLAIMS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, user := serve(t, config, "/api/v1/credits", tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
			assert.Nil(t, user)
		})
	}
}

func TestJWTMiddleware_SkipPaths(t *testing.T) {
	config := JWTConfig{
		Secret:    testSecret,
		Logger:    zap.NewNop(),
		SkipPaths: []string{"/health", "/webhooks/"},
	}

	rec, user := serve(t, config, "/webhooks/polar", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, user)
}

func TestUserID(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	assert.Equal(t, "", UserID(c))

	req = req.WithContext(WithUser(req.Context(), &AuthUser{UserID: "user-7"}))
	c = e.NewContext(req, httptest.NewRecorder())
	assert.Equal(t, "user-7", UserID(c))
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	user, err := RequireAuth(c)
	assert.Nil(t, user)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
