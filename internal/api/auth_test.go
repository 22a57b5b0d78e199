package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("password123")
	assert.NoError(t, err, "expected no error hashing password")
	assert.NotEqual(t, "password123", hash, "expected the hash to differ from the password")

	assert.True(t, verifyPassword(hash, "password123"), "expected the password to verify")
	assert.False(t, verifyPassword(hash, "wrong-password"), "expected a wrong password to fail")
}

func TestJwtRoundTrip(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, nil)

	token, err := app.createJwtForSession(types.User{Id: 42}, time.Hour)
	assert.NoError(t, err, "expected no error creating token")

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err, "expected no error extracting user id")
	assert.Equal(t, 42, userId, "expected the user id to round-trip")
}

func TestExtractUserIdFromToken_invalid(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, nil)

	_, err := app.extractUserIdFromToken("not-a-token")
	assert.Error(t, err, "expected an error for a garbage token")

	// a token signed with a different key is rejected
	other := newTestApp(t, &database.MockRepository{}, nil)
	other.signingKey = []byte("another-key")
	token, err := other.createJwtForSession(types.User{Id: 1}, time.Hour)
	assert.NoError(t, err, "expected no error creating token")

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err, "expected a token signed with a different key to be rejected")
}

func TestAuthMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, nil)

	var gotUserId int
	var called bool
	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserId, _ = UserId(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no cookie", func(t *testing.T) {
		called = false
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
		assert.False(t, called, "expected the handler not to be called")
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "garbage"})
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
		assert.False(t, called, "expected the handler not to be called")
	})

	t.Run("valid token", func(t *testing.T) {
		called = false
		token, err := app.createJwtForSession(types.User{Id: 7}, time.Hour)
		assert.NoError(t, err, "expected no error creating token")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
		assert.True(t, called, "expected the handler to be called")
		assert.Equal(t, 7, gotUserId, "expected the user id in the request context")
	})
}
