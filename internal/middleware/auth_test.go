package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

const testSecret = "test-secret"

func testUser(role model.Role) *model.User {
	return &model.User{ID: "11111111-1111-7111-8111-111111111111", Role: role}
}

func TestIssueAndParseToken(t *testing.T) {
	u := testUser(model.RoleUser)
	token, err := IssueToken(testSecret, u, TokenAccess, "sess-1", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, model.RoleUser, claims.Role)
	assert.Equal(t, TokenAccess, claims.TokenType)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := IssueToken(testSecret, testUser(model.RoleUser), TokenAccess, "", time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", token)
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := IssueToken(testSecret, testUser(model.RoleUser), TokenAccess, "", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	require.Error(t, err)
}

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	u := testUser(model.RoleUser)
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, u.ID, GetUserID(r.Context()))
		assert.Equal(t, model.RoleUser, GetRole(r.Context()))
		assert.Equal(t, "sess-1", GetSessionID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	token, err := IssueToken(testSecret, u, TokenAccess, "sess-1", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejections(t *testing.T) {
	handler := Auth(testSecret)(okHandler(t))

	refresh, err := IssueToken(testSecret, testUser(model.RoleUser), TokenRefresh, "", time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "token abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"refresh token", "Bearer " + refresh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	chain := func(role model.Role) int {
		handler := Auth(testSecret)(RequireAdmin()(okHandler(t)))
		token, err := IssueToken(testSecret, testUser(role), TokenAccess, "", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, chain(model.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, chain(model.RoleUser))
}
