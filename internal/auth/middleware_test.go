package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "coach.test"}

func TestIssueAndParseRoundTrip(t *testing.T) {
	token, err := Issue(testConfig, "user-1", []string{ScopeSessionsRead, ScopePlansRead}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseClaims(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopePlansRead))
	require.False(t, claims.HasScope(ScopeSessionsWrite))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParseRejectsBadTokens(t *testing.T) {
	wrongIssuer, err := Issue(Config{Secret: testConfig.Secret, Issuer: "elsewhere"}, "user-1", nil, time.Hour)
	require.NoError(t, err)
	expired, err := Issue(testConfig, "user-1", nil, -time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"sub": "user-1",
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"garbage":      "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClaims(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = ParseClaims("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestScopesAcceptSpaceSeparatedString(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    testConfig.Issuer,
		"sub":    "user-2",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "sessions:write  signals:write",
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	claims, err := ParseClaims(token, testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeSessionsWrite))
	require.True(t, claims.HasScope(ScopeSignalsWrite))
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	var seen *Claims
	handler := NewMiddleware(testConfig).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := Issue(testConfig, "user-3", AllScopes, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "user-3", seen.Subject)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	seen = nil
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, seen)
}
