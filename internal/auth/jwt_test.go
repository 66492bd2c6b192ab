package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func testConfig() (*JWTConfig, *testclock.Clock) {
	clk := testclock.NewClock(epoch)
	return NewJWTConfig("test-secret", time.Hour, clk), clk
}

func sampleClaims() Claims {
	return Claims{
		Username:    "ann",
		UserID:      "01HZX3",
		Access:      "editor",
		Permissions: []string{"flows:write"},
		Name:        "Ann Lee",
		Email:       "ann@example.com",
		IsActive:    true,
	}
}

func TestIssueAndParse(t *testing.T) {
	cfg, _ := testConfig()

	token, expires, err := cfg.Issue(sampleClaims())
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Hour), expires)

	claims, err := cfg.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ann", claims.Username)
	assert.Equal(t, "01HZX3", claims.UserID)
	assert.Equal(t, "01HZX3", claims.Subject)
	assert.Equal(t, []string{"flows:write"}, claims.Permissions)
	assert.True(t, claims.IsActive)
	assert.True(t, claims.Can("flows:write"))
	assert.False(t, claims.Can("broadcasts:write"))
}

func TestParse_Rejects(t *testing.T) {
	cfg, clk := testConfig()
	token, _, err := cfg.Issue(sampleClaims())
	require.NoError(t, err)

	other := NewJWTConfig("other-secret", time.Hour, clk)
	_, err = other.Parse(token)
	assert.True(t, errors.Is(err, errors.Unauthorized))

	_, err = cfg.Parse("garbage")
	assert.True(t, errors.Is(err, errors.Unauthorized))

	clk.Advance(2 * time.Hour)
	_, err = cfg.Parse(token)
	assert.True(t, errors.Is(err, errors.Unauthorized))
}

func TestMiddleware(t *testing.T) {
	cfg, _ := testConfig()
	var seen *Claims
	h := cfg.Middleware(cfg.RequireActive(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/flows", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := cfg.Issue(sampleClaims())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/flows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "ann", seen.Username)

	inactive := sampleClaims()
	inactive.IsActive = false
	token, _, err = cfg.Issue(inactive)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/ws?token="+token, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	cfg, _ := testConfig()
	h := cfg.RequirePermission("broadcasts:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	claims := sampleClaims()
	req := httptest.NewRequest(http.MethodPost, "/v1/broadcasts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithClaims(req.Context(), &claims)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	claims.Permissions = append(claims.Permissions, "broadcasts:write")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithClaims(req.Context(), &claims)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "01HZX3", GetUserID(WithClaims(req.Context(), &claims)))
}
