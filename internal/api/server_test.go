package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/keystore"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/protocol"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/radio"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	hash, err := crypto.HashPassword("hunter2")
	require.NoError(t, err)

	cfg := &config.APIConfig{
		Enabled:           true,
		Addr:              ":0",
		JWTSecret:         "test-secret",
		AdminPasswordHash: hash,
		TokenTTL:          time.Hour,
	}

	driver, _ := radio.NewTestLink()
	med := radio.NewMediator(driver, radio.Timing{PollInterval: time.Millisecond}, zerolog.Nop())
	sessions := keystore.NewSessionStore(keystore.NewMemKV(), lorawan.AES128Key{}, zerolog.Nop())
	gw := protocol.NewGateway(protocol.GatewayConfig{}, sessions, med, zerolog.Nop())

	return NewServer(cfg, gw)
}

func login(t *testing.T, s *Server, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"password":"`+password+`"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, login(t, s, "hunter2").Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, s, "wrong").Code)
}

func TestSessionsRequireAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionsWithToken(t *testing.T) {
	s := newTestServer(t)

	token, err := s.auth.Login("hunter2")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessions")
}

func TestTokenValidation(t *testing.T) {
	s := newTestServer(t)

	token, err := s.auth.Login("hunter2")
	require.NoError(t, err)

	claims, err := s.auth.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	_, err = s.auth.ValidateToken(token + "x")
	assert.Error(t, err)
}
