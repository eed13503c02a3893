package coreauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) Lookup {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDevelopmentModeAuthenticatesAnyRequest(t *testing.T) {
	a, err := New(envLookup(map[string]string{}), false, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, ok := a.Authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, developmentIdentity, identity)
}

func TestRequireKeyWithNoKeysFailsFast(t *testing.T) {
	_, err := New(envLookup(map[string]string{}), true, nil)
	assert.Error(t, err)
}

func TestBearerTokenAuthenticates(t *testing.T) {
	a, err := New(envLookup(map[string]string{"API_KEY": "sk-primary"}), true, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sk-primary")
	identity, ok := a.Authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "sk-primary", identity)
}

func TestXAPIKeyHeaderAuthenticates(t *testing.T) {
	a, err := New(envLookup(map[string]string{"API_KEY": "sk-primary"}), true, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-primary")
	_, ok := a.Authenticate(req)
	assert.True(t, ok)
}

func TestAdditionalKeysAreTrimmedAndSplit(t *testing.T) {
	a, err := New(envLookup(map[string]string{"ADDITIONAL_API_KEYS": " sk-a , sk-b ,, "}), true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.KeyCount())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-b")
	_, ok := a.Authenticate(req)
	assert.True(t, ok)
}

func TestInvalidKeyRejected(t *testing.T) {
	a, err := New(envLookup(map[string]string{"API_KEY": "sk-primary"}), true, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-wrong")
	_, ok := a.Authenticate(req)
	assert.False(t, ok)
}

func TestReloadKeysPicksUpNewEnvironment(t *testing.T) {
	a, err := New(envLookup(map[string]string{"API_KEY": "sk-old"}), true, nil)
	require.NoError(t, err)

	a.ReloadKeys(envLookup(map[string]string{"API_KEY": "sk-new"}))
	assert.Equal(t, uint64(1), a.ReloadCount())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-old")
	_, ok := a.Authenticate(req)
	assert.False(t, ok, "old key must no longer authenticate after reload")

	req.Header.Set("X-API-Key", "sk-new")
	_, ok = a.Authenticate(req)
	assert.True(t, ok)
}

func TestMiddlewareRejectsMissingCredentials(t *testing.T) {
	a, err := New(envLookup(map[string]string{"API_KEY": "sk-primary"}), true, nil)
	require.NoError(t, err)

	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestClientIPFallsBackToRemoteAddrWithoutTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.4:51000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	assert.Equal(t, "203.0.113.4", ClientIP(req, nil))
}

func TestClientIPUsesForwardedForWhenProxyTrusted(t *testing.T) {
	nets, invalid := ParseTrustedProxyCIDRs([]string{"203.0.113.0/24"})
	require.Empty(t, invalid)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.4:51000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	assert.Equal(t, "198.51.100.9", ClientIP(req, nets))
}
