// Package coreauth implements API-key authentication: O(1) set-based key
// validation, Bearer/X-API-Key header extraction, and environment-aware
// production enforcement (spec §6, ambient authentication layer).
package coreauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// developmentIdentity is returned for every call when no keys are
// configured and the environment is not production/staging.
const developmentIdentity = "development"

// hashKey returns a SHA-256 hex digest, never the raw key, so logged
// identities never leak secrets.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticator validates API keys loaded from the environment. A zero
// key set means development mode: every request authenticates as
// developmentIdentity. When New is called with requireKey true (the server
// passes true in production and staging), an empty key set makes New
// return errNoKeysConfigured instead of an Authenticator.
type Authenticator struct {
	mu      sync.RWMutex
	keys    map[string]struct{} // sha256 hex digest -> present
	logger  *slog.Logger
	reloads atomic.Uint64
}

// Lookup resolves environment variables; matches os.LookupEnv's shape so
// callers can pass os.LookupEnv directly or a fake for tests.
type Lookup func(key string) (string, bool)

// New builds an Authenticator from the current environment. requireKey
// mirrors corecfg.CoreConfig.Auth.RequireKey: when true and no keys are
// configured, New returns an error rather than silently falling open.
func New(lookup Lookup, requireKey bool, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{keys: make(map[string]struct{}), logger: logger}
	a.load(lookup)

	if requireKey && len(a.keys) == 0 {
		return nil, errNoKeysConfigured
	}
	return a, nil
}

func (a *Authenticator) load(lookup Lookup) {
	keys := make(map[string]struct{})

	if primary, ok := lookup("API_KEY"); ok {
		if trimmed := strings.TrimSpace(primary); trimmed != "" {
			keys[hashKey(trimmed)] = struct{}{}
		}
	}
	if additional, ok := lookup("ADDITIONAL_API_KEYS"); ok {
		for _, k := range strings.Split(additional, ",") {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				keys[hashKey(trimmed)] = struct{}{}
			}
		}
	}

	a.mu.Lock()
	a.keys = keys
	a.mu.Unlock()

	if len(keys) == 0 {
		a.logger.Warn("coreauth: no API keys configured; requests authenticate as development")
	} else {
		a.logger.Info("coreauth: loaded API keys", "count", len(keys))
	}
}

// ReloadKeys re-reads the environment via lookup, replacing the key set.
// Safe to call concurrently with Authenticate.
func (a *Authenticator) ReloadKeys(lookup Lookup) {
	a.load(lookup)
	a.reloads.Add(1)
}

// ReloadCount reports how many times ReloadKeys has run.
func (a *Authenticator) ReloadCount() uint64 {
	return a.reloads.Load()
}

// KeyCount reports how many keys are currently configured.
func (a *Authenticator) KeyCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Authenticate validates the key extracted from r, trying Authorization:
// Bearer first and falling back to X-API-Key (spec §6 authentication
// contract). It returns the authenticated identity (the raw key, or
// developmentIdentity in open mode) and whether authentication succeeded.
func (a *Authenticator) Authenticate(r *http.Request) (identity string, ok bool) {
	a.mu.RLock()
	configured := len(a.keys)
	a.mu.RUnlock()

	key, _ := ExtractKey(r)

	if configured == 0 {
		return developmentIdentity, true
	}
	if key == "" {
		return "", false
	}
	if !a.verify(key) {
		return "", false
	}
	return key, true
}

func (a *Authenticator) verify(key string) bool {
	want := hashKey(key)
	a.mu.RLock()
	defer a.mu.RUnlock()
	for configured := range a.keys {
		if subtle.ConstantTimeCompare([]byte(configured), []byte(want)) == 1 {
			return true
		}
	}
	return false
}

// ExtractKey pulls the API key from either the Authorization: Bearer
// header or the X-API-Key header, returning which method supplied it.
func ExtractKey(r *http.Request) (key, method string) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, found := strings.CutPrefix(auth, "Bearer "); found {
			if trimmed := strings.TrimSpace(rest); trimmed != "" {
				return trimmed, "bearer_token"
			}
		}
	}
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey, "x_api_key"
	}
	return "", "none"
}

// Status is the shape returned by the /v1/internal/auth/status endpoint
// (spec §6.1).
type Status struct {
	KeysConfigured  int    `json:"keys_configured"`
	DevelopmentMode bool   `json:"development_mode"`
	ReloadCount     uint64 `json:"reload_count"`
}

// StatusReport returns a snapshot safe to serve to operators: counts only,
// never the keys themselves.
func (a *Authenticator) StatusReport() Status {
	a.mu.RLock()
	count := len(a.keys)
	a.mu.RUnlock()
	return Status{
		KeysConfigured:  count,
		DevelopmentMode: count == 0,
		ReloadCount:     a.reloads.Load(),
	}
}
