// Package corecfg resolves a named preset plus environment overrides into a
// validated, frozen CoreConfig — the ConfigResolver of the request
// orchestration core. It follows the teacher's own config package in shape:
// YAML override files loaded with gopkg.in/yaml.v3, a Manager holding the
// resolved config behind an atomic.Pointer, and fsnotify-driven hot-reload
// of the API key file.
package corecfg

import "time"

// Environment classifies the deployment the core is running in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// CacheConfig mirrors spec §3.4/§4.1's cache-relevant fields.
type CacheConfig struct {
	Enabled              bool
	DefaultTTL           time.Duration
	MaxConnections       int
	ConnectionTimeout    time.Duration
	CompressionLevel     int
	CompressionThreshold int
	MemoryCacheSize      int
	EncryptionKey        string // Fernet urlsafe-base64 key, empty disables encryption

	// AI-variant fields; populated only for ai-development/ai-production.
	AI bool
	AIConfig
}

// AIConfig holds the AI-preset-only fields (spec §4.1: "For AI presets").
type AIConfig struct {
	TextHashThreshold int
	TextSizeTiers     map[string]int // keys: small, medium, large; strictly increasing
}

// ResilienceConfig names the per-operation strategy assignment resolved
// from a resilience preset (spec §6.5).
type ResilienceConfig struct {
	Preset            string
	OperationStrategy map[string]string // operation tag -> aggressive|balanced|conservative

	// MaxAttemptsOverride is RESILIENCE_MAX_ATTEMPTS (spec §4.1 tier-1
	// per-field override), applied on top of every operation's resolved
	// strategy preset. Zero means no override.
	MaxAttemptsOverride int
}

// AuthConfig carries the auth-relevant portion of CoreConfig; key material
// itself lives in internal/coreauth, not here.
type AuthConfig struct {
	RequireKey bool // true in Staging/Production
}

// CoreConfig is the resolved, frozen output of ConfigResolver (spec §3.4).
type CoreConfig struct {
	Cache       CacheConfig
	Resilience  ResilienceConfig
	Auth        AuthConfig
	Environment Environment
}
