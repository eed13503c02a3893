package corecfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDetectEnvironmentExactMatch(t *testing.T) {
	rec := DetectEnvironment(lookupFrom(map[string]string{"ENVIRONMENT": "production"}))
	assert.Equal(t, Production, rec.Environment)
	assert.Equal(t, 1.0, rec.Confidence)
}

func TestDetectEnvironmentPatternMatch(t *testing.T) {
	rec := DetectEnvironment(lookupFrom(map[string]string{"NODE_ENV": "preprod-cluster"}))
	assert.Equal(t, Staging, rec.Environment)
}

func TestDetectEnvironmentDefaultsToDevelopment(t *testing.T) {
	rec := DetectEnvironment(lookupFrom(map[string]string{}))
	assert.Equal(t, Development, rec.Environment)
}

func TestDetectEnvironmentPrecedence(t *testing.T) {
	rec := DetectEnvironment(lookupFrom(map[string]string{
		"ENVIRONMENT": "development",
		"NODE_ENV":    "production",
	}))
	assert.Equal(t, Development, rec.Environment, "ENVIRONMENT must win over NODE_ENV")
}

func TestResolveDevelopmentNoKeyRequired(t *testing.T) {
	cfg, err := Resolve(ResolveOptions{
		Lookup:    lookupFrom(map[string]string{}),
		HasAPIKey: false,
	})
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.Environment)
	assert.False(t, cfg.Auth.RequireKey)
}

func TestResolveProductionRequiresAPIKey(t *testing.T) {
	_, err := Resolve(ResolveOptions{
		Lookup:    lookupFrom(map[string]string{"ENVIRONMENT": "production"}),
		HasAPIKey: false,
	})
	assert.Error(t, err)
}

func TestResolveProductionWithKeySucceeds(t *testing.T) {
	cfg, err := Resolve(ResolveOptions{
		Lookup:    lookupFrom(map[string]string{"ENVIRONMENT": "production"}),
		HasAPIKey: true,
	})
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Environment)
	assert.Equal(t, "production", cfg.Resilience.Preset)
}

func TestResolveAIVariantSelection(t *testing.T) {
	cfg, err := Resolve(ResolveOptions{
		Lookup: lookupFrom(map[string]string{
			"ENVIRONMENT":     "development",
			"ENABLE_AI_CACHE": "true",
		}),
		HasAPIKey: false,
	})
	require.NoError(t, err)
	assert.True(t, cfg.Cache.AI)
	assert.Equal(t, 2000, cfg.Cache.AIConfig.TextHashThreshold)
}

func TestResolveAppliesCacheDefaultTTLOverride(t *testing.T) {
	cfg, err := Resolve(ResolveOptions{
		Lookup: lookupFrom(map[string]string{
			"ENVIRONMENT":       "development",
			"CACHE_DEFAULT_TTL": "120",
		}),
		HasAPIKey: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.Cache.DefaultTTL)
}

func TestResolveAppliesResilienceMaxAttemptsOverride(t *testing.T) {
	cfg, err := Resolve(ResolveOptions{
		Lookup: lookupFrom(map[string]string{
			"ENVIRONMENT":             "development",
			"RESILIENCE_MAX_ATTEMPTS": "7",
		}),
		HasAPIKey: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Resilience.MaxAttemptsOverride)
}

func TestResolveIgnoresNonPositiveMaxAttemptsOverride(t *testing.T) {
	cfg, err := Resolve(ResolveOptions{
		Lookup: lookupFrom(map[string]string{
			"ENVIRONMENT":             "development",
			"RESILIENCE_MAX_ATTEMPTS": "0",
		}),
		HasAPIKey: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Resilience.MaxAttemptsOverride)
}

func TestGetPresetDetails(t *testing.T) {
	details, err := GetPresetDetails("production")
	require.NoError(t, err)
	assert.Equal(t, 500, details.Cache.MemoryCacheSize)
	assert.NotEmpty(t, details.Reasoning)
}

func TestValidationLimiterEnforcesPerMinuteCap(t *testing.T) {
	l := NewValidationLimiter(2, 1000, 0)
	require.True(t, l.CheckRateLimit("client-a").IsValid)
	require.True(t, l.CheckRateLimit("client-a").IsValid)
	result := l.CheckRateLimit("client-a")
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Suggestion)
}

func TestValidationLimiterTracksRequestsLastMinute(t *testing.T) {
	l := NewValidationLimiter(60, 1000, 0)
	l.CheckRateLimit("client-b")
	l.CheckRateLimit("client-b")
	assert.Equal(t, 2, l.RequestsLastMinute("client-b"))
}
