package corecfg

import (
	"fmt"
	"time"

	"github.com/blueberrycongee/aicore/internal/coretypes"
	"github.com/blueberrycongee/aicore/internal/resilience"
)

// CachePresetNames is the closed set accepted for CACHE_PRESET.
var CachePresetNames = []string{
	"disabled", "minimal", "simple", "development", "production",
	"ai-development", "ai-production",
}

// ResiliencePresetNames is the closed set accepted for RESILIENCE_PRESET.
var ResiliencePresetNames = []string{"simple", "development", "production"}

// cachePresets mirrors the catalog in spec §6.5 exactly.
var cachePresets = map[string]CacheConfig{
	"disabled": {
		Enabled:         false,
		DefaultTTL:      300 * time.Second,
		MemoryCacheSize: 10,
	},
	"minimal": {
		Enabled:              true,
		DefaultTTL:           900 * time.Second,
		MaxConnections:       5,
		ConnectionTimeout:    5 * time.Second,
		CompressionLevel:     1,
		CompressionThreshold: 1 << 20, // effectively off
		MemoryCacheSize:      25,
	},
	"simple": {
		Enabled:              true,
		DefaultTTL:           3600 * time.Second,
		MaxConnections:       10,
		ConnectionTimeout:    5 * time.Second,
		CompressionLevel:     6,
		CompressionThreshold: 1024,
		MemoryCacheSize:      100,
	},
	"development": {
		Enabled:              true,
		DefaultTTL:           600 * time.Second,
		MaxConnections:       10,
		ConnectionTimeout:    5 * time.Second,
		CompressionLevel:     3,
		CompressionThreshold: 2048,
		MemoryCacheSize:      50,
	},
	"production": {
		Enabled:              true,
		DefaultTTL:           7200 * time.Second,
		MaxConnections:       50,
		ConnectionTimeout:    10 * time.Second,
		CompressionLevel:     9,
		CompressionThreshold: 512,
		MemoryCacheSize:      500,
	},
	"ai-development": {
		Enabled:              true,
		DefaultTTL:           1800 * time.Second,
		MaxConnections:       10,
		ConnectionTimeout:    5 * time.Second,
		CompressionLevel:     6,
		CompressionThreshold: 1024,
		MemoryCacheSize:      100,
		AI:                   true,
		AIConfig: AIConfig{
			TextHashThreshold: 2000,
			TextSizeTiers:     map[string]int{"small": 500, "medium": 5000, "large": 50000},
		},
	},
	"ai-production": {
		Enabled:              true,
		DefaultTTL:           14400 * time.Second,
		MaxConnections:       100,
		ConnectionTimeout:    10 * time.Second,
		CompressionLevel:     9,
		CompressionThreshold: 300,
		MemoryCacheSize:      1000,
		AI:                   true,
		AIConfig: AIConfig{
			TextHashThreshold: 2000,
			TextSizeTiers:     map[string]int{"small": 500, "medium": 5000, "large": 50000},
		},
	},
}

// cachePresetEnvironments records the environments each preset is vetted
// for (spec §6.5's "environments" column), surfaced via GetPresetDetails.
var cachePresetEnvironments = map[string][]string{
	"disabled":       {"testing"},
	"minimal":        {"embedded"},
	"simple":         {"any"},
	"development":    {"dev"},
	"production":     {"prod", "staging"},
	"ai-development": {"ai-dev"},
	"ai-production":  {"ai-prod"},
}

// resilienceOperationStrategy returns the operation->strategy assignment for
// a resilience preset (spec §6.5): simple is uniformly balanced, development
// is uniformly aggressive, production is mixed per operation.
func resilienceOperationStrategy(preset string) (map[string]string, error) {
	uniform := func(strategy string) map[string]string {
		m := make(map[string]string, len(coretypes.AllOperations))
		for _, op := range coretypes.AllOperations {
			m[op.Tag()] = strategy
		}
		return m
	}

	switch preset {
	case "simple":
		return uniform(resilience.StrategyBalanced), nil
	case "development":
		return uniform(resilience.StrategyAggressive), nil
	case "production":
		m := uniform(resilience.StrategyBalanced)
		m[coretypes.QA.Tag()] = resilience.StrategyConservative
		m[coretypes.Sentiment.Tag()] = resilience.StrategyAggressive
		return m, nil
	default:
		return nil, fmt.Errorf("corecfg: unknown resilience preset %q", preset)
	}
}

// CachePreset returns a copy of the named cache preset's baseline config.
func CachePreset(name string) (CacheConfig, error) {
	cfg, ok := cachePresets[name]
	if !ok {
		return CacheConfig{}, fmt.Errorf("corecfg: unknown cache preset %q", name)
	}
	if cfg.AIConfig.TextSizeTiers != nil {
		tiers := make(map[string]int, len(cfg.AIConfig.TextSizeTiers))
		for k, v := range cfg.AIConfig.TextSizeTiers {
			tiers[k] = v
		}
		cfg.AIConfig.TextSizeTiers = tiers
	}
	return cfg, nil
}

// PresetDetails is the operator-facing descriptor returned by
// get_preset_details (spec §4.1, supplemented per original_source/
// cache_presets.py's reasoning trail).
type PresetDetails struct {
	Name         string
	Cache        CacheConfig
	Environments []string
	Reasoning    string
}

// GetPresetDetails resolves a cache preset name to its full field set plus a
// human-readable explanation, mirroring CachePresetManager.get_preset_details.
func GetPresetDetails(name string) (PresetDetails, error) {
	cfg, err := CachePreset(name)
	if err != nil {
		return PresetDetails{}, err
	}
	envs := cachePresetEnvironments[name]
	reasoning := fmt.Sprintf(
		"preset %q: ttl=%s, memory_cache_size=%d, compression_level=%d@%dB threshold, ai_variant=%v, vetted for environments %v",
		name, cfg.DefaultTTL, cfg.MemoryCacheSize, cfg.CompressionLevel, cfg.CompressionThreshold, cfg.AI, envs,
	)
	return PresetDetails{Name: name, Cache: cfg, Environments: envs, Reasoning: reasoning}, nil
}
