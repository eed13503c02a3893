package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/aicore/caches/redis"
	"github.com/blueberrycongee/aicore/internal/resilience"
)

// serverConfig holds the cmd/aicore-server-specific settings that sit
// outside corecfg.CoreConfig: listen address, timeouts, and the raw
// connection details ConfigResolver never sees (provider key, Redis DSN
// pieces, override file path).
type serverConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	GeminiAPIKey string
	OverrideFile string

	RedisAddr     string
	RedisPassword string

	BatchConcurrencyLimit int
	TrustedProxies        []string
}

func loadServerConfig(lookup func(string) (string, bool)) serverConfig {
	cfg := serverConfig{
		Port:                  8080,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		BatchConcurrencyLimit: 10,
	}
	if v, ok := lookup("PORT"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := lookup("GEMINI_API_KEY"); ok {
		cfg.GeminiAPIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("CONFIG_OVERRIDE_FILE"); ok {
		cfg.OverrideFile = strings.TrimSpace(v)
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.RedisPassword = v
	}
	if v, ok := lookup("BATCH_CONCURRENCY_LIMIT"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.BatchConcurrencyLimit = n
		}
	}
	if v, ok := lookup("TRUSTED_PROXIES"); ok {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, p)
			}
		}
	}
	return cfg
}

// buildRemoteCache constructs the Redis-backed remote tier when a Redis
// address is configured. A nil, nil return means run L1-only.
func buildRemoteCache(cfg serverConfig) (*redis.Cache, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	return redis.New(redis.Config{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		Namespace:    "aicore",
		DefaultTTL:   time.Hour,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// buildDistributedLimiter wires the configuration-validation rate limiter
// to a shared Redis-backed counter (spec §4.1's "distributed-capable
// variant") when a Redis address is configured, so the per-minute/per-hour
// caps hold across every server instance rather than per-process. A nil
// return leaves ValidationLimiter on its local in-process token buckets.
func buildDistributedLimiter(cfg serverConfig) resilience.DistributedLimiter {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return resilience.NewRedisLimiter(client)
}

func envLookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok
}
