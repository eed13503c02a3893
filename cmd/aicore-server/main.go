// Package main is the entry point for the aicore request orchestration
// server: it resolves configuration, wires the cache, resilience,
// registry, batch and auth components, and serves the HTTP surface
// described in spec §6.1.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/aicore/internal/batch"
	"github.com/blueberrycongee/aicore/internal/cachecore"
	"github.com/blueberrycongee/aicore/internal/coreauth"
	"github.com/blueberrycongee/aicore/internal/corecfg"
	"github.com/blueberrycongee/aicore/internal/llmprovider"
	"github.com/blueberrycongee/aicore/internal/metrics"
	"github.com/blueberrycongee/aicore/internal/observability"
	"github.com/blueberrycongee/aicore/internal/registry"
	"github.com/blueberrycongee/aicore/internal/resilience"
)

// Exit codes per spec §6.6.
const (
	exitOK               = 0
	exitConfiguration    = 64
	exitCacheUnreachable = 69
	exitInvariant        = 70
)

func main() {
	detectedEnv := corecfg.DetectEnvironment(envLookup).Environment
	jsonFormat := detectedEnv == corecfg.Production || detectedEnv == corecfg.Staging

	logger := observability.NewLogger(observability.LoggerConfig{
		Output:     os.Stdout,
		JSONFormat: jsonFormat,
	}, observability.NewRedactor())
	slog.SetDefault(logger.Slog())

	if err := run(logger, detectedEnv); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

type startupError struct {
	code int
	err  error
}

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if se, ok := err.(*startupError); ok {
		return se.code
	}
	return exitInvariant
}

func run(logger *observability.Logger, detectedEnv corecfg.Environment) error {
	srvCfg := loadServerConfig(envLookup)

	requireKey := detectedEnv == corecfg.Production || detectedEnv == corecfg.Staging

	auth, err := coreauth.New(envLookup, requireKey, logger.Slog())
	if err != nil {
		return &startupError{code: exitConfiguration, err: fmt.Errorf("auth: %w", err)}
	}

	if _, err := corecfg.LoadOverrideFile(srvCfg.OverrideFile); err != nil {
		return &startupError{code: exitConfiguration, err: fmt.Errorf("override file: %w", err)}
	}

	// resolveFn re-reads the override file on every call, so a reload
	// triggered by the file watcher resolves the file's current contents.
	resolveFn := func() (*corecfg.CoreConfig, error) {
		overrides, err := corecfg.LoadOverrideFile(srvCfg.OverrideFile)
		if err != nil {
			return nil, err
		}
		return corecfg.Resolve(corecfg.ResolveOptions{
			Lookup:       envLookup,
			OverrideFile: overrides,
			HasAPIKey:    auth.KeyCount() > 0,
		})
	}

	cfgManager, err := corecfg.NewManager(resolveFn, srvCfg.OverrideFile, logger.Slog())
	if err != nil {
		return &startupError{code: exitConfiguration, err: fmt.Errorf("config: %w", err)}
	}
	coreConfig := cfgManager.Get()

	remoteCache, err := buildRemoteCache(srvCfg)
	if err != nil {
		if coreConfig.Environment == corecfg.Production {
			return &startupError{code: exitCacheUnreachable, err: fmt.Errorf("remote cache: %w", err)}
		}
		logger.Warn("remote cache unavailable, continuing L1-only", "error", err)
		remoteCache = nil
	}
	if remoteCache != nil && coreConfig.Environment == corecfg.Production && coreConfig.Cache.Enabled && coreConfig.Cache.EncryptionKey == "" {
		return &startupError{code: exitConfiguration, err: fmt.Errorf("config: a remote cache in production requires an encryption key (REDIS_ENCRYPTION_KEY or cache.encryption_key)")}
	}

	cacheCfg := cachecore.Config{
		MemoryCacheSize:      coreConfig.Cache.MemoryCacheSize,
		DefaultTTL:           coreConfig.Cache.DefaultTTL,
		CompressionLevel:     coreConfig.Cache.CompressionLevel,
		CompressionThreshold: coreConfig.Cache.CompressionThreshold,
		TextHashThreshold:    coreConfig.Cache.TextHashThreshold,
		FernetKey:            coreConfig.Cache.EncryptionKey,
	}
	if remoteCache != nil {
		cacheCfg.Remote = remoteCache
	}
	cache, err := cachecore.New(cacheCfg, logger.Slog())
	if err != nil {
		return &startupError{code: exitConfiguration, err: fmt.Errorf("cache: %w", err)}
	}

	orchestrator := resilience.NewOrchestrator(metrics.ResilienceRecorder{})

	provider := llmprovider.New(llmprovider.Config{APIKey: srvCfg.GeminiAPIKey})

	processor, err := registry.NewTextProcessor(cache, orchestrator, provider, registry.DefaultLimits(), logger)
	if err != nil {
		return &startupError{code: exitInvariant, err: fmt.Errorf("registry: %w", err)}
	}
	orchestrator.OverrideMaxAttempts(coreConfig.Resilience.MaxAttemptsOverride)

	batchExecutor := batch.New(processor, srvCfg.BatchConcurrencyLimit)

	trustedProxies, invalidProxies := coreauth.ParseTrustedProxyCIDRs(srvCfg.TrustedProxies)
	if len(invalidProxies) > 0 {
		logger.Warn("ignoring invalid TRUSTED_PROXIES entries", "values", invalidProxies)
	}

	validationLimiter := corecfg.DefaultValidationLimiter()
	if distributed := buildDistributedLimiter(srvCfg); distributed != nil {
		validationLimiter.SetDistributedLimiter(distributed)
	}

	srv := &server{
		processor:         processor,
		batch:             batchExecutor,
		cache:             cache,
		orchestrator:      orchestrator,
		auth:              auth,
		validationLimiter: validationLimiter,
		trustedProxies:    trustedProxies,
		logger:            logger,
	}

	apiMux := http.NewServeMux()
	srv.routes(apiMux)
	var apiHandler http.Handler = apiMux
	apiHandler = auth.Middleware(apiHandler)

	// /metrics is scraped by Prometheus, never by an API-key-bearing
	// caller, so it sits outside the auth middleware entirely.
	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/", apiHandler)

	var handler http.Handler = root
	handler = metrics.Middleware(handler)
	handler = observability.RequestIDMiddleware(handler)

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if err := cfgManager.Watch(watchCtx); err != nil {
		logger.Warn("config hot-reload watch unavailable", "error", err)
	}
	cfgManager.OnReload(func(*corecfg.CoreConfig) {
		auth.ReloadKeys(envLookup)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srvCfg.Port),
		Handler:      handler,
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		IdleTimeout:  srvCfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", srvCfg.Port, "environment", coreConfig.Environment)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server")
	case err := <-serverErr:
		if err != nil {
			return &startupError{code: exitInvariant, err: fmt.Errorf("server: %w", err)}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := cfgManager.Close(); err != nil {
		logger.Error("config manager close error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
