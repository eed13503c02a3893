// Package cachecore implements the two-tier cache facade: an in-memory LRU
// L1 plus an optional remote KV tier, with Fernet encryption, zlib
// compression, deterministic fingerprint keys and single-flight producer
// deduplication.
package cachecore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/aicore/internal/coretypes"
	pkgcache "github.com/blueberrycongee/aicore/pkg/cache"
)

// Config configures a Facade. Remote may be nil to run L1-only.
type Config struct {
	MemoryCacheSize      int
	DefaultTTL           time.Duration
	CompressionLevel     int // 0 disables compression (zlib levels are 1-9)
	CompressionThreshold int // bytes; below this, payloads are stored uncompressed
	TextHashThreshold    int
	FernetKey            string // urlsafe-base64, 32 bytes decoded; empty disables encryption
	Remote               pkgcache.Cache
}

// Stats is a point-in-time counters snapshot, safe to copy.
type Stats struct {
	HitsL1             int64
	HitsRemote         int64
	Misses             int64
	Sets               int64
	EvictionsLRU       int64
	EvictionsTTL       int64
	Compressions       int64
	DecryptionFailures int64
	RemoteErrors       int64
	InFlight           int64
	BytesStored        int64
}

// Facade implements the CacheFacade component (spec §4.2).
type Facade struct {
	l1     *l1Tier
	remote *remoteGuard

	compressionLevel     int
	compressionThreshold int
	textHashThreshold    int
	fernetKey            *fernetKey
	defaultTTL           time.Duration

	logger *slog.Logger

	hitsL1             atomic.Int64
	hitsRemote         atomic.Int64
	misses             atomic.Int64
	sets               atomic.Int64
	compressions       atomic.Int64
	decryptionFailures atomic.Int64
	remoteErrors       atomic.Int64
	bytesStored        atomic.Int64

	sfMu     sync.Mutex
	sfCalls  map[CacheKey]*singleflightCall
	inFlight atomic.Int64
}

type singleflightCall struct {
	wg    sync.WaitGroup
	value []byte
	err   error
}

// New constructs a Facade from cfg. logger may be nil.
func New(cfg Config, logger *slog.Logger) (*Facade, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var fk *fernetKey
	if cfg.FernetKey != "" {
		parsed, err := ParseFernetKey(cfg.FernetKey)
		if err != nil {
			return nil, fmt.Errorf("cachecore: %w", err)
		}
		fk = parsed
	}

	f := &Facade{
		l1:                   newL1Tier(cfg.MemoryCacheSize),
		compressionLevel:     cfg.CompressionLevel,
		compressionThreshold: cfg.CompressionThreshold,
		textHashThreshold:    cfg.TextHashThreshold,
		fernetKey:            fk,
		defaultTTL:           cfg.DefaultTTL,
		logger:               logger,
		sfCalls:              make(map[CacheKey]*singleflightCall),
	}
	if cfg.Remote != nil {
		f.remote = newRemoteGuard(cfg.Remote)
	}
	return f, nil
}

// Get probes L1 first, then the remote tier on miss (if configured),
// promoting remote hits back into L1. It never returns an error: any
// remote-tier failure is logged, metered and treated as a miss.
func (f *Facade) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	payload, ok := f.probe(ctx, key)
	if !ok {
		f.misses.Add(1)
	}
	return payload, ok
}

// probe runs the same L1/remote lookup as Get but leaves miss accounting to
// the caller. GetOrCompute uses this so that concurrent single-flight callers
// don't each record their own miss for what is really one cache population.
func (f *Facade) probe(ctx context.Context, key CacheKey) ([]byte, bool) {
	if blob, ok := f.l1.get(key); ok {
		payload, decoded, err := f.decodeEntry(blob)
		if err == nil && decoded {
			f.hitsL1.Add(1)
			return payload, true
		}
		if err == nil && !decoded {
			f.decryptionFailures.Add(1)
			f.logger.Warn("cachecore: decryption failure on L1 entry, treating as miss", "key_prefix", keyPrefixForLog(key))
		}
	}

	if f.remote == nil {
		return nil, false
	}

	blob, err := f.remote.get(ctx, string(key))
	if err != nil {
		f.remoteErrors.Add(1)
		f.logger.Warn("cachecore: remote get failed, degrading to miss", "error", err)
		return nil, false
	}
	if blob == nil {
		return nil, false
	}

	payload, decoded, err := f.decodeEntry(blob)
	if err != nil {
		f.remoteErrors.Add(1)
		f.logger.Warn("cachecore: malformed remote entry, treating as miss", "error", err)
		return nil, false
	}
	if !decoded {
		f.decryptionFailures.Add(1)
		f.logger.Warn("cachecore: decryption failure on remote entry, treating as miss", "key_prefix", keyPrefixForLog(key))
		return nil, false
	}

	f.hitsRemote.Add(1)
	f.l1.set(key, blob, f.ttlOrDefault(0))
	return payload, true
}

// Set encodes payload (compress, then encrypt, as configured) and stores it
// in both L1 and the remote tier (if configured). Remote failures are
// swallowed; the facade continues operating on L1.
func (f *Facade) Set(ctx context.Context, key CacheKey, payload []byte, ttl time.Duration) {
	ttl = f.ttlOrDefault(ttl)

	blob, compressed, _, err := f.encodeEntry(payload)
	if err != nil {
		f.logger.Error("cachecore: encode entry failed", "error", err)
		return
	}
	if compressed {
		f.compressions.Add(1)
	}

	f.l1.set(key, blob, ttl)
	f.bytesStored.Add(int64(len(blob)))
	f.sets.Add(1)

	if f.remote != nil {
		if err := f.remote.set(ctx, string(key), blob, ttl); err != nil {
			f.remoteErrors.Add(1)
			f.logger.Warn("cachecore: remote set failed, L1 still updated", "error", err)
		}
	}
}

// GetOrCompute is single-flight per key: the first caller runs producer,
// concurrent callers for the same key block on its result. A successful
// result is cached with ttl; a failing producer propagates its error and
// caches nothing.
func (f *Facade) GetOrCompute(ctx context.Context, key CacheKey, ttl time.Duration, producer func(context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok := f.probe(ctx, key); ok {
		return payload, nil
	}

	f.sfMu.Lock()
	if call, inFlight := f.sfCalls[key]; inFlight {
		f.sfMu.Unlock()
		call.wg.Wait()
		return call.value, call.err
	}

	// Only the caller that actually wins the single-flight race records the
	// miss; every concurrent caller waiting on call.wg shares this one miss.
	f.misses.Add(1)

	call := &singleflightCall{}
	call.wg.Add(1)
	f.sfCalls[key] = call
	f.inFlight.Add(1)
	f.sfMu.Unlock()

	value, err := producer(ctx)

	f.sfMu.Lock()
	delete(f.sfCalls, key)
	f.sfMu.Unlock()
	f.inFlight.Add(-1)

	call.value = value
	call.err = err
	call.wg.Done()

	if err == nil {
		f.Set(ctx, key, value, ttl)
	}
	return value, err
}

// Invalidate removes every L1 key matching pattern ('*' alone, a leading
// and/or trailing '*' wildcard, or an exact literal) and returns how many
// L1 entries it removed. Only an exact-literal pattern is also deleted,
// best-effort, from the remote tier; wildcard patterns are applied to L1
// only and leave remote entries in place.
func (f *Facade) Invalidate(ctx context.Context, pattern string) int {
	removed := f.l1.invalidateGlob(pattern)
	if f.remote != nil && pattern != "*" && !containsWildcard(pattern) {
		f.remote.deleteGlob(ctx, []string{pattern})
	}
	return removed
}

func containsWildcard(s string) bool {
	for _, r := range s {
		if r == '*' {
			return true
		}
	}
	return false
}

// BuildKey computes this facade's deterministic key for a request, using
// its configured text-hash threshold.
func (f *Facade) BuildKey(op coretypes.Operation, text string, options map[string]any, question string) CacheKey {
	return BuildKey(op, text, options, question, f.textHashThreshold)
}

// Stats returns a counters snapshot.
func (f *Facade) Stats() Stats {
	lru, ttl := f.l1.counters()
	return Stats{
		HitsL1:             f.hitsL1.Load(),
		HitsRemote:         f.hitsRemote.Load(),
		Misses:             f.misses.Load(),
		Sets:               f.sets.Load(),
		EvictionsLRU:       lru,
		EvictionsTTL:       ttl,
		Compressions:       f.compressions.Load(),
		DecryptionFailures: f.decryptionFailures.Load(),
		RemoteErrors:       f.remoteErrors.Load(),
		InFlight:           f.inFlight.Load(),
		BytesStored:        f.bytesStored.Load(),
	}
}

// L1Len reports the current number of entries held in L1 (used by health
// reporting).
func (f *Facade) L1Len() int {
	return f.l1.len()
}

// RemoteHealthy reports whether the facade's internal remote breaker is
// currently closed (i.e. not short-circuiting remote calls).
func (f *Facade) RemoteHealthy() bool {
	if f.remote == nil {
		return true
	}
	return !f.remote.isOpen()
}

// Ping checks remote connectivity directly, bypassing the breaker's
// cached state, for startup and health-check use.
func (f *Facade) Ping(ctx context.Context) error {
	if f.remote == nil {
		return nil
	}
	return f.remote.ping(ctx)
}

func (f *Facade) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return f.defaultTTL
}

func keyPrefixForLog(key CacheKey) string {
	s := string(key)
	if len(s) > 24 {
		return s[:24]
	}
	return s
}
